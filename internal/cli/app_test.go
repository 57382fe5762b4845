package cli

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	viper.SetEnvPrefix("SITESCOUT")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()
	t.Cleanup(viper.Reset)
}

func TestLoadConfigDefaults(t *testing.T) {
	resetViper(t)

	cfg, err := loadConfig(scoutCmd)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Investigate.Workers != 5 {
		t.Errorf("Expected 5 workers, got %d", cfg.Investigate.Workers)
	}
	if cfg.Pagination.Budget != 45*time.Second {
		t.Errorf("Expected 45s pagination budget, got %v", cfg.Pagination.Budget)
	}
	if cfg.Ledger.DSN != "" {
		t.Errorf("Expected ledger disabled by default, got %q", cfg.Ledger.DSN)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	resetViper(t)
	t.Setenv("SITESCOUT_OUTPUT_DIR", "/tmp/scout-out")
	t.Setenv("SITESCOUT_QA_BUDGET", "20s")
	t.Setenv("SITESCOUT_LEDGER_DSN", "postgres://localhost/scout")

	cfg, err := loadConfig(scoutCmd)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Output.Dir != "/tmp/scout-out" {
		t.Errorf("Expected env output dir, got %q", cfg.Output.Dir)
	}
	if cfg.QA.Budget != 20*time.Second {
		t.Errorf("Expected 20s QA budget, got %v", cfg.QA.Budget)
	}
	if cfg.Ledger.DSN != "postgres://localhost/scout" {
		t.Errorf("Expected env ledger DSN, got %q", cfg.Ledger.DSN)
	}
}

func TestLoadConfigOpenAIKeyFromEnv(t *testing.T) {
	resetViper(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := loadConfig(scoutCmd)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("Expected key from OPENAI_API_KEY, got %q", cfg.LLM.APIKey)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"investigate", "paginate", "selectors", "generate", "qa", "scout", "batch", "history", "config", "version"}
	have := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("Command %q not registered", name)
		}
	}
}
