package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/sitescout/internal/browser"
	"github.com/ppiankov/sitescout/internal/metrics"
	"github.com/ppiankov/sitescout/internal/model"
	"github.com/ppiankov/sitescout/internal/pipeline"
	"github.com/ppiankov/sitescout/internal/store"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// app holds everything a command needs for one invocation
type app struct {
	cfg      model.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	ledger   store.Ledger
	pipeline *pipeline.Pipeline
	server   *http.Server
}

// loadConfig merges defaults, config file, environment and flags
func loadConfig(cmd *cobra.Command) (model.Config, error) {
	cfg := model.DefaultConfig()
	if err := registerDefaults(cfg); err != nil {
		return cfg, err
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	if noCache, err := cmd.Flags().GetBool("no-cache"); err == nil && noCache {
		cfg.Cache.Enabled = false
	}
	if cfg.LLM.APIKey == "" && cfg.LLM.Provider == "openai" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.LLM.BaseURL == "" && cfg.LLM.Provider == "ollama" {
		cfg.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	return cfg, nil
}

// registerDefaults makes every config key known to viper so environment
// variables can override keys absent from the config file
func registerDefaults(cfg model.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("decode defaults: %w", err)
	}
	setDefaults("", tree)
	return nil
}

func setDefaults(prefix string, tree map[string]interface{}) {
	for key, value := range tree {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if sub, ok := value.(map[string]interface{}); ok {
			setDefaults(full, sub)
			continue
		}
		viper.SetDefault(full, value)
	}
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newApp builds the configured pipeline and its collaborators
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	if metricsAddr != "" {
		a.metrics = metrics.New()
		a.serveMetrics(metricsAddr)
	}

	ledger, err := store.Open(cmd.Context(), cfg.Ledger.DSN)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	a.ledger = ledger

	factory := browser.NewChromeFactory(browser.ChromeOptions{
		ExecPath:  cfg.Browser.ExecPath,
		Headless:  cfg.Browser.Headless,
		UserAgent: cfg.HTTP.UserAgent,
		Logger:    logger.Named("browser"),
	})

	p, err := pipeline.NewPipeline(cfg, pipeline.Options{
		Logger:  logger,
		Metrics: a.metrics,
		Ledger:  ledger,
		Browser: factory,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.pipeline = p
	return a, nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	a.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	a.logger.Info("serving metrics", zap.String("addr", addr))
}

// Close releases the ledger, the metrics server and the logger
func (a *app) Close() {
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.logger.Warn("close ledger", zap.Error(err))
		}
	}
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.server.Shutdown(ctx)
	}
	_ = a.logger.Sync()
}

// outputPath resolves a default artifact path inside the output directory
func (a *app) outputPath(flagValue, defaultName string) string {
	if flagValue != "" {
		return flagValue
	}
	return filepath.Join(a.cfg.Output.Dir, defaultName)
}
