package model

import "time"

// Config is the full runtime configuration
type Config struct {
	HTTP        HTTPConfig        `yaml:"http" mapstructure:"http"`
	Investigate InvestigateConfig `yaml:"investigate" mapstructure:"investigate"`
	Pagination  PaginationConfig  `yaml:"pagination" mapstructure:"pagination"`
	Browser     BrowserConfig     `yaml:"browser" mapstructure:"browser"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	QA          QAConfig          `yaml:"qa" mapstructure:"qa"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Ledger      LedgerConfig      `yaml:"ledger" mapstructure:"ledger"`
}

// HTTPConfig configures the fetcher
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	Proxy         string        `yaml:"proxy" mapstructure:"proxy"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
}

// InvestigateConfig bounds endpoint discovery
type InvestigateConfig struct {
	Workers      int           `yaml:"workers" mapstructure:"workers"`             // at most 5
	ProbeTimeout time.Duration `yaml:"probe_timeout" mapstructure:"probe_timeout"` // per probe
	PageLoad     time.Duration `yaml:"page_load" mapstructure:"page_load"`         // target page fetch
	PhaseBudget  time.Duration `yaml:"phase_budget" mapstructure:"phase_budget"`   // whole discovery phase
	MaxRetryWait time.Duration `yaml:"max_retry_wait" mapstructure:"max_retry_wait"`
	RateLimit    float64       `yaml:"rate_limit" mapstructure:"rate_limit"` // requests/sec per domain
	UseBrowser   bool          `yaml:"use_browser" mapstructure:"use_browser"`
}

// PaginationConfig bounds the pagination detection session
type PaginationConfig struct {
	Budget      time.Duration `yaml:"budget" mapstructure:"budget"`
	PageLoad    time.Duration `yaml:"page_load" mapstructure:"page_load"`
	SettleDelay time.Duration `yaml:"settle_delay" mapstructure:"settle_delay"`
}

// BrowserConfig configures the headless browser
type BrowserConfig struct {
	ExecPath string `yaml:"exec_path" mapstructure:"exec_path"`
	Headless bool   `yaml:"headless" mapstructure:"headless"`
}

// CacheConfig configures the artifact cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
	Dir     string        `yaml:"dir" mapstructure:"dir"`
}

// QAConfig configures validation and repair
type QAConfig struct {
	Budget      time.Duration `yaml:"budget" mapstructure:"budget"`
	AutoRepair  bool          `yaml:"auto_repair" mapstructure:"auto_repair"`
	ItemsSchema string        `yaml:"items_schema" mapstructure:"items_schema"` // optional override path
}

// OutputConfig configures where artifacts land
type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ConcurrencyConfig configures batch mode
type ConcurrencyConfig struct {
	Workers   int     `yaml:"workers" mapstructure:"workers"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst     int     `yaml:"burst" mapstructure:"burst"`
}

// LLMConfig configures the optional QA narrative
type LLMConfig struct {
	Enabled     bool          `yaml:"enabled" mapstructure:"enabled"`
	Provider    string        `yaml:"provider" mapstructure:"provider"` // openai, ollama
	Model       string        `yaml:"model" mapstructure:"model"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	Temperature float32       `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// LedgerConfig configures the run ledger; an empty DSN disables it
type LedgerConfig struct {
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			UserAgent:     "sitescout/1.0 (+https://github.com/ppiankov/sitescout)",
			MaxBodyBytes:  5 * 1024 * 1024,
			RespectRobots: true,
		},
		Investigate: InvestigateConfig{
			Workers:      5,
			ProbeTimeout: 10 * time.Second,
			PageLoad:     30 * time.Second,
			PhaseBudget:  30 * time.Second,
			MaxRetryWait: 10 * time.Second,
			RateLimit:    5,
			UseBrowser:   false,
		},
		Pagination: PaginationConfig{
			Budget:      45 * time.Second,
			PageLoad:    30 * time.Second,
			SettleDelay: 2 * time.Second,
		},
		Browser: BrowserConfig{
			Headless: true,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     15 * time.Minute,
			Dir:     "~/.sitescout/cache",
		},
		QA: QAConfig{
			Budget: 15 * time.Second,
		},
		Output: OutputConfig{
			Dir: "./output",
		},
		Concurrency: ConcurrencyConfig{
			Workers:   3,
			RateLimit: 2,
			Burst:     2,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   600,
			Timeout:     30 * time.Second,
		},
	}
}
