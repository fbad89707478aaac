// Package config provides configuration loading and validation for the CLI
// and the HTTP server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/jonathan/agent-factory/internal/llm"
)

// Environment variables read by ApplyEnv.
const (
	EnvDatabaseURL = "AGENT_FACTORY_DATABASE_URL"
	EnvProvider    = "AGENT_FACTORY_PROVIDER"
	EnvLogLevel    = "AGENT_FACTORY_LOG_LEVEL"
	EnvGeminiKey   = "GEMINI_API_KEY"
	EnvGoogleKey   = "GOOGLE_API_KEY"
	EnvClaudeKey   = "ANTHROPIC_API_KEY"
)

// Duration is a time.Duration written as a Go duration string ("90s", "2m")
// in every config format.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config represents the application configuration. All fields are optional;
// missing values come from Default.
type Config struct {
	DatabaseURL    string `json:"database_url,omitempty" yaml:"database_url,omitempty" toml:"database_url,omitempty"`
	LogLevel       string `json:"log_level,omitempty" yaml:"log_level,omitempty" toml:"log_level,omitempty"`
	LogDevelopment bool   `json:"log_development,omitempty" yaml:"log_development,omitempty" toml:"log_development,omitempty"`

	LLM      LLMConfig      `json:"llm" yaml:"llm" toml:"llm"`
	Research ResearchConfig `json:"research" yaml:"research" toml:"research"`
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline" toml:"pipeline"`
	Server   ServerConfig   `json:"server" yaml:"server" toml:"server"`
}

// LLMConfig selects the model provider.
type LLMConfig struct {
	Provider    string            `json:"provider,omitempty" yaml:"provider,omitempty" toml:"provider,omitempty"`
	Models      map[string]string `json:"models,omitempty" yaml:"models,omitempty" toml:"models,omitempty"` // tier -> model
	MaxTokens   int               `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" toml:"max_tokens,omitempty"`
	Timeout     Duration          `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	Temperature *float32          `json:"temperature,omitempty" yaml:"temperature,omitempty" toml:"temperature,omitempty"` // nil means default; 0 is allowed
	APIKey      string            `json:"api_key,omitempty" yaml:"api_key,omitempty" toml:"api_key,omitempty"`
}

// ResearchConfig controls stage 0.
type ResearchConfig struct {
	SearchGrounding bool     `json:"search_grounding,omitempty" yaml:"search_grounding,omitempty" toml:"search_grounding,omitempty"`
	UseBrowser      bool     `json:"use_browser,omitempty" yaml:"use_browser,omitempty" toml:"use_browser,omitempty"` // headless browser for SPA job pages
	FetchTimeout    Duration `json:"fetch_timeout,omitempty" yaml:"fetch_timeout,omitempty" toml:"fetch_timeout,omitempty"`
}

// PipelineConfig controls the orchestrator.
type PipelineConfig struct {
	AgentConcurrency int `json:"agent_concurrency,omitempty" yaml:"agent_concurrency,omitempty" toml:"agent_concurrency,omitempty"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Port      int     `json:"port,omitempty" yaml:"port,omitempty" toml:"port,omitempty"`
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty" toml:"rate_limit,omitempty"` // requests per second per client
	RateBurst int     `json:"rate_burst,omitempty" yaml:"rate_burst,omitempty" toml:"rate_burst,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DatabaseURL: "agent_factory.db",
		LogLevel:    "info",
		LLM: LLMConfig{
			Provider:    string(llm.ProviderGemini),
			MaxTokens:   8192,
			Timeout:     Duration{2 * time.Minute},
			Temperature: float32Ptr(0.2),
		},
		Research: ResearchConfig{
			FetchTimeout: Duration{30 * time.Second},
		},
		Pipeline: PipelineConfig{
			AgentConcurrency: 4,
		},
		Server: ServerConfig{
			Port:      8080,
			RateLimit: 5,
			RateBurst: 10,
		},
	}
}

// LoadConfig loads configuration from a JSON, YAML or TOML file, chosen by
// extension. Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}

	return &cfg, nil
}

// ApplyEnv overlays environment variables. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvDatabaseURL); v != "" {
		c.DatabaseURL = v
	}
	if v := getenv(EnvProvider); v != "" {
		c.LLM.Provider = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if c.LLM.APIKey != "" {
		return
	}
	switch llm.Provider(c.LLM.Provider) {
	case llm.ProviderClaude:
		c.LLM.APIKey = getenv(EnvClaudeKey)
	default:
		c.LLM.APIKey = getenv(EnvGeminiKey)
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = getenv(EnvGoogleKey)
		}
	}
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if c.LLM.Provider != "" {
		if _, err := llm.ParseProvider(c.LLM.Provider); err != nil {
			return fmt.Errorf("config error: %w", err)
		}
	}
	for tier := range c.LLM.Models {
		switch llm.ModelTier(tier) {
		case llm.TierLite, llm.TierStandard, llm.TierAdvanced:
		default:
			return fmt.Errorf("config error: unknown model tier %q", tier)
		}
	}
	if c.LLM.Timeout.Duration < 0 {
		return fmt.Errorf("config error: 'llm.timeout' must be non-negative")
	}
	if c.Research.FetchTimeout.Duration < 0 {
		return fmt.Errorf("config error: 'research.fetch_timeout' must be non-negative")
	}
	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("config error: 'llm.temperature' must be between 0 and 2")
	}
	if c.LLM.MaxTokens < 0 {
		return fmt.Errorf("config error: 'llm.max_tokens' must be non-negative")
	}
	if c.Pipeline.AgentConcurrency <= 0 {
		return fmt.Errorf("config error: 'pipeline.agent_concurrency' must be positive")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config error: 'server.port' out of range")
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return fmt.Errorf("config error: rate limits must be non-negative")
	}
	return nil
}

// MergeWithDefaults returns a new Config with zero fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.LogLevel == "" {
		result.LogLevel = defaults.LogLevel
	}
	if result.LLM.Provider == "" {
		result.LLM.Provider = defaults.LLM.Provider
	}
	if result.LLM.APIKey == "" {
		result.LLM.APIKey = defaults.LLM.APIKey
	}

	// Numeric fields: use default if zero
	if result.LLM.MaxTokens == 0 {
		result.LLM.MaxTokens = defaults.LLM.MaxTokens
	}
	if result.LLM.Timeout.Duration == 0 {
		result.LLM.Timeout = defaults.LLM.Timeout
	}
	if result.LLM.Temperature == nil && defaults.LLM.Temperature != nil {
		result.LLM.Temperature = float32Ptr(*defaults.LLM.Temperature)
	}
	if result.Research.FetchTimeout.Duration == 0 {
		result.Research.FetchTimeout = defaults.Research.FetchTimeout
	}
	if result.Pipeline.AgentConcurrency == 0 {
		result.Pipeline.AgentConcurrency = defaults.Pipeline.AgentConcurrency
	}
	if result.Server.Port == 0 {
		result.Server.Port = defaults.Server.Port
	}
	if result.Server.RateLimit == 0 {
		result.Server.RateLimit = defaults.Server.RateLimit
	}
	if result.Server.RateBurst == 0 {
		result.Server.RateBurst = defaults.Server.RateBurst
	}

	// Models merge per tier
	if len(defaults.LLM.Models) > 0 {
		models := make(map[string]string, len(defaults.LLM.Models)+len(result.LLM.Models))
		for k, v := range defaults.LLM.Models {
			models[k] = v
		}
		for k, v := range result.LLM.Models {
			models[k] = v
		}
		result.LLM.Models = models
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// LLMSettings converts the file configuration into the llm package config.
func (c *Config) LLMSettings() *llm.Config {
	base := llm.DefaultConfig()
	if llm.Provider(c.LLM.Provider) == llm.ProviderClaude {
		base.Models = llm.DefaultClaudeModels()
	}
	for tier, model := range c.LLM.Models {
		base = base.WithModel(llm.ModelTier(tier), model)
	}
	if c.LLM.Provider != "" {
		base.Provider = llm.Provider(c.LLM.Provider)
	}
	if c.LLM.MaxTokens > 0 {
		base.MaxTokens = c.LLM.MaxTokens
	}
	if c.LLM.Temperature != nil {
		base.Temperature = *c.LLM.Temperature
	}
	base.Timeout = c.LLM.Timeout.Duration
	base.SearchGrounding = c.Research.SearchGrounding
	base.APIKey = c.LLM.APIKey
	return base
}

func float32Ptr(v float32) *float32 {
	return &v
}
