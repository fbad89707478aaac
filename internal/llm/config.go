// Package llm wraps the model providers behind a single Backend interface and
// records every model call through the Invoker.
package llm

import (
	"fmt"
	"time"
)

// ModelTier represents the complexity/capability level of a model
type ModelTier string

const (
	// TierLite is for rendering and formatting: mermaid output
	TierLite ModelTier = "lite"
	// TierStandard is for extraction and classification
	TierStandard ModelTier = "standard"
	// TierAdvanced is for design and research: agent architecture, deep skill research
	TierAdvanced ModelTier = "advanced"
)

// Provider represents an LLM provider
type Provider string

// Provider constants define supported LLM providers
const (
	// ProviderGemini is the Google Gemini provider (generative-ai-go)
	ProviderGemini Provider = "gemini"
	// ProviderGenAI is the Gemini API through google.golang.org/genai with search grounding
	ProviderGenAI Provider = "genai"
	// ProviderClaude is the Anthropic provider
	ProviderClaude Provider = "claude"
	// ProviderPlaceholder accepts calls and answers ErrNotImplemented
	ProviderPlaceholder Provider = "placeholder"
	// ProviderNone disables the model; every stage falls back to its stub
	ProviderNone Provider = "none"
)

// Providers lists every accepted provider value.
var Providers = []Provider{ProviderGemini, ProviderGenAI, ProviderClaude, ProviderPlaceholder, ProviderNone}

// ParseProvider validates a provider name.
func ParseProvider(s string) (Provider, error) {
	for _, p := range Providers {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown llm provider %q", s)
}

// Config holds the model configuration for the application
type Config struct {
	Provider    Provider
	Models      map[ModelTier]string
	StageTiers  map[string]ModelTier
	MaxTokens   int
	Temperature float32
	// Timeout bounds a single model call. Zero disables the deadline.
	Timeout time.Duration
	// SearchGrounding enables the Google Search tool for grounded stages.
	SearchGrounding bool
	APIKey          string
}

// DefaultConfig returns the default configuration (currently Gemini)
func DefaultConfig() *Config {
	return DefaultGeminiConfig()
}

// DefaultGeminiConfig returns the default Gemini configuration
func DefaultGeminiConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
		StageTiers:  DefaultStageTiers(),
		MaxTokens:   8192,
		Temperature: 0.2,
		Timeout:     2 * time.Minute,
	}
}

// DefaultClaudeModels returns the tier models used when the provider is Claude.
func DefaultClaudeModels() map[ModelTier]string {
	return map[ModelTier]string{
		TierLite:     "claude-haiku-4-5",
		TierStandard: "claude-sonnet-4-5",
		TierAdvanced: "claude-opus-4-1",
	}
}

// DefaultStageTiers maps prompt stage names to tiers. Stages not listed use
// TierStandard.
func DefaultStageTiers() map[string]ModelTier {
	return map[string]ModelTier{
		"workflow_mermaid":      TierLite,
		"ax_workflow_architect": TierAdvanced,
		"agent_architect":       TierAdvanced,
		"deep_skill_research":   TierAdvanced,
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: try standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return "" // No model configured
}

// ModelFor returns the model name used for a stage.
func (c *Config) ModelFor(stage string) string {
	tier, ok := c.StageTiers[stage]
	if !ok {
		tier = TierStandard
	}
	return c.GetModel(tier)
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := *c
	newConfig.Models = make(map[ModelTier]string, len(c.Models)+1)
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	newConfig.Models[tier] = model
	return &newConfig
}
