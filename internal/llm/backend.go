package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrBackendUnavailable means no model connectivity is configured.
	ErrBackendUnavailable = errors.New("llm backend unavailable")
	// ErrNotImplemented is returned by the placeholder provider.
	ErrNotImplemented = errors.New("llm backend not implemented")
	// ErrTimeout means a single call exceeded its deadline.
	ErrTimeout = errors.New("llm call timed out")
	// ErrEmptyResponse means the provider answered without any text.
	ErrEmptyResponse = errors.New("llm returned no text")
)

// Backend is a single model provider.
type Backend interface {
	// Name identifies the provider in call logs.
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
	Close() error
}

// Request is one prompt sent to a backend.
type Request struct {
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float32
	// Grounded asks for web search grounding when the provider supports it.
	Grounded bool
}

// Response is the model answer.
type Response struct {
	Text    string
	Usage   *Usage
	Sources []Source
}

// Usage holds token counts. Individual counts stay nil when the provider
// does not report them.
type Usage struct {
	PromptTokens     *int64
	CompletionTokens *int64
	TotalTokens      *int64
}

// Source is a web page the provider grounded its answer on.
type Source struct {
	URL   string
	Title string
}

// BackendError wraps a provider failure.
type BackendError struct {
	Provider string
	Model    string
	Cause    error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Provider, e.Model, e.Cause)
}

func (e *BackendError) Unwrap() error {
	return e.Cause
}

// PlaceholderBackend stands in for a provider that is configured but not
// wired yet. Every call fails with ErrNotImplemented.
type PlaceholderBackend struct{}

// Name implements Backend.
func (PlaceholderBackend) Name() string { return string(ProviderPlaceholder) }

// Generate implements Backend.
func (PlaceholderBackend) Generate(context.Context, Request) (*Response, error) {
	return nil, ErrNotImplemented
}

// Close implements Backend.
func (PlaceholderBackend) Close() error { return nil }

// NewBackend builds the configured provider. ProviderNone yields a nil
// Backend, which the Invoker treats as ErrBackendUnavailable.
func NewBackend(ctx context.Context, cfg *Config) (Backend, error) {
	switch cfg.Provider {
	case ProviderGemini, "":
		b, err := NewGeminiBackend(ctx, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return b, nil
	case ProviderGenAI:
		b, err := NewGenAIBackend(ctx, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return b, nil
	case ProviderClaude:
		b, err := NewClaudeBackend(cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return b, nil
	case ProviderPlaceholder:
		return PlaceholderBackend{}, nil
	case ProviderNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func int32Ptr(n int32) *int64 {
	v := int64(n)
	return &v
}

func int64Ptr(n int64) *int64 {
	return &n
}
