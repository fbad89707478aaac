package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const claudeDefaultMaxTokens = 8192

// ClaudeBackend implements Backend using the Anthropic Messages API.
type ClaudeBackend struct {
	messages *anthropic.MessageService
}

// NewClaudeBackend creates a Claude backend.
func NewClaudeBackend(apiKey string) (*ClaudeBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &ClaudeBackend{messages: &client.Messages}, nil
}

// Name implements Backend.
func (b *ClaudeBackend) Name() string { return string(ProviderClaude) }

// Generate implements Backend.
func (b *ClaudeBackend) Generate(ctx context.Context, req Request) (*Response, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("no model configured")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = claudeDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(float64(req.Temperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}

	resp, err := b.messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("Claude API call failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return nil, fmt.Errorf("no text blocks in response: %w", ErrEmptyResponse)
	}

	in, out := resp.Usage.InputTokens, resp.Usage.OutputTokens
	return &Response{
		Text: sb.String(),
		Usage: &Usage{
			PromptTokens:     int64Ptr(in),
			CompletionTokens: int64Ptr(out),
			TotalTokens:      int64Ptr(in + out),
		},
	}, nil
}

// Close implements Backend.
func (b *ClaudeBackend) Close() error { return nil }
