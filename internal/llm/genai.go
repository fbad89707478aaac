package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GenAIBackend talks to the Gemini API through google.golang.org/genai. It is
// the only backend that can ground an answer on Google Search.
type GenAIBackend struct {
	client *genai.Client
}

// NewGenAIBackend creates a Gemini API client.
func NewGenAIBackend(ctx context.Context, apiKey string) (*GenAIBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GenAIBackend{client: client}, nil
}

// Name implements Backend.
func (b *GenAIBackend) Name() string { return string(ProviderGenAI) }

// Generate implements Backend. Grounded requests attach the GoogleSearch tool;
// the response MIME type cannot be forced to JSON together with tools.
func (b *GenAIBackend) Generate(ctx context.Context, req Request) (*Response, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("no model configured")
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Grounded {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	} else {
		config.ResponseMIMEType = "application/json"
	}

	resp, err := b.client.Models.GenerateContent(ctx, req.Model,
		[]*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)},
		config,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no candidates in response: %w", ErrEmptyResponse)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	if sb.Len() == 0 {
		return nil, fmt.Errorf("no text parts in response: %w", ErrEmptyResponse)
	}

	out := &Response{Text: sb.String()}
	if gm := resp.Candidates[0].GroundingMetadata; gm != nil {
		seen := make(map[string]bool)
		for _, chunk := range gm.GroundingChunks {
			if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" || seen[chunk.Web.URI] {
				continue
			}
			seen[chunk.Web.URI] = true
			out.Sources = append(out.Sources, Source{URL: chunk.Web.URI, Title: chunk.Web.Title})
		}
	}
	if md := resp.UsageMetadata; md != nil {
		out.Usage = &Usage{
			PromptTokens:     int32Ptr(md.PromptTokenCount),
			CompletionTokens: int32Ptr(md.CandidatesTokenCount),
			TotalTokens:      int32Ptr(md.TotalTokenCount),
		}
	}
	return out, nil
}

// Close implements Backend. The genai client holds no resources.
func (b *GenAIBackend) Close() error { return nil }
