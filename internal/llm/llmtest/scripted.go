// Package llmtest provides a scripted llm.Backend for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/jonathan/agent-factory/internal/llm"
)

type rule struct {
	marker string
	text   string
	err    error
}

// Scripted answers each prompt with the first rule whose marker appears in
// it. Prompts no rule matches get the fallback error, or
// llm.ErrBackendUnavailable when none is set.
type Scripted struct {
	mu       sync.Mutex
	rules    []rule
	fallback error
	requests []llm.Request
	sources  []llm.Source
}

// NewScripted creates an empty script.
func NewScripted() *Scripted {
	return &Scripted{}
}

// On answers prompts containing marker with text.
func (s *Scripted) On(marker, text string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule{marker: marker, text: text})
	return s
}

// Fail answers prompts containing marker with err.
func (s *Scripted) Fail(marker string, err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule{marker: marker, err: err})
	return s
}

// Otherwise sets the error for unmatched prompts.
func (s *Scripted) Otherwise(err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = err
	return s
}

// WithSources attaches grounding sources to every grounded response.
func (s *Scripted) WithSources(sources ...llm.Source) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = sources
	return s
}

// Requests returns the requests seen so far.
func (s *Scripted) Requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.requests...)
}

// Count returns how many prompts contained marker.
func (s *Scripted) Count(marker string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if strings.Contains(r.Prompt, marker) {
			n++
		}
	}
	return n
}

func (s *Scripted) Name() string { return "scripted" }

func (s *Scripted) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	rules := s.rules
	fallback := s.fallback
	sources := s.sources
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, r := range rules {
		if !strings.Contains(req.Prompt, r.marker) {
			continue
		}
		if r.err != nil {
			return nil, r.err
		}
		resp := &llm.Response{Text: r.text}
		if req.Grounded {
			resp.Sources = sources
		}
		return resp, nil
	}
	if fallback == nil {
		fallback = llm.ErrBackendUnavailable
	}
	return nil, fallback
}

func (s *Scripted) Close() error { return nil }
