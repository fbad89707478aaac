// Package research implements the job research stages: 0.1 collects raw
// source material about the role and 0.2 merges it into the job description
// every later stage reads.
package research

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/jonathan/agent-factory/internal/fetch"
	"github.com/jonathan/agent-factory/internal/runner"
	"github.com/jonathan/agent-factory/internal/types"
)

// Prompt and schema names
const (
	StageCollect   = "job_research_collect"
	StageSummarize = "job_research_summarize"
)

// maxSnippetRunes bounds how much of a fetched page goes into the prompt
const maxSnippetRunes = 6000

// PageFetcher retrieves a job posting page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.JobPage, error)
}

// Stages runs the research stages.
type Stages struct {
	deps    runner.Deps
	fetcher PageFetcher
	logger  *zap.Logger
}

// New creates the research stages. fetcher may be nil to skip JD page
// fetching.
func New(deps runner.Deps, fetcher PageFetcher) *Stages {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stages{deps: deps, fetcher: fetcher, logger: logger}
}

// StubSentence is the job description used when nothing else is known.
func StubSentence(meta types.JobMeta) string {
	return fmt.Sprintf("%s %s 역할에 대한 예시 직무 설명 (stub)", meta.CompanyName, meta.JobTitle)
}

// ---- Stage 0.1 ----

// CollectContract describes stage 0.1.
func CollectContract() runner.Contract[types.CollectInput, types.CollectResult] {
	return runner.Contract[types.CollectInput, types.CollectResult]{
		Stage:    StageCollect,
		Stub:     StubCollect,
		Finalize: finalizeCollect,
		Grounded: true,
	}
}

// StubCollect returns the manual JD as the only source, or a placeholder.
func StubCollect(in types.CollectInput) types.CollectResult {
	score := 0.5
	if strings.TrimSpace(in.ManualJDText) != "" {
		full := 1.0
		return types.CollectResult{RawSources: []types.RawSource{{
			URL:        in.JDURL,
			Title:      fmt.Sprintf("%s %s JD", in.JobMeta.CompanyName, in.JobMeta.JobTitle),
			Snippet:    in.ManualJDText,
			SourceType: types.SourceTypeJD,
			Score:      &full,
		}}}
	}
	return types.CollectResult{RawSources: []types.RawSource{{
		URL:        "https://example.com/jd",
		Title:      fmt.Sprintf("%s %s JD", in.JobMeta.CompanyName, in.JobMeta.JobTitle),
		Snippet:    StubSentence(in.JobMeta),
		SourceType: types.SourceTypeJD,
		Score:      &score,
	}}}
}

func finalizeCollect(_ types.CollectInput, out *types.CollectResult) error {
	sources := make([]types.RawSource, 0, len(out.RawSources))
	for _, s := range out.RawSources {
		if strings.TrimSpace(s.URL) == "" && strings.TrimSpace(s.Snippet) == "" {
			continue
		}
		sources = append(sources, NormalizeSource(s))
	}
	out.RawSources = sources
	return nil
}

// Collect runs stage 0.1. A JD page at jdURL is fetched first and always
// kept as a source, as are search grounding results.
func (s *Stages) Collect(ctx context.Context, run *types.JobRun, manualJD, jdURL string) (*types.CollectResult, error) {
	in := types.CollectInput{
		JobMeta:      run.Meta(),
		ManualJDText: manualJD,
		JDURL:        jdURL,
		FetchedJD:    s.fetchJD(ctx, jdURL),
	}

	out, res, err := runner.Run(ctx, s.deps, CollectContract(), in, run.ID)
	if err != nil {
		return nil, err
	}

	var extra []types.RawSource
	if in.FetchedJD != nil {
		extra = append(extra, *in.FetchedJD)
	}
	if res != nil {
		for _, src := range res.Sources {
			extra = append(extra, NormalizeSource(types.RawSource{
				URL:        src.URL,
				Title:      src.Title,
				SourceType: types.SourceTypeWeb,
			}))
		}
	}
	out.RawSources = MergeSources(out.RawSources, extra...)
	return &out, nil
}

func (s *Stages) fetchJD(ctx context.Context, jdURL string) *types.RawSource {
	if s.fetcher == nil || strings.TrimSpace(jdURL) == "" {
		return nil
	}
	page, err := s.fetcher.Fetch(ctx, jdURL)
	if err != nil {
		s.logger.Warn("failed to fetch JD page", zap.String("url", jdURL), zap.Error(err))
		return nil
	}
	score := 1.0
	return &types.RawSource{
		URL:        page.URL,
		Title:      page.Title,
		Snippet:    truncateRunes(page.Text, maxSnippetRunes),
		SourceType: types.SourceTypeJD,
		Score:      &score,
	}
}

// ---- Stage 0.2 ----

// SummarizeContract describes stage 0.2.
func SummarizeContract() runner.Contract[types.SummarizeInput, types.ResearchResult] {
	return runner.Contract[types.SummarizeInput, types.ResearchResult]{
		Stage:    StageSummarize,
		Stub:     StubSummarize,
		Finalize: finalizeSummarize,
	}
}

// StubSummarize uses the manual JD, else the collected snippets, else the
// placeholder sentence.
func StubSummarize(in types.SummarizeInput) types.ResearchResult {
	desc := strings.TrimSpace(in.ManualJDText)
	if desc == "" {
		snippets := make([]string, 0, len(in.RawSources))
		for _, src := range in.RawSources {
			if sn := strings.TrimSpace(src.Snippet); sn != "" {
				snippets = append(snippets, sn)
			}
		}
		desc = strings.Join(snippets, "\n\n")
	}
	if desc == "" {
		desc = StubSentence(in.JobMeta)
	}
	sources := append([]types.RawSource{}, in.RawSources...)
	return types.ResearchResult{RawJobDesc: desc, ResearchSources: sources}
}

func finalizeSummarize(in types.SummarizeInput, out *types.ResearchResult) error {
	out.RawJobDesc = strings.TrimSpace(out.RawJobDesc)
	if out.RawJobDesc == "" {
		return fmt.Errorf("raw_job_desc is empty")
	}
	if out.ResearchSources == nil {
		out.ResearchSources = append([]types.RawSource{}, in.RawSources...)
	}
	for i := range out.ResearchSources {
		out.ResearchSources[i] = NormalizeSource(out.ResearchSources[i])
	}
	return nil
}

// Summarize runs stage 0.2.
func (s *Stages) Summarize(ctx context.Context, run *types.JobRun, collected *types.CollectResult, manualJD string) (*types.ResearchResult, error) {
	in := types.SummarizeInput{JobMeta: run.Meta(), ManualJDText: manualJD}
	if collected != nil {
		in.RawSources = collected.RawSources
	}
	out, _, err := runner.Run(ctx, s.deps, SummarizeContract(), in, run.ID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
