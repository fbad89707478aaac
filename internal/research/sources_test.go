package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/agent-factory/internal/types"
)

func TestDomainOf(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"https://www.acme.com/about", "acme.com"},
		{"acme.com/x", "acme.com"},
		{"https://Jobs.Lever.co/acme", "jobs.lever.co"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, domainOf(tt.input))
		})
	}
}

func TestClassifySource(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.saramin.co.kr/zf_user/jobs/view", types.SourceTypeJD},
		{"https://acme.com/careers/123", types.SourceTypeJD},
		{"https://medium.com/@acme/post", types.SourceTypeArticle},
		{"https://acme.com/blog/data", types.SourceTypeArticle},
		{"https://acme.com/about", types.SourceTypeCompany},
		{"https://example.org/", types.SourceTypeWeb},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifySource(tt.url))
		})
	}
}

func TestScoreSource(t *testing.T) {
	assert.InDelta(t, 0.9, ScoreSource("https://boards.greenhouse.io/acme/jobs/1"), 1e-9)
	assert.InDelta(t, 0.85, ScoreSource("https://acme.com/careers/data"), 1e-9)
	assert.InDelta(t, 0.7, ScoreSource("https://acme.com/engineering"), 1e-9)
	assert.InDelta(t, 0.6, ScoreSource("https://acme.com/press"), 1e-9)
	assert.InDelta(t, 0.1, ScoreSource("https://acme.com/product/x"), 1e-9)
	assert.InDelta(t, 0.5, ScoreSource("https://acme.com/"), 1e-9)
}

func TestNormalizeSource(t *testing.T) {
	high := 3.0
	s := NormalizeSource(types.RawSource{URL: " https://acme.com/about ", SourceType: "homepage", Score: &high})
	assert.Equal(t, "https://acme.com/about", s.URL)
	assert.Equal(t, types.SourceTypeCompany, s.SourceType)
	require.NotNil(t, s.Score)
	assert.InDelta(t, 1.0, *s.Score, 1e-9)

	missing := NormalizeSource(types.RawSource{URL: "https://acme.com/", SourceType: types.SourceTypeWeb})
	require.NotNil(t, missing.Score)
	assert.InDelta(t, 0.5, *missing.Score, 1e-9)
}

func TestMergeSources(t *testing.T) {
	base := []types.RawSource{
		{URL: "https://www.acme.com/jobs/1/"},
		{Snippet: "manual"},
	}
	merged := MergeSources(base,
		types.RawSource{URL: "https://acme.com/jobs/1#apply"},
		types.RawSource{Snippet: "manual"},
		types.RawSource{URL: "https://acme.com/jobs/2"},
	)
	require.Len(t, merged, 3)
	assert.Equal(t, "https://acme.com/jobs/2", merged[2].URL)
}
