package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURL_Success(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><body><h1>Test</h1></body></html>"))
	}))
	defer server.Close()

	result, err := URL(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, server.URL, result.URL)
	assert.Contains(t, result.HTML, "<h1>Test</h1>")
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, DefaultUserAgent, gotUA)
}

func TestURL_InvalidURL(t *testing.T) {
	for _, raw := range []string{"not-a-valid-url", "ftp://example.com/x", ""} {
		_, err := URL(context.Background(), raw, nil)
		require.Error(t, err, raw)

		var fetchErr *Error
		assert.ErrorAs(t, err, &fetchErr)
		assert.Contains(t, err.Error(), "invalid URL")
	}
}

func TestURL_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	result, err := URL(context.Background(), server.URL, nil)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, http.StatusNotFound, result.StatusCode)

	var fetchErr *Error
	assert.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, err.Error(), "404")
}

func TestURL_MaxBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 1000)))
	}))
	defer server.Close()

	opts := DefaultOptions()
	opts.MaxBytes = 100
	result, err := URL(context.Background(), server.URL, opts)
	require.NoError(t, err)
	assert.Len(t, result.HTML, 100)
}

func TestExtractPage(t *testing.T) {
	tests := []struct {
		name      string
		html      string
		selectors []string
		noise     []string
		title     string
		contains  []string
		excludes  []string
	}{
		{
			name: "main element",
			html: `<html><head><title>Main Page</title></head><body>
				<nav>Navigation</nav>
				<main><h1>Main Content</h1><p>This is the important text.</p></main>
				<footer>Footer</footer></body></html>`,
			selectors: JobPostingSelectors(),
			title:     "Main Page",
			contains:  []string{"Main Content", "important text"},
			excludes:  []string{"Navigation", "Footer"},
		},
		{
			name:      "og title wins",
			html:      `<html><head><title>Plain</title><meta property="og:title" content="OG Title"></head><body><p>x</p></body></html>`,
			selectors: JobPostingSelectors(),
			title:     "OG Title",
			contains:  []string{"x"},
		},
		{
			name:      "fallback to body",
			html:      `<html><body><div>Some content here.</div></body></html>`,
			selectors: []string{".missing"},
			contains:  []string{"Some content here"},
		},
		{
			name: "job description with noise",
			html: `<html><body>
				<div class="sidebar">Sidebar junk</div>
				<div class="job-description"><h2>Requirements</h2><p>5 years experience in Go</p>
				<div class="apply">Apply now</div></div></body></html>`,
			selectors: JobPostingSelectors(),
			noise:     []string{".apply"},
			contains:  []string{"Requirements", "5 years experience"},
			excludes:  []string{"Sidebar junk", "Apply now"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := ExtractPage(tt.html, tt.selectors, tt.noise...)
			require.NoError(t, err)
			assert.Equal(t, tt.title, page.Title)
			for _, s := range tt.contains {
				assert.Contains(t, page.Text, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, page.Text, s)
			}
		})
	}
}

func TestCleanWhitespace(t *testing.T) {
	assert.Equal(t, "a b\nc", cleanWhitespace("  a   b \n\n\t\n  c  "))
}

func TestShouldUseBrowser(t *testing.T) {
	assert.True(t, ShouldUseBrowser("short"))
	assert.True(t, ShouldUseBrowser(strings.Repeat("가", MinContentLength-1)))
	assert.False(t, ShouldUseBrowser(strings.Repeat("가", MinContentLength)))
}
