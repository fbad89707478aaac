package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		url  string
		want Platform
	}{
		{"https://boards.greenhouse.io/acme/jobs/1", PlatformGreenhouse},
		{"https://jobs.lever.co/acme/abc", PlatformLever},
		{"https://acme.wd5.myworkdayjobs.com/en-US/careers/job/1", PlatformWorkday},
		{"https://www.wanted.co.kr/wd/12345", PlatformWanted},
		{"https://www.saramin.co.kr/zf_user/jobs/view?rec_idx=1", PlatformSaramin},
		{"https://www.jobkorea.co.kr/Recruit/GI_Read/1", PlatformJobKorea},
		{"https://notgreenhouse.io/x", PlatformUnknown},
		{"https://example.com/careers", PlatformUnknown},
		{"::bad", PlatformUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectPlatform(tt.url))
		})
	}
}

func TestPlatformContentSelectors(t *testing.T) {
	generic := JobPostingSelectors()
	assert.Equal(t, generic, PlatformContentSelectors(PlatformUnknown))

	sel := PlatformContentSelectors(PlatformSaramin)
	assert.Equal(t, ".user_content", sel[0])
	assert.Subset(t, sel, generic)
	assert.Nil(t, PlatformNoiseSelectors(PlatformUnknown))
}

func longPosting() string {
	return `<html><head><title>Data Analyst</title></head><body><main>` +
		strings.Repeat("<p>SQL로 데이터를 추출하고 대시보드를 작성합니다.</p>", 20) +
		`</main></body></html>`
}

func TestJobPageFetcher_StaticPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(longPosting()))
	}))
	defer server.Close()

	rendered := false
	f := NewJobPageFetcher(nil, func(context.Context, string) (string, error) {
		rendered = true
		return "", nil
	}, nil)

	page, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.False(t, rendered)
	assert.False(t, page.Rendered)
	assert.Equal(t, "Data Analyst", page.Title)
	assert.Contains(t, page.Text, "대시보드")
}

func TestJobPageFetcher_BrowserFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div id="root"></div></body></html>`))
	}))
	defer server.Close()

	f := NewJobPageFetcher(nil, func(_ context.Context, url string) (string, error) {
		assert.Equal(t, server.URL, url)
		return longPosting(), nil
	}, nil)

	page, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.True(t, page.Rendered)
	assert.Contains(t, page.Text, "SQL")
}

func TestJobPageFetcher_ShortPageKeptWhenRenderFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><main>Short posting</main></body></html>`))
	}))
	defer server.Close()

	f := NewJobPageFetcher(nil, func(context.Context, string) (string, error) {
		return "", errors.New("no chrome")
	}, nil)

	page, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.False(t, page.Rendered)
	assert.Equal(t, "Short posting", page.Text)
}

func TestJobPageFetcher_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := NewJobPageFetcher(nil, nil, nil)
	_, err := f.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body></body></html>`))
	}))
	defer empty.Close()

	_, err = f.Fetch(context.Background(), empty.URL)
	assert.ErrorIs(t, err, ErrEmptyPage)
}
