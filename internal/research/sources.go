package research

import (
	"net/url"
	"strings"

	"github.com/jonathan/agent-factory/internal/types"
)

// jobBoardDomains host job postings rather than company content
var jobBoardDomains = []string{
	"greenhouse.io",
	"lever.co",
	"workday.com",
	"myworkdayjobs.com",
	"linkedin.com",
	"indeed.com",
	"glassdoor.com",
	"wanted.co.kr",
	"saramin.co.kr",
	"jobkorea.co.kr",
	"rocketpunch.com",
	"jumpit.co.kr",
}

var articleDomains = []string{
	"medium.com",
	"brunch.co.kr",
	"velog.io",
	"tistory.com",
	"news.naver.com",
}

// domainOf extracts the host of a URL without a leading www.
func domainOf(urlStr string) string {
	if urlStr == "" {
		return ""
	}
	if !strings.Contains(urlStr, "://") {
		urlStr = "https://" + urlStr
	}
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

func hostMatches(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// IsJobBoard reports whether a URL belongs to a known job board.
func IsJobBoard(urlStr string) bool {
	return hostMatches(domainOf(urlStr), jobBoardDomains)
}

// ClassifySource guesses the source type of a URL.
func ClassifySource(urlStr string) string {
	host := domainOf(urlStr)
	lower := strings.ToLower(urlStr)
	switch {
	case hostMatches(host, jobBoardDomains):
		return types.SourceTypeJD
	case strings.Contains(lower, "/jobs/") || strings.Contains(lower, "/careers/") || strings.Contains(lower, "/recruit"):
		return types.SourceTypeJD
	case hostMatches(host, articleDomains) || strings.Contains(lower, "/blog") || strings.Contains(lower, "/news"):
		return types.SourceTypeArticle
	case strings.Contains(lower, "/about") || strings.Contains(lower, "/company") || strings.Contains(lower, "/culture"):
		return types.SourceTypeCompany
	default:
		return types.SourceTypeWeb
	}
}

// ScoreSource returns a relevance prior for a URL based on where it lives.
func ScoreSource(urlStr string) float64 {
	lower := strings.ToLower(urlStr)

	if IsJobBoard(urlStr) {
		return 0.9
	}
	for _, pattern := range []string{"/jobs/", "/careers/", "/recruit", "job-description", "/position"} {
		if strings.Contains(lower, pattern) {
			return 0.85
		}
	}
	for _, pattern := range []string{"engineering", "blog", "team", "culture", "interview"} {
		if strings.Contains(lower, pattern) {
			return 0.7
		}
	}
	for _, pattern := range []string{"press", "news", "announcements"} {
		if strings.Contains(lower, pattern) {
			return 0.6
		}
	}
	for _, pattern := range []string{"/product/", "/shop", "/store", "/order", "/event"} {
		if strings.Contains(lower, pattern) {
			return 0.1
		}
	}
	return 0.5
}

// canonicalURL is the dedup key of a source URL.
func canonicalURL(urlStr string) string {
	parsed, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil || parsed.Host == "" {
		return strings.TrimSpace(urlStr)
	}
	parsed.Fragment = ""
	parsed.Host = strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	return parsed.Host + parsed.Path + "?" + parsed.RawQuery
}

// NormalizeSource fills a missing source type and score and clamps the score
// to [0, 1].
func NormalizeSource(s types.RawSource) types.RawSource {
	s.URL = strings.TrimSpace(s.URL)
	switch s.SourceType {
	case types.SourceTypeJD, types.SourceTypeWeb, types.SourceTypeArticle, types.SourceTypeCompany:
	default:
		s.SourceType = ClassifySource(s.URL)
	}
	if s.Score == nil {
		score := ScoreSource(s.URL)
		s.Score = &score
	} else if *s.Score < 0 || *s.Score > 1 {
		score := min(max(*s.Score, 0), 1)
		s.Score = &score
	}
	return s
}

// MergeSources appends extra sources that are not already present. Sources
// without a URL are deduplicated by snippet.
func MergeSources(base []types.RawSource, extra ...types.RawSource) []types.RawSource {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]types.RawSource, 0, len(base)+len(extra))
	add := func(s types.RawSource) {
		key := canonicalURL(s.URL)
		if key == "" {
			key = "snippet:" + s.Snippet
		}
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, s)
	}
	for _, s := range base {
		add(s)
	}
	for _, s := range extra {
		add(s)
	}
	return out
}
