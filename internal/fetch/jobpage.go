package fetch

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Platform identifies a job board whose markup is known.
type Platform string

const (
	PlatformUnknown    Platform = ""
	PlatformGreenhouse Platform = "greenhouse"
	PlatformLever      Platform = "lever"
	PlatformWorkday    Platform = "workday"
	PlatformWanted     Platform = "wanted"
	PlatformSaramin    Platform = "saramin"
	PlatformJobKorea   Platform = "jobkorea"
)

var platformHosts = []struct {
	suffix   string
	platform Platform
}{
	{"greenhouse.io", PlatformGreenhouse},
	{"lever.co", PlatformLever},
	{"myworkdayjobs.com", PlatformWorkday},
	{"workday.com", PlatformWorkday},
	{"wanted.co.kr", PlatformWanted},
	{"saramin.co.kr", PlatformSaramin},
	{"jobkorea.co.kr", PlatformJobKorea},
}

// DetectPlatform maps a posting URL to its job board.
func DetectPlatform(rawURL string) Platform {
	u, err := url.Parse(rawURL)
	if err != nil {
		return PlatformUnknown
	}
	host := strings.ToLower(u.Hostname())
	for _, p := range platformHosts {
		if host == p.suffix || strings.HasSuffix(host, "."+p.suffix) {
			return p.platform
		}
	}
	return PlatformUnknown
}

// PlatformContentSelectors returns the selectors that hold the posting body,
// most specific first.
func PlatformContentSelectors(p Platform) []string {
	var specific []string
	switch p {
	case PlatformGreenhouse:
		specific = []string{"#content", ".job__description", "#app_body"}
	case PlatformLever:
		specific = []string{".posting-page .content", ".section-wrapper.page-full-width", ".posting"}
	case PlatformWorkday:
		specific = []string{"[data-automation-id='jobPostingDescription']", "[data-automation-id='job-posting-details']"}
	case PlatformWanted:
		specific = []string{"section[class*='JobDescription']", "[class*='JobDescription_JobDescription']", "article"}
	case PlatformSaramin:
		specific = []string{".user_content", ".jv_detail", ".wrap_jv_cont"}
	case PlatformJobKorea:
		specific = []string{".tbDetail", ".artReadJobSum", "#dev-gi-detail"}
	}
	return append(specific, JobPostingSelectors()...)
}

// PlatformNoiseSelectors returns board specific chrome to strip.
func PlatformNoiseSelectors(p Platform) []string {
	switch p {
	case PlatformGreenhouse:
		return []string{"#application", ".application--form", "#footer"}
	case PlatformLever:
		return []string{".postings-btn-wrapper", ".application-form"}
	case PlatformWorkday:
		return []string{"[data-automation-id='applyButton']", "[data-automation-id='similarJobs']"}
	case PlatformWanted:
		return []string{"[class*='JobHeader_JobHeader__Tools']", "[class*='CompanyInfo']", "aside"}
	case PlatformSaramin:
		return []string{".jv_howto", ".jv_location", ".recommend_list"}
	case PlatformJobKorea:
		return []string{".devApplyBtn", ".tbRecommend"}
	default:
		return nil
	}
}

// JobPostingSelectors are generic selectors for job description bodies.
func JobPostingSelectors() []string {
	return []string{
		"[itemprop='description']",
		".job-description",
		"#job-description",
		".description",
		"main",
		"article",
		"[role='main']",
		"#content",
		".content",
	}
}

// JobPage is the text of a fetched job posting.
type JobPage struct {
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Text     string   `json:"text"`
	Platform Platform `json:"platform,omitempty"`
	Rendered bool     `json:"rendered"`
}

// JobPageFetcher retrieves job postings over HTTP and falls back to a
// browser renderer when the static page carries too little text.
type JobPageFetcher struct {
	opts   *Options
	render Renderer
	logger *zap.Logger
}

// NewJobPageFetcher creates a fetcher. render may be nil to disable the
// browser fallback.
func NewJobPageFetcher(opts *Options, render Renderer, logger *zap.Logger) *JobPageFetcher {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobPageFetcher{opts: opts, render: render, logger: logger}
}

// ErrEmptyPage is returned when neither HTTP nor the browser produced text.
var ErrEmptyPage = errors.New("job page has no readable text")

// Fetch retrieves and extracts a job posting.
func (f *JobPageFetcher) Fetch(ctx context.Context, rawURL string) (*JobPage, error) {
	platform := DetectPlatform(rawURL)
	selectors := PlatformContentSelectors(platform)
	noise := PlatformNoiseSelectors(platform)

	var (
		page    *Page
		httpErr error
	)
	res, err := URL(ctx, rawURL, f.opts)
	if err == nil {
		page, httpErr = ExtractPage(res.HTML, selectors, noise...)
	} else {
		httpErr = err
	}
	if httpErr != nil {
		f.logger.Debug("http fetch failed", zap.String("url", rawURL), zap.Error(httpErr))
	}

	if page != nil && !ShouldUseBrowser(page.Text) {
		return &JobPage{URL: rawURL, Title: page.Title, Text: page.Text, Platform: platform}, nil
	}

	if f.render != nil && ctx.Err() == nil {
		html, renderErr := f.render(ctx, rawURL)
		if renderErr == nil {
			if rendered, err := ExtractPage(html, selectors, noise...); err == nil && rendered.Text != "" {
				return &JobPage{URL: rawURL, Title: rendered.Title, Text: rendered.Text, Platform: platform, Rendered: true}, nil
			}
		} else {
			f.logger.Warn("browser render failed", zap.String("url", rawURL), zap.Error(renderErr))
		}
	}

	if page != nil && page.Text != "" {
		return &JobPage{URL: rawURL, Title: page.Title, Text: page.Text, Platform: platform}, nil
	}
	if httpErr != nil {
		return nil, httpErr
	}
	return nil, &Error{URL: rawURL, Message: "no readable text", Cause: ErrEmptyPage}
}
