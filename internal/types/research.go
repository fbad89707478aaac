package types

// Source types for research sources
const (
	SourceTypeJD      = "jd"
	SourceTypeWeb     = "web"
	SourceTypeArticle = "article"
	SourceTypeCompany = "company_page"
)

// RawSource is one piece of collected research material
type RawSource struct {
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	Snippet    string   `json:"snippet"`
	SourceType string   `json:"source_type"`
	Score      *float64 `json:"score,omitempty"`
}

// CollectInput is the input of stage 0.1
type CollectInput struct {
	JobMeta      JobMeta    `json:"job_meta"`
	ManualJDText string     `json:"manual_jd_text,omitempty"`
	JDURL        string     `json:"jd_url,omitempty"`
	FetchedJD    *RawSource `json:"fetched_jd,omitempty"`
}

// CollectResult is the output of stage 0.1
type CollectResult struct {
	RawSources []RawSource `json:"raw_sources" validate:"dive"`
	StageDebug
}

// SummarizeInput is the input of stage 0.2
type SummarizeInput struct {
	JobMeta      JobMeta     `json:"job_meta"`
	RawSources   []RawSource `json:"raw_sources"`
	ManualJDText string      `json:"manual_jd_text,omitempty"`
}

// ResearchResult is the output of stage 0.2 and the job description every later stage reads
type ResearchResult struct {
	RawJobDesc      string      `json:"raw_job_desc"`
	ResearchSources []RawSource `json:"research_sources" validate:"dive"`
	StageDebug
}
