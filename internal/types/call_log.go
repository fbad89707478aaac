package types

import "time"

// CallStatus is the outcome recorded for one model invocation
type CallStatus string

const (
	CallSuccess        CallStatus = "success"
	CallStubFallback   CallStatus = "stub_fallback"
	CallParseError     CallStatus = "parse_error"
	CallNotImplemented CallStatus = "not_implemented"
)

// CallLog is the append-only record of one model invocation
type CallLog struct {
	ID               string     `json:"id"`
	CreatedAt        time.Time  `json:"created_at"`
	JobRunID         *string    `json:"job_run_id"`
	StageName        string     `json:"stage_name"`
	Provider         string     `json:"provider"`
	ModelName        string     `json:"model_name"`
	InputPayload     string     `json:"input_payload"`
	OutputText       *string    `json:"output_text"`
	OutputParsed     *string    `json:"output_parsed"`
	Status           CallStatus `json:"status"`
	ErrorType        *string    `json:"error_type"`
	ErrorMessage     *string    `json:"error_message"`
	LatencyMS        *int64     `json:"latency_ms"`
	TokensPrompt     *int64     `json:"tokens_prompt"`
	TokensCompletion *int64     `json:"tokens_completion"`
	TokensTotal      *int64     `json:"tokens_total"`
}

// StageResult is the latest persisted output of one stage for a job run
type StageResult struct {
	JobRunID   string    `json:"job_run_id"`
	StageID    string    `json:"stage_id"`
	Payload    []byte    `json:"-"`
	ModelError *string   `json:"model_error"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
