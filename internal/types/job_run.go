// Package types provides type definitions for structured data used throughout the agent factory.
//
//nolint:revive // types is a standard Go package name pattern
package types

import "time"

// JobRunStatus tracks the lifecycle of a job run
type JobRunStatus string

const (
	JobRunCreated   JobRunStatus = "created"
	JobRunRunning   JobRunStatus = "running"
	JobRunCompleted JobRunStatus = "completed"
	JobRunFailed    JobRunStatus = "failed"
)

// JobMeta is the job context handed to every stage prompt
type JobMeta struct {
	CompanyName     string  `json:"company_name" validate:"required"`
	JobTitle        string  `json:"job_title" validate:"required"`
	IndustryContext string  `json:"industry_context"`
	BusinessGoal    *string `json:"business_goal"`
}

// JobRun is one logical run keyed by (company_name, job_title, manual_jd_text).
// A nil ManualJDText and an empty one name the same run.
type JobRun struct {
	ID              string       `json:"id"`
	CompanyName     string       `json:"company_name"`
	JobTitle        string       `json:"job_title"`
	ManualJDText    string       `json:"manual_jd_text"`
	JDURL           *string      `json:"jd_url,omitempty"`
	IndustryContext *string      `json:"industry_context,omitempty"`
	BusinessGoal    *string      `json:"business_goal,omitempty"`
	Status          JobRunStatus `json:"status"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Meta builds the JobMeta passed to stage prompts
func (r *JobRun) Meta() JobMeta {
	meta := JobMeta{
		CompanyName:  r.CompanyName,
		JobTitle:     r.JobTitle,
		BusinessGoal: r.BusinessGoal,
	}
	if r.IndustryContext != nil {
		meta.IndustryContext = *r.IndustryContext
	}
	return meta
}
