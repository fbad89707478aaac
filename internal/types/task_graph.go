package types

import "time"

// FieldGroup names the set of task columns one stage owns
type FieldGroup string

const (
	FieldsExtract  FieldGroup = "extract"
	FieldsPhase    FieldGroup = "phase"
	FieldsStatic   FieldGroup = "static"
	FieldsWorkflow FieldGroup = "workflow"
)

// TaskRecord is the task row enriched stage by stage. Columns a stage has
// not written yet are nil.
type TaskRecord struct {
	JobRunID string `json:"job_run_id"`
	TaskID   string `json:"task_id"`

	// extract
	OriginalSentence *string `json:"original_sentence"`
	LocalizedLabel   *string `json:"localized_label"`
	TranslatedLabel  *string `json:"translated_label"`
	Notes            *string `json:"notes"`

	// phase
	IVCPhase             *IVCPhase `json:"ivc_phase"`
	ExecSubphase         *string   `json:"exec_subphase"`
	Primitive            *string   `json:"primitive"`
	ClassificationReason *string   `json:"classification_reason"`

	// static
	StaticTypeLv1           *string  `json:"static_type_lv1"`
	StaticTypeLv2           *string  `json:"static_type_lv2"`
	DomainLv1               *string  `json:"domain_lv1"`
	DomainLv2               *string  `json:"domain_lv2"`
	RAGRequired             *bool    `json:"rag_required"`
	RAGReason               *string  `json:"rag_reason"`
	ValueScore              *int     `json:"value_score"`
	ComplexityScore         *int     `json:"complexity_score"`
	ValueComplexityQuadrant *string  `json:"value_complexity_quadrant"`
	RecommendedExecutionEnv *string  `json:"recommended_execution_env"`
	AutoabilityReason       *string  `json:"autoability_reason"`
	DataEntities            []string `json:"data_entities"`
	Tags                    []string `json:"tags"`

	// workflow
	StageID   *string `json:"stage_id"`
	StreamID  *string `json:"stream_id"`
	NodeLabel *string `json:"node_label"`
	IsEntry   *bool   `json:"is_entry"`
	IsExit    *bool   `json:"is_exit"`
	IsHub     *bool   `json:"is_hub"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Title picks the most descriptive label available for the task
func (t *TaskRecord) Title() string {
	switch {
	case t.LocalizedLabel != nil && *t.LocalizedLabel != "":
		return *t.LocalizedLabel
	case t.NodeLabel != nil && *t.NodeLabel != "":
		return *t.NodeLabel
	default:
		return t.TaskID
	}
}

// TaskEdge is one directed edge of the task graph
type TaskEdge struct {
	JobRunID     string    `json:"job_run_id"`
	Seq          int       `json:"seq"`
	SourceTaskID string    `json:"source_task_id"`
	TargetTaskID string    `json:"target_task_id"`
	Label        *string   `json:"label"`
	CreatedAt    time.Time `json:"created_at"`
}
