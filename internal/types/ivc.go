package types

import (
	"encoding/json"
	"strings"
)

// IVCPhase is the canonical phase of a task
type IVCPhase string

const (
	PhaseSense            IVCPhase = "SENSE"
	PhaseDecide           IVCPhase = "DECIDE"
	PhaseExecuteTransform IVCPhase = "EXECUTE_TRANSFORM"
	PhaseExecuteTransfer  IVCPhase = "EXECUTE_TRANSFER"
	PhaseExecuteCommit    IVCPhase = "EXECUTE_COMMIT"
	PhaseAssure           IVCPhase = "ASSURE"
)

// AllPhases lists the phases in taxonomy order
var AllPhases = []IVCPhase{
	PhaseSense,
	PhaseDecide,
	PhaseExecuteTransform,
	PhaseExecuteTransfer,
	PhaseExecuteCommit,
	PhaseAssure,
}

// CanonicalPhase maps the spellings models produce ("P1_SENSE", "sense",
// "P3_EXECUTE" plus a sub-phase) onto the canonical phase. ok is false when
// the value names no known phase.
func CanonicalPhase(raw string, subphase *string) (IVCPhase, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	if len(s) > 3 && s[0] == 'P' && s[1] >= '1' && s[1] <= '4' && s[2] == '_' {
		s = s[3:]
	}
	if s == "EXECUTE" && subphase != nil {
		sub := strings.ToUpper(strings.TrimSpace(*subphase))
		sub = strings.TrimPrefix(sub, "EXECUTE_")
		s = "EXECUTE_" + sub
	}
	for _, p := range AllPhases {
		if s == string(p) {
			return p, true
		}
	}
	return IVCPhase(raw), false
}

// TaskAtom is the smallest unit of job description text
type TaskAtom struct {
	TaskID               string  `json:"task_id" validate:"required"`
	TaskOriginalSentence string  `json:"task_original_sentence"`
	TaskKorean           string  `json:"task_korean" validate:"required"`
	TaskEnglish          *string `json:"task_english"`
	Notes                *string `json:"notes"`
}

// TaskExtractionInput is the input of stage 1.1
type TaskExtractionInput struct {
	JobMeta    JobMeta `json:"job_meta"`
	RawJobDesc string  `json:"raw_job_desc"`
}

// TaskExtractionResult is the output of stage 1.1
type TaskExtractionResult struct {
	JobMeta   JobMeta    `json:"job_meta"`
	TaskAtoms []TaskAtom `json:"task_atoms" validate:"min=1,dive"`
	StageDebug
}

// IVCTask is a task atom with its phase classification
type IVCTask struct {
	TaskID               string   `json:"task_id" validate:"required"`
	TaskKorean           string   `json:"task_korean"`
	TaskOriginalSentence string   `json:"task_original_sentence"`
	IVCPhase             IVCPhase `json:"ivc_phase" validate:"required,oneof=SENSE DECIDE EXECUTE_TRANSFORM EXECUTE_TRANSFER EXECUTE_COMMIT ASSURE"`
	ExecSubphase         *string  `json:"ivc_exec_subphase"`
	PrimitiveLv1         string   `json:"primitive_lv1" validate:"required"`
	ClassificationReason string   `json:"classification_reason"`
}

// PhaseSummary counts tasks per phase. A complete summary has every phase as a key.
type PhaseSummary map[IVCPhase]int

// SummarizePhases counts tasks per phase with every phase present
func SummarizePhases(tasks []IVCTask) PhaseSummary {
	summary := make(PhaseSummary, len(AllPhases))
	for _, p := range AllPhases {
		summary[p] = 0
	}
	for _, t := range tasks {
		if _, ok := summary[t.IVCPhase]; ok {
			summary[t.IVCPhase]++
		}
	}
	return summary
}

// UnmarshalJSON accepts {"SENSE": 1} as well as the {"P1_SENSE": {"count": 1}}
// shape models tend to echo back. Anything else decodes to an empty summary,
// since the summary is recounted from the tasks after decoding.
func (s *PhaseSummary) UnmarshalJSON(data []byte) error {
	out := make(PhaseSummary)
	var flat map[string]int
	if err := json.Unmarshal(data, &flat); err == nil {
		for k, v := range flat {
			if p, ok := CanonicalPhase(k, nil); ok {
				out[p] += v
			}
		}
		*s = out
		return nil
	}
	var nested map[string]struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(data, &nested); err == nil {
		for k, v := range nested {
			if p, ok := CanonicalPhase(k, nil); ok {
				out[p] += v.Count
			}
		}
	}
	*s = out
	return nil
}

// PhaseClassifyInput is the input of stage 1.2
type PhaseClassifyInput struct {
	JobMeta    JobMeta    `json:"job_meta"`
	RawJobDesc string     `json:"raw_job_desc"`
	TaskAtoms  []TaskAtom `json:"task_atoms"`
}

// PhaseClassificationResult is the output of stage 1.2
type PhaseClassificationResult struct {
	JobMeta      JobMeta      `json:"job_meta"`
	IVCTasks     []IVCTask    `json:"ivc_tasks" validate:"dive"`
	PhaseSummary PhaseSummary `json:"phase_summary"`
	TaskAtoms    []TaskAtom   `json:"task_atoms,omitempty"`
	StageDebug
}

// TaskStaticMeta is the static classification of one task
type TaskStaticMeta struct {
	TaskID                  string   `json:"task_id" validate:"required"`
	TaskKorean              string   `json:"task_korean"`
	StaticTypeLv1           string   `json:"static_type_lv1" validate:"required"`
	StaticTypeLv2           *string  `json:"static_type_lv2"`
	DomainLv1               *string  `json:"domain_lv1"`
	DomainLv2               *string  `json:"domain_lv2"`
	RAGRequired             bool     `json:"rag_required"`
	RAGReason               *string  `json:"rag_reason"`
	ValueScore              *int     `json:"value_score" validate:"omitempty,min=0,max=10"`
	ComplexityScore         *int     `json:"complexity_score" validate:"omitempty,min=0,max=10"`
	ValueComplexityQuadrant string   `json:"value_complexity_quadrant"`
	RecommendedExecutionEnv string   `json:"recommended_execution_env"`
	AutoabilityReason       *string  `json:"autoability_reason"`
	DataEntities            []string `json:"data_entities"`
	Tags                    []string `json:"tags"`
}

// StaticClassifyInput is the input of stage 1.3
type StaticClassifyInput struct {
	JobMeta      JobMeta      `json:"job_meta"`
	TaskAtoms    []TaskAtom   `json:"task_atoms"`
	IVCTasks     []IVCTask    `json:"ivc_tasks"`
	PhaseSummary PhaseSummary `json:"phase_summary"`
}

// StaticClassificationResult is the output of stage 1.3
type StaticClassificationResult struct {
	JobMeta        JobMeta          `json:"job_meta"`
	TaskStaticMeta []TaskStaticMeta `json:"task_static_meta" validate:"dive"`
	StaticSummary  map[string]any   `json:"static_summary"`
	StageDebug
}
