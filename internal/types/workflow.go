package types

// WorkflowNode is one task placed in the workflow
type WorkflowNode struct {
	NodeID   string  `json:"node_id" validate:"required"`
	Label    string  `json:"label"`
	StageID  *string `json:"stage_id"`
	StreamID *string `json:"stream_id"`
	IsEntry  bool    `json:"is_entry"`
	IsExit   bool    `json:"is_exit"`
	IsHub    bool    `json:"is_hub"`
	Notes    *string `json:"notes"`
}

// WorkflowEdge connects two nodes
type WorkflowEdge struct {
	Source string  `json:"source" validate:"required"`
	Target string  `json:"target" validate:"required"`
	Label  *string `json:"label"`
}

// WorkflowStage groups nodes into a sequential stage
type WorkflowStage struct {
	StageID     string  `json:"stage_id" validate:"required"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// WorkflowStream groups nodes into a parallel stream within a stage
type WorkflowStream struct {
	StreamID    string  `json:"stream_id" validate:"required"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	StageID     *string `json:"stage_id"`
}

// WorkflowInput is the input of stage 2.1
type WorkflowInput struct {
	JobMeta      JobMeta      `json:"job_meta"`
	RawJobDesc   string       `json:"raw_job_desc"`
	TaskAtoms    []TaskAtom   `json:"task_atoms"`
	IVCTasks     []IVCTask    `json:"ivc_tasks"`
	PhaseSummary PhaseSummary `json:"phase_summary"`
}

// WorkflowPlan is the output of stage 2.1
type WorkflowPlan struct {
	WorkflowName    string           `json:"workflow_name" validate:"required"`
	WorkflowSummary *string          `json:"workflow_summary"`
	Stages          []WorkflowStage  `json:"stages" validate:"dive"`
	Streams         []WorkflowStream `json:"streams" validate:"dive"`
	Nodes           []WorkflowNode   `json:"nodes" validate:"dive"`
	Edges           []WorkflowEdge   `json:"edges" validate:"dive"`
	EntryPoints     []string         `json:"entry_points"`
	ExitPoints      []string         `json:"exit_points"`
	Notes           *string          `json:"notes"`
	Warnings        []string         `json:"warnings,omitempty"`
	StageDebug
}

// MermaidDiagram is the output of stage 2.2
type MermaidDiagram struct {
	WorkflowName string   `json:"workflow_name"`
	MermaidCode  string   `json:"mermaid_code" validate:"required"`
	Warnings     []string `json:"warnings"`
	StageDebug
}
