package types

import "time"

// Execution environments used by agents and prompts
const (
	EnvHumanOnly    = "human_only"
	EnvN8NGPTNode   = "n8n_gpt_node"
	EnvHTTPGPTAPI   = "http_gpt_api"
	EnvPureN8NLogic = "pure_n8n_logic"
)

// TaskCard summarises a persisted task for the AX stages
type TaskCard struct {
	TaskID         string            `json:"task_id"`
	Title          string            `json:"title"`
	Phase          string            `json:"phase"`
	OneLineSummary string            `json:"one_line_summary"`
	Stage          string            `json:"stage,omitempty"`
	DNA            map[string]string `json:"dna,omitempty"`
}

// AXWorkflowInput is the input of stage 4
type AXWorkflowInput struct {
	JobMeta                  JobMeta         `json:"job_meta"`
	WorkflowBlueprintMermaid string          `json:"workflow_blueprint_mermaid"`
	WorkflowStages           []WorkflowStage `json:"workflow_stages,omitempty"`
	TaskCards                []TaskCard      `json:"task_cards"`
}

// AgentTableRow is one agent proposed by the AX workflow architect
type AgentTableRow struct {
	Stage                string  `json:"stage" validate:"required"`
	Stream               *string `json:"stream"`
	Step                 *string `json:"step"`
	AgentID              string  `json:"agent_id" validate:"required"`
	AgentName            string  `json:"agent_name" validate:"required"`
	AgentType            string  `json:"agent_type"`
	ExecutionEnvironment string  `json:"execution_environment"`
	RAGRequired          bool    `json:"rag_required"`
	RAGPattern           string  `json:"rag_pattern"`
	RoleAndGoal          string  `json:"role_and_goal"`
	InputsSummary        string  `json:"inputs_summary"`
	OutputsSummary       string  `json:"outputs_summary"`
	HumanTouchpoint      *string `json:"human_touchpoint"`
	RisksSummary         *string `json:"risks_summary"`
	MetricsSummary       *string `json:"metrics_summary"`
}

// AXWorkflowResult is the output of stage 4
type AXWorkflowResult struct {
	AXWorkflowName        string          `json:"ax_workflow_name" validate:"required"`
	AXWorkflowDescription string          `json:"ax_workflow_description"`
	Mode                  string          `json:"mode" validate:"omitempty,oneof=poc advanced"`
	MermaidArchCode       string          `json:"mermaid_arch_code"`
	AgentTable            []AgentTableRow `json:"agent_table" validate:"min=1,dive"`
	ValidatorLayer        map[string]any  `json:"validator_layer_json"`
	MetricsPlan           map[string]any  `json:"metrics_plan_json"`
	StageDebug
}

// AgentArchitectInput is the input of stage 5
type AgentArchitectInput struct {
	JobMeta    JobMeta         `json:"job_meta"`
	AgentTable []AgentTableRow `json:"agent_table"`
}

// AgentIOField describes one input or output field of an agent
type AgentIOField struct {
	Name        string  `json:"name" validate:"required"`
	Type        string  `json:"type"`
	Required    bool    `json:"required"`
	Description string  `json:"description"`
	Example     *string `json:"example"`
}

// AgentSpec is the detailed design of one agent
type AgentSpec struct {
	AgentID               string         `json:"agent_id" validate:"required"`
	AgentName             string         `json:"agent_name" validate:"required"`
	Stage                 string         `json:"stage"`
	Stream                *string        `json:"stream"`
	Step                  *string        `json:"step"`
	AgentType             string         `json:"agent_type"`
	ExecutionEnvironment  string         `json:"execution_environment"`
	RoleAndGoal           string         `json:"role_and_goal"`
	InputSchema           []AgentIOField `json:"input_schema" validate:"dive"`
	OutputSchema          []AgentIOField `json:"output_schema" validate:"dive"`
	SuccessMetrics        []string       `json:"success_metrics"`
	ErrorPolicy           map[string]any `json:"error_policy"`
	NeedsReview           bool           `json:"needs_review"`
	ValidatorDependencies []string       `json:"validator_dependencies"`
	Notes                 *string        `json:"notes"`
}

// Lite returns the subset of the spec the research stages need
func (a AgentSpec) Lite() AgentSpecLite {
	return AgentSpecLite{
		AgentID:              a.AgentID,
		AgentName:            a.AgentName,
		RoleAndGoal:          a.RoleAndGoal,
		AgentType:            a.AgentType,
		ExecutionEnvironment: a.ExecutionEnvironment,
	}
}

// AgentArchitectResult is the output of stage 5
type AgentArchitectResult struct {
	AgentSpecs []AgentSpec `json:"agent_specs" validate:"min=1,dive"`
	StageDebug
}

// AgentSpecLite identifies an agent in research prompts
type AgentSpecLite struct {
	AgentID              string `json:"agent_id"`
	AgentName            string `json:"agent_name"`
	RoleAndGoal          string `json:"role_and_goal"`
	AgentType            string `json:"agent_type"`
	ExecutionEnvironment string `json:"execution_environment"`
}

// TaskCardLite identifies a task in research prompts
type TaskCardLite struct {
	TaskID string `json:"task_id"`
	Title  string `json:"title"`
	Phase  string `json:"phase,omitempty"`
}

// DeepSkillResearchInput is the per-agent input of stage 6
type DeepSkillResearchInput struct {
	JobMeta JobMeta        `json:"job_meta"`
	Agent   AgentSpecLite  `json:"agent"`
	Tasks   []TaskCardLite `json:"tasks"`
}

// DeepSkillResearchSections holds the research write-up for one agent
type DeepSkillResearchSections struct {
	CoreSkills             string `json:"core_skills" validate:"required"`
	ThinkingProcess        string `json:"thinking_process"`
	FrameworksAndQuestions string `json:"frameworks_and_questions"`
	CommonPitfalls         string `json:"common_pitfalls"`
	GoodVsBadExamples      string `json:"good_vs_bad_examples"`
}

// DeepSkillResearchResult is the per-agent output of stage 6
type DeepSkillResearchResult struct {
	AgentID       string                    `json:"agent_id" validate:"required"`
	ResearchFocus string                    `json:"research_focus"`
	Sections      DeepSkillResearchSections `json:"sections"`
	StageDebug
}

// DeepResearchSet collects the per-agent results of stage 6 in agent order
type DeepResearchSet struct {
	Results []DeepSkillResearchResult `json:"results"`
	StageDebug
}

// SkillCard is one reusable skill extracted for agents
type SkillCard struct {
	SkillID        string   `json:"skill_id" validate:"required"`
	SkillName      string   `json:"skill_name" validate:"required"`
	TargetAgentIDs []string `json:"target_agent_ids"`
	RelatedTaskIDs []string `json:"related_task_ids"`
	Purpose        string   `json:"purpose"`
	WhenToUse      string   `json:"when_to_use"`
	CoreHeuristics []string `json:"core_heuristics"`
	StepChecklist  []string `json:"step_checklist"`
	BadSigns       []string `json:"bad_signs"`
	GoodSigns      []string `json:"good_signs"`
}

// AgentSkillMap links an agent to its skills
type AgentSkillMap struct {
	AgentID  string   `json:"agent_id" validate:"required"`
	SkillIDs []string `json:"skill_ids"`
}

// SkillExtractorInput is the input of stage 7
type SkillExtractorInput struct {
	JobMeta             JobMeta                   `json:"job_meta"`
	Agents              []AgentSpecLite           `json:"agents"`
	AgentTasks          map[string][]TaskCardLite `json:"agent_tasks"`
	DeepResearchResults []DeepSkillResearchResult `json:"deep_research_results"`
}

// SkillCardSet is the output of stage 7
type SkillCardSet struct {
	SkillCards    []SkillCard     `json:"skill_cards" validate:"dive"`
	AgentSkillMap []AgentSkillMap `json:"agent_skill_map" validate:"dive"`
	StageDebug
}

// AgentPrompt is the deployable prompt of one agent
type AgentPrompt struct {
	AgentID            string           `json:"agent_id" validate:"required"`
	Env                string           `json:"env" validate:"required"`
	PromptVersion      string           `json:"prompt_version"`
	SystemPrompt       *string          `json:"system_prompt"`
	UserPromptTemplate *string          `json:"user_prompt_template"`
	LogicHint          *string          `json:"logic_hint"`
	HumanChecklist     *string          `json:"human_checklist"`
	Examples           []map[string]any `json:"examples_json"`
	Mode               string           `json:"mode"`
}

// PromptBuilderInput is the input of stage 8
type PromptBuilderInput struct {
	JobMeta        JobMeta        `json:"job_meta"`
	Agents         []AgentSpec    `json:"agents"`
	Skills         []SkillCard    `json:"skills"`
	GlobalPolicies map[string]any `json:"global_policies,omitempty"`
}

// AgentPromptSet is the output of stage 8
type AgentPromptSet struct {
	AgentPrompts []AgentPrompt `json:"agent_prompts" validate:"dive"`
	StageDebug
}

// AXAgent is a persisted agent: its table row from stage 4 and, once stage 5
// has run, its detailed spec.
type AXAgent struct {
	JobRunID  string        `json:"job_run_id"`
	Seq       int           `json:"seq"`
	Row       AgentTableRow `json:"row"`
	Spec      *AgentSpec    `json:"spec,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// AXSkill is a persisted skill card with the agents it is mapped to
type AXSkill struct {
	JobRunID string    `json:"job_run_id"`
	Card     SkillCard `json:"card"`
	AgentIDs []string  `json:"agent_ids"`
}

// AXPrompt is a persisted agent prompt
type AXPrompt struct {
	JobRunID  string      `json:"job_run_id"`
	Prompt    AgentPrompt `json:"prompt"`
	UpdatedAt time.Time   `json:"updated_at"`
}
