// Package steps defines the fixed stage registry of the agent factory
// pipeline: stage ordering, dependencies and label navigation.
package steps

import (
	"errors"
	"fmt"
	"sort"
)

// Stage IDs
const (
	Collect         = "S0_1_COLLECT"
	Summarize       = "S0_2_SUMMARIZE"
	TaskExtract     = "S1_1_TASK_EXTRACT"
	PhaseClassify   = "S1_2_PHASE_CLASSIFY"
	StaticClassify  = "S1_3_STATIC_CLASSIFY"
	WorkflowStruct  = "S2_1_WORKFLOW_STRUCT"
	WorkflowMermaid = "S2_2_WORKFLOW_MERMAID"
	AXWorkflow      = "S4_AX_WORKFLOW"
	AgentArchitect  = "S5_AGENT_ARCHITECT"
	DeepResearch    = "S6_DEEP_SKILL_RESEARCH"
	SkillExtract    = "S7_SKILL_EXTRACT"
	PromptBuilder   = "S8_PROMPT_BUILDER"
)

// StageMeta describes one pipeline stage. Group is the major part of the
// label and Step the minor part, 0 for single-stage groups.
type StageMeta struct {
	ID           string   `json:"id"`
	Order        int      `json:"order"`
	Label        string   `json:"label"`
	Group        int      `json:"group"`
	Step         int      `json:"step"`
	Key          string   `json:"key"`
	Title        string   `json:"title"`
	Implemented  bool     `json:"implemented"`
	Dependencies []string `json:"dependencies"`
}

// StageRegistry lists every stage in execution order
var StageRegistry = []StageMeta{
	{ID: Collect, Order: 1, Label: "0.1", Group: 0, Step: 1, Key: "stage0_collect",
		Title: "Job research: collect sources", Implemented: true, Dependencies: []string{}},
	{ID: Summarize, Order: 2, Label: "0.2", Group: 0, Step: 2, Key: "stage0_summarize",
		Title: "Job research: summarize description", Implemented: true, Dependencies: []string{Collect}},
	{ID: TaskExtract, Order: 3, Label: "1.1", Group: 1, Step: 1, Key: "stage1_task_extract",
		Title: "IVC: task extraction", Implemented: true, Dependencies: []string{Summarize}},
	{ID: PhaseClassify, Order: 4, Label: "1.2", Group: 1, Step: 2, Key: "stage1_phase",
		Title: "IVC: phase classification", Implemented: true, Dependencies: []string{TaskExtract}},
	{ID: StaticClassify, Order: 5, Label: "1.3", Group: 1, Step: 3, Key: "stage1_static",
		Title: "IVC: static classification", Implemented: true, Dependencies: []string{PhaseClassify}},
	{ID: WorkflowStruct, Order: 6, Label: "2.1", Group: 2, Step: 1, Key: "stage2_plan",
		Title: "Workflow: structure", Implemented: true, Dependencies: []string{PhaseClassify}},
	{ID: WorkflowMermaid, Order: 7, Label: "2.2", Group: 2, Step: 2, Key: "stage2_mermaid",
		Title: "Workflow: mermaid diagram", Implemented: true, Dependencies: []string{WorkflowStruct}},
	{ID: AXWorkflow, Order: 8, Label: "4", Group: 4, Step: 0, Key: "stage4_ax_workflow",
		Title: "AX: workflow architect", Implemented: true, Dependencies: []string{WorkflowMermaid}},
	{ID: AgentArchitect, Order: 9, Label: "5", Group: 5, Step: 0, Key: "stage5_agents",
		Title: "AX: agent architect", Implemented: true, Dependencies: []string{AXWorkflow}},
	{ID: DeepResearch, Order: 10, Label: "6", Group: 6, Step: 0, Key: "stage6_deep_research",
		Title: "AX: deep skill research", Implemented: true, Dependencies: []string{AgentArchitect}},
	{ID: SkillExtract, Order: 11, Label: "7", Group: 7, Step: 0, Key: "stage7_skills",
		Title: "AX: skill extraction", Implemented: true, Dependencies: []string{AgentArchitect, DeepResearch}},
	{ID: PromptBuilder, Order: 12, Label: "8", Group: 8, Step: 0, Key: "stage8_prompts",
		Title: "AX: prompt builder", Implemented: true, Dependencies: []string{AgentArchitect, SkillExtract}},
}

// navigation is the label sequence the UI steps through
var navigation = []string{"0.2", "1.2", "1.3", "2.2", "4", "5", "6", "7", "8"}

// ErrUnknownStage is returned for labels and IDs outside the registry
var ErrUnknownStage = errors.New("unknown stage")

// UnknownStageError reports the label that could not be resolved
type UnknownStageError struct {
	Label string
}

func (e *UnknownStageError) Error() string {
	return fmt.Sprintf("unknown stage: %q", e.Label)
}

func (e *UnknownStageError) Unwrap() error {
	return ErrUnknownStage
}

// Resolve finds a stage by label ("2.2") or ID ("S2_2_WORKFLOW_MERMAID")
func Resolve(label string) (StageMeta, error) {
	for _, s := range StageRegistry {
		if s.Label == label || s.ID == label {
			return s, nil
		}
	}
	return StageMeta{}, &UnknownStageError{Label: label}
}

// MustResolve is Resolve for IDs known at compile time
func MustResolve(id string) StageMeta {
	s, err := Resolve(id)
	if err != nil {
		panic(err)
	}
	return s
}

// Ordered returns the registry sorted by (group, step)
func Ordered() []StageMeta {
	out := append([]StageMeta(nil), StageRegistry...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Step < out[j].Step
	})
	return out
}

// Prefix returns every implemented stage up to and including target, in
// execution order
func Prefix(target StageMeta) []StageMeta {
	var out []StageMeta
	for _, s := range Ordered() {
		if !s.Implemented {
			continue
		}
		out = append(out, s)
		if s.ID == target.ID {
			break
		}
	}
	return out
}

// NextLabel returns the label after current in the navigation list. An
// empty or unknown label yields the first entry; the last entry yields itself.
func NextLabel(current string) string {
	for i, l := range navigation {
		if l != current {
			continue
		}
		if i+1 < len(navigation) {
			return navigation[i+1]
		}
		return l
	}
	return navigation[0]
}

// MissingDependencies returns the declared dependencies of stage that are
// not in present
func MissingDependencies(stage StageMeta, present map[string]bool) []string {
	var missing []string
	for _, dep := range stage.Dependencies {
		if !present[dep] {
			missing = append(missing, dep)
		}
	}
	return missing
}
