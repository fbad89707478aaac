package pipeline

import (
	"encoding/json"

	"github.com/jonathan/agent-factory/internal/ivc"
	"github.com/jonathan/agent-factory/internal/pipeline/steps"
	"github.com/jonathan/agent-factory/internal/types"
	"github.com/jonathan/agent-factory/internal/workflow"
)

// state holds the stage outputs available to one invocation
type state struct {
	collect      *types.CollectResult
	research     *types.ResearchResult
	extraction   *types.TaskExtractionResult
	phase        *types.PhaseClassificationResult
	static       *types.StaticClassificationResult
	plan         *types.WorkflowPlan
	mermaid      *types.MermaidDiagram
	axWorkflow   *types.AXWorkflowResult
	agents       *types.AgentArchitectResult
	deepResearch *types.DeepResearchSet
	skills       *types.SkillCardSet
	prompts      *types.AgentPromptSet
}

func (s *state) present() map[string]bool {
	return map[string]bool{
		steps.Collect:         s.collect != nil,
		steps.Summarize:       s.research != nil,
		steps.TaskExtract:     s.extraction != nil,
		steps.PhaseClassify:   s.phase != nil,
		steps.StaticClassify:  s.static != nil,
		steps.WorkflowStruct:  s.plan != nil,
		steps.WorkflowMermaid: s.mermaid != nil,
		steps.AXWorkflow:      s.axWorkflow != nil,
		steps.AgentArchitect:  s.agents != nil,
		steps.DeepResearch:    s.deepResearch != nil,
		steps.SkillExtract:    s.skills != nil,
		steps.PromptBuilder:   s.prompts != nil,
	}
}

func decodeInto[T any](payload []byte, dst **T) (any, error) {
	v := new(T)
	if err := json.Unmarshal(payload, v); err != nil {
		return nil, err
	}
	*dst = v
	return v, nil
}

// load decodes a persisted payload into the stage's slot
func (s *state) load(stage steps.StageMeta, payload []byte) (any, error) {
	switch stage.ID {
	case steps.Collect:
		return decodeInto(payload, &s.collect)
	case steps.Summarize:
		return decodeInto(payload, &s.research)
	case steps.TaskExtract:
		return decodeInto(payload, &s.extraction)
	case steps.PhaseClassify:
		return decodeInto(payload, &s.phase)
	case steps.StaticClassify:
		return decodeInto(payload, &s.static)
	case steps.WorkflowStruct:
		return decodeInto(payload, &s.plan)
	case steps.WorkflowMermaid:
		return decodeInto(payload, &s.mermaid)
	case steps.AXWorkflow:
		return decodeInto(payload, &s.axWorkflow)
	case steps.AgentArchitect:
		return decodeInto(payload, &s.agents)
	case steps.DeepResearch:
		return decodeInto(payload, &s.deepResearch)
	case steps.SkillExtract:
		return decodeInto(payload, &s.skills)
	case steps.PromptBuilder:
		return decodeInto(payload, &s.prompts)
	}
	return nil, &steps.UnknownStageError{Label: stage.ID}
}

// memoryTasks builds task rows from the in-memory stage outputs.
func (s *state) memoryTasks() []types.TaskRecord {
	if s.extraction == nil {
		return nil
	}
	tasks := ivc.ExtractRecords(s.extraction)
	index := make(map[string]*types.TaskRecord, len(tasks))
	for i := range tasks {
		index[tasks[i].TaskID] = &tasks[i]
	}
	if s.phase != nil {
		for _, r := range ivc.PhaseRecords(s.phase) {
			if t, ok := index[r.TaskID]; ok {
				t.IVCPhase, t.ExecSubphase, t.Primitive = r.IVCPhase, r.ExecSubphase, r.Primitive
			}
		}
	}
	if s.static != nil {
		for _, r := range ivc.StaticRecords(s.static) {
			if t, ok := index[r.TaskID]; ok {
				t.StaticTypeLv1, t.DomainLv1, t.RecommendedExecutionEnv = r.StaticTypeLv1, r.DomainLv1, r.RecommendedExecutionEnv
			}
		}
	}
	if s.plan != nil {
		for _, r := range workflow.PlanRecords(s.plan) {
			if t, ok := index[r.TaskID]; ok {
				t.StageID, t.NodeLabel = r.StageID, r.NodeLabel
			}
		}
	}
	return tasks
}
