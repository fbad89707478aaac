package ax

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/agent-factory/internal/runner"
	"github.com/jonathan/agent-factory/internal/types"
)

// Agent modes
const (
	ModePOC      = "poc"
	ModeAdvanced = "advanced"
)

// WorkflowContract describes stage 4.
func WorkflowContract() runner.Contract[types.AXWorkflowInput, types.AXWorkflowResult] {
	return runner.Contract[types.AXWorkflowInput, types.AXWorkflowResult]{
		Stage:    StageWorkflow,
		Stub:     StubWorkflow,
		Finalize: finalizeWorkflow,
	}
}

func axWorkflowName(meta types.JobMeta) string {
	return fmt.Sprintf("%s %s AX workflow", meta.CompanyName, meta.JobTitle)
}

// StubWorkflow proposes one human operated agent per workflow stage, or a
// single agent for the whole job when the plan has no stages.
func StubWorkflow(in types.AXWorkflowInput) types.AXWorkflowResult {
	stages := in.WorkflowStages
	if len(stages) == 0 {
		stages = []types.WorkflowStage{{StageID: "S1", Name: in.JobMeta.JobTitle}}
	}

	rows := make([]types.AgentTableRow, 0, len(stages))
	for i, st := range stages {
		name := st.Name
		if name == "" {
			name = st.StageID
		}
		var titles []string
		for _, c := range in.TaskCards {
			if c.Stage == st.StageID || len(in.WorkflowStages) == 0 {
				titles = append(titles, c.Title)
			}
		}
		role := fmt.Sprintf("%s 단계 업무를 사람이 직접 수행한다", name)
		if len(titles) > 0 {
			role += ": " + strings.Join(titles, ", ")
		}
		rows = append(rows, types.AgentTableRow{
			Stage:                st.StageID,
			AgentID:              fmt.Sprintf("A%02d", i+1),
			AgentName:            name + " 담당",
			AgentType:            "human",
			ExecutionEnvironment: types.EnvHumanOnly,
			RoleAndGoal:          role,
			InputsSummary:        "이전 단계 산출물",
			OutputsSummary:       name + " 단계 산출물",
		})
	}
	return types.AXWorkflowResult{
		AXWorkflowName:        axWorkflowName(in.JobMeta),
		AXWorkflowDescription: "Stub AX workflow generated without LLM",
		Mode:                  ModePOC,
		MermaidArchCode:       in.WorkflowBlueprintMermaid,
		AgentTable:            rows,
		ValidatorLayer:        map[string]any{},
		MetricsPlan:           map[string]any{},
	}
}

func finalizeWorkflow(in types.AXWorkflowInput, out *types.AXWorkflowResult) error {
	ids := make([]string, 0, len(out.AgentTable))
	for i := range out.AgentTable {
		row := &out.AgentTable[i]
		row.AgentID = strings.TrimSpace(row.AgentID)
		row.ExecutionEnvironment = normalizeEnv(row.ExecutionEnvironment)
		ids = append(ids, row.AgentID)
	}
	if err := duplicateID(ids); err != nil {
		return fmt.Errorf("agent_table: %w", err)
	}
	if strings.TrimSpace(out.AXWorkflowName) == "" {
		out.AXWorkflowName = axWorkflowName(in.JobMeta)
	}
	out.Mode = strings.ToLower(strings.TrimSpace(out.Mode))
	if out.Mode == "" {
		out.Mode = ModePOC
	}
	if out.ValidatorLayer == nil {
		out.ValidatorLayer = map[string]any{}
	}
	if out.MetricsPlan == nil {
		out.MetricsPlan = map[string]any{}
	}
	return nil
}

// DesignWorkflow runs stage 4 over the rendered workflow and the persisted
// task graph.
func (s *Stages) DesignWorkflow(ctx context.Context, run *types.JobRun, diagram *types.MermaidDiagram, plan *types.WorkflowPlan, tasks []types.TaskRecord) (*types.AXWorkflowResult, error) {
	in := types.AXWorkflowInput{JobMeta: run.Meta(), TaskCards: TaskCards(tasks)}
	if diagram != nil {
		in.WorkflowBlueprintMermaid = diagram.MermaidCode
	}
	if plan != nil {
		in.WorkflowStages = plan.Stages
	}
	out, _, err := runner.Run(ctx, s.deps, WorkflowContract(), in, run.ID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
