package ax

import (
	"context"
	"fmt"

	"github.com/jonathan/agent-factory/internal/runner"
	"github.com/jonathan/agent-factory/internal/types"
)

// ArchitectContract describes stage 5.
func ArchitectContract() runner.Contract[types.AgentArchitectInput, types.AgentArchitectResult] {
	return runner.Contract[types.AgentArchitectInput, types.AgentArchitectResult]{
		Stage:    StageArchitect,
		Stub:     StubArchitect,
		Finalize: finalizeArchitect,
	}
}

// StubArchitect gives every agent a free text input and output and flags it
// for review.
func StubArchitect(in types.AgentArchitectInput) types.AgentArchitectResult {
	specs := make([]types.AgentSpec, 0, len(in.AgentTable))
	for _, row := range in.AgentTable {
		specs = append(specs, types.AgentSpec{
			AgentID:              row.AgentID,
			AgentName:            row.AgentName,
			Stage:                row.Stage,
			Stream:               row.Stream,
			Step:                 row.Step,
			AgentType:            row.AgentType,
			ExecutionEnvironment: normalizeEnv(row.ExecutionEnvironment),
			RoleAndGoal:          row.RoleAndGoal,
			InputSchema: []types.AgentIOField{{
				Name: "input_text", Type: "string", Required: true, Description: row.InputsSummary,
			}},
			OutputSchema: []types.AgentIOField{{
				Name: "output_text", Type: "string", Required: true, Description: row.OutputsSummary,
			}},
			SuccessMetrics:        []string{},
			ErrorPolicy:           map[string]any{"on_failure": "escalate_to_human"},
			NeedsReview:           true,
			ValidatorDependencies: []string{},
		})
	}
	return types.AgentArchitectResult{AgentSpecs: specs}
}

func finalizeArchitect(in types.AgentArchitectInput, out *types.AgentArchitectResult) error {
	rows := make(map[string]types.AgentTableRow, len(in.AgentTable))
	for _, row := range in.AgentTable {
		rows[row.AgentID] = row
	}
	ids := make([]string, 0, len(out.AgentSpecs))
	for i := range out.AgentSpecs {
		spec := &out.AgentSpecs[i]
		ids = append(ids, spec.AgentID)
		if row, ok := rows[spec.AgentID]; ok {
			if spec.Stage == "" {
				spec.Stage = row.Stage
			}
			if spec.RoleAndGoal == "" {
				spec.RoleAndGoal = row.RoleAndGoal
			}
			if spec.ExecutionEnvironment == "" {
				spec.ExecutionEnvironment = row.ExecutionEnvironment
			}
			if spec.AgentType == "" {
				spec.AgentType = row.AgentType
			}
		}
		spec.ExecutionEnvironment = normalizeEnv(spec.ExecutionEnvironment)
		spec.InputSchema = orEmpty(spec.InputSchema)
		spec.OutputSchema = orEmpty(spec.OutputSchema)
		spec.SuccessMetrics = orEmpty(spec.SuccessMetrics)
		spec.ValidatorDependencies = orEmpty(spec.ValidatorDependencies)
	}
	if err := duplicateID(ids); err != nil {
		return fmt.Errorf("agent_specs: %w", err)
	}
	return nil
}

// Architect runs stage 5 over the stage 4 agent table.
func (s *Stages) Architect(ctx context.Context, run *types.JobRun, workflow *types.AXWorkflowResult) (*types.AgentArchitectResult, error) {
	in := types.AgentArchitectInput{JobMeta: run.Meta()}
	if workflow != nil {
		in.AgentTable = workflow.AgentTable
	}
	out, _, err := runner.Run(ctx, s.deps, ArchitectContract(), in, run.ID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
