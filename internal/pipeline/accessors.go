package pipeline

import (
	"context"

	"github.com/jonathan/agent-factory/internal/db"
	"github.com/jonathan/agent-factory/internal/pipeline/steps"
	"github.com/jonathan/agent-factory/internal/types"
)

// CreateOrGetJobRun returns the job run for (company, title, JD text),
// creating it when absent.
func (o *Orchestrator) CreateOrGetJobRun(ctx context.Context, in db.JobRunInput) (*types.JobRun, error) {
	return o.store.CreateOrGetJobRun(ctx, in)
}

// GetJobRun returns a job run by id.
func (o *Orchestrator) GetJobRun(ctx context.Context, id string) (*types.JobRun, error) {
	return o.store.GetJobRun(ctx, id)
}

// GetTasks returns the run's task graph rows ordered by task_id.
func (o *Orchestrator) GetTasks(ctx context.Context, jobRunID string) ([]types.TaskRecord, error) {
	return o.store.GetTasks(ctx, jobRunID)
}

// GetEdges returns the run's edges in insertion order.
func (o *Orchestrator) GetEdges(ctx context.Context, jobRunID string) ([]types.TaskEdge, error) {
	return o.store.GetEdges(ctx, jobRunID)
}

// LatestResult returns the latest persisted output of the stage with the
// given label or ID, or nil when it has never run.
func (o *Orchestrator) LatestResult(ctx context.Context, jobRunID, label string) (*types.StageResult, error) {
	stage, err := steps.Resolve(label)
	if err != nil {
		return nil, err
	}
	return o.store.GetStageResult(ctx, jobRunID, stage.ID)
}

// NextLabel returns the label that follows current in the navigation list.
func (o *Orchestrator) NextLabel(current string) string {
	return steps.NextLabel(current)
}
