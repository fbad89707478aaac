package workflow

import "github.com/jonathan/agent-factory/internal/types"

// PlanRecords maps plan nodes onto the workflow columns of the task graph.
func PlanRecords(plan *types.WorkflowPlan) []types.TaskRecord {
	records := make([]types.TaskRecord, 0, len(plan.Nodes))
	for _, n := range plan.Nodes {
		isEntry, isExit, isHub := n.IsEntry, n.IsExit, n.IsHub
		records = append(records, types.TaskRecord{
			TaskID:    n.NodeID,
			StageID:   n.StageID,
			StreamID:  n.StreamID,
			NodeLabel: types.StringPtr(n.Label),
			IsEntry:   &isEntry,
			IsExit:    &isExit,
			IsHub:     &isHub,
		})
	}
	return records
}

// PlanEdges returns the plan edges in plan order.
func PlanEdges(plan *types.WorkflowPlan) []types.TaskEdge {
	edges := make([]types.TaskEdge, 0, len(plan.Edges))
	for _, e := range plan.Edges {
		edges = append(edges, types.TaskEdge{
			SourceTaskID: e.Source,
			TargetTaskID: e.Target,
			Label:        e.Label,
		})
	}
	return edges
}
