// Package workflow implements stage 2.1, which arranges classified tasks into
// a staged workflow, and stage 2.2, which renders that plan as Mermaid.
package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/agent-factory/internal/runner"
	"github.com/jonathan/agent-factory/internal/types"
)

// Prompt and schema names
const (
	StageStruct  = "workflow_struct"
	StageMermaid = "workflow_mermaid"
)

// Stages runs the workflow stages.
type Stages struct {
	deps runner.Deps
}

// New creates the workflow stages.
func New(deps runner.Deps) *Stages {
	return &Stages{deps: deps}
}

// ---- Stage 2.1 ----

// StructContract describes stage 2.1.
func StructContract() runner.Contract[types.WorkflowInput, types.WorkflowPlan] {
	return runner.Contract[types.WorkflowInput, types.WorkflowPlan]{
		Stage:    StageStruct,
		Stub:     StubPlan,
		Finalize: finalizePlan,
	}
}

// StubPlan builds one stage per non-empty phase and chains the tasks in
// phase order.
func StubPlan(in types.WorkflowInput) types.WorkflowPlan {
	byPhase := make(map[types.IVCPhase][]types.IVCTask)
	for _, t := range in.IVCTasks {
		byPhase[t.IVCPhase] = append(byPhase[t.IVCPhase], t)
	}

	plan := types.WorkflowPlan{
		WorkflowName: workflowName(in.JobMeta),
		Stages:       []types.WorkflowStage{},
		Streams:      []types.WorkflowStream{},
		Nodes:        []types.WorkflowNode{},
		Edges:        []types.WorkflowEdge{},
		EntryPoints:  []string{},
		ExitPoints:   []string{},
	}
	for _, phase := range types.AllPhases {
		tasks := byPhase[phase]
		if len(tasks) == 0 {
			continue
		}
		stageID := fmt.Sprintf("S%d", len(plan.Stages)+1)
		plan.Stages = append(plan.Stages, types.WorkflowStage{StageID: stageID, Name: string(phase)})
		for _, t := range tasks {
			sid := stageID
			plan.Nodes = append(plan.Nodes, types.WorkflowNode{
				NodeID:  t.TaskID,
				Label:   t.TaskKorean,
				StageID: &sid,
			})
		}
	}
	for i := 1; i < len(plan.Nodes); i++ {
		plan.Edges = append(plan.Edges, types.WorkflowEdge{Source: plan.Nodes[i-1].NodeID, Target: plan.Nodes[i].NodeID})
	}
	if n := len(plan.Nodes); n > 0 {
		plan.Nodes[0].IsEntry = true
		plan.Nodes[n-1].IsExit = true
		plan.EntryPoints = []string{plan.Nodes[0].NodeID}
		plan.ExitPoints = []string{plan.Nodes[n-1].NodeID}
	}
	return plan
}

func workflowName(meta types.JobMeta) string {
	return fmt.Sprintf("%s %s workflow", meta.CompanyName, meta.JobTitle)
}

// finalizePlan keeps the plan when the model adds nodes that are not tasks,
// such as START or END markers: those nodes, repeated nodes and the edges
// touching them are dropped and reported in Warnings. A plan left with no
// task nodes is rejected.
func finalizePlan(in types.WorkflowInput, out *types.WorkflowPlan) error {
	tasks := make(map[string]types.IVCTask, len(in.IVCTasks))
	for _, t := range in.IVCTasks {
		tasks[t.TaskID] = t
	}

	kept := make([]types.WorkflowNode, 0, len(out.Nodes))
	seen := make(map[string]bool, len(out.Nodes))
	for _, n := range out.Nodes {
		t, ok := tasks[n.NodeID]
		switch {
		case !ok:
			out.Warnings = append(out.Warnings, fmt.Sprintf("dropped node %q: not a known task", n.NodeID))
			continue
		case seen[n.NodeID]:
			out.Warnings = append(out.Warnings, fmt.Sprintf("dropped duplicate node %q", n.NodeID))
			continue
		}
		if n.Label == "" {
			n.Label = t.TaskKorean
		}
		seen[n.NodeID] = true
		kept = append(kept, n)
	}
	if len(kept) == 0 && len(tasks) > 0 {
		return fmt.Errorf("plan has none of the %d tasks as nodes", len(tasks))
	}
	out.Nodes = kept

	nodes := make(map[string]*types.WorkflowNode, len(out.Nodes))
	for i := range out.Nodes {
		nodes[out.Nodes[i].NodeID] = &out.Nodes[i]
	}
	edges := make([]types.WorkflowEdge, 0, len(out.Edges))
	for _, e := range out.Edges {
		if nodes[e.Source] == nil || nodes[e.Target] == nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("dropped edge %s -> %s: unknown node", e.Source, e.Target))
			continue
		}
		edges = append(edges, e)
	}
	out.Edges = edges

	out.EntryPoints = reconcilePoints(out.EntryPoints, out.Nodes, nodes, func(n *types.WorkflowNode) *bool { return &n.IsEntry })
	out.ExitPoints = reconcilePoints(out.ExitPoints, out.Nodes, nodes, func(n *types.WorkflowNode) *bool { return &n.IsExit })

	if out.Stages == nil {
		out.Stages = []types.WorkflowStage{}
	}
	if out.Streams == nil {
		out.Streams = []types.WorkflowStream{}
	}
	return nil
}

// reconcilePoints makes a point list and the matching node flags agree: a
// node is a point when either side says so.
func reconcilePoints(points []string, order []types.WorkflowNode, nodes map[string]*types.WorkflowNode, flag func(*types.WorkflowNode) *bool) []string {
	for _, id := range points {
		if n := nodes[id]; n != nil {
			*flag(n) = true
		}
	}
	out := []string{}
	for i := range order {
		if *flag(&order[i]) {
			out = append(out, order[i].NodeID)
		}
	}
	return out
}

// Structure runs stage 2.1.
func (s *Stages) Structure(ctx context.Context, run *types.JobRun, research *types.ResearchResult, extraction *types.TaskExtractionResult, phase *types.PhaseClassificationResult) (*types.WorkflowPlan, error) {
	in := types.WorkflowInput{JobMeta: run.Meta()}
	if research != nil {
		in.RawJobDesc = research.RawJobDesc
	}
	if extraction != nil {
		in.TaskAtoms = extraction.TaskAtoms
	}
	if phase != nil {
		in.IVCTasks = phase.IVCTasks
		in.PhaseSummary = phase.PhaseSummary
		if in.TaskAtoms == nil {
			in.TaskAtoms = phase.TaskAtoms
		}
	}
	out, _, err := runner.Run(ctx, s.deps, StructContract(), in, run.ID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ---- Stage 2.2 ----

// StubWarning marks a diagram rendered without the model.
const StubWarning = "mermaid rendered from the plan without the model"

// MermaidContract describes stage 2.2.
func MermaidContract() runner.Contract[types.WorkflowPlan, types.MermaidDiagram] {
	return runner.Contract[types.WorkflowPlan, types.MermaidDiagram]{
		Stage:    StageMermaid,
		Stub:     StubMermaid,
		Finalize: finalizeMermaid,
	}
}

// StubMermaid renders the plan deterministically.
func StubMermaid(plan types.WorkflowPlan) types.MermaidDiagram {
	return types.MermaidDiagram{
		WorkflowName: plan.WorkflowName,
		MermaidCode:  RenderMermaid(plan),
		Warnings:     []string{StubWarning},
	}
}

func finalizeMermaid(plan types.WorkflowPlan, out *types.MermaidDiagram) error {
	code := strings.TrimSpace(out.MermaidCode)
	code = strings.TrimPrefix(code, "```mermaid")
	code = strings.TrimPrefix(code, "```")
	code = strings.TrimSpace(strings.TrimSuffix(code, "```"))
	if !strings.HasPrefix(code, "flowchart") && !strings.HasPrefix(code, "graph") {
		return fmt.Errorf("mermaid_code is not a flowchart")
	}
	out.MermaidCode = code
	if out.WorkflowName == "" {
		out.WorkflowName = plan.WorkflowName
	}
	if out.Warnings == nil {
		out.Warnings = []string{}
	}
	return nil
}

// Render runs stage 2.2.
func (s *Stages) Render(ctx context.Context, run *types.JobRun, plan *types.WorkflowPlan) (*types.MermaidDiagram, error) {
	in := types.WorkflowPlan{}
	if plan != nil {
		in = *plan
		in.StageDebug = types.StageDebug{}
	}
	out, _, err := runner.Run(ctx, s.deps, MermaidContract(), in, run.ID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
