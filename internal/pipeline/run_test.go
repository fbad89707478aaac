package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/jonathan/agent-factory/internal/db"
	"github.com/jonathan/agent-factory/internal/llm"
	"github.com/jonathan/agent-factory/internal/llm/llmtest"
	"github.com/jonathan/agent-factory/internal/pipeline/steps"
	"github.com/jonathan/agent-factory/internal/prompts"
	"github.com/jonathan/agent-factory/internal/runner"
	"github.com/jonathan/agent-factory/internal/schemas"
	"github.com/jonathan/agent-factory/internal/types"
)

const (
	collectMarker   = "job research assistant"
	summarizeMarker = "You are a job analyst"
	extractMarker   = "IVC task extractor"
	phaseMarker     = "IVC phase classifier"
	staticMarker    = "static task classifier"
	structMarker    = "You are a workflow architect"
	mermaidMarker   = "render workflow plans"
	axMarker        = "You are an AX (AI transformation) workflow architect"
	architectMarker = "You are an agent architect"
	researchMarker  = "You are a senior practitioner researching"
	skillMarker     = "You extract reusable skill cards"
	promptMarker    = "You write deployable prompts for agents"
)

var ignoreSQL = goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener")

// acmeScript answers every stage for the Acme / Data Analyst run.
func acmeScript() *llmtest.Scripted {
	return acmeRules(llmtest.NewScripted())
}

// acmeRules appends the Acme answers after any rules already on s.
func acmeRules(s *llmtest.Scripted) *llmtest.Scripted {
	return s.
		On(collectMarker, `{"raw_sources": [{"url": "https://acme.example/jobs/da", "title": "Acme Data Analyst",
			"snippet": "Collect data with SQL. Build dashboards.", "source_type": "jd"}]}`).
		On(summarizeMarker, `{"raw_job_desc": "데이터를 수집하고 보고서를 작성한다."}`).
		On(extractMarker, `{"task_atoms": [
			{"task_id": "T01", "task_original_sentence": "데이터를 수집하고", "task_korean": "데이터 수집하기"},
			{"task_id": "T02", "task_original_sentence": "보고서를 작성한다.", "task_korean": "보고서 작성하기"}]}`).
		On(phaseMarker, `{"ivc_tasks": [
			{"task_id": "T01", "ivc_phase": "SENSE", "primitive_lv1": "Collect", "classification_reason": "gathering"},
			{"task_id": "T02", "ivc_phase": "EXECUTE_TRANSFORM", "primitive_lv1": "Transform", "classification_reason": "building"}]}`).
		On(staticMarker, `{"task_static_meta": [{"task_id": "T01", "static_type_lv1": "DATA"}]}`).
		On(structMarker, `{"workflow_name": "Analytics loop",
			"stages": [{"stage_id": "S1", "name": "Sense"}, {"stage_id": "S2", "name": "Transform"}],
			"nodes": [{"node_id": "T01", "stage_id": "S1", "is_entry": true}, {"node_id": "T02", "stage_id": "S2", "is_exit": true}],
			"edges": [{"source": "T01", "target": "T02"}]}`).
		On(mermaidMarker, `{"mermaid_code": "flowchart TD\n  T01 --> T02"}`).
		On(axMarker, `{"ax_workflow_name": "Acme AX", "agent_table": [
			{"stage": "S1", "agent_id": "A01", "agent_name": "Collector", "execution_environment": "n8n_gpt_node"},
			{"stage": "S2", "agent_id": "A02", "agent_name": "Reporter", "execution_environment": "human_only"}]}`).
		On(architectMarker, `{"agent_specs": [
			{"agent_id": "A01", "agent_name": "Collector"}, {"agent_id": "A02", "agent_name": "Reporter"}]}`).
		On(researchMarker, `{"agent_id": "A01", "sections": {"core_skills": "SQL and charts"}}`).
		On(skillMarker, `{"skill_cards": [{"skill_id": "SK01", "skill_name": "SQL", "target_agent_ids": ["A01", "A02"]}]}`).
		On(promptMarker, `{"agent_prompts": [
			{"agent_id": "A01", "env": "http_gpt_api", "system_prompt": "You collect data."},
			{"agent_id": "A02", "env": "human_only", "human_checklist": "- [ ] review"}]}`)
}

func openStore(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.Connect(context.Background(), filepath.Join(t.TempDir(), "pipeline.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newOrchestrator(store *db.DB, backend llm.Backend) *Orchestrator {
	deps := runner.Deps{
		Invoker:   llm.NewInvoker(backend, store, llm.DefaultConfig(), nil),
		Prompts:   prompts.NewCache(nil),
		Validator: schemas.NewValidator(),
	}
	return New(store, Options{Deps: deps, AgentConcurrency: 2})
}

func acmeRun(t *testing.T, o *Orchestrator) *types.JobRun {
	t.Helper()
	run, err := o.CreateOrGetJobRun(context.Background(), db.JobRunInput{CompanyName: "Acme", JobTitle: "Data Analyst"})
	require.NoError(t, err)
	return run
}

func TestRunUntil_EndToEnd(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	backend := acmeScript()
	o := newOrchestrator(store, backend)
	run := acmeRun(t, o)

	var events []ProgressEvent
	res, err := o.RunUntil(ctx, run, "8", RunOptions{OnProgress: func(e ProgressEvent) { events = append(events, e) }})
	require.NoError(t, err)
	require.Len(t, res.Stages, len(steps.StageRegistry))
	for _, s := range res.Stages {
		assert.Nil(t, s.ModelError, s.Stage.ID)
		assert.False(t, s.Cached, s.Stage.ID)
		assert.NotNil(t, s.Output, s.Stage.ID)
	}
	assert.Len(t, events, 2*len(steps.StageRegistry))

	summary, ok := res.Output("0.2").(*types.ResearchResult)
	require.True(t, ok)
	assert.Equal(t, "데이터를 수집하고 보고서를 작성한다.", summary.RawJobDesc)
	for _, req := range backend.Requests() {
		if strings.Contains(req.Prompt, extractMarker) {
			assert.Contains(t, req.Prompt, "데이터를 수집하고 보고서를 작성한다.")
		}
	}

	phases, ok := res.Output("1.2").(*types.PhaseClassificationResult)
	require.True(t, ok)
	want := types.PhaseSummary{}
	for _, p := range types.AllPhases {
		want[p] = 0
	}
	want[types.PhaseSense] = 1
	want[types.PhaseExecuteTransform] = 1
	assert.Equal(t, want, phases.PhaseSummary)

	tasks, err := o.GetTasks(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, types.PhaseSense, *tasks[0].IVCPhase)
	assert.Equal(t, types.PhaseExecuteTransform, *tasks[1].IVCPhase)
	assert.Equal(t, "DATA", types.Deref(tasks[0].StaticTypeLv1))
	assert.Nil(t, tasks[1].StaticTypeLv1)
	assert.Equal(t, "S2", types.Deref(tasks[1].StageID))
	assert.Equal(t, "데이터 수집하기", types.Deref(tasks[0].LocalizedLabel))

	edges, err := o.GetEdges(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "T01", edges[0].SourceTaskID)

	agents, err := store.ListAgents(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, agents, 2)
	require.NotNil(t, agents[0].Spec)
	assert.Equal(t, "S1", agents[0].Spec.Stage)

	skills, err := store.ListSkills(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, skills, 1)
	assert.Equal(t, []string{"A01", "A02"}, skills[0].AgentIDs)

	prompts, err := store.ListPrompts(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, prompts, 2)

	deep, ok := res.Output("6").(*types.DeepResearchSet)
	require.True(t, ok)
	require.Len(t, deep.Results, 2)
	assert.Equal(t, "A02", deep.Results[1].AgentID)

	logs, err := store.ListCallLogs(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, logs, len(steps.StageRegistry)+1) // stage 6 calls once per agent
	for _, l := range logs {
		assert.Equal(t, types.CallSuccess, l.Status, l.StageName)
	}

	got, err := o.GetJobRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobRunCompleted, got.Status)

	latest, err := o.LatestResult(ctx, run.ID, "2.2")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Contains(t, string(latest.Payload), "flowchart TD")
}

func TestRunUntil_BackendDown(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	o := newOrchestrator(store, nil)
	run := acmeRun(t, o)

	res, err := o.RunUntil(ctx, run, "8", RunOptions{})
	require.NoError(t, err)
	require.Len(t, res.Stages, len(steps.StageRegistry))
	for _, s := range res.Stages {
		assert.NotNil(t, s.Output, s.Stage.ID)
		assert.NotNil(t, s.ModelError, s.Stage.ID)
	}

	// Stubs are never written to the task graph.
	tasks, err := o.GetTasks(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	axOut := res.Output("4").(*types.AXWorkflowResult)
	require.Len(t, axOut.AgentTable, 1)
	assert.Contains(t, axOut.AgentTable[0].RoleAndGoal, "Data Analyst 업무 파악하기")

	prompts := res.Output("8").(*types.AgentPromptSet)
	require.Len(t, prompts.AgentPrompts, 1)
	assert.Equal(t, types.EnvHumanOnly, prompts.AgentPrompts[0].Env)

	latest, err := o.LatestResult(ctx, run.ID, "8")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.NotNil(t, latest.ModelError)

	logs, err := store.ListCallLogs(ctx, run.ID)
	require.NoError(t, err)
	for _, l := range logs {
		assert.Equal(t, types.CallStubFallback, l.Status)
	}
}

func TestRunUntil_ReusesCleanResults(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	backend := acmeScript()
	o := newOrchestrator(store, backend)
	run := acmeRun(t, o)

	_, err := o.RunUntil(ctx, run, "1.2", RunOptions{})
	require.NoError(t, err)

	var events []ProgressEvent
	res, err := o.RunUntil(ctx, run, "1.2", RunOptions{OnProgress: func(e ProgressEvent) { events = append(events, e) }})
	require.NoError(t, err)
	for _, s := range res.Stages {
		assert.True(t, s.Cached, s.Stage.ID)
	}
	for _, e := range events {
		assert.True(t, e.Cached)
	}
	assert.Equal(t, 1, backend.Count(extractMarker))

	_, err = o.RunUntil(ctx, run, "1.2", RunOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 2, backend.Count(extractMarker))
	assert.Equal(t, 2, backend.Count(collectMarker))
}

func TestRunUntil_StubResultsRerunWithDownstream(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	failing := llmtest.NewScripted().Fail(phaseMarker, errors.New("quota")).
		On(collectMarker, `{"raw_sources": [{"url": "https://acme.example/jobs/da"}]}`).
		On(summarizeMarker, `{"raw_job_desc": "Collect data with SQL."}`).
		On(extractMarker, `{"task_atoms": [{"task_id": "T01", "task_korean": "데이터 수집하기"}]}`).
		On(staticMarker, `{"task_static_meta": [{"task_id": "T01", "static_type_lv1": "DATA"}]}`)
	first := newOrchestrator(store, failing)
	run := acmeRun(t, first)

	res, err := first.RunUntil(ctx, run, "1.3", RunOptions{})
	require.NoError(t, err)
	assert.NotNil(t, res.Stages[3].ModelError)
	assert.Nil(t, res.Stages[4].ModelError)

	healthy := llmtest.NewScripted().
		On(phaseMarker, `{"ivc_tasks": [{"task_id": "T01", "ivc_phase": "SENSE", "primitive_lv1": "Collect"}]}`).
		On(staticMarker, `{"task_static_meta": [{"task_id": "T01", "static_type_lv1": "DATA"}]}`)
	second := newOrchestrator(store, healthy)
	res, err = second.RunUntil(ctx, run, "1.3", RunOptions{})
	require.NoError(t, err)
	assert.True(t, res.Stages[2].Cached)
	assert.False(t, res.Stages[3].Cached)
	assert.Nil(t, res.Stages[3].ModelError)
	// 1.3 had a clean result but its input changed
	assert.False(t, res.Stages[4].Cached)
	assert.Equal(t, 0, healthy.Count(extractMarker))
	assert.Equal(t, 1, healthy.Count(staticMarker))
}

func TestRunUntil_RerunUpstreamInvalidatesTaskGraphReaders(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	first := newOrchestrator(store, acmeRules(llmtest.NewScripted().Fail(staticMarker, errors.New("quota"))))
	run := acmeRun(t, first)
	res, err := first.RunUntil(ctx, run, "4", RunOptions{})
	require.NoError(t, err)
	require.NotNil(t, res.Output("1.3").(*types.StaticClassificationResult).ModelError)
	assert.Nil(t, res.Stages[7].ModelError)

	healthy := acmeScript()
	second := newOrchestrator(store, healthy)
	res, err = second.RunUntil(ctx, run, "4", RunOptions{})
	require.NoError(t, err)
	require.Len(t, res.Stages, 8)
	for _, s := range res.Stages[:4] {
		assert.True(t, s.Cached, s.Stage.ID)
	}
	// 2.1 does not declare 1.3 but runs after it; stage 4 reads its columns.
	for _, s := range res.Stages[4:] {
		assert.False(t, s.Cached, s.Stage.ID)
	}
	assert.Equal(t, 1, healthy.Count(axMarker))

	tasks, err := second.GetTasks(ctx, run.ID)
	require.NoError(t, err)
	require.NotEmpty(t, tasks)
	assert.Equal(t, "DATA", types.Deref(tasks[0].StaticTypeLv1))
}

func TestRunUntil_From(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	backend := acmeScript()
	o := newOrchestrator(store, backend)
	run := acmeRun(t, o)

	_, err := o.RunUntil(ctx, run, "1.2", RunOptions{From: "1.2"})
	var missing *MissingUpstreamError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, steps.Collect, missing.Stage)
	assert.ErrorIs(t, err, ErrMissingUpstream)
	assert.Empty(t, backend.Requests())

	got, err := o.GetJobRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobRunFailed, got.Status)

	_, err = o.RunUntil(ctx, run, "1.1", RunOptions{})
	require.NoError(t, err)

	res, err := o.RunStage(ctx, run, "1.2", RunOptions{})
	require.NoError(t, err)
	require.Len(t, res.Stages, 4)
	for _, s := range res.Stages[:3] {
		assert.True(t, s.Loaded, s.Stage.ID)
	}
	assert.False(t, res.Stages[3].Loaded)
	assert.Equal(t, 1, backend.Count(extractMarker))
	assert.Equal(t, 1, backend.Count(phaseMarker))
}

func TestRunUntil_UnknownStage(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	backend := acmeScript()
	o := newOrchestrator(store, backend)
	run := acmeRun(t, o)

	for _, opts := range []RunOptions{{}, {From: "9.9"}} {
		target := "3"
		if opts.From != "" {
			target = "1.1"
		}
		_, err := o.RunUntil(ctx, run, target, opts)
		assert.ErrorIs(t, err, steps.ErrUnknownStage)
	}
	assert.Empty(t, backend.Requests())

	got, err := o.GetJobRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobRunCreated, got.Status)
}

func TestRunUntil_StoreFailurePropagates(t *testing.T) {
	store := openStore(t)
	o := newOrchestrator(store, acmeScript())
	run := acmeRun(t, o)
	require.NoError(t, store.Close())

	_, err := o.RunUntil(context.Background(), run, "0.1", RunOptions{})
	assert.Error(t, err)
}

// gateBackend blocks every call until released.
type gateBackend struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func newGateBackend() *gateBackend {
	return &gateBackend{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateBackend) Name() string { return "gate" }

func (g *gateBackend) Generate(ctx context.Context, _ llm.Request) (*llm.Response, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
		return nil, errors.New("released")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gateBackend) Close() error { return nil }

func TestRunUntil_SerializesPerRun(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreSQL)

	ctx := context.Background()
	store := openStore(t)
	gate := newGateBackend()
	o := newOrchestrator(store, gate)
	run := acmeRun(t, o)

	done := make(chan error, 1)
	go func() {
		_, err := o.RunUntil(ctx, run, "0.2", RunOptions{})
		done <- err
	}()
	<-gate.started

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err := o.RunUntil(waitCtx, run, "0.1", RunOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(gate.release)
	require.NoError(t, <-done)

	// The lock is free again.
	res, err := o.RunUntil(ctx, run, "0.1", RunOptions{})
	require.NoError(t, err)
	assert.NotNil(t, res.Stages[0].ModelError)

	o.mu.Lock()
	defer o.mu.Unlock()
	assert.Empty(t, o.locks)
}

func TestLock_RemovesIdleEntries(t *testing.T) {
	o := New(nil, Options{})
	ctx := context.Background()

	unlock, err := o.lock(ctx, "run-a")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = o.lock(waitCtx, "run-a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := o.lock(ctx, "run-b")
	require.NoError(t, err)
	assert.Len(t, o.locks, 2)
	assert.Equal(t, 1, o.locks["run-a"].refs)

	unlock()
	other()
	assert.Empty(t, o.locks)
}

func TestNextLabel(t *testing.T) {
	o := New(nil, Options{})
	assert.Equal(t, "0.2", o.NextLabel(""))
	assert.Equal(t, "4", o.NextLabel("2.2"))
	assert.Equal(t, "8", o.NextLabel("8"))
}
