// Package pipeline orchestrates the agent factory stages: it decides which
// stages must run to reach a target, threads outputs between them, reuses
// persisted results and writes each stage's output to the store.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jonathan/agent-factory/internal/ax"
	"github.com/jonathan/agent-factory/internal/db"
	"github.com/jonathan/agent-factory/internal/ivc"
	"github.com/jonathan/agent-factory/internal/pipeline/steps"
	"github.com/jonathan/agent-factory/internal/research"
	"github.com/jonathan/agent-factory/internal/runner"
	"github.com/jonathan/agent-factory/internal/types"
	"github.com/jonathan/agent-factory/internal/workflow"
)

// ErrMissingUpstream is returned when a stage's input is neither in memory
// nor persisted.
var ErrMissingUpstream = errors.New("missing upstream result")

// MissingUpstreamError names the stage that could not run and the stages
// whose results were absent.
type MissingUpstreamError struct {
	Stage   string
	Missing []string
}

func (e *MissingUpstreamError) Error() string {
	return fmt.Sprintf("stage %s: missing upstream result for %s", e.Stage, strings.Join(e.Missing, ", "))
}

func (e *MissingUpstreamError) Unwrap() error {
	return ErrMissingUpstream
}

// Store is the persistence the orchestrator needs. *db.DB implements it.
type Store interface {
	CreateOrGetJobRun(ctx context.Context, in db.JobRunInput) (*types.JobRun, error)
	GetJobRun(ctx context.Context, id string) (*types.JobRun, error)
	SetJobRunStatus(ctx context.Context, id string, status types.JobRunStatus) error
	UpsertTaskFields(ctx context.Context, jobRunID string, group types.FieldGroup, records []types.TaskRecord) error
	ReplaceEdges(ctx context.Context, jobRunID string, edges []types.TaskEdge) error
	GetTasks(ctx context.Context, jobRunID string) ([]types.TaskRecord, error)
	GetEdges(ctx context.Context, jobRunID string) ([]types.TaskEdge, error)
	SaveStageResult(ctx context.Context, jobRunID, stageID string, payload []byte, modelError *string) error
	GetStageResult(ctx context.Context, jobRunID, stageID string) (*types.StageResult, error)
	UpsertAgents(ctx context.Context, jobRunID string, rows []types.AgentTableRow) error
	ApplyAgentSpecs(ctx context.Context, jobRunID string, specs []types.AgentSpec) error
	ReplaceSkills(ctx context.Context, jobRunID string, cards []types.SkillCard, agentMap []types.AgentSkillMap) error
	UpsertPrompts(ctx context.Context, jobRunID string, prompts []types.AgentPrompt) error
}

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Stage      string  `json:"stage"`
	Label      string  `json:"label"`
	Message    string  `json:"message"`
	Cached     bool    `json:"cached"`
	ModelError *string `json:"model_error,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// RunOptions holds configuration for one orchestrator invocation
type RunOptions struct {
	// Force reruns every stage from From onwards even when a clean result
	// is persisted.
	Force bool
	// From is the first stage that may execute. Earlier stages are loaded
	// from the store. Empty means the first stage.
	From string
	// ManualJDText and JobURL override the job run's stored values.
	ManualJDText string
	JobURL       string
	OnProgress   ProgressCallback
}

// StageOutcome is the result of one stage within an invocation
type StageOutcome struct {
	Stage      steps.StageMeta `json:"stage"`
	Cached     bool            `json:"cached"`
	Loaded     bool            `json:"loaded"`
	ModelError *string         `json:"model_error"`
	Output     any             `json:"output"`
}

// Result holds the outcomes of one invocation in execution order
type Result struct {
	JobRunID string         `json:"job_run_id"`
	Stages   []StageOutcome `json:"stages"`
}

// Output returns the output of the stage with the given label or ID
func (r *Result) Output(label string) any {
	for _, o := range r.Stages {
		if o.Stage.Label == label || o.Stage.ID == label {
			return o.Output
		}
	}
	return nil
}

// Options configures an Orchestrator
type Options struct {
	Deps             runner.Deps
	Fetcher          research.PageFetcher
	AgentConcurrency int
	Logger           *zap.Logger
}

// Orchestrator runs stages against a store
type Orchestrator struct {
	store    Store
	research *research.Stages
	ivc      *ivc.Stages
	workflow *workflow.Stages
	ax       *ax.Stages
	logger   *zap.Logger

	mu    sync.Mutex
	locks map[string]*runLock
}

// runLock is a per-job-run mutex. refs counts holders and waiters; the entry
// is removed when it drops to zero.
type runLock struct {
	ch   chan struct{}
	refs int
}

// New creates an Orchestrator
func New(store Store, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Deps.Logger == nil {
		opts.Deps.Logger = logger
	}
	return &Orchestrator{
		store:    store,
		research: research.New(opts.Deps, opts.Fetcher),
		ivc:      ivc.New(opts.Deps),
		workflow: workflow.New(opts.Deps),
		ax:       ax.New(opts.Deps, opts.AgentConcurrency),
		logger:   logger,
		locks:    make(map[string]*runLock),
	}
}

// emitProgress calls the progress callback if configured
func emitProgress(opts *RunOptions, event ProgressEvent) {
	if opts.OnProgress != nil {
		opts.OnProgress(event)
	}
}

// lock serializes invocations for one job run. It gives up when ctx ends.
func (o *Orchestrator) lock(ctx context.Context, jobRunID string) (func(), error) {
	o.mu.Lock()
	l, ok := o.locks[jobRunID]
	if !ok {
		l = &runLock{ch: make(chan struct{}, 1)}
		o.locks[jobRunID] = l
	}
	l.refs++
	o.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			o.release(jobRunID, l)
		}, nil
	case <-ctx.Done():
		o.release(jobRunID, l)
		return nil, ctx.Err()
	}
}

func (o *Orchestrator) release(jobRunID string, l *runLock) {
	o.mu.Lock()
	defer o.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(o.locks, jobRunID)
	}
}

// RunUntil runs every stage up to and including target.
func (o *Orchestrator) RunUntil(ctx context.Context, run *types.JobRun, target string, opts RunOptions) (*Result, error) {
	stage, err := steps.Resolve(target)
	if err != nil {
		return nil, err
	}
	from := steps.StageRegistry[0]
	if opts.From != "" {
		if from, err = steps.Resolve(opts.From); err != nil {
			return nil, err
		}
	}

	unlock, err := o.lock(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := o.store.SetJobRunStatus(ctx, run.ID, types.JobRunRunning); err != nil {
		return nil, err
	}
	result, err := o.runPrefix(ctx, run, steps.Prefix(stage), from, &opts)
	status := types.JobRunCompleted
	if err != nil {
		status = types.JobRunFailed
	}
	if serr := o.store.SetJobRunStatus(context.WithoutCancel(ctx), run.ID, status); serr != nil && err == nil {
		err = serr
	}
	if err != nil {
		o.logger.Error("pipeline run failed",
			zap.String("job_run_id", run.ID),
			zap.String("stage", stage.ID),
			zap.Error(err))
		return result, err
	}
	return result, nil
}

// RunStage reruns a single stage with its inputs loaded from the store.
func (o *Orchestrator) RunStage(ctx context.Context, run *types.JobRun, label string, opts RunOptions) (*Result, error) {
	opts.From = label
	opts.Force = true
	return o.RunUntil(ctx, run, label, opts)
}

func (o *Orchestrator) runPrefix(ctx context.Context, run *types.JobRun, prefix []steps.StageMeta, from steps.StageMeta, opts *RunOptions) (*Result, error) {
	result := &Result{JobRunID: run.ID, Stages: []StageOutcome{}}
	st := &state{}
	// Once any stage runs fresh, everything after it in the prefix must run
	// too: later stages also read the task graph, not only their declared
	// dependencies.
	upstreamFresh := false

	for _, stage := range prefix {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if stage.Order < from.Order {
			out, err := o.loadOnly(ctx, run.ID, stage, st)
			if err != nil {
				return result, err
			}
			result.Stages = append(result.Stages, out)
			emitProgress(opts, ProgressEvent{Stage: stage.ID, Label: stage.Label, Message: "loaded " + stage.Title, Cached: true, ModelError: out.ModelError})
			continue
		}

		if !opts.Force && !upstreamFresh {
			out, ok, err := o.reuse(ctx, run.ID, stage, st)
			if err != nil {
				return result, err
			}
			if ok {
				result.Stages = append(result.Stages, out)
				emitProgress(opts, ProgressEvent{Stage: stage.ID, Label: stage.Label, Message: "reused " + stage.Title, Cached: true})
				continue
			}
		}

		if missing := steps.MissingDependencies(stage, st.present()); len(missing) > 0 {
			return result, &MissingUpstreamError{Stage: stage.ID, Missing: missing}
		}

		emitProgress(opts, ProgressEvent{Stage: stage.ID, Label: stage.Label, Message: "running " + stage.Title})
		out, err := o.execute(ctx, run, stage, st, opts)
		if err != nil {
			return result, fmt.Errorf("stage %s: %w", stage.Label, err)
		}
		upstreamFresh = true
		result.Stages = append(result.Stages, out)

		msg := "completed " + stage.Title
		if out.ModelError != nil {
			msg = "completed " + stage.Title + " with stub output"
		}
		emitProgress(opts, ProgressEvent{Stage: stage.ID, Label: stage.Label, Message: msg, ModelError: out.ModelError})
	}
	return result, nil
}

func (o *Orchestrator) loadOnly(ctx context.Context, jobRunID string, stage steps.StageMeta, st *state) (StageOutcome, error) {
	res, err := o.store.GetStageResult(ctx, jobRunID, stage.ID)
	if err != nil {
		return StageOutcome{}, err
	}
	if res == nil {
		return StageOutcome{}, &MissingUpstreamError{Stage: stage.ID, Missing: []string{stage.ID}}
	}
	out, err := st.load(stage, res.Payload)
	if err != nil {
		return StageOutcome{}, fmt.Errorf("failed to load stage %s result: %w", stage.Label, err)
	}
	return StageOutcome{Stage: stage, Loaded: true, ModelError: res.ModelError, Output: out}, nil
}

// reuse loads a clean persisted result. Results carrying a model error are
// never reused.
func (o *Orchestrator) reuse(ctx context.Context, jobRunID string, stage steps.StageMeta, st *state) (StageOutcome, bool, error) {
	res, err := o.store.GetStageResult(ctx, jobRunID, stage.ID)
	if err != nil {
		return StageOutcome{}, false, err
	}
	if res == nil || res.ModelError != nil {
		return StageOutcome{}, false, nil
	}
	out, err := st.load(stage, res.Payload)
	if err != nil {
		o.logger.Warn("discarding unreadable cached result",
			zap.String("job_run_id", jobRunID),
			zap.String("stage", stage.ID),
			zap.Error(err))
		return StageOutcome{}, false, nil
	}
	return StageOutcome{Stage: stage, Cached: true, Output: out}, true, nil
}

func (o *Orchestrator) execute(ctx context.Context, run *types.JobRun, stage steps.StageMeta, st *state, opts *RunOptions) (StageOutcome, error) {
	manualJD := opts.ManualJDText
	if manualJD == "" {
		manualJD = run.ManualJDText
	}
	jobURL := opts.JobURL
	if jobURL == "" {
		jobURL = types.Deref(run.JDURL)
	}

	var (
		out any
		err error
	)
	switch stage.ID {
	case steps.Collect:
		st.collect, err = o.research.Collect(ctx, run, manualJD, jobURL)
		out = st.collect
	case steps.Summarize:
		st.research, err = o.research.Summarize(ctx, run, st.collect, manualJD)
		out = st.research
	case steps.TaskExtract:
		st.extraction, err = o.ivc.Extract(ctx, run, st.research)
		out = st.extraction
	case steps.PhaseClassify:
		st.phase, err = o.ivc.Classify(ctx, run, st.research, st.extraction)
		out = st.phase
	case steps.StaticClassify:
		st.static, err = o.ivc.ClassifyStatic(ctx, run, st.extraction, st.phase)
		out = st.static
	case steps.WorkflowStruct:
		st.plan, err = o.workflow.Structure(ctx, run, st.research, st.extraction, st.phase)
		out = st.plan
	case steps.WorkflowMermaid:
		st.mermaid, err = o.workflow.Render(ctx, run, st.plan)
		out = st.mermaid
	case steps.AXWorkflow:
		var tasks []types.TaskRecord
		if tasks, err = o.taskGraph(ctx, run.ID, st); err == nil {
			st.axWorkflow, err = o.ax.DesignWorkflow(ctx, run, st.mermaid, st.plan, tasks)
		}
		out = st.axWorkflow
	case steps.AgentArchitect:
		st.agents, err = o.ax.Architect(ctx, run, st.axWorkflow)
		out = st.agents
	case steps.DeepResearch:
		var tasks []types.TaskRecord
		if tasks, err = o.taskGraph(ctx, run.ID, st); err == nil {
			st.deepResearch, err = o.ax.Research(ctx, run, st.agents, tasks)
		}
		out = st.deepResearch
	case steps.SkillExtract:
		var tasks []types.TaskRecord
		if tasks, err = o.taskGraph(ctx, run.ID, st); err == nil {
			st.skills, err = o.ax.ExtractSkills(ctx, run, st.agents, st.deepResearch, tasks)
		}
		out = st.skills
	case steps.PromptBuilder:
		st.prompts, err = o.ax.BuildPrompts(ctx, run, st.agents, st.skills)
		out = st.prompts
	default:
		return StageOutcome{}, &steps.UnknownStageError{Label: stage.ID}
	}
	if err != nil {
		return StageOutcome{}, err
	}

	debug := out.(types.Debuggable).Debug()
	if err := o.persist(ctx, run.ID, stage, st, out, debug.ModelError); err != nil {
		return StageOutcome{}, err
	}
	return StageOutcome{Stage: stage, ModelError: debug.ModelError, Output: out}, nil
}

// persist writes a stage's output. Stub outputs are kept as the stage's
// latest result but never written to the task graph or the AX tables.
func (o *Orchestrator) persist(ctx context.Context, jobRunID string, stage steps.StageMeta, st *state, out any, modelError *string) error {
	if modelError == nil {
		if err := o.persistRows(ctx, jobRunID, stage, st); err != nil {
			return err
		}
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal stage %s output: %w", stage.Label, err)
	}
	return o.store.SaveStageResult(ctx, jobRunID, stage.ID, payload, modelError)
}

func (o *Orchestrator) persistRows(ctx context.Context, jobRunID string, stage steps.StageMeta, st *state) error {
	switch stage.ID {
	case steps.TaskExtract:
		return o.store.UpsertTaskFields(ctx, jobRunID, types.FieldsExtract, ivc.ExtractRecords(st.extraction))
	case steps.PhaseClassify:
		return o.store.UpsertTaskFields(ctx, jobRunID, types.FieldsPhase, ivc.PhaseRecords(st.phase))
	case steps.StaticClassify:
		return o.store.UpsertTaskFields(ctx, jobRunID, types.FieldsStatic, ivc.StaticRecords(st.static))
	case steps.WorkflowStruct:
		if err := o.store.UpsertTaskFields(ctx, jobRunID, types.FieldsWorkflow, workflow.PlanRecords(st.plan)); err != nil {
			return err
		}
		return o.store.ReplaceEdges(ctx, jobRunID, workflow.PlanEdges(st.plan))
	case steps.AXWorkflow:
		return o.store.UpsertAgents(ctx, jobRunID, st.axWorkflow.AgentTable)
	case steps.AgentArchitect:
		return o.store.ApplyAgentSpecs(ctx, jobRunID, st.agents.AgentSpecs)
	case steps.SkillExtract:
		return o.store.ReplaceSkills(ctx, jobRunID, st.skills.SkillCards, st.skills.AgentSkillMap)
	case steps.PromptBuilder:
		return o.store.UpsertPrompts(ctx, jobRunID, st.prompts.AgentPrompts)
	}
	return nil
}

// taskGraph returns the persisted task graph, or the in-memory view of it
// when nothing has been persisted because every upstream stage fell back.
func (o *Orchestrator) taskGraph(ctx context.Context, jobRunID string, st *state) ([]types.TaskRecord, error) {
	tasks, err := o.store.GetTasks(ctx, jobRunID)
	if err != nil {
		return nil, err
	}
	if len(tasks) > 0 {
		return tasks, nil
	}
	return st.memoryTasks(), nil
}
