// Package ivc implements the task analysis stages: 1.1 splits the job
// description into task atoms, 1.2 assigns each task an IVC phase and 1.3
// adds the static classification.
package ivc

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/agent-factory/internal/parsing"
	"github.com/jonathan/agent-factory/internal/runner"
	"github.com/jonathan/agent-factory/internal/types"
)

// Prompt and schema names
const (
	StageTaskExtract    = "ivc_task_extractor"
	StagePhaseClassify  = "ivc_phase_classifier"
	StageStaticClassify = "static_task_classifier"
)

const stubSentenceRunes = 200

// Stages runs the IVC stages.
type Stages struct {
	deps runner.Deps
}

// New creates the IVC stages.
func New(deps runner.Deps) *Stages {
	return &Stages{deps: deps}
}

// ---- Stage 1.1 ----

// ExtractContract describes stage 1.1.
func ExtractContract() runner.Contract[types.TaskExtractionInput, types.TaskExtractionResult] {
	return runner.Contract[types.TaskExtractionInput, types.TaskExtractionResult]{
		Stage:    StageTaskExtract,
		Stub:     StubExtract,
		Finalize: finalizeExtract,
	}
}

// StubExtract returns a single task standing for the whole description.
func StubExtract(in types.TaskExtractionInput) types.TaskExtractionResult {
	text := strings.TrimSpace(in.RawJobDesc)
	atom := types.TaskAtom{TaskID: "T01"}
	if text != "" {
		atom.TaskOriginalSentence = firstRunes(text, stubSentenceRunes)
		atom.TaskKorean = fmt.Sprintf("%s 업무 파악하기", in.JobMeta.JobTitle)
		atom.TaskEnglish = types.StringPtr("Understand role tasks")
		atom.Notes = types.StringPtr("Stub result generated without LLM")
	} else {
		atom.TaskKorean = "업무 내용 수집하기"
		atom.TaskEnglish = types.StringPtr("collect tasks")
		atom.Notes = types.StringPtr("Empty raw_job_desc stub")
	}
	return types.TaskExtractionResult{JobMeta: in.JobMeta, TaskAtoms: []types.TaskAtom{atom}}
}

func finalizeExtract(in types.TaskExtractionInput, out *types.TaskExtractionResult) error {
	out.JobMeta = in.JobMeta
	seen := make(map[string]bool, len(out.TaskAtoms))
	for i := range out.TaskAtoms {
		a := &out.TaskAtoms[i]
		a.TaskID = strings.TrimSpace(a.TaskID)
		a.TaskKorean = strings.TrimSpace(a.TaskKorean)
		if seen[a.TaskID] {
			return fmt.Errorf("duplicate task_id %q", a.TaskID)
		}
		seen[a.TaskID] = true
	}
	return nil
}

// Extract runs stage 1.1 over the researched job description.
func (s *Stages) Extract(ctx context.Context, run *types.JobRun, research *types.ResearchResult) (*types.TaskExtractionResult, error) {
	in := types.TaskExtractionInput{JobMeta: run.Meta()}
	if research != nil {
		in.RawJobDesc = research.RawJobDesc
	}
	out, _, err := runner.Run(ctx, s.deps, ExtractContract(), in, run.ID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ---- Stage 1.2 ----

// PhaseContract describes stage 1.2.
func PhaseContract() runner.Contract[types.PhaseClassifyInput, types.PhaseClassificationResult] {
	return runner.Contract[types.PhaseClassifyInput, types.PhaseClassificationResult]{
		Stage:    StagePhaseClassify,
		Sanitize: parsing.FixStrayBrace,
		Stub:     StubPhase,
		Finalize: finalizePhase,
	}
}

// StubPhase classifies every task as SENSE.
func StubPhase(in types.PhaseClassifyInput) types.PhaseClassificationResult {
	tasks := make([]types.IVCTask, 0, len(in.TaskAtoms))
	for _, atom := range in.TaskAtoms {
		tasks = append(tasks, types.IVCTask{
			TaskID:               atom.TaskID,
			TaskKorean:           atom.TaskKorean,
			TaskOriginalSentence: atom.TaskOriginalSentence,
			IVCPhase:             types.PhaseSense,
			PrimitiveLv1:         "SENSE",
			ClassificationReason: "Stub: default to SENSE",
		})
	}
	return types.PhaseClassificationResult{
		JobMeta:      in.JobMeta,
		IVCTasks:     tasks,
		PhaseSummary: types.SummarizePhases(tasks),
		TaskAtoms:    in.TaskAtoms,
	}
}

func finalizePhase(in types.PhaseClassifyInput, out *types.PhaseClassificationResult) error {
	atoms := atomIndex(in.TaskAtoms)
	for i := range out.IVCTasks {
		t := &out.IVCTasks[i]
		atom, ok := atoms[t.TaskID]
		if !ok {
			return fmt.Errorf("unknown task_id %q", t.TaskID)
		}
		phase, ok := types.CanonicalPhase(string(t.IVCPhase), t.ExecSubphase)
		if !ok {
			return fmt.Errorf("task %s: unknown ivc_phase %q", t.TaskID, t.IVCPhase)
		}
		t.IVCPhase = phase
		if t.TaskKorean == "" {
			t.TaskKorean = atom.TaskKorean
		}
		if t.TaskOriginalSentence == "" {
			t.TaskOriginalSentence = atom.TaskOriginalSentence
		}
	}
	out.JobMeta = in.JobMeta
	out.TaskAtoms = in.TaskAtoms
	out.PhaseSummary = types.SummarizePhases(out.IVCTasks)
	return nil
}

// Classify runs stage 1.2.
func (s *Stages) Classify(ctx context.Context, run *types.JobRun, research *types.ResearchResult, extraction *types.TaskExtractionResult) (*types.PhaseClassificationResult, error) {
	in := types.PhaseClassifyInput{JobMeta: run.Meta()}
	if research != nil {
		in.RawJobDesc = research.RawJobDesc
	}
	if extraction != nil {
		in.TaskAtoms = extraction.TaskAtoms
	}
	out, _, err := runner.Run(ctx, s.deps, PhaseContract(), in, run.ID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ---- Stage 1.3 ----

// Static classification values used by the stub
const (
	StaticTypeGeneral   = "GENERAL"
	QuadrantUnknown     = "UNKNOWN"
	EnvHumanInLoop      = "human_in_loop"
	staticSummaryByType = "by_static_type"
	staticSummaryByEnv  = "by_execution_env"
)

// StaticContract describes stage 1.3.
func StaticContract() runner.Contract[types.StaticClassifyInput, types.StaticClassificationResult] {
	return runner.Contract[types.StaticClassifyInput, types.StaticClassificationResult]{
		Stage:    StageStaticClassify,
		Sanitize: parsing.FixStrayBrace,
		Stub:     StubStatic,
		Finalize: finalizeStatic,
	}
}

// StubStatic marks every task GENERAL with a human in the loop.
func StubStatic(in types.StaticClassifyInput) types.StaticClassificationResult {
	meta := make([]types.TaskStaticMeta, 0, len(in.IVCTasks))
	for _, t := range in.IVCTasks {
		meta = append(meta, types.TaskStaticMeta{
			TaskID:                  t.TaskID,
			TaskKorean:              t.TaskKorean,
			StaticTypeLv1:           StaticTypeGeneral,
			ValueComplexityQuadrant: QuadrantUnknown,
			RecommendedExecutionEnv: EnvHumanInLoop,
			DataEntities:            []string{},
			Tags:                    []string{},
		})
	}
	return types.StaticClassificationResult{
		JobMeta:        in.JobMeta,
		TaskStaticMeta: meta,
		StaticSummary:  map[string]any{},
	}
}

func finalizeStatic(in types.StaticClassifyInput, out *types.StaticClassificationResult) error {
	known := make(map[string]types.IVCTask, len(in.IVCTasks))
	for _, t := range in.IVCTasks {
		known[t.TaskID] = t
	}
	for i := range out.TaskStaticMeta {
		m := &out.TaskStaticMeta[i]
		t, ok := known[m.TaskID]
		if !ok {
			return fmt.Errorf("unknown task_id %q", m.TaskID)
		}
		if m.TaskKorean == "" {
			m.TaskKorean = t.TaskKorean
		}
		if m.DataEntities == nil {
			m.DataEntities = []string{}
		}
		if m.Tags == nil {
			m.Tags = []string{}
		}
	}
	out.JobMeta = in.JobMeta
	if out.StaticSummary == nil {
		out.StaticSummary = summarizeStatic(out.TaskStaticMeta)
	}
	return nil
}

func summarizeStatic(meta []types.TaskStaticMeta) map[string]any {
	byType := make(map[string]int)
	byEnv := make(map[string]int)
	for _, m := range meta {
		byType[m.StaticTypeLv1]++
		if m.RecommendedExecutionEnv != "" {
			byEnv[m.RecommendedExecutionEnv]++
		}
	}
	return map[string]any{staticSummaryByType: byType, staticSummaryByEnv: byEnv}
}

// ClassifyStatic runs stage 1.3.
func (s *Stages) ClassifyStatic(ctx context.Context, run *types.JobRun, extraction *types.TaskExtractionResult, phase *types.PhaseClassificationResult) (*types.StaticClassificationResult, error) {
	in := types.StaticClassifyInput{JobMeta: run.Meta()}
	if extraction != nil {
		in.TaskAtoms = extraction.TaskAtoms
	}
	if phase != nil {
		in.IVCTasks = phase.IVCTasks
		in.PhaseSummary = phase.PhaseSummary
	}
	out, _, err := runner.Run(ctx, s.deps, StaticContract(), in, run.ID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func atomIndex(atoms []types.TaskAtom) map[string]types.TaskAtom {
	idx := make(map[string]types.TaskAtom, len(atoms))
	for _, a := range atoms {
		idx[a.TaskID] = a
	}
	return idx
}

func firstRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
