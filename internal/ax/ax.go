// Package ax implements the agent design stages that turn the task workflow
// into deployable agents: 4 drafts the agent table, 5 specifies each agent,
// 6 researches the expertise each agent needs, 7 distils that research into
// skill cards and 8 writes the agent prompts.
package ax

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/agent-factory/internal/runner"
	"github.com/jonathan/agent-factory/internal/types"
)

// Prompt and schema names
const (
	StageWorkflow      = "ax_workflow_architect"
	StageArchitect     = "agent_architect"
	StageDeepResearch  = "deep_skill_research"
	StageSkillExtract  = "skill_extractor"
	StagePromptBuilder = "prompt_builder"
)

// DefaultConcurrency bounds the stage 6 fan-out when none is configured.
const DefaultConcurrency = 4

// Stages runs the AX stages.
type Stages struct {
	deps        runner.Deps
	concurrency int
}

// New creates the AX stages. concurrency bounds the per-agent research
// calls of stage 6; values below 1 use DefaultConcurrency.
func New(deps runner.Deps, concurrency int) *Stages {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Stages{deps: deps, concurrency: concurrency}
}

// TaskCards summarises persisted tasks for the AX prompts.
func TaskCards(records []types.TaskRecord) []types.TaskCard {
	cards := make([]types.TaskCard, 0, len(records))
	for i := range records {
		r := &records[i]
		phase := types.Deref(r.Primitive)
		if r.IVCPhase != nil {
			phase = string(*r.IVCPhase)
		}
		dna := map[string]string{}
		if r.IVCPhase != nil {
			dna["ivc_phase"] = string(*r.IVCPhase)
		}
		for key, value := range map[string]*string{
			"primitive_lv1":   r.Primitive,
			"static_type_lv1": r.StaticTypeLv1,
			"domain_lv1":      r.DomainLv1,
			"execution_env":   r.RecommendedExecutionEnv,
		} {
			if value != nil && *value != "" {
				dna[key] = *value
			}
		}
		cards = append(cards, types.TaskCard{
			TaskID:         r.TaskID,
			Title:          r.Title(),
			Phase:          phase,
			OneLineSummary: firstRunes(types.Deref(r.OriginalSentence), 120),
			Stage:          types.Deref(r.StageID),
			DNA:            dna,
		})
	}
	return cards
}

func liteCards(cards []types.TaskCard) []types.TaskCardLite {
	out := make([]types.TaskCardLite, 0, len(cards))
	for _, c := range cards {
		out = append(out, types.TaskCardLite{TaskID: c.TaskID, Title: c.Title, Phase: c.Phase})
	}
	return out
}

// tasksFor returns the tasks in the agent's workflow stage, or every task
// when none is placed there.
func tasksFor(stage string, cards []types.TaskCard) []types.TaskCardLite {
	var matched []types.TaskCard
	for _, c := range cards {
		if stage != "" && c.Stage == stage {
			matched = append(matched, c)
		}
	}
	if len(matched) == 0 {
		return liteCards(cards)
	}
	return liteCards(matched)
}

func normalizeEnv(env string) string {
	env = strings.ToLower(strings.TrimSpace(env))
	if env == "" {
		return types.EnvHumanOnly
	}
	return env
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func duplicateID(ids []string) error {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return fmt.Errorf("duplicate id %q", id)
		}
		seen[id] = true
	}
	return nil
}

func firstRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
