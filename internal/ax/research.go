package ax

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/agent-factory/internal/runner"
	"github.com/jonathan/agent-factory/internal/types"
)

// ResearchContract describes one stage 6 call.
func ResearchContract() runner.Contract[types.DeepSkillResearchInput, types.DeepSkillResearchResult] {
	return runner.Contract[types.DeepSkillResearchInput, types.DeepSkillResearchResult]{
		Stage:    StageDeepResearch,
		Stub:     StubResearch,
		Finalize: finalizeResearch,
	}
}

// StubResearch lists the agent's role and tasks as its core skills.
func StubResearch(in types.DeepSkillResearchInput) types.DeepSkillResearchResult {
	lines := []string{"- " + nonEmpty(in.Agent.RoleAndGoal, in.Agent.AgentName, in.Agent.AgentID)}
	for _, t := range in.Tasks {
		lines = append(lines, "- "+t.Title)
	}
	core := strings.Join(lines, "\n")
	return types.DeepSkillResearchResult{
		AgentID:       in.Agent.AgentID,
		ResearchFocus: "skill",
		Sections:      types.DeepSkillResearchSections{CoreSkills: core},
	}
}

func finalizeResearch(in types.DeepSkillResearchInput, out *types.DeepSkillResearchResult) error {
	out.AgentID = in.Agent.AgentID
	out.Sections.CoreSkills = strings.TrimSpace(out.Sections.CoreSkills)
	if out.Sections.CoreSkills == "" {
		return fmt.Errorf("core_skills is empty")
	}
	if out.ResearchFocus == "" {
		out.ResearchFocus = "skill"
	}
	return nil
}

// Research runs stage 6 once per agent with at most s.concurrency calls in
// flight. Results keep agent order. The set records a model error when any
// agent fell back to its stub.
func (s *Stages) Research(ctx context.Context, run *types.JobRun, specs *types.AgentArchitectResult, tasks []types.TaskRecord) (*types.DeepResearchSet, error) {
	set := &types.DeepResearchSet{Results: []types.DeepSkillResearchResult{}}
	if specs == nil || len(specs.AgentSpecs) == 0 {
		return set, nil
	}
	cards := TaskCards(tasks)
	meta := run.Meta()
	results := make([]types.DeepSkillResearchResult, len(specs.AgentSpecs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, spec := range specs.AgentSpecs {
		g.Go(func() error {
			in := types.DeepSkillResearchInput{
				JobMeta: meta,
				Agent:   spec.Lite(),
				Tasks:   tasksFor(spec.Stage, cards),
			}
			out, _, err := runner.Run(gctx, s.deps, ResearchContract(), in, run.ID)
			if err != nil {
				return fmt.Errorf("agent %s: %w", spec.AgentID, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var failures []string
	for _, r := range results {
		if r.ModelError != nil {
			failures = append(failures, fmt.Sprintf("%s: %s", r.AgentID, *r.ModelError))
		}
	}
	set.Results = results
	if len(failures) > 0 {
		msg := strings.Join(failures, "; ")
		set.ModelError = &msg
	}
	return set, nil
}

func nonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
