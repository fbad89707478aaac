package ax

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jonathan/agent-factory/internal/runner"
	"github.com/jonathan/agent-factory/internal/types"
)

// StubPromptVersion marks prompts written without a model.
const StubPromptVersion = "v0-stub"

var knownEnvs = map[string]bool{
	types.EnvHumanOnly:    true,
	types.EnvN8NGPTNode:   true,
	types.EnvHTTPGPTAPI:   true,
	types.EnvPureN8NLogic: true,
}

// PromptContract describes stage 8.
func PromptContract() runner.Contract[types.PromptBuilderInput, types.AgentPromptSet] {
	return runner.Contract[types.PromptBuilderInput, types.AgentPromptSet]{
		Stage:    StagePromptBuilder,
		Stub:     StubPrompts,
		Finalize: finalizePrompts,
	}
}

// StubPrompts hands every agent to a human with a checklist built from the
// skills that target it.
func StubPrompts(in types.PromptBuilderInput) types.AgentPromptSet {
	set := types.AgentPromptSet{AgentPrompts: []types.AgentPrompt{}}
	for _, agent := range in.Agents {
		var steps []string
		for _, skill := range in.Skills {
			if !slices.Contains(skill.TargetAgentIDs, agent.AgentID) {
				continue
			}
			if len(skill.StepChecklist) == 0 {
				steps = append(steps, skill.SkillName)
			}
			steps = append(steps, skill.StepChecklist...)
		}
		if len(steps) == 0 {
			steps = []string{nonEmpty(agent.RoleAndGoal, agent.AgentName, agent.AgentID)}
		}
		var b strings.Builder
		for _, step := range steps {
			fmt.Fprintf(&b, "- [ ] %s\n", step)
		}
		checklist := strings.TrimSuffix(b.String(), "\n")
		set.AgentPrompts = append(set.AgentPrompts, types.AgentPrompt{
			AgentID:        agent.AgentID,
			Env:            types.EnvHumanOnly,
			PromptVersion:  StubPromptVersion,
			HumanChecklist: &checklist,
			Examples:       []map[string]any{},
			Mode:           ModePOC,
		})
	}
	return set
}

func finalizePrompts(in types.PromptBuilderInput, out *types.AgentPromptSet) error {
	agents := make(map[string]bool, len(in.Agents))
	for _, a := range in.Agents {
		agents[a.AgentID] = true
	}
	ids := make([]string, 0, len(out.AgentPrompts))
	for i := range out.AgentPrompts {
		p := &out.AgentPrompts[i]
		if len(agents) > 0 && !agents[p.AgentID] {
			return fmt.Errorf("prompt for unknown agent %q", p.AgentID)
		}
		ids = append(ids, p.AgentID)
		p.Env = normalizeEnv(p.Env)
		if !knownEnvs[p.Env] {
			return fmt.Errorf("agent %s: unknown env %q", p.AgentID, p.Env)
		}
		if p.PromptVersion == "" {
			p.PromptVersion = "v1"
		}
		if p.Mode == "" {
			p.Mode = ModePOC
		}
		p.Examples = orEmpty(p.Examples)
	}
	if err := duplicateID(ids); err != nil {
		return fmt.Errorf("agent_prompts: %w", err)
	}
	return nil
}

// BuildPrompts runs stage 8 over the agent specs and skill cards.
func (s *Stages) BuildPrompts(ctx context.Context, run *types.JobRun, specs *types.AgentArchitectResult, skills *types.SkillCardSet) (*types.AgentPromptSet, error) {
	in := types.PromptBuilderInput{
		JobMeta: run.Meta(),
		Agents:  []types.AgentSpec{},
		Skills:  []types.SkillCard{},
	}
	if specs != nil {
		in.Agents = specs.AgentSpecs
	}
	if skills != nil {
		in.Skills = skills.SkillCards
	}
	out, _, err := runner.Run(ctx, s.deps, PromptContract(), in, run.ID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
