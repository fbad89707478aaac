package ax

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/agent-factory/internal/runner"
	"github.com/jonathan/agent-factory/internal/types"
)

// SkillContract describes stage 7.
func SkillContract() runner.Contract[types.SkillExtractorInput, types.SkillCardSet] {
	return runner.Contract[types.SkillExtractorInput, types.SkillCardSet]{
		Stage:    StageSkillExtract,
		Stub:     StubSkills,
		Finalize: finalizeSkills,
	}
}

// StubSkills gives every agent one skill built from its research notes.
func StubSkills(in types.SkillExtractorInput) types.SkillCardSet {
	research := make(map[string]types.DeepSkillResearchResult, len(in.DeepResearchResults))
	for _, r := range in.DeepResearchResults {
		research[r.AgentID] = r
	}

	set := types.SkillCardSet{SkillCards: []types.SkillCard{}, AgentSkillMap: []types.AgentSkillMap{}}
	for i, agent := range in.Agents {
		id := fmt.Sprintf("SK%02d", i+1)
		related := []string{}
		for _, t := range in.AgentTasks[agent.AgentID] {
			related = append(related, t.TaskID)
		}
		checklist := bulletLines(research[agent.AgentID].Sections.CoreSkills)
		set.SkillCards = append(set.SkillCards, types.SkillCard{
			SkillID:        id,
			SkillName:      nonEmpty(agent.AgentName, agent.AgentID) + " 기본 역량",
			TargetAgentIDs: []string{agent.AgentID},
			RelatedTaskIDs: related,
			Purpose:        agent.RoleAndGoal,
			CoreHeuristics: []string{},
			StepChecklist:  checklist,
			BadSigns:       []string{},
			GoodSigns:      []string{},
		})
		set.AgentSkillMap = append(set.AgentSkillMap, types.AgentSkillMap{AgentID: agent.AgentID, SkillIDs: []string{id}})
	}
	return set
}

func bulletLines(text string) []string {
	lines := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•"))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func finalizeSkills(in types.SkillExtractorInput, out *types.SkillCardSet) error {
	ids := make([]string, 0, len(out.SkillCards))
	for i := range out.SkillCards {
		c := &out.SkillCards[i]
		c.SkillID = strings.TrimSpace(c.SkillID)
		ids = append(ids, c.SkillID)
		c.TargetAgentIDs = orEmpty(c.TargetAgentIDs)
		c.RelatedTaskIDs = orEmpty(c.RelatedTaskIDs)
		c.CoreHeuristics = orEmpty(c.CoreHeuristics)
		c.StepChecklist = orEmpty(c.StepChecklist)
		c.BadSigns = orEmpty(c.BadSigns)
		c.GoodSigns = orEmpty(c.GoodSigns)
	}
	if err := duplicateID(ids); err != nil {
		return fmt.Errorf("skill_cards: %w", err)
	}

	// Derive the map from the cards when the model leaves it out.
	if len(out.AgentSkillMap) == 0 {
		byAgent := map[string][]string{}
		for _, c := range out.SkillCards {
			for _, a := range c.TargetAgentIDs {
				byAgent[a] = append(byAgent[a], c.SkillID)
			}
		}
		out.AgentSkillMap = []types.AgentSkillMap{}
		for _, a := range in.Agents {
			if skills, ok := byAgent[a.AgentID]; ok {
				out.AgentSkillMap = append(out.AgentSkillMap, types.AgentSkillMap{AgentID: a.AgentID, SkillIDs: skills})
			}
		}
	}
	for i := range out.AgentSkillMap {
		out.AgentSkillMap[i].SkillIDs = orEmpty(out.AgentSkillMap[i].SkillIDs)
	}
	return nil
}

// ExtractSkills runs stage 7 over the agent specs and their research.
func (s *Stages) ExtractSkills(ctx context.Context, run *types.JobRun, specs *types.AgentArchitectResult, research *types.DeepResearchSet, tasks []types.TaskRecord) (*types.SkillCardSet, error) {
	cards := TaskCards(tasks)
	in := types.SkillExtractorInput{
		JobMeta:             run.Meta(),
		Agents:              []types.AgentSpecLite{},
		AgentTasks:          map[string][]types.TaskCardLite{},
		DeepResearchResults: []types.DeepSkillResearchResult{},
	}
	if specs != nil {
		for _, spec := range specs.AgentSpecs {
			in.Agents = append(in.Agents, spec.Lite())
			in.AgentTasks[spec.AgentID] = tasksFor(spec.Stage, cards)
		}
	}
	if research != nil {
		for _, r := range research.Results {
			r.StageDebug = types.StageDebug{}
			in.DeepResearchResults = append(in.DeepResearchResults, r)
		}
	}
	out, _, err := runner.Run(ctx, s.deps, SkillContract(), in, run.ID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
