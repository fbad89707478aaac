package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/agent-factory/internal/types"
)

// -----------------------------------------------------------------------------
// AX Design Methods
// -----------------------------------------------------------------------------

// UpsertAgents stores the agent table of a run. Agents missing from rows are
// removed; surviving agents keep their stage 5 spec.
func (db *DB) UpsertAgents(ctx context.Context, jobRunID string, rows []types.AgentTableRow) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		ids := make([]any, 0, len(rows)+1)
		ids = append(ids, jobRunID)
		for _, r := range rows {
			ids = append(ids, r.AgentID)
		}
		del := `DELETE FROM ax_agents WHERE job_run_id = ?`
		if len(rows) > 0 {
			del += ` AND agent_id NOT IN (` + placeholders(len(rows)) + `)`
		}
		if _, err := db.exec(ctx, tx, del, ids...); err != nil {
			return fmt.Errorf("failed to prune agents: %w", err)
		}

		now := db.timestamp()
		for i, r := range rows {
			rowJSON, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("failed to marshal agent %s: %w", r.AgentID, err)
			}
			if _, err := db.exec(ctx, tx,
				`INSERT INTO ax_agents (job_run_id, agent_id, seq, agent_name, stage, execution_environment,
				                        row_json, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (job_run_id, agent_id) DO UPDATE SET
				   seq = excluded.seq,
				   agent_name = excluded.agent_name,
				   stage = excluded.stage,
				   execution_environment = excluded.execution_environment,
				   row_json = excluded.row_json,
				   updated_at = excluded.updated_at`,
				jobRunID, r.AgentID, i, r.AgentName, r.Stage, r.ExecutionEnvironment,
				string(rowJSON), now, now); err != nil {
				return fmt.Errorf("failed to upsert agent %s: %w", r.AgentID, err)
			}
		}
		return nil
	})
}

// ApplyAgentSpecs attaches stage 5 specs to stored agents. A spec for an
// agent that is not in the table is stored with a row derived from it.
func (db *DB) ApplyAgentSpecs(ctx context.Context, jobRunID string, specs []types.AgentSpec) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var next int
		if err := db.queryRow(ctx, tx,
			`SELECT COALESCE(MAX(seq) + 1, 0) FROM ax_agents WHERE job_run_id = ?`, jobRunID).Scan(&next); err != nil {
			return fmt.Errorf("failed to read agent order: %w", err)
		}

		now := db.timestamp()
		for _, s := range specs {
			specJSON, err := json.Marshal(s)
			if err != nil {
				return fmt.Errorf("failed to marshal agent spec %s: %w", s.AgentID, err)
			}
			res, err := db.exec(ctx, tx,
				`UPDATE ax_agents SET spec_json = ?, updated_at = ? WHERE job_run_id = ? AND agent_id = ?`,
				string(specJSON), now, jobRunID, s.AgentID)
			if err != nil {
				return fmt.Errorf("failed to apply agent spec %s: %w", s.AgentID, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				continue
			}

			row := types.AgentTableRow{
				Stage:                s.Stage,
				Stream:               s.Stream,
				Step:                 s.Step,
				AgentID:              s.AgentID,
				AgentName:            s.AgentName,
				AgentType:            s.AgentType,
				ExecutionEnvironment: s.ExecutionEnvironment,
				RoleAndGoal:          s.RoleAndGoal,
			}
			rowJSON, err := json.Marshal(row)
			if err != nil {
				return fmt.Errorf("failed to marshal agent %s: %w", s.AgentID, err)
			}
			if _, err := db.exec(ctx, tx,
				`INSERT INTO ax_agents (job_run_id, agent_id, seq, agent_name, stage, execution_environment,
				                        row_json, spec_json, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				jobRunID, s.AgentID, next, s.AgentName, s.Stage, s.ExecutionEnvironment,
				string(rowJSON), string(specJSON), now, now); err != nil {
				return fmt.Errorf("failed to insert agent %s: %w", s.AgentID, err)
			}
			next++
		}
		return nil
	})
}

// ListAgents returns the run's agents in table order.
func (db *DB) ListAgents(ctx context.Context, jobRunID string) ([]types.AXAgent, error) {
	rows, err := db.query(ctx, db.sql,
		`SELECT job_run_id, seq, row_json, spec_json, updated_at
		 FROM ax_agents WHERE job_run_id = ? ORDER BY seq, agent_id`, jobRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var agents []types.AXAgent
	for rows.Next() {
		var (
			a                types.AXAgent
			rowJSON, updated string
			specJSON         sql.NullString
		)
		if err := rows.Scan(&a.JobRunID, &a.Seq, &rowJSON, &specJSON, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		if err := json.Unmarshal([]byte(rowJSON), &a.Row); err != nil {
			return nil, fmt.Errorf("failed to decode agent row: %w", err)
		}
		if specJSON.Valid {
			var spec types.AgentSpec
			if err := json.Unmarshal([]byte(specJSON.String), &spec); err != nil {
				return nil, fmt.Errorf("failed to decode agent spec: %w", err)
			}
			a.Spec = &spec
		}
		a.UpdatedAt = parseTime(updated)
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// ReplaceSkills stores the skill cards of a run, replacing the previous set.
// agentMap links skills back to agents.
func (db *DB) ReplaceSkills(ctx context.Context, jobRunID string, cards []types.SkillCard, agentMap []types.AgentSkillMap) error {
	agentsBySkill := make(map[string][]string)
	for _, m := range agentMap {
		for _, sid := range m.SkillIDs {
			agentsBySkill[sid] = append(agentsBySkill[sid], m.AgentID)
		}
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := db.exec(ctx, tx, `DELETE FROM ax_skills WHERE job_run_id = ?`, jobRunID); err != nil {
			return fmt.Errorf("failed to delete skills: %w", err)
		}
		now := db.timestamp()
		for i, c := range cards {
			cardJSON, err := json.Marshal(c)
			if err != nil {
				return fmt.Errorf("failed to marshal skill %s: %w", c.SkillID, err)
			}
			agents, err := nullJSON(agentsBySkill[c.SkillID])
			if err != nil {
				return err
			}
			if _, err := db.exec(ctx, tx,
				`INSERT INTO ax_skills (job_run_id, skill_id, seq, skill_name, card_json, agent_ids, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				jobRunID, c.SkillID, i, c.SkillName, string(cardJSON), agents, now); err != nil {
				return fmt.Errorf("failed to insert skill %s: %w", c.SkillID, err)
			}
		}
		return nil
	})
}

// ListSkills returns the run's skill cards in extraction order.
func (db *DB) ListSkills(ctx context.Context, jobRunID string) ([]types.AXSkill, error) {
	rows, err := db.query(ctx, db.sql,
		`SELECT job_run_id, card_json, agent_ids FROM ax_skills WHERE job_run_id = ? ORDER BY seq`, jobRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to list skills: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var skills []types.AXSkill
	for rows.Next() {
		var (
			s        types.AXSkill
			cardJSON string
			agentIDs sql.NullString
		)
		if err := rows.Scan(&s.JobRunID, &cardJSON, &agentIDs); err != nil {
			return nil, fmt.Errorf("failed to scan skill: %w", err)
		}
		if err := json.Unmarshal([]byte(cardJSON), &s.Card); err != nil {
			return nil, fmt.Errorf("failed to decode skill card: %w", err)
		}
		s.AgentIDs = jsonSlice[string](agentIDs)
		skills = append(skills, s)
	}
	return skills, rows.Err()
}

// UpsertPrompts stores one prompt per agent.
func (db *DB) UpsertPrompts(ctx context.Context, jobRunID string, prompts []types.AgentPrompt) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		now := db.timestamp()
		for _, p := range prompts {
			promptJSON, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("failed to marshal prompt %s: %w", p.AgentID, err)
			}
			if _, err := db.exec(ctx, tx,
				`INSERT INTO ax_prompts (job_run_id, agent_id, env, prompt_version, prompt_json, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (job_run_id, agent_id) DO UPDATE SET
				   env = excluded.env,
				   prompt_version = excluded.prompt_version,
				   prompt_json = excluded.prompt_json,
				   updated_at = excluded.updated_at`,
				jobRunID, p.AgentID, p.Env, p.PromptVersion, string(promptJSON), now, now); err != nil {
				return fmt.Errorf("failed to upsert prompt %s: %w", p.AgentID, err)
			}
		}
		return nil
	})
}

// ListPrompts returns the run's prompts ordered by agent id.
func (db *DB) ListPrompts(ctx context.Context, jobRunID string) ([]types.AXPrompt, error) {
	rows, err := db.query(ctx, db.sql,
		`SELECT job_run_id, prompt_json, updated_at FROM ax_prompts WHERE job_run_id = ? ORDER BY agent_id`, jobRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var prompts []types.AXPrompt
	for rows.Next() {
		var (
			p                   types.AXPrompt
			promptJSON, updated string
		)
		if err := rows.Scan(&p.JobRunID, &promptJSON, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan prompt: %w", err)
		}
		if err := json.Unmarshal([]byte(promptJSON), &p.Prompt); err != nil {
			return nil, fmt.Errorf("failed to decode prompt: %w", err)
		}
		p.UpdatedAt = parseTime(updated)
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
