package db

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

type migration struct {
	version    int
	statements []string
}

// The SQL is shared by sqlite and postgres: TEXT timestamps, INTEGER
// booleans, JSON arrays as TEXT.
var migrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS job_runs (
				id TEXT PRIMARY KEY,
				company_name TEXT NOT NULL,
				job_title TEXT NOT NULL,
				manual_jd_text TEXT NOT NULL DEFAULT '',
				jd_url TEXT,
				industry_context TEXT,
				business_goal TEXT,
				status TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				UNIQUE (company_name, job_title, manual_jd_text)
			)`,
			`CREATE TABLE IF NOT EXISTS task_records (
				job_run_id TEXT NOT NULL REFERENCES job_runs(id) ON DELETE CASCADE,
				task_id TEXT NOT NULL,
				original_sentence TEXT,
				localized_label TEXT,
				translated_label TEXT,
				notes TEXT,
				ivc_phase TEXT,
				exec_subphase TEXT,
				primitive TEXT,
				classification_reason TEXT,
				static_type_lv1 TEXT,
				static_type_lv2 TEXT,
				domain_lv1 TEXT,
				domain_lv2 TEXT,
				rag_required INTEGER,
				rag_reason TEXT,
				value_score INTEGER,
				complexity_score INTEGER,
				value_complexity_quadrant TEXT,
				recommended_execution_env TEXT,
				autoability_reason TEXT,
				data_entities TEXT,
				tags TEXT,
				stage_id TEXT,
				stream_id TEXT,
				node_label TEXT,
				is_entry INTEGER,
				is_exit INTEGER,
				is_hub INTEGER,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				PRIMARY KEY (job_run_id, task_id)
			)`,
			`CREATE TABLE IF NOT EXISTS task_edges (
				job_run_id TEXT NOT NULL REFERENCES job_runs(id) ON DELETE CASCADE,
				seq INTEGER NOT NULL,
				source_task_id TEXT NOT NULL,
				target_task_id TEXT NOT NULL,
				label TEXT,
				created_at TEXT NOT NULL,
				PRIMARY KEY (job_run_id, seq)
			)`,
			`CREATE TABLE IF NOT EXISTS call_logs (
				id TEXT PRIMARY KEY,
				created_at TEXT NOT NULL,
				job_run_id TEXT,
				stage_name TEXT NOT NULL,
				provider TEXT NOT NULL,
				model_name TEXT NOT NULL,
				input_payload TEXT NOT NULL,
				output_text TEXT,
				output_parsed TEXT,
				status TEXT NOT NULL,
				error_type TEXT,
				error_message TEXT,
				latency_ms BIGINT,
				tokens_prompt BIGINT,
				tokens_completion BIGINT,
				tokens_total BIGINT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_call_logs_job_run ON call_logs (job_run_id, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_call_logs_stage ON call_logs (stage_name, created_at)`,
			`CREATE TABLE IF NOT EXISTS stage_results (
				job_run_id TEXT NOT NULL REFERENCES job_runs(id) ON DELETE CASCADE,
				stage_id TEXT NOT NULL,
				payload TEXT NOT NULL,
				model_error TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				PRIMARY KEY (job_run_id, stage_id)
			)`,
		},
	},
	{
		version: 2,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS ax_agents (
				job_run_id TEXT NOT NULL REFERENCES job_runs(id) ON DELETE CASCADE,
				agent_id TEXT NOT NULL,
				seq INTEGER NOT NULL,
				agent_name TEXT NOT NULL,
				stage TEXT NOT NULL,
				execution_environment TEXT,
				row_json TEXT NOT NULL,
				spec_json TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				PRIMARY KEY (job_run_id, agent_id)
			)`,
			`CREATE TABLE IF NOT EXISTS ax_skills (
				job_run_id TEXT NOT NULL REFERENCES job_runs(id) ON DELETE CASCADE,
				skill_id TEXT NOT NULL,
				seq INTEGER NOT NULL,
				skill_name TEXT NOT NULL,
				card_json TEXT NOT NULL,
				agent_ids TEXT,
				created_at TEXT NOT NULL,
				PRIMARY KEY (job_run_id, skill_id)
			)`,
			`CREATE TABLE IF NOT EXISTS ax_prompts (
				job_run_id TEXT NOT NULL REFERENCES job_runs(id) ON DELETE CASCADE,
				agent_id TEXT NOT NULL,
				env TEXT NOT NULL,
				prompt_version TEXT,
				prompt_json TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				PRIMARY KEY (job_run_id, agent_id)
			)`,
		},
	},
}

// Migrate applies every migration newer than the recorded schema version.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.sql.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	current, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := db.withTx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration %d failed: %w", m.version, err)
				}
			}
			_, err := db.exec(ctx, tx,
				`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
				m.version, db.timestamp())
			return err
		})
		if err != nil {
			return err
		}
		db.logger.Info("applied migration", zap.Int("version", m.version))
	}
	return nil
}

// SchemaVersion returns the highest applied migration, or 0.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	if err := db.sql.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}
