package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jonathan/agent-factory/internal/types"
)

// SaveStageResult stores the latest output of a stage, replacing any
// previous one.
func (db *DB) SaveStageResult(ctx context.Context, jobRunID, stageID string, payload []byte, modelError *string) error {
	now := db.timestamp()
	_, err := db.exec(ctx, db.sql,
		`INSERT INTO stage_results (job_run_id, stage_id, payload, model_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (job_run_id, stage_id) DO UPDATE SET
		   payload = excluded.payload,
		   model_error = excluded.model_error,
		   updated_at = excluded.updated_at`,
		jobRunID, stageID, string(payload), nullString(modelError), now, now)
	if err != nil {
		return fmt.Errorf("failed to save stage result %s: %w", stageID, err)
	}
	return nil
}

// GetStageResult returns the latest result of a stage, or nil when the stage
// has never completed for the run.
func (db *DB) GetStageResult(ctx context.Context, jobRunID, stageID string) (*types.StageResult, error) {
	res, err := scanStageResult(db.queryRow(ctx, db.sql,
		`SELECT job_run_id, stage_id, payload, model_error, created_at, updated_at
		 FROM stage_results WHERE job_run_id = ? AND stage_id = ?`, jobRunID, stageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stage result %s: %w", stageID, err)
	}
	return res, nil
}

// ListStageResults returns every stored stage result of a run.
func (db *DB) ListStageResults(ctx context.Context, jobRunID string) ([]types.StageResult, error) {
	rows, err := db.query(ctx, db.sql,
		`SELECT job_run_id, stage_id, payload, model_error, created_at, updated_at
		 FROM stage_results WHERE job_run_id = ? ORDER BY stage_id`, jobRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []types.StageResult
	for rows.Next() {
		res, err := scanStageResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stage result: %w", err)
		}
		results = append(results, *res)
	}
	return results, rows.Err()
}

func scanStageResult(row scanner) (*types.StageResult, error) {
	var (
		res              types.StageResult
		payload          string
		modelError       sql.NullString
		created, updated string
	)
	if err := row.Scan(&res.JobRunID, &res.StageID, &payload, &modelError, &created, &updated); err != nil {
		return nil, err
	}
	res.Payload = []byte(payload)
	res.ModelError = stringPtr(modelError)
	res.CreatedAt = parseTime(created)
	res.UpdatedAt = parseTime(updated)
	return &res, nil
}
