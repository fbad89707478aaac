package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/agent-factory/internal/types"
)

// InsertCallLog appends one call log. Call logs are never updated.
func (db *DB) InsertCallLog(ctx context.Context, log *types.CallLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = db.now()
	}
	_, err := db.exec(ctx, db.sql,
		`INSERT INTO call_logs (id, created_at, job_run_id, stage_name, provider, model_name,
		                        input_payload, output_text, output_parsed, status, error_type,
		                        error_message, latency_ms, tokens_prompt, tokens_completion, tokens_total)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, formatTime(log.CreatedAt), nullString(log.JobRunID), log.StageName, log.Provider,
		log.ModelName, log.InputPayload, nullString(log.OutputText), nullString(log.OutputParsed),
		string(log.Status), nullString(log.ErrorType), nullString(log.ErrorMessage),
		nullInt64(log.LatencyMS), nullInt64(log.TokensPrompt), nullInt64(log.TokensCompletion),
		nullInt64(log.TokensTotal))
	if err != nil {
		return fmt.Errorf("failed to insert call log: %w", err)
	}
	return nil
}

// ListCallLogs returns a run's call logs oldest first.
func (db *DB) ListCallLogs(ctx context.Context, jobRunID string) ([]types.CallLog, error) {
	rows, err := db.query(ctx, db.sql,
		`SELECT id, created_at, job_run_id, stage_name, provider, model_name, input_payload,
		        output_text, output_parsed, status, error_type, error_message, latency_ms,
		        tokens_prompt, tokens_completion, tokens_total
		 FROM call_logs WHERE job_run_id = ? ORDER BY created_at, id`, jobRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to list call logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var logs []types.CallLog
	for rows.Next() {
		var (
			l                                  types.CallLog
			created, status                    string
			runID, outText, outParsed          sql.NullString
			errType, errMsg                    sql.NullString
			latency, prompt, completion, total sql.NullInt64
		)
		if err := rows.Scan(&l.ID, &created, &runID, &l.StageName, &l.Provider, &l.ModelName,
			&l.InputPayload, &outText, &outParsed, &status, &errType, &errMsg, &latency,
			&prompt, &completion, &total); err != nil {
			return nil, fmt.Errorf("failed to scan call log: %w", err)
		}
		l.CreatedAt = parseTime(created)
		l.JobRunID = stringPtr(runID)
		l.OutputText = stringPtr(outText)
		l.OutputParsed = stringPtr(outParsed)
		l.Status = types.CallStatus(status)
		l.ErrorType = stringPtr(errType)
		l.ErrorMessage = stringPtr(errMsg)
		l.LatencyMS = int64Ptr(latency)
		l.TokensPrompt = int64Ptr(prompt)
		l.TokensCompletion = int64Ptr(completion)
		l.TokensTotal = int64Ptr(total)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
