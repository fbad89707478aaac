package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jonathan/agent-factory/internal/types"
)

// -----------------------------------------------------------------------------
// Task Graph Methods
// -----------------------------------------------------------------------------

// groupColumns lists the columns each stage owns. UpsertTaskFields writes
// only these, so a later stage can never clobber an earlier stage's data.
var groupColumns = map[types.FieldGroup][]string{
	types.FieldsExtract: {"original_sentence", "localized_label", "translated_label", "notes"},
	types.FieldsPhase:   {"ivc_phase", "exec_subphase", "primitive", "classification_reason"},
	types.FieldsStatic: {"static_type_lv1", "static_type_lv2", "domain_lv1", "domain_lv2",
		"rag_required", "rag_reason", "value_score", "complexity_score", "value_complexity_quadrant",
		"recommended_execution_env", "autoability_reason", "data_entities", "tags"},
	types.FieldsWorkflow: {"stage_id", "stream_id", "node_label", "is_entry", "is_exit", "is_hub"},
}

func groupValues(group types.FieldGroup, r *types.TaskRecord) ([]any, error) {
	switch group {
	case types.FieldsExtract:
		return []any{nullString(r.OriginalSentence), nullString(r.LocalizedLabel),
			nullString(r.TranslatedLabel), nullString(r.Notes)}, nil
	case types.FieldsPhase:
		var phase *string
		if r.IVCPhase != nil {
			p := string(*r.IVCPhase)
			phase = &p
		}
		return []any{nullString(phase), nullString(r.ExecSubphase), nullString(r.Primitive),
			nullString(r.ClassificationReason)}, nil
	case types.FieldsStatic:
		entities, err := nullJSON(r.DataEntities)
		if err != nil {
			return nil, err
		}
		tags, err := nullJSON(r.Tags)
		if err != nil {
			return nil, err
		}
		return []any{nullString(r.StaticTypeLv1), nullString(r.StaticTypeLv2), nullString(r.DomainLv1),
			nullString(r.DomainLv2), nullBool(r.RAGRequired), nullString(r.RAGReason), nullInt(r.ValueScore),
			nullInt(r.ComplexityScore), nullString(r.ValueComplexityQuadrant),
			nullString(r.RecommendedExecutionEnv), nullString(r.AutoabilityReason), entities, tags}, nil
	case types.FieldsWorkflow:
		return []any{nullString(r.StageID), nullString(r.StreamID), nullString(r.NodeLabel),
			nullBool(r.IsEntry), nullBool(r.IsExit), nullBool(r.IsHub)}, nil
	default:
		return nil, fmt.Errorf("unknown field group %q", group)
	}
}

// EnsureTaskRow creates an empty task row if it does not exist.
func (db *DB) EnsureTaskRow(ctx context.Context, jobRunID, taskID string) error {
	return db.ensureTaskRow(ctx, db.sql, jobRunID, taskID)
}

func (db *DB) ensureTaskRow(ctx context.Context, q querier, jobRunID, taskID string) error {
	now := db.timestamp()
	_, err := db.exec(ctx, q,
		`INSERT INTO task_records (job_run_id, task_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (job_run_id, task_id) DO NOTHING`,
		jobRunID, taskID, now, now)
	if err != nil {
		return fmt.Errorf("failed to ensure task row %s: %w", taskID, err)
	}
	return nil
}

// UpsertTaskFields writes one stage's columns for each record in a single
// transaction. Rows are created on demand; other groups' columns are
// untouched.
func (db *DB) UpsertTaskFields(ctx context.Context, jobRunID string, group types.FieldGroup, records []types.TaskRecord) error {
	cols, ok := groupColumns[group]
	if !ok {
		return fmt.Errorf("unknown field group %q", group)
	}
	sets := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		sets = append(sets, c+" = ?")
	}
	sets = append(sets, "updated_at = ?")
	update := `UPDATE task_records SET ` + strings.Join(sets, ", ") + ` WHERE job_run_id = ? AND task_id = ?`

	return db.withTx(ctx, func(tx *sql.Tx) error {
		for i := range records {
			rec := &records[i]
			if rec.TaskID == "" {
				return fmt.Errorf("task record %d has no task_id", i)
			}
			if err := db.ensureTaskRow(ctx, tx, jobRunID, rec.TaskID); err != nil {
				return err
			}
			args, err := groupValues(group, rec)
			if err != nil {
				return fmt.Errorf("failed to encode task %s: %w", rec.TaskID, err)
			}
			args = append(args, db.timestamp(), jobRunID, rec.TaskID)
			if _, err := db.exec(ctx, tx, update, args...); err != nil {
				return fmt.Errorf("failed to upsert %s fields for task %s: %w", group, rec.TaskID, err)
			}
		}
		return nil
	})
}

// ReplaceEdges deletes every edge of the run and inserts edges in order, in
// one transaction. Readers see either the old set or the new set.
func (db *DB) ReplaceEdges(ctx context.Context, jobRunID string, edges []types.TaskEdge) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := db.exec(ctx, tx, `DELETE FROM task_edges WHERE job_run_id = ?`, jobRunID); err != nil {
			return fmt.Errorf("failed to delete edges: %w", err)
		}
		now := db.timestamp()
		for i, e := range edges {
			if _, err := db.exec(ctx, tx,
				`INSERT INTO task_edges (job_run_id, seq, source_task_id, target_task_id, label, created_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				jobRunID, i, e.SourceTaskID, e.TargetTaskID, nullString(e.Label), now); err != nil {
				return fmt.Errorf("failed to insert edge %s->%s: %w", e.SourceTaskID, e.TargetTaskID, err)
			}
		}
		return nil
	})
}

const taskColumns = `job_run_id, task_id, original_sentence, localized_label, translated_label, notes,
	ivc_phase, exec_subphase, primitive, classification_reason,
	static_type_lv1, static_type_lv2, domain_lv1, domain_lv2, rag_required, rag_reason, value_score,
	complexity_score, value_complexity_quadrant, recommended_execution_env, autoability_reason,
	data_entities, tags, stage_id, stream_id, node_label, is_entry, is_exit, is_hub,
	created_at, updated_at`

// GetTasks returns the run's tasks ordered by task_id.
func (db *DB) GetTasks(ctx context.Context, jobRunID string) ([]types.TaskRecord, error) {
	rows, err := db.query(ctx, db.sql,
		`SELECT `+taskColumns+` FROM task_records WHERE job_run_id = ? ORDER BY task_id`, jobRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []types.TaskRecord
	for rows.Next() {
		var (
			r                                                   types.TaskRecord
			sentence, localized, translated, notes              sql.NullString
			phase, subphase, primitive, reason                  sql.NullString
			st1, st2, d1, d2, ragReason, quadrant, env, autoRsn sql.NullString
			entities, tags, stageID, streamID, nodeLabel        sql.NullString
			rag, value, complexity, isEntry, isExit, isHub      sql.NullInt64
			created, updated                                    string
		)
		if err := rows.Scan(&r.JobRunID, &r.TaskID, &sentence, &localized, &translated, &notes,
			&phase, &subphase, &primitive, &reason,
			&st1, &st2, &d1, &d2, &rag, &ragReason, &value,
			&complexity, &quadrant, &env, &autoRsn,
			&entities, &tags, &stageID, &streamID, &nodeLabel, &isEntry, &isExit, &isHub,
			&created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		r.OriginalSentence = stringPtr(sentence)
		r.LocalizedLabel = stringPtr(localized)
		r.TranslatedLabel = stringPtr(translated)
		r.Notes = stringPtr(notes)
		if phase.Valid {
			p := types.IVCPhase(phase.String)
			r.IVCPhase = &p
		}
		r.ExecSubphase = stringPtr(subphase)
		r.Primitive = stringPtr(primitive)
		r.ClassificationReason = stringPtr(reason)
		r.StaticTypeLv1 = stringPtr(st1)
		r.StaticTypeLv2 = stringPtr(st2)
		r.DomainLv1 = stringPtr(d1)
		r.DomainLv2 = stringPtr(d2)
		r.RAGRequired = boolPtr(rag)
		r.RAGReason = stringPtr(ragReason)
		r.ValueScore = intPtr(value)
		r.ComplexityScore = intPtr(complexity)
		r.ValueComplexityQuadrant = stringPtr(quadrant)
		r.RecommendedExecutionEnv = stringPtr(env)
		r.AutoabilityReason = stringPtr(autoRsn)
		r.DataEntities = jsonSlice[string](entities)
		r.Tags = jsonSlice[string](tags)
		r.StageID = stringPtr(stageID)
		r.StreamID = stringPtr(streamID)
		r.NodeLabel = stringPtr(nodeLabel)
		r.IsEntry = boolPtr(isEntry)
		r.IsExit = boolPtr(isExit)
		r.IsHub = boolPtr(isHub)
		r.CreatedAt = parseTime(created)
		r.UpdatedAt = parseTime(updated)
		tasks = append(tasks, r)
	}
	return tasks, rows.Err()
}

// GetEdges returns the run's edges in insertion order.
func (db *DB) GetEdges(ctx context.Context, jobRunID string) ([]types.TaskEdge, error) {
	rows, err := db.query(ctx, db.sql,
		`SELECT job_run_id, seq, source_task_id, target_task_id, label, created_at
		 FROM task_edges WHERE job_run_id = ? ORDER BY seq`, jobRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to get edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []types.TaskEdge
	for rows.Next() {
		var (
			e       types.TaskEdge
			label   sql.NullString
			created string
		)
		if err := rows.Scan(&e.JobRunID, &e.Seq, &e.SourceTaskID, &e.TargetTaskID, &label, &created); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		e.Label = stringPtr(label)
		e.CreatedAt = parseTime(created)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
