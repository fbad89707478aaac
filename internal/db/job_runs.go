package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/agent-factory/internal/types"
)

// -----------------------------------------------------------------------------
// Job Run Methods
// -----------------------------------------------------------------------------

// JobRunInput identifies a job run and carries its optional metadata.
type JobRunInput struct {
	CompanyName     string
	JobTitle        string
	ManualJDText    *string
	JDURL           *string
	IndustryContext *string
	BusinessGoal    *string
}

const jobRunColumns = `id, company_name, job_title, manual_jd_text, jd_url, industry_context,
	business_goal, status, created_at, updated_at`

// CreateOrGetJobRun returns the job run keyed by (company, title, JD text),
// creating it when absent. A nil JD text is stored as ''. Optional metadata
// only fills columns that are still empty on an existing run.
func (db *DB) CreateOrGetJobRun(ctx context.Context, in JobRunInput) (*types.JobRun, error) {
	if in.CompanyName == "" || in.JobTitle == "" {
		return nil, fmt.Errorf("company name and job title are required")
	}
	jd := types.Deref(in.ManualJDText)
	now := db.timestamp()

	_, err := db.exec(ctx, db.sql,
		`INSERT INTO job_runs (id, company_name, job_title, manual_jd_text, jd_url, industry_context,
		                       business_goal, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (company_name, job_title, manual_jd_text) DO NOTHING`,
		uuid.NewString(), in.CompanyName, in.JobTitle, jd, nullString(in.JDURL),
		nullString(in.IndustryContext), nullString(in.BusinessGoal), string(types.JobRunCreated), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job run: %w", err)
	}

	run, err := db.scanJobRun(db.queryRow(ctx, db.sql,
		`SELECT `+jobRunColumns+` FROM job_runs
		 WHERE company_name = ? AND job_title = ? AND manual_jd_text = ?`,
		in.CompanyName, in.JobTitle, jd))
	if err != nil {
		return nil, fmt.Errorf("failed to get job run: %w", err)
	}

	if (run.JDURL == nil && in.JDURL != nil) ||
		(run.IndustryContext == nil && in.IndustryContext != nil) ||
		(run.BusinessGoal == nil && in.BusinessGoal != nil) {
		return db.UpdateJobRunMeta(ctx, run.ID, in.JDURL, in.IndustryContext, in.BusinessGoal)
	}
	return run, nil
}

// UpdateJobRunMeta fills the optional metadata columns. Nil arguments keep
// the stored value.
func (db *DB) UpdateJobRunMeta(ctx context.Context, id string, jdURL, industry, goal *string) (*types.JobRun, error) {
	res, err := db.exec(ctx, db.sql,
		`UPDATE job_runs SET
		   jd_url = COALESCE(?, jd_url),
		   industry_context = COALESCE(?, industry_context),
		   business_goal = COALESCE(?, business_goal),
		   updated_at = ?
		 WHERE id = ?`,
		nullString(jdURL), nullString(industry), nullString(goal), db.timestamp(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update job run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("job run %s: %w", id, ErrNotFound)
	}
	return db.GetJobRun(ctx, id)
}

// SetJobRunStatus records a lifecycle transition.
func (db *DB) SetJobRunStatus(ctx context.Context, id string, status types.JobRunStatus) error {
	res, err := db.exec(ctx, db.sql,
		`UPDATE job_runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), db.timestamp(), id)
	if err != nil {
		return fmt.Errorf("failed to set job run status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job run %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetJobRun retrieves a job run by id.
func (db *DB) GetJobRun(ctx context.Context, id string) (*types.JobRun, error) {
	run, err := db.scanJobRun(db.queryRow(ctx, db.sql,
		`SELECT `+jobRunColumns+` FROM job_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job run: %w", err)
	}
	return run, nil
}

// ListJobRuns returns runs newest first. limit <= 0 means no limit.
func (db *DB) ListJobRuns(ctx context.Context, limit int) ([]*types.JobRun, error) {
	query := `SELECT ` + jobRunColumns + ` FROM job_runs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.query(ctx, db.sql, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list job runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*types.JobRun
	for rows.Next() {
		run, err := db.scanJobRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func (db *DB) scanJobRun(row scanner) (*types.JobRun, error) {
	var (
		run                     types.JobRun
		jdURL, industry, goal   sql.NullString
		status, created, update string
	)
	if err := row.Scan(&run.ID, &run.CompanyName, &run.JobTitle, &run.ManualJDText, &jdURL,
		&industry, &goal, &status, &created, &update); err != nil {
		return nil, err
	}
	run.JDURL = stringPtr(jdURL)
	run.IndustryContext = stringPtr(industry)
	run.BusinessGoal = stringPtr(goal)
	run.Status = types.JobRunStatus(status)
	run.CreatedAt = parseTime(created)
	run.UpdatedAt = parseTime(update)
	return &run, nil
}
