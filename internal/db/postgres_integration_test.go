//go:build integration
// +build integration

package db

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/agent-factory/internal/types"
)

func setupPostgresDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := Connect(context.Background(), url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPostgres_JobRunAndTaskGraph_Integration(t *testing.T) {
	db := setupPostgresDB(t)
	ctx := context.Background()
	assert.Equal(t, DialectPostgres, db.Dialect())

	company := "Acme-" + uuid.NewString()
	run, err := db.CreateOrGetJobRun(ctx, JobRunInput{CompanyName: company, JobTitle: "Data Analyst"})
	require.NoError(t, err)
	again, err := db.CreateOrGetJobRun(ctx, JobRunInput{CompanyName: company, JobTitle: "Data Analyst"})
	require.NoError(t, err)
	assert.Equal(t, run.ID, again.ID)

	require.NoError(t, db.UpsertTaskFields(ctx, run.ID, types.FieldsExtract, []types.TaskRecord{
		{TaskID: "T01", LocalizedLabel: strp("데이터 수집")},
	}))
	require.NoError(t, db.UpsertTaskFields(ctx, run.ID, types.FieldsStatic, []types.TaskRecord{
		{TaskID: "T01", RAGRequired: boolp(false), Tags: []string{"sql"}},
	}))
	require.NoError(t, db.ReplaceEdges(ctx, run.ID, []types.TaskEdge{{SourceTaskID: "T01", TargetTaskID: "T02"}}))

	tasks, err := db.GetTasks(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "데이터 수집", *tasks[0].LocalizedLabel)
	assert.False(t, *tasks[0].RAGRequired)
	assert.Equal(t, []string{"sql"}, tasks[0].Tags)

	edges, err := db.GetEdges(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, edges, 1)

	require.NoError(t, db.SaveStageResult(ctx, run.ID, "stage1_task_extract", []byte(`{}`), nil))
	res, err := db.GetStageResult(ctx, run.ID, "stage1_task_extract")
	require.NoError(t, err)
	require.NotNil(t, res)
}
