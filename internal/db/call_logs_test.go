package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/agent-factory/internal/types"
)

func TestCallLogs_InsertAndList(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	run := createRun(t, db, "Acme", "Analyst")

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	total := int64(42)
	latency := int64(120)
	require.NoError(t, db.InsertCallLog(ctx, &types.CallLog{
		CreatedAt:    base.Add(time.Second),
		JobRunID:     &run.ID,
		StageName:    "ivc_phase_classifier",
		Provider:     "gemini",
		ModelName:    "gemini-2.5-flash",
		InputPayload: `{"task_atoms":[]}`,
		OutputText:   strp("garbage"),
		Status:       types.CallParseError,
		ErrorType:    strp("InvalidOutput"),
		ErrorMessage: strp("no object"),
		LatencyMS:    &latency,
	}))
	first := &types.CallLog{
		CreatedAt:    base,
		JobRunID:     &run.ID,
		StageName:    "ivc_task_extractor",
		Provider:     "gemini",
		ModelName:    "gemini-2.5-flash",
		InputPayload: `{}`,
		OutputText:   strp(`{"task_atoms":[]}`),
		OutputParsed: strp(`{"task_atoms":[]}`),
		Status:       types.CallSuccess,
		TokensTotal:  &total,
	}
	require.NoError(t, db.InsertCallLog(ctx, first))
	assert.NotEmpty(t, first.ID)

	// A log without a job run is stored but not listed for the run
	require.NoError(t, db.InsertCallLog(ctx, &types.CallLog{
		StageName: "workflow_mermaid", Provider: "none", Status: types.CallStubFallback,
	}))

	logs, err := db.ListCallLogs(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	assert.Equal(t, "ivc_task_extractor", logs[0].StageName)
	assert.Equal(t, types.CallSuccess, logs[0].Status)
	assert.Equal(t, int64(42), *logs[0].TokensTotal)
	assert.Nil(t, logs[0].TokensPrompt)
	assert.Nil(t, logs[0].ErrorType)
	assert.True(t, base.Equal(logs[0].CreatedAt))

	assert.Equal(t, types.CallParseError, logs[1].Status)
	assert.Equal(t, "garbage", *logs[1].OutputText)
	assert.Nil(t, logs[1].OutputParsed)
	assert.Equal(t, "InvalidOutput", *logs[1].ErrorType)
	assert.Equal(t, int64(120), *logs[1].LatencyMS)
}
