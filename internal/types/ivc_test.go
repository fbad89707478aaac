package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPhase(t *testing.T) {
	transform := "TRANSFORM"
	commit := "EXECUTE_COMMIT"

	tests := []struct {
		name     string
		raw      string
		subphase *string
		want     IVCPhase
		ok       bool
	}{
		{name: "canonical", raw: "SENSE", want: PhaseSense, ok: true},
		{name: "numbered prefix", raw: "P2_DECIDE", want: PhaseDecide, ok: true},
		{name: "lowercase with spaces", raw: " execute transfer ", want: PhaseExecuteTransfer, ok: true},
		{name: "numbered execute sub-phase", raw: "P3_EXECUTE_TRANSFORM", want: PhaseExecuteTransform, ok: true},
		{name: "bare execute with sub-phase", raw: "EXECUTE", subphase: &transform, want: PhaseExecuteTransform, ok: true},
		{name: "bare execute with prefixed sub-phase", raw: "P3_EXECUTE", subphase: &commit, want: PhaseExecuteCommit, ok: true},
		{name: "bare execute without sub-phase", raw: "EXECUTE", want: IVCPhase("EXECUTE"), ok: false},
		{name: "unknown", raw: "PLAN", want: IVCPhase("PLAN"), ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CanonicalPhase(tt.raw, tt.subphase)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSummarizePhases_AllKeysPresent(t *testing.T) {
	summary := SummarizePhases([]IVCTask{
		{TaskID: "T01", IVCPhase: PhaseSense},
		{TaskID: "T02", IVCPhase: PhaseExecuteTransform},
		{TaskID: "T03", IVCPhase: PhaseSense},
	})

	require.Len(t, summary, len(AllPhases))
	assert.Equal(t, 2, summary[PhaseSense])
	assert.Equal(t, 1, summary[PhaseExecuteTransform])
	assert.Equal(t, 0, summary[PhaseAssure])
}

func TestPhaseSummary_UnmarshalShapes(t *testing.T) {
	t.Run("flat", func(t *testing.T) {
		var s PhaseSummary
		require.NoError(t, json.Unmarshal([]byte(`{"SENSE": 2, "ASSURE": 1}`), &s))
		assert.Equal(t, 2, s[PhaseSense])
		assert.Equal(t, 1, s[PhaseAssure])
	})

	t.Run("nested with numbered keys", func(t *testing.T) {
		var s PhaseSummary
		require.NoError(t, json.Unmarshal([]byte(`{"P1_SENSE": {"count": 3}, "P3_EXECUTE_COMMIT": {"count": 1}}`), &s))
		assert.Equal(t, 3, s[PhaseSense])
		assert.Equal(t, 1, s[PhaseExecuteCommit])
	})

	t.Run("garbage decodes empty", func(t *testing.T) {
		var s PhaseSummary
		require.NoError(t, json.Unmarshal([]byte(`"n/a"`), &s))
		assert.Empty(t, s)
	})
}

func TestJobRunMeta(t *testing.T) {
	industry := "retail"
	run := &JobRun{CompanyName: "Acme", JobTitle: "Data Analyst", IndustryContext: &industry}

	meta := run.Meta()
	assert.Equal(t, "Acme", meta.CompanyName)
	assert.Equal(t, "Data Analyst", meta.JobTitle)
	assert.Equal(t, "retail", meta.IndustryContext)
	assert.Nil(t, meta.BusinessGoal)
}

func TestTaskRecordTitle(t *testing.T) {
	label := "데이터 수집하기"
	node := "Collect"

	assert.Equal(t, label, (&TaskRecord{TaskID: "T01", LocalizedLabel: &label, NodeLabel: &node}).Title())
	assert.Equal(t, node, (&TaskRecord{TaskID: "T01", NodeLabel: &node}).Title())
	assert.Equal(t, "T01", (&TaskRecord{TaskID: "T01"}).Title())
}

func TestStageDebugEmbedded(t *testing.T) {
	msg := "backend unavailable"
	out := TaskExtractionResult{StageDebug: StageDebug{ModelError: &msg}}

	var d Debuggable = out
	assert.True(t, d.Debug().IsStub())

	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"model_error":"backend unavailable"`)
	assert.Contains(t, string(data), `"raw_model_text":null`)
}
