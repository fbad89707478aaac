package parsing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixStrayBrace_RepairsKnownShape(t *testing.T) {
	broken := `{"ivc_tasks": [{"task_id": "T01", "classification_reason": "collects raw data"}, "primitive_lv1": "SENSE"}]}`

	fixed := FixStrayBrace(broken)
	assert.Equal(t,
		`{"ivc_tasks": [{"task_id": "T01", "classification_reason": "collects raw data", "primitive_lv1": "SENSE"}]}`,
		fixed)

	parsed, _ := ParseBestEffort(fixed)
	require.NotNil(t, parsed)
	tasks := parsed["ivc_tasks"].([]any)
	require.Len(t, tasks, 1)
	assert.Equal(t, "SENSE", tasks[0].(map[string]any)["primitive_lv1"])
}

func TestFixStrayBrace_HandlesEscapedQuotesInValue(t *testing.T) {
	broken := `{"a": "say \"hi\""}, "b": "c"}`

	fixed := FixStrayBrace(broken)
	assert.Equal(t, `{"a": "say \"hi\"", "b": "c"}`, fixed)
	assert.True(t, json.Valid([]byte(fixed)))
}

func TestFixStrayBrace_KeepsValidNestedObjects(t *testing.T) {
	broken := `{"job_meta": {"company_name": "Acme", "job_title": "DA"}, "ivc_tasks": [{"task_id": "T01", "classification_reason": "x"}, "primitive_lv1": "SENSE"}], "phase_summary": {}}`

	fixed := FixStrayBrace(broken)
	assert.Equal(t,
		`{"job_meta": {"company_name": "Acme", "job_title": "DA"}, "ivc_tasks": [{"task_id": "T01", "classification_reason": "x", "primitive_lv1": "SENSE"}], "phase_summary": {}}`,
		fixed)

	parsed, _ := ParseBestEffort(fixed)
	require.NotNil(t, parsed)
	assert.Equal(t, "DA", parsed["job_meta"].(map[string]any)["job_title"])
	task := parsed["ivc_tasks"].([]any)[0].(map[string]any)
	assert.Equal(t, "SENSE", task["primitive_lv1"])
}

func TestFixStrayBrace_RepairsSeveralStrayBraces(t *testing.T) {
	broken := `{"tasks": [{"id": "T01", "a": "x"}, "b": "y"}, {"id": "T02", "a": "z"}, "b": "w"}]}`

	fixed := FixStrayBrace(broken)
	assert.Equal(t, `{"tasks": [{"id": "T01", "a": "x", "b": "y"}, {"id": "T02", "a": "z", "b": "w"}]}`, fixed)
}

func TestFixStrayBrace_LeavesOtherPayloadsUntouched(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "valid nested object with the same shape",
			input: `{"outer": {"a": "x"}, "b": "y"}`,
		},
		{
			name:  "valid list of objects",
			input: `[{"a": "x"}, {"b": "y"}]`,
		},
		{
			name:  "stray brace after a number field",
			input: `{"a": 1}, "b": 2}`,
		},
		{
			name:  "unbalanced the other way",
			input: `{"outer": {"a": "x"}, "b": "y"`,
		},
		{
			name:  "more surplus braces than matches",
			input: `{"a": "x"}, "b": "y"}}`,
		},
		{
			name:  "no rewrite yields valid JSON",
			input: `{"a": "x"}, "b": "y"}, "c": }`,
		},
		{
			name:  "prose",
			input: "nothing to fix",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.input, FixStrayBrace(tt.input))
		})
	}
}

func TestBraceBalance_IgnoresStrings(t *testing.T) {
	assert.Equal(t, 0, braceBalance(`{"a": "}}}"}`))
	assert.Equal(t, -1, braceBalance(`{"a": "x"}}`))
	assert.Equal(t, 1, braceBalance(`{"a": "\"{"`))
}
