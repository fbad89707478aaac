package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/agent-factory/internal/llm"
	"github.com/jonathan/agent-factory/internal/llm/llmtest"
	"github.com/jonathan/agent-factory/internal/parsing"
	"github.com/jonathan/agent-factory/internal/prompts"
	"github.com/jonathan/agent-factory/internal/schemas"
	"github.com/jonathan/agent-factory/internal/types"
)

type echoIn struct {
	Word string `json:"word"`
}

type echoOut struct {
	Words []string `json:"words" validate:"min=1"`
	Count int      `json:"count"`
	types.StageDebug
}

const echoSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["words"],
  "properties": {"words": {"type": "array", "items": {"type": "string"}}}
}`

var echoContract = Contract[echoIn, echoOut]{
	Stage: "echo",
	Stub: func(in echoIn) echoOut {
		return echoOut{Words: []string{in.Word}, Count: 1}
	},
	Finalize: func(_ echoIn, out *echoOut) error {
		out.Count = len(out.Words)
		return nil
	},
}

type memLogs struct {
	mu   sync.Mutex
	logs []*types.CallLog
}

func (m *memLogs) InsertCallLog(_ context.Context, log *types.CallLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
	return nil
}

func newDeps(backend llm.Backend) (Deps, *memLogs) {
	logs := &memLogs{}
	return Deps{
		Invoker: llm.NewInvoker(backend, logs, nil, nil),
		Prompts: prompts.NewCache(fstest.MapFS{
			"echo.json": {Data: []byte(`{"echo": "ECHO STAGE {input_json}"}`)},
		}),
		Validator: schemas.NewValidatorFS(fstest.MapFS{
			"echo.schema.json": {Data: []byte(echoSchema)},
		}),
	}, logs
}

func TestRun_Success(t *testing.T) {
	reply := "```json\n{\"words\": [\"a\", \"b\"], \"count\": 99}\n```"
	deps, logs := newDeps(llmtest.NewScripted().On("ECHO STAGE", reply))

	out, res, err := Run(context.Background(), deps, echoContract, echoIn{Word: "x"}, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.Words)
	assert.Equal(t, 2, out.Count, "finalize recounts")
	assert.Nil(t, out.ModelError)
	require.NotNil(t, out.RawModelText)
	assert.Equal(t, reply, *out.RawModelText)
	require.NotNil(t, out.NormalizedJSONText)
	assert.True(t, strings.HasPrefix(*out.NormalizedJSONText, "{"))
	assert.Equal(t, types.CallSuccess, res.Status)

	require.Len(t, logs.logs, 1)
	assert.Equal(t, "echo", logs.logs[0].StageName)
	assert.Equal(t, `{"word":"x"}`, logs.logs[0].InputPayload)
}

func TestRun_BackendUnavailable(t *testing.T) {
	deps, logs := newDeps(nil)

	out, res, err := Run(context.Background(), deps, echoContract, echoIn{Word: "x"}, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, out.Words)
	require.NotNil(t, out.ModelError)
	assert.Contains(t, *out.ModelError, "unavailable")
	assert.Nil(t, out.RawModelText)
	assert.ErrorIs(t, res.Err, llm.ErrBackendUnavailable)
	require.Len(t, logs.logs, 1)
	assert.Equal(t, types.CallStubFallback, logs.logs[0].Status)
}

func TestRun_InvalidOutputFallsBack(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"no json", "I cannot help with that"},
		{"schema violation", `{"words": "not-a-list"}`},
		{"struct violation", `{"words": []}`},
		{"array root", `[1, 2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps, logs := newDeps(llmtest.NewScripted().On("ECHO STAGE", tt.reply))

			out, _, err := Run(context.Background(), deps, echoContract, echoIn{Word: "stub"}, "run-1")
			require.NoError(t, err)
			assert.Equal(t, []string{"stub"}, out.Words)
			require.NotNil(t, out.ModelError)
			require.NotNil(t, out.RawModelText)
			assert.Equal(t, tt.reply, *out.RawModelText)
			require.Len(t, logs.logs, 1)
			assert.Equal(t, types.CallParseError, logs.logs[0].Status)
			require.NotNil(t, logs.logs[0].ErrorType)
			assert.Equal(t, llm.ErrorTypeInvalidOutput, *logs.logs[0].ErrorType)
		})
	}
}

func TestRun_ParseErrorType(t *testing.T) {
	deps, _ := newDeps(llmtest.NewScripted().On("ECHO STAGE", "nothing here"))

	_, res, err := Run(context.Background(), deps, echoContract, echoIn{Word: "x"}, "")
	require.NoError(t, err)
	var perr *parsing.ParseError
	assert.ErrorAs(t, res.DecodeErr, &perr)
}

func TestRun_Sanitize(t *testing.T) {
	c := echoContract
	c.Sanitize = func(text string) string { return strings.ReplaceAll(text, "BROKEN", `"ok"`) }
	deps, _ := newDeps(llmtest.NewScripted().On("ECHO STAGE", `{"words": [BROKEN]}`))

	out, _, err := Run(context.Background(), deps, c, echoIn{Word: "x"}, "run-1")
	require.NoError(t, err)
	assert.Nil(t, out.ModelError)
	assert.Equal(t, []string{"ok"}, out.Words)
}

func TestRun_FinalizeErrorFallsBack(t *testing.T) {
	c := echoContract
	c.Finalize = func(echoIn, *echoOut) error { return errors.New("unknown task id") }
	deps, _ := newDeps(llmtest.NewScripted().On("ECHO STAGE", `{"words": ["a"]}`))

	out, _, err := Run(context.Background(), deps, c, echoIn{Word: "x"}, "run-1")
	require.NoError(t, err)
	require.NotNil(t, out.ModelError)
	assert.Contains(t, *out.ModelError, "unknown task id")
	assert.Equal(t, []string{"x"}, out.Words)
}

func TestRun_UnknownPrompt(t *testing.T) {
	deps, logs := newDeps(nil)
	c := echoContract
	c.Stage = "missing"

	_, _, err := Run(context.Background(), deps, c, echoIn{}, "run-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to render prompt")
	assert.Empty(t, logs.logs)
}

func TestRun_CanceledContext(t *testing.T) {
	deps, _ := newDeps(llmtest.NewScripted().On("ECHO STAGE", `{"words": ["a"]}`))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Run(ctx, deps, echoContract, echoIn{Word: "x"}, "run-1")
	assert.ErrorIs(t, err, context.Canceled)
}
