package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/jonathan/agent-factory/internal/db"
	"github.com/jonathan/agent-factory/internal/llm"
	"github.com/jonathan/agent-factory/internal/pipeline"
	"github.com/jonathan/agent-factory/internal/prompts"
	"github.com/jonathan/agent-factory/internal/runner"
	"github.com/jonathan/agent-factory/internal/schemas"
	"github.com/jonathan/agent-factory/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

// newTestServer wires a server to a sqlite store and a backend that is
// never available, so every stage produces stub output.
func newTestServer(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	store, err := db.Connect(context.Background(), filepath.Join(t.TempDir(), "server.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	deps := runner.Deps{
		Invoker:   llm.NewInvoker(llm.PlaceholderBackend{}, store, llm.DefaultConfig(), nil),
		Prompts:   prompts.NewCache(nil),
		Validator: schemas.NewValidator(),
	}
	orch := pipeline.New(store, pipeline.Options{Deps: deps, AgentConcurrency: 2})
	s := New(orch, store, cfg, nil)
	t.Cleanup(s.Close)
	return s.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func createRun(t *testing.T, h http.Handler) *types.JobRun {
	t.Helper()
	w := do(t, h, http.MethodPost, "/runs", CreateRunRequest{CompanyName: "Acme", JobTitle: "Data Analyst",
		ManualJDText: "Collect data with SQL. Build dashboards."})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var run types.JobRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	return &run
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t, Config{})
	w := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCreateRun(t *testing.T) {
	h := newTestServer(t, Config{})
	first := createRun(t, h)
	second := createRun(t, h)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, types.JobRunCreated, first.Status)

	w := do(t, h, http.MethodGet, "/runs/"+first.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"company_name":"Acme"`)

	w = do(t, h, http.MethodGet, "/runs", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), first.ID)
}

func TestCreateRun_Validation(t *testing.T) {
	h := newTestServer(t, Config{})
	tests := []struct {
		name string
		body any
		want string
	}{
		{name: "missing company", body: CreateRunRequest{JobTitle: "Analyst"}, want: "company_name"},
		{name: "bad url", body: CreateRunRequest{CompanyName: "Acme", JobTitle: "Analyst", JDURL: "not a url"}, want: "jd_url"},
		{name: "bad json", body: "oops", want: "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/runs", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
		})
	}
}

func TestGetRun_NotFound(t *testing.T) {
	h := newTestServer(t, Config{})
	for _, path := range []string{"/runs/missing", "/runs/missing/tasks", "/runs/missing/calls", "/runs/missing/results/2.2"} {
		w := do(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
	w := do(t, h, http.MethodPost, "/runs/missing/run", RunRequest{Until: "0.2"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunUntil(t *testing.T) {
	h := newTestServer(t, Config{})
	run := createRun(t, h)

	w := do(t, h, http.MethodPost, "/runs/"+run.ID+"/run", RunRequest{Until: "2.2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res struct {
		JobRunID string `json:"job_run_id"`
		Stages   []struct {
			Stage struct {
				Label string `json:"label"`
			} `json:"stage"`
			ModelError *string `json:"model_error"`
		} `json:"stages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, run.ID, res.JobRunID)
	require.Len(t, res.Stages, 7)
	assert.Equal(t, "2.2", res.Stages[6].Stage.Label)
	for _, s := range res.Stages {
		assert.NotNil(t, s.ModelError, s.Stage.Label)
	}

	w = do(t, h, http.MethodGet, "/runs/"+run.ID+"/results/2.2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mermaid_code")
	assert.Contains(t, w.Body.String(), `"label":"2.2"`)

	w = do(t, h, http.MethodGet, "/runs/"+run.ID+"/results/4", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/runs/"+run.ID+"/results/3.1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/runs/"+run.ID+"/calls", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var calls struct {
		Calls []types.CallLog `json:"calls"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &calls))
	assert.NotEmpty(t, calls.Calls)

	w = do(t, h, http.MethodGet, "/runs/"+run.ID+"/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tasks":[]}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/runs/"+run.ID+"/edges", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"edges":[]}`, w.Body.String())
}

func TestRunUntil_Errors(t *testing.T) {
	h := newTestServer(t, Config{})
	run := createRun(t, h)

	w := do(t, h, http.MethodPost, "/runs/"+run.ID+"/run", RunRequest{Until: "3.1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/runs/"+run.ID+"/run", RunRequest{Until: "2.2", From: "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/runs/"+run.ID+"/run", RunRequest{Until: "1.2", From: "1.2"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "missing upstream")
}

func TestRunStream(t *testing.T) {
	h := newTestServer(t, Config{})
	run := createRun(t, h)

	w := do(t, h, http.MethodPost, "/runs/"+run.ID+"/run/stream", RunRequest{Until: "0.2"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Equal(t, 4, strings.Count(body, "event: progress\n"))
	assert.Contains(t, body, `"label":"0.1"`)
	assert.Contains(t, body, "event: complete\n")
	assert.Contains(t, body, `"status":"completed"`)
}

func TestRunStream_ErrorEvent(t *testing.T) {
	h := newTestServer(t, Config{})
	run := createRun(t, h)

	w := do(t, h, http.MethodPost, "/runs/"+run.ID+"/run/stream", RunRequest{Until: "1.1", From: "1.1"})
	body := w.Body.String()
	assert.Contains(t, body, "event: error\n")
	assert.Contains(t, body, `"status":409`)
	assert.NotContains(t, body, "event: complete")
}

func TestStages(t *testing.T) {
	h := newTestServer(t, Config{})

	w := do(t, h, http.MethodGet, "/stages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Stages []struct {
			Label string `json:"label"`
		} `json:"stages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Stages, 12)
	assert.Equal(t, "0.1", body.Stages[0].Label)

	w = do(t, h, http.MethodGet, "/stages/next?current=2.2", nil)
	assert.JSONEq(t, `{"current":"2.2","next":"4"}`, w.Body.String())
	w = do(t, h, http.MethodGet, "/stages/next", nil)
	assert.JSONEq(t, `{"current":"","next":"0.2"}`, w.Body.String())
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, Config{})
	w := do(t, h, http.MethodOptions, "/runs", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, Config{RateLimit: 0.001, RateBurst: 1})

	w := do(t, h, http.MethodGet, "/stages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	w = do(t, h, http.MethodGet, "/stages", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")

	w = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
