package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/agent-factory/internal/db"
	"github.com/jonathan/agent-factory/internal/pipeline"
	"github.com/jonathan/agent-factory/internal/pipeline/steps"
	"github.com/jonathan/agent-factory/internal/types"
)

// defaultTarget is the stage a run executes to when no target is given.
const defaultTarget = steps.PromptBuilder

// CreateRunRequest is the body of POST /runs
type CreateRunRequest struct {
	CompanyName     string `json:"company_name" validate:"required"`
	JobTitle        string `json:"job_title" validate:"required"`
	ManualJDText    string `json:"manual_jd_text,omitempty"`
	JDURL           string `json:"jd_url,omitempty" validate:"omitempty,url"`
	IndustryContext string `json:"industry_context,omitempty"`
	BusinessGoal    string `json:"business_goal,omitempty"`
}

// RunRequest is the body of POST /runs/{id}/run
type RunRequest struct {
	Until        string `json:"until,omitempty"`
	From         string `json:"from,omitempty"`
	Force        bool   `json:"force,omitempty"`
	ManualJDText string `json:"manual_jd_text,omitempty"`
	JobURL       string `json:"job_url,omitempty" validate:"omitempty,url"`
}

// StageResultResponse is a persisted stage output
type StageResultResponse struct {
	JobRunID   string          `json:"job_run_id"`
	Stage      steps.StageMeta `json:"stage"`
	ModelError *string         `json:"model_error"`
	Payload    json.RawMessage `json:"payload"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// decode reads a JSON body into v and validates it. An empty body leaves v
// at its zero value.
func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return &ErrValidation{Field: "body", Message: err.Error()}
	}
	if err := s.validate.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}

// handleCreateRun creates a job run or returns the existing one for the same
// company and title.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}

	run, err := s.orch.CreateOrGetJobRun(r.Context(), db.JobRunInput{
		CompanyName:     req.CompanyName,
		JobTitle:        req.JobTitle,
		ManualJDText:    types.StringPtr(req.ManualJDText),
		JDURL:           types.StringPtr(req.JDURL),
		IndustryContext: types.StringPtr(req.IndustryContext),
		BusinessGoal:    types.StringPtr(req.BusinessGoal),
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.fail(w, &ErrValidation{Field: "limit", Message: "must be a non-negative integer"})
			return
		}
		limit = n
	}
	runs, err := s.store.ListJobRuns(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"runs": orEmpty(runs)})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.orch.GetJobRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}

// prepareRun loads the job run and validates the run request.
func (s *Server) prepareRun(r *http.Request) (*types.JobRun, string, pipeline.RunOptions, error) {
	var req RunRequest
	if err := s.decode(r, &req); err != nil {
		return nil, "", pipeline.RunOptions{}, err
	}
	target := req.Until
	if target == "" {
		target = defaultTarget
	}
	for _, label := range []string{target, req.From} {
		if label == "" {
			continue
		}
		if _, err := steps.Resolve(label); err != nil {
			return nil, "", pipeline.RunOptions{}, err
		}
	}
	run, err := s.orch.GetJobRun(r.Context(), r.PathValue("id"))
	if err != nil {
		return nil, "", pipeline.RunOptions{}, err
	}
	return run, target, pipeline.RunOptions{
		Force:        req.Force,
		From:         req.From,
		ManualJDText: req.ManualJDText,
		JobURL:       req.JobURL,
	}, nil
}

// handleRun executes stages up to the target and returns every outcome.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, target, opts, err := s.prepareRun(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	res, err := s.orch.RunUntil(r.Context(), run, target, opts)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

// handleRunStream executes stages and streams progress events.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	run, target, opts, err := s.prepareRun(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	opts.OnProgress = func(event pipeline.ProgressEvent) {
		if err := sse.WriteEvent("progress", event); err != nil {
			s.logger.Debug("failed to write progress event", zap.Error(err))
		}
	}

	if _, err := s.orch.RunUntil(r.Context(), run, target, opts); err != nil {
		sse.WriteError(HTTPStatus(err), err.Error())
		return
	}

	status := string(types.JobRunCompleted)
	if latest, err := s.orch.GetJobRun(r.Context(), run.ID); err == nil {
		status = string(latest.Status)
	}
	sse.WriteComplete(run.ID, status)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.orch.GetJobRun(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	tasks, err := s.orch.GetTasks(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"tasks": orEmpty(tasks)})
}

func (s *Server) handleEdges(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.orch.GetJobRun(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	edges, err := s.orch.GetEdges(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"edges": orEmpty(edges)})
}

func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.orch.GetJobRun(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	logs, err := s.store.ListCallLogs(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"calls": orEmpty(logs)})
}

// handleResult returns the latest persisted output of one stage.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id, label := r.PathValue("id"), r.PathValue("label")
	stage, err := steps.Resolve(label)
	if err != nil {
		s.fail(w, err)
		return
	}
	if _, err := s.orch.GetJobRun(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	res, err := s.orch.LatestResult(r.Context(), id, label)
	if err != nil {
		s.fail(w, err)
		return
	}
	if res == nil {
		s.fail(w, fmt.Errorf("stage %s has no result: %w", stage.Label, db.ErrNotFound))
		return
	}
	s.jsonResponse(w, http.StatusOK, StageResultResponse{
		JobRunID:   res.JobRunID,
		Stage:      stage,
		ModelError: res.ModelError,
		Payload:    json.RawMessage(res.Payload),
		UpdatedAt:  res.UpdatedAt,
	})
}

func (s *Server) handleStages(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{"stages": steps.Ordered()})
}

func (s *Server) handleNextStage(w http.ResponseWriter, r *http.Request) {
	current := r.URL.Query().Get("current")
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"current": current,
		"next":    s.orch.NextLabel(current),
	})
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
