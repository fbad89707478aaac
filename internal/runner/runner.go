// Package runner implements the shape every stage shares: render the prompt,
// call the model, normalize and validate the reply, and fall back to a
// deterministic stub when the model is unavailable or its output is unusable.
package runner

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/jonathan/agent-factory/internal/llm"
	"github.com/jonathan/agent-factory/internal/parsing"
	"github.com/jonathan/agent-factory/internal/types"
)

// Invoker performs one logged model call.
type Invoker interface {
	Invoke(ctx context.Context, call llm.Call) *llm.Result
}

// PromptRenderer renders a stage's prompt template with its input.
type PromptRenderer interface {
	Render(stage string, input any) (string, error)
}

// Validator checks model documents and decoded outputs.
type Validator interface {
	ValidateDocument(stage string, doc []byte) error
	ValidateStruct(value any) error
}

// Deps bundles what every stage needs.
type Deps struct {
	Invoker   Invoker
	Prompts   PromptRenderer
	Validator Validator
	Logger    *zap.Logger
}

// Contract describes one stage. Stage is the prompt and schema name.
type Contract[In, Out any] struct {
	Stage string
	// Sanitize repairs known model quirks before normalization. Optional.
	Sanitize func(text string) string
	// Stub produces the fallback output. It must be total.
	Stub func(in In) Out
	// Finalize canonicalises a decoded output against its input. Optional.
	Finalize func(in In, out *Out) error
	// Grounded requests search grounding for the call.
	Grounded bool
}

type debugSetter interface {
	SetDebug(types.StageDebug)
}

// Run executes one stage. Model failures never escape: the stub is returned
// with model_error set. Only prompt rendering and context cancellation
// produce an error.
func Run[In, Out any](ctx context.Context, deps Deps, c Contract[In, Out], in In, jobRunID string) (Out, *llm.Result, error) {
	var zero Out
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	prompt, err := deps.Prompts.Render(c.Stage, in)
	if err != nil {
		return zero, nil, fmt.Errorf("failed to render prompt for %s: %w", c.Stage, err)
	}

	var (
		decoded    Out
		normalized string
	)
	res := deps.Invoker.Invoke(ctx, llm.Call{
		Stage:    c.Stage,
		Prompt:   prompt,
		JobRunID: jobRunID,
		Input:    in,
		Grounded: c.Grounded,
		Decode: func(text string) (string, error) {
			out, norm, err := decode(deps.Validator, c, in, text)
			normalized = norm
			if err != nil {
				return norm, err
			}
			decoded = out
			return norm, nil
		},
	})
	if err := ctx.Err(); err != nil {
		return zero, res, err
	}

	debug := types.StageDebug{}
	if !res.Failed() {
		debug.RawModelText = types.StringPtr(res.Text)
		debug.NormalizedJSONText = types.StringPtr(normalized)
		setDebug(&decoded, debug)
		return decoded, res, nil
	}

	failure := res.Err
	if failure == nil {
		failure = res.DecodeErr
		debug.RawModelText = types.StringPtr(res.Text)
		debug.NormalizedJSONText = types.StringPtr(normalized)
	}
	msg := failure.Error()
	debug.ModelError = &msg
	logger.Warn("stage fell back to stub",
		zap.String("stage", c.Stage),
		zap.String("job_run_id", jobRunID),
		zap.Error(failure))

	stub := c.Stub(in)
	setDebug(&stub, debug)
	return stub, res, nil
}

func decode[In, Out any](v Validator, c Contract[In, Out], in In, text string) (Out, string, error) {
	var out Out
	if c.Sanitize != nil {
		text = c.Sanitize(text)
	}
	obj, normalized := parsing.ParseBestEffort(text)
	if obj == nil {
		return out, normalized, &parsing.ParseError{Message: "no JSON object in model output", Candidate: normalized}
	}
	if v != nil {
		if err := v.ValidateDocument(c.Stage, []byte(normalized)); err != nil {
			return out, normalized, err
		}
	}
	if err := json.Unmarshal([]byte(normalized), &out); err != nil {
		return out, normalized, &parsing.ParseError{Message: "output does not match " + c.Stage, Candidate: normalized, Cause: err}
	}
	if c.Finalize != nil {
		if err := c.Finalize(in, &out); err != nil {
			return out, normalized, err
		}
	}
	if v != nil {
		if err := v.ValidateStruct(out); err != nil {
			return out, normalized, err
		}
	}
	return out, normalized, nil
}

func setDebug(out any, debug types.StageDebug) {
	if d, ok := out.(debugSetter); ok {
		d.SetDebug(debug)
	}
}
