package llm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/agent-factory/internal/types"
)

// CallLogWriter persists call logs.
type CallLogWriter interface {
	InsertCallLog(ctx context.Context, log *types.CallLog) error
}

// Error types recorded in call logs.
const (
	ErrorTypeUnavailable    = "ModelUnavailable"
	ErrorTypeTimeout        = "Timeout"
	ErrorTypeModel          = "ModelError"
	ErrorTypeNotImplemented = "NotImplemented"
	ErrorTypeInvalidOutput  = "InvalidOutput"
)

// Call describes one stage invocation.
type Call struct {
	Stage    string
	Prompt   string
	JobRunID string
	// Input is recorded as the call log input payload.
	Input any
	// Grounded requests web search grounding.
	Grounded bool
	// Decode validates the model text and returns the normalized JSON that is
	// recorded as output_parsed. A decode error marks the call parse_error.
	Decode func(text string) (string, error)
}

// Result is the outcome of one invocation. Err and DecodeErr are the
// recoverable conditions; the Invoker itself never fails.
type Result struct {
	Text      string
	Usage     *Usage
	Sources   []Source
	Parsed    string
	Err       error
	DecodeErr error
	Status    types.CallStatus
	Latency   time.Duration
}

// Failed reports whether the caller should fall back to a stub.
func (r *Result) Failed() bool {
	return r.Err != nil || r.DecodeErr != nil
}

// Invoker sends prompts to the backend and writes exactly one call log per
// invocation. There is no retry.
type Invoker struct {
	backend Backend
	logs    CallLogWriter
	config  *Config
	logger  *zap.Logger
	now     func() time.Time
}

// NewInvoker creates an Invoker. A nil backend makes every call fail with
// ErrBackendUnavailable; a nil log writer disables call logging.
func NewInvoker(backend Backend, logs CallLogWriter, config *Config, logger *zap.Logger) *Invoker {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{
		backend: backend,
		logs:    logs,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// Provider returns the backend name, or "none".
func (i *Invoker) Provider() string {
	if i.backend == nil {
		return string(ProviderNone)
	}
	return i.backend.Name()
}

// Invoke performs one model call.
func (i *Invoker) Invoke(ctx context.Context, call Call) *Result {
	model := i.config.ModelFor(call.Stage)
	start := i.now()
	res := &Result{}

	resp, err := i.generate(ctx, call, model)
	res.Latency = i.now().Sub(start)

	switch {
	case err != nil:
		res.Err = err
		res.Status = types.CallStubFallback
		if errors.Is(err, ErrNotImplemented) {
			res.Status = types.CallNotImplemented
		}
	default:
		res.Text = resp.Text
		res.Usage = resp.Usage
		res.Sources = resp.Sources
		res.Status = types.CallSuccess
		if call.Decode != nil {
			parsed, derr := call.Decode(resp.Text)
			res.Parsed = parsed
			if derr != nil {
				res.DecodeErr = derr
				res.Status = types.CallParseError
			}
		}
	}

	i.record(ctx, call, model, res)
	return res
}

func (i *Invoker) generate(ctx context.Context, call Call, model string) (*Response, error) {
	if i.backend == nil {
		return nil, ErrBackendUnavailable
	}

	callCtx := ctx
	if i.config.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, i.config.Timeout)
		defer cancel()
	}

	resp, err := i.backend.Generate(callCtx, Request{
		Prompt:      call.Prompt,
		Model:       model,
		MaxTokens:   i.config.MaxTokens,
		Temperature: i.config.Temperature,
		Grounded:    call.Grounded && i.config.SearchGrounding,
	})
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = errors.Join(ErrTimeout, err)
		}
		return nil, &BackendError{Provider: i.backend.Name(), Model: model, Cause: err}
	}
	if resp == nil {
		return nil, &BackendError{Provider: i.backend.Name(), Model: model, Cause: ErrEmptyResponse}
	}
	return resp, nil
}

func (i *Invoker) record(ctx context.Context, call Call, model string, res *Result) {
	entry := &types.CallLog{
		ID:           uuid.NewString(),
		CreatedAt:    i.now().UTC(),
		JobRunID:     types.StringPtr(call.JobRunID),
		StageName:    call.Stage,
		Provider:     i.Provider(),
		ModelName:    model,
		InputPayload: encodePayload(call),
		OutputText:   types.StringPtr(res.Text),
		OutputParsed: types.StringPtr(res.Parsed),
		Status:       res.Status,
	}
	latency := res.Latency.Milliseconds()
	entry.LatencyMS = &latency
	if res.Usage != nil {
		entry.TokensPrompt = res.Usage.PromptTokens
		entry.TokensCompletion = res.Usage.CompletionTokens
		entry.TokensTotal = res.Usage.TotalTokens
	}
	if err := firstErr(res.Err, res.DecodeErr); err != nil {
		kind := errorType(res)
		msg := err.Error()
		entry.ErrorType = &kind
		entry.ErrorMessage = &msg
	}

	fields := []zap.Field{
		zap.String("stage", call.Stage),
		zap.String("job_run_id", call.JobRunID),
		zap.String("status", string(res.Status)),
		zap.Int64("latency_ms", latency),
	}
	if entry.ErrorMessage != nil {
		i.logger.Warn("llm call fell back", append(fields, zap.String("error", *entry.ErrorMessage))...)
	} else {
		i.logger.Info("llm call", fields...)
	}

	if i.logs == nil {
		return
	}
	// A call log write failure must not change the stage outcome.
	if err := i.logs.InsertCallLog(context.WithoutCancel(ctx), entry); err != nil {
		i.logger.Warn("failed to write call log", append(fields, zap.Error(err))...)
	}
}

func errorType(res *Result) string {
	switch {
	case res.DecodeErr != nil:
		return ErrorTypeInvalidOutput
	case errors.Is(res.Err, ErrBackendUnavailable):
		return ErrorTypeUnavailable
	case errors.Is(res.Err, ErrNotImplemented):
		return ErrorTypeNotImplemented
	case errors.Is(res.Err, ErrTimeout):
		return ErrorTypeTimeout
	default:
		return ErrorTypeModel
	}
}

func encodePayload(call Call) string {
	if call.Input == nil {
		return call.Prompt
	}
	data, err := json.Marshal(call.Input)
	if err != nil {
		return call.Prompt
	}
	return string(data)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
