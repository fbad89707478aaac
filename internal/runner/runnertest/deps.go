// Package runnertest builds stage dependencies for tests: the embedded
// prompts and schemas, and an invoker over a test backend.
package runnertest

import (
	"context"
	"sync"

	"github.com/jonathan/agent-factory/internal/llm"
	"github.com/jonathan/agent-factory/internal/prompts"
	"github.com/jonathan/agent-factory/internal/runner"
	"github.com/jonathan/agent-factory/internal/schemas"
	"github.com/jonathan/agent-factory/internal/types"
)

// Logs collects call logs in memory.
type Logs struct {
	mu   sync.Mutex
	logs []types.CallLog
}

func (l *Logs) InsertCallLog(_ context.Context, log *types.CallLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, *log)
	return nil
}

// All returns the collected logs.
func (l *Logs) All() []types.CallLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.CallLog(nil), l.logs...)
}

// Deps returns stage dependencies over backend with search grounding on. A
// nil backend makes every call fall back to its stub.
func Deps(backend llm.Backend) (runner.Deps, *Logs) {
	cfg := llm.DefaultConfig()
	cfg.SearchGrounding = true
	logs := &Logs{}
	return runner.Deps{
		Invoker:   llm.NewInvoker(backend, logs, cfg, nil),
		Prompts:   prompts.NewCache(nil),
		Validator: schemas.NewValidator(),
	}, logs
}
