// Package executor runs the application payload once and captures the
// document it builds as the initial snapshot.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/AgentOS/docworker/internal/document"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/runtime"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/shared/fault"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

const StatusExecuting = "Executing code"

var (
	ErrAlreadyExecuted = errors.New("payload already executed")
	ErrPendingResult   = errors.New("payload returned a promise that never settled")
)

// Payload is the application code to run
type Payload struct {
	Name   string
	Source string
}

// Executor runs one payload per worker lifetime
type Executor struct {
	logger *zap.Logger

	mu   sync.Mutex
	done bool
}

// New creates an executor
func New(logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{logger: logger}
}

// Execute runs payload in h and returns the snapshot of the document it
// built. Failures are fault.KindExecution errors whose summary is posted as
// a status line before returning.
func (e *Executor) Execute(ctx context.Context, h *runtime.Handle, port protocol.Port, payload Payload) (*document.Snapshot, error) {
	e.mu.Lock()
	if e.done {
		e.mu.Unlock()
		return nil, ErrAlreadyExecuted
	}
	e.done = true
	e.mu.Unlock()

	if err := port.Post(protocol.Status(StatusExecuting)); err != nil {
		return nil, fmt.Errorf("failed to post status: %w", err)
	}

	name := payload.Name
	if name == "" {
		name = "app.js"
	}

	snap, err := e.run(ctx, h, name, payload.Source)
	if err != nil {
		ferr := fault.New(fault.KindExecution).Subject(name).Cause(err).Build()
		e.logger.Error("Payload execution failed", zap.String("payload", name), zap.Error(ferr))
		if perr := port.Post(protocol.Status(ferr.Summary)); perr != nil {
			e.logger.Warn("Failed to report execution failure", zap.Error(perr))
		}
		return nil, ferr
	}

	e.logger.Info("Payload executed",
		zap.String("payload", name),
		zap.Int("models", h.Document().Len()),
		zap.Int("roots", len(snap.RootIDs)))
	return snap, nil
}

func (e *Executor) run(ctx context.Context, h *runtime.Handle, name, src string) (*document.Snapshot, error) {
	val, err := h.Run(ctx, name, src)
	if err != nil {
		return nil, err
	}
	if err := settle(val); err != nil {
		return nil, err
	}
	return h.Document().Snapshot()
}

// settle inspects a promise result. Jobs queued by the payload have already
// run when Run returns, so a pending promise can never resolve.
func settle(val goja.Value) error {
	if val == nil {
		return nil
	}
	p, ok := val.Export().(*goja.Promise)
	if !ok {
		return nil
	}

	switch p.State() {
	case goja.PromiseStateRejected:
		return &rejection{reason: p.Result()}
	case goja.PromiseStatePending:
		return ErrPendingResult
	}
	return nil
}

// rejection carries the reason of a rejected payload promise
type rejection struct {
	reason goja.Value
}

func (r *rejection) Error() string {
	if r.reason == nil || goja.IsUndefined(r.reason) {
		return "payload promise rejected"
	}
	return r.reason.String()
}
