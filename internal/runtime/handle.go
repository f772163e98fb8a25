package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/GriffinCanCode/AgentOS/docworker/internal/document"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("runtime is closed")

// Handle is a loaded runtime together with the document it builds
type Handle struct {
	vm     *goja.Runtime
	config Config
	logger *zap.Logger
	doc    *document.Document

	modules map[string]*module
	order   []string

	closed bool
}

func newHandle(config Config, logger *zap.Logger) (*Handle, error) {
	vm := goja.New()

	if config.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(config.MaxCallStackSize)
	}

	h := &Handle{
		vm:      vm,
		config:  config,
		logger:  logger,
		doc:     document.New(),
		modules: make(map[string]*module),
	}

	if err := h.setupGlobals(); err != nil {
		return nil, err
	}
	return h, nil
}

// Document returns the live document
func (h *Handle) Document() *document.Document {
	return h.doc
}

// VM exposes the underlying runtime for value inspection
func (h *Handle) VM() *goja.Runtime {
	return h.vm
}

// Run compiles and executes a script. Cancelling ctx interrupts it.
func (h *Handle) Run(ctx context.Context, name, src string) (goja.Value, error) {
	if h.closed {
		return nil, ErrClosed
	}

	prog, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			h.vm.Interrupt("context cancelled")
		case <-done:
		}
	}()

	val, err := h.vm.RunProgram(prog)

	close(done)
	wg.Wait()
	h.vm.ClearInterrupt()

	return val, err
}

// Close releases the runtime. The document stays readable.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.modules = nil
	h.order = nil
	return nil
}

// setupGlobals configures global objects and security
func (h *Handle) setupGlobals() error {
	// Remove dangerous globals
	for _, name := range []string{"process", "module", "exports"} {
		if err := h.vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	if err := h.vm.Set("require", h.requireFrom("")); err != nil {
		return err
	}

	console := h.vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error"} {
		if err := console.Set(level, h.makeConsoleFunc(level)); err != nil {
			return err
		}
	}
	if err := h.vm.Set("console", console); err != nil {
		return err
	}

	// Timers are inert: nothing drives an event loop between messages
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	for _, name := range []string{"setTimeout", "setInterval", "clearTimeout", "clearInterval"} {
		if err := h.vm.Set(name, noop); err != nil {
			return err
		}
	}

	if err := h.vm.Set("doc", h.newDocBinding()); err != nil {
		return fmt.Errorf("failed to bind document: %w", err)
	}
	if err := h.vm.Set("location", h.newLocationBinding()); err != nil {
		return fmt.Errorf("failed to bind location: %w", err)
	}
	return nil
}

// makeConsoleFunc forwards console output to the logger
func (h *Handle) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if !h.config.EnableConsole {
			return goja.Undefined()
		}

		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		msg := strings.Join(parts, " ")

		switch level {
		case "warn":
			h.logger.Warn(msg, zap.String("source", "console"))
		case "error":
			h.logger.Error(msg, zap.String("source", "console"))
		default:
			h.logger.Info(msg, zap.String("source", "console"))
		}
		return goja.Undefined()
	}
}

// invoke calls a script function from Go. Errors are logged, not returned:
// a failing handler must not break the document mutation that triggered it.
func (h *Handle) invoke(fn goja.Callable, what string, args ...goja.Value) {
	if h.closed {
		return
	}
	if _, err := fn(goja.Undefined(), args...); err != nil {
		h.logger.Warn("Script handler failed", zap.String("handler", what), zap.Error(err))
	}
}

// throw raises a script exception from inside a Go binding
func (h *Handle) throw(format string, args ...any) {
	panic(h.vm.NewGoError(fmt.Errorf(format, args...)))
}
