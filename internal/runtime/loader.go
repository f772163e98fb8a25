package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/AgentOS/docworker/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/shared/fault"
	"go.uber.org/zap"
)

const (
	StatusLoading = "Loading runtime"
	StatusLoaded  = "Runtime loaded"
)

// Loader boots the runtime once. Every later Load returns the first
// outcome without touching the port again.
type Loader struct {
	config Config
	logger *zap.Logger

	once   sync.Once
	handle *Handle
	err    error
}

// NewLoader creates a loader for one worker lifetime
func NewLoader(config Config, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{config: config, logger: logger}
}

// Load boots the runtime, reporting progress on port. A failure is a
// fault.KindRuntimeLoad error and is never retried.
func (l *Loader) Load(ctx context.Context, port protocol.Port) (*Handle, error) {
	l.once.Do(func() {
		l.handle, l.err = l.load(ctx, port)
	})
	return l.handle, l.err
}

func (l *Loader) load(ctx context.Context, port protocol.Port) (*Handle, error) {
	if err := port.Post(protocol.Status(StatusLoading)); err != nil {
		return nil, fmt.Errorf("failed to post status: %w", err)
	}

	h, err := l.boot(ctx)
	if err != nil {
		ferr := fault.New(fault.KindRuntimeLoad).Subject("runtime").Cause(err).Build()
		l.logger.Error("Runtime failed to load", zap.Error(ferr))
		if perr := port.Post(protocol.Status(ferr.Summary)); perr != nil {
			l.logger.Warn("Failed to report load failure", zap.Error(perr))
		}
		return nil, ferr
	}

	if err := port.Post(protocol.Status(StatusLoaded)); err != nil {
		h.Close()
		return nil, fmt.Errorf("failed to post status: %w", err)
	}

	l.logger.Info("Runtime loaded", zap.Int("modules", len(h.Modules())))
	return h, nil
}

func (l *Loader) boot(ctx context.Context) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h, err := newHandle(l.config, l.logger)
	if err != nil {
		return nil, err
	}

	if l.config.Prelude != "" {
		if _, err := h.Run(ctx, "prelude.js", l.config.Prelude); err != nil {
			h.Close()
			return nil, err
		}
	}
	return h, nil
}
