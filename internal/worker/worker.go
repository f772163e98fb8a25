package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/AgentOS/docworker/internal/bridge"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/deps"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/executor"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/runtime"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/shared/fault"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/shared/id"
	"go.uber.org/zap"
)

// Config describes what a worker boots
type Config struct {
	Runtime      runtime.Config
	Dependencies []deps.Descriptor
	Payload      executor.Payload
}

// Session is the context shared by every component of one worker lifetime
type Session struct {
	ID      id.SessionID
	Runtime *runtime.Handle
	Bridge  *bridge.Bridge
	Report  deps.Report
}

// Option configures a Worker
type Option func(*Worker)

// WithResolver replaces the default registry resolver
func WithResolver(r deps.Resolver) Option {
	return func(w *Worker) { w.resolver = r }
}

// WithMetrics records worker metrics
func WithMetrics(m *monitoring.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithSessionID overrides the generated session id
func WithSessionID(sid id.SessionID) Option {
	return func(w *Worker) { w.id = sid }
}

// Worker is the message router of one worker lifetime
type Worker struct {
	id       id.SessionID
	config   Config
	port     protocol.Port
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	resolver deps.Resolver

	bootDone chan struct{}

	mu      sync.RWMutex
	state   State
	session *Session
	bootErr error
	ran     bool
}

// New creates a worker that posts outbound messages on port
func New(config Config, port protocol.Port, logger *zap.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Worker{
		config:   config,
		logger:   logger,
		state:    StateBooting,
		bootDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.id == "" {
		w.id = id.NewSessionID()
	}
	w.logger = w.logger.With(zap.String("session", w.id.String()))
	w.port = &countingPort{port: port, metrics: w.metrics}
	if w.resolver == nil {
		w.resolver = deps.NewRegistry(deps.DefaultRegistryConfig(), w.logger)
	}
	return w
}

// ID returns the session id
func (w *Worker) ID() id.SessionID {
	return w.id
}

// State returns the current lifecycle state
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Session returns the session once boot succeeded
func (w *Worker) Session() *Session {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.session
}

// BootDone is closed once boot has succeeded or failed
func (w *Worker) BootDone() <-chan struct{} {
	return w.bootDone
}

// BootErr returns the fatal boot error, nil while booting or after success
func (w *Worker) BootErr() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.bootErr
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = s
}

// Run boots the worker and routes inbound messages until inbox is closed or
// ctx ends. After a fatal boot error the inbox is still drained, so that
// late messages are dropped rather than blocking the sender, and Run returns
// the boot error.
func (w *Worker) Run(ctx context.Context, inbox <-chan protocol.Message) error {
	w.mu.Lock()
	if w.ran {
		w.mu.Unlock()
		return fmt.Errorf("worker %s already ran", w.id)
	}
	w.ran = true
	w.mu.Unlock()

	if w.metrics != nil {
		w.metrics.WorkerStarted()
		defer w.metrics.WorkerStopped()
	}

	w.logger.Info("Worker starting", zap.Int("dependencies", len(w.config.Dependencies)))
	defer w.teardown()

	if err := w.boot(ctx); err != nil {
		w.mu.Lock()
		w.state = StateFailed
		w.bootErr = err
		w.mu.Unlock()

		if kind := fault.KindOf(err); kind.Fatal() && w.metrics != nil {
			w.metrics.RecordBootFailure(string(kind))
		}
		w.logger.Error("Worker boot failed", zap.Error(err))
	}
	close(w.bootDone)

	for {
		select {
		case <-ctx.Done():
			return w.exit(ctx.Err())
		case msg, ok := <-inbox:
			if !ok {
				return w.exit(nil)
			}
			w.handle(msg)
		}
	}
}

func (w *Worker) exit(err error) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.bootErr != nil {
		return w.bootErr
	}
	return err
}

// boot runs load, install and execute, then posts the render
func (w *Worker) boot(ctx context.Context) error {
	timer := monitoring.NewTimer(w.metrics, "load")
	h, err := runtime.NewLoader(w.config.Runtime, w.logger).Load(ctx, w.port)
	timer.Stop()
	if err != nil {
		return err
	}

	session := &Session{ID: w.id, Runtime: h}
	w.mu.Lock()
	w.session = session
	w.mu.Unlock()

	timer = monitoring.NewTimer(w.metrics, "install")
	report, err := deps.NewInstaller(w.resolver, w.logger).InstallAll(ctx, h, w.port, w.config.Dependencies)
	timer.Stop()
	session.Report = report
	if w.metrics != nil {
		w.metrics.RecordInstalls(len(report.Installed), len(report.Failed))
	}
	if err != nil {
		return err
	}

	timer = monitoring.NewTimer(w.metrics, "execute")
	snap, err := executor.New(w.logger).Execute(ctx, h, w.port, w.config.Payload)
	timer.Stop()
	if err != nil {
		return err
	}

	session.Bridge = bridge.New(h.Document(), w.port, w.logger)

	if err := w.port.Post(protocol.Render(snap.DocsJSON, snap.RenderItems, snap.RootIDs)); err != nil {
		return fmt.Errorf("failed to post render: %w", err)
	}

	w.setState(StateBooted)
	w.logger.Info("Worker booted",
		zap.Strings("installed", report.Installed),
		zap.Strings("failed", report.FailedNames()),
		zap.Int("roots", len(snap.RootIDs)))
	return nil
}

// handle routes one inbound message
func (w *Worker) handle(msg protocol.Message) {
	if w.metrics != nil {
		w.metrics.RecordMessage("in", string(msg.Type))
	}

	state := w.State()
	if state == StateFailed {
		w.drop(msg, violationAfterFailure)
		return
	}

	switch msg.Type {
	case protocol.TypeRendered:
		if state != StateBooted {
			w.drop(msg, violationDuplicateRendered)
			return
		}
		if err := w.session.Bridge.Link(); err != nil {
			w.logger.Error("Failed to link document", zap.Error(err))
			return
		}
		w.setState(StateLinked)
		w.logger.Debug("Document linked")

	case protocol.TypePatch:
		if state != StateLinked {
			w.drop(msg, violationPatchBeforeLink)
			return
		}
		if err := w.session.Bridge.ApplyPatch(msg.Patch, msg.Buffers); err != nil {
			w.logger.Warn("Inbound patch rejected", zap.Error(err))
		}

	case protocol.TypeLocation:
		if state != StateLinked {
			w.drop(msg, violationLocationBeforeLink)
			return
		}
		keys, err := w.session.Bridge.MergeLocation(msg.Location)
		if err != nil {
			w.logger.Warn("Location update rejected", zap.Error(err))
			return
		}
		w.logger.Debug("Location merged", zap.Strings("keys", keys))

	default:
		w.drop(msg, violationUnexpectedType)
	}
}

func (w *Worker) drop(msg protocol.Message, reason string) {
	w.logger.Warn("Dropping out-of-protocol message",
		zap.String("type", string(msg.Type)),
		zap.String("reason", reason),
		zap.String("state", w.State().String()))
	if w.metrics != nil {
		w.metrics.RecordProtocolViolation(reason)
	}

	// the control side waits for idle after every patch it sends
	if msg.Type == protocol.TypePatch {
		if err := w.port.Post(protocol.Idle()); err != nil {
			w.logger.Warn("Failed to acknowledge dropped patch", zap.Error(err))
		}
	}
}

func (w *Worker) teardown() {
	s := w.Session()
	if s == nil {
		return
	}
	if s.Bridge != nil {
		s.Bridge.Close()
	}
	if s.Runtime != nil {
		s.Runtime.Close()
	}
	w.logger.Info("Worker stopped", zap.String("state", w.State().String()))
}

// countingPort records outbound messages before passing them on
type countingPort struct {
	port    protocol.Port
	metrics *monitoring.Metrics
}

func (p *countingPort) Post(msg protocol.Message) error {
	if p.metrics != nil {
		p.metrics.RecordMessage("out", string(msg.Type))
	}
	return p.port.Post(msg)
}
