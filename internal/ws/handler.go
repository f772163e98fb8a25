package ws

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/GriffinCanCode/AgentOS/docworker/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/shared/fault"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// maxCloseReason is the control frame payload limit minus the close code.
const maxCloseReason = 123

// Factory builds the worker serving one connection
type Factory func(port protocol.Port, logger *zap.Logger) *worker.Worker

// Config defines connection limits
type Config struct {
	InboxSize       int
	MaxMessageBytes int64
	WriteTimeout    time.Duration
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConfig returns the connection defaults
func DefaultConfig() Config {
	return Config{
		InboxSize:       64,
		MaxMessageBytes: 16 << 20,
		WriteTimeout:    10 * time.Second,
	}
}

// Info describes one live connection
type Info struct {
	Connection string    `json:"connection"`
	Session    string    `json:"session"`
	State      string    `json:"state"`
	Connected  time.Time `json:"connected"`
}

type entry struct {
	conn      id.ConnectionID
	worker    *worker.Worker
	connected time.Time
}

// Handler serves one worker per websocket connection
type Handler struct {
	config   Config
	factory  Factory
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	conns map[id.ConnectionID]*entry
}

// NewHandler creates a websocket handler. metrics may be nil.
func NewHandler(config Config, factory Factory, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.InboxSize <= 0 {
		config.InboxSize = DefaultConfig().InboxSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}
	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		// Origins are enforced by the CORS middleware in front of the route.
		checkOrigin = func(r *http.Request) bool { return true }
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		config:  config,
		factory: factory,
		metrics: metrics,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:       checkOrigin,
			EnableCompression: true,
		},
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[id.ConnectionID]*entry),
	}
}

// HandleConnection upgrades the request and runs a worker until either
// side goes away
func (h *Handler) HandleConnection(c *gin.Context) {
	if h.ctx.Err() != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	h.wg.Add(1)
	defer h.wg.Done()

	if h.config.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.config.MaxMessageBytes)
	}
	// The reply close frame is sent once the worker has stopped.
	conn.SetCloseHandler(func(int, string) error { return nil })

	connID := id.NewConnectionID()
	logger := h.logger.With(zap.String("connection", connID.String()))
	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	port := &connPort{conn: conn, timeout: h.config.WriteTimeout}
	inbox := protocol.NewChannel(h.config.InboxSize)
	w := h.factory(port, logger)

	h.track(connID, w)
	defer h.untrack(connID)

	logger.Info("WebSocket connected",
		zap.String("session", w.ID().String()),
		zap.String("remote", c.ClientIP()))

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		defer inbox.Close()
		h.readLoop(conn, inbox, logger)
	}()

	// A failed boot ends the connection right away with its summary
	runCtx, stopRun := context.WithCancel(h.ctx)
	defer stopRun()
	go func() {
		select {
		case <-w.BootDone():
			if w.BootErr() != nil {
				stopRun()
			}
		case <-runCtx.Done():
		}
	}()

	runErr := w.Run(runCtx, inbox.Messages())

	port.close(closeFrame(runErr))
	inbox.Close()
	conn.Close()
	<-readDone

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Warn("WebSocket worker ended with error", zap.Error(runErr))
		return
	}
	logger.Info("WebSocket disconnected")
}

// readLoop decodes frames into the inbox until the peer disconnects
func (h *Handler) readLoop(conn *websocket.Conn, inbox *protocol.Channel, logger *zap.Logger) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			h.violation(logger, "binary_frame", nil)
			continue
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			h.violation(logger, "malformed", err)
			continue
		}
		if err := inbox.Post(msg); err != nil {
			return
		}
	}
}

func (h *Handler) violation(logger *zap.Logger, reason string, err error) {
	logger.Warn("Dropping unreadable frame", zap.String("reason", reason), zap.Error(err))
	if h.metrics != nil {
		h.metrics.RecordProtocolViolation(reason)
	}
}

func (h *Handler) track(connID id.ConnectionID, w *worker.Worker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[connID] = &entry{conn: connID, worker: w, connected: time.Now()}
}

func (h *Handler) untrack(connID id.ConnectionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, connID)
}

// Active returns the number of live connections
func (h *Handler) Active() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// List describes the live connections, oldest first
func (h *Handler) List() []Info {
	h.mu.RLock()
	infos := make([]Info, 0, len(h.conns))
	for _, e := range h.conns {
		infos = append(infos, Info{
			Connection: e.conn.String(),
			Session:    e.worker.ID().String(),
			State:      e.worker.State().String(),
			Connected:  e.connected,
		})
	}
	h.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Connected.Before(infos[j].Connected)
	})
	return infos
}

// Shutdown stops every worker and waits for their connections to close
func (h *Handler) Shutdown(ctx context.Context) error {
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// closeFrame picks the close code reported to the peer
func closeFrame(err error) []byte {
	switch {
	case err == nil:
		return websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	case errors.Is(err, context.Canceled):
		return websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
	}

	reason := fault.SummaryOf(err)
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
		// close reasons must stay valid UTF-8
		for len(reason) > 0 && !utf8.ValidString(reason) {
			reason = reason[:len(reason)-1]
		}
	}
	return websocket.FormatCloseMessage(websocket.CloseInternalServerErr, reason)
}
