package ws

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/GriffinCanCode/AgentOS/docworker/internal/executor"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/runtime"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const app = `
var label = doc.model('Div', { text: 'search none' });
location.on('search', function(old, v) { label.set('text', 'search ' + v); });
doc.addRoot(label);
`

type fixture struct {
	handler *Handler
	metrics *monitoring.Metrics
	server  *httptest.Server
}

func newFixture(t *testing.T, source string) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	metrics := monitoring.NewMetrics()
	factory := func(port protocol.Port, logger *zap.Logger) *worker.Worker {
		return worker.New(worker.Config{
			Runtime: runtime.DefaultConfig(),
			Payload: executor.Payload{Source: source},
		}, port, logger, worker.WithMetrics(metrics))
	}
	handler := NewHandler(DefaultConfig(), factory, metrics, zap.NewNop())

	router := gin.New()
	router.GET("/worker", handler.HandleConnection)
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = handler.Shutdown(ctx)
		server.Close()
	})
	return &fixture{handler: handler, metrics: metrics, server: server}
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/worker"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.Decode(data)
	require.NoError(t, err)
	return msg
}

func write(t *testing.T, conn *websocket.Conn, msg protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

// readUntil collects messages up to and including the first of type typ
func readUntil(t *testing.T, conn *websocket.Conn, typ protocol.Type) []protocol.Message {
	t.Helper()
	var msgs []protocol.Message
	for {
		msg := read(t, conn)
		msgs = append(msgs, msg)
		if msg.Type == typ {
			return msgs
		}
	}
}

func TestConnectionBootsWorker(t *testing.T) {
	f := newFixture(t, app)
	conn := f.dial(t)

	msgs := readUntil(t, conn, protocol.TypeRender)

	var statuses []string
	for _, m := range msgs[:len(msgs)-1] {
		require.Equal(t, protocol.TypeStatus, m.Type)
		statuses = append(statuses, m.Msg)
	}
	assert.Equal(t, []string{runtime.StatusLoading, runtime.StatusLoaded, executor.StatusExecuting}, statuses)

	render := msgs[len(msgs)-1]
	assert.Len(t, render.RootIDs, 1)
	assert.NotEmpty(t, render.DocsJSON)

	assert.Eventually(t, func() bool { return f.handler.Active() == 1 }, time.Second, 10*time.Millisecond)
	infos := f.handler.List()
	require.Len(t, infos, 1)
	assert.True(t, strings.HasPrefix(infos[0].Connection, "conn_"))
	assert.True(t, strings.HasPrefix(infos[0].Session, "sess_"))
}

func TestLocationProducesPatch(t *testing.T) {
	f := newFixture(t, app)
	conn := f.dial(t)
	readUntil(t, conn, protocol.TypeRender)

	write(t, conn, protocol.Rendered())
	write(t, conn, protocol.Location(`{"search": "?q=1"}`))

	patch := read(t, conn)
	require.Equal(t, protocol.TypePatch, patch.Type)
	assert.Contains(t, string(patch.Patch), "search ?q=1")

	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.Messages.WithLabelValues("in", "location")))
}

func TestMalformedFrameIsSkipped(t *testing.T) {
	f := newFixture(t, app)
	conn := f.dial(t)
	readUntil(t, conn, protocol.TypeRender)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"reboot"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	write(t, conn, protocol.Rendered())
	write(t, conn, protocol.Location(`{"search": "?q=2"}`))

	patch := read(t, conn)
	require.Equal(t, protocol.TypePatch, patch.Type)
	assert.Equal(t, 2.0, promtest.ToFloat64(f.metrics.ProtocolViolations.WithLabelValues("malformed")))
}

func TestFailedBootClosesWithSummary(t *testing.T) {
	f := newFixture(t, `throw new TypeError("no document today")`)
	conn := f.dial(t)

	for {
		msg := read(t, conn)
		if msg.Msg == "TypeError: no document today" {
			break
		}
		require.Equal(t, protocol.TypeStatus, msg.Type)
	}

	// the server closes without waiting for the peer
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr), "got %v", err)
	assert.Equal(t, websocket.CloseInternalServerErr, closeErr.Code)
	assert.Equal(t, "TypeError: no document today", closeErr.Text)

	assert.Eventually(t, func() bool { return f.handler.Active() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestClientDisconnectReleasesWorker(t *testing.T) {
	f := newFixture(t, app)
	conn := f.dial(t)
	readUntil(t, conn, protocol.TypeRender)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return f.handler.Active() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return promtest.ToFloat64(f.metrics.WSConnections) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestShutdownClosesConnections(t *testing.T) {
	f := newFixture(t, app)
	conn := f.dial(t)
	readUntil(t, conn, protocol.TypeRender)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.handler.Shutdown(ctx))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr), "got %v", err)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/worker"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 503, resp.StatusCode)
}

func TestCloseFrame(t *testing.T) {
	long := errors.New(strings.Repeat("x", 300))
	frame := closeFrame(long)
	assert.LessOrEqual(t, len(frame), 125)

	// a two-byte rune straddling the limit is dropped whole
	frame = closeFrame(errors.New(strings.Repeat("a", maxCloseReason-1) + "é"))
	reason := string(frame[2:])
	assert.True(t, utf8.ValidString(reason))
	assert.Equal(t, strings.Repeat("a", maxCloseReason-1), reason)

	assert.Equal(t, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), closeFrame(nil))
}
