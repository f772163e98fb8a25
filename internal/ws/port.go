package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/docworker/internal/protocol"
	"github.com/gorilla/websocket"
)

// connPort posts protocol messages as text frames. gorilla connections
// allow one concurrent writer, so writes are serialized.
type connPort struct {
	conn    *websocket.Conn
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

func (p *connPort) Post(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return protocol.ErrClosed
	}
	if err := p.conn.SetWriteDeadline(time.Now().Add(p.timeout)); err != nil {
		return err
	}
	if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return protocol.ErrClosed
		}
		return err
	}
	return nil
}

// close sends the close frame once; later posts fail with ErrClosed
func (p *connPort) close(frame []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	_ = p.conn.WriteControl(websocket.CloseMessage, frame, time.Now().Add(p.timeout))
}
