package protocol

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("boundary channel is closed")

// Port is one direction of the boundary: the sending side posts, the other
// side receives in the same order.
type Port interface {
	Post(msg Message) error
}

// PortFunc adapts a function to Port
type PortFunc func(msg Message) error

// Post calls f(msg)
func (f PortFunc) Post(msg Message) error {
	return f(msg)
}

// Channel is an in-process, ordered, reliable one-way boundary.
// Post blocks while the buffer is full, so delivery order always equals
// post order.
type Channel struct {
	mu     sync.RWMutex
	ch     chan Message
	done   chan struct{}
	once   sync.Once
	closed bool
}

// NewChannel creates a channel buffering up to size messages
func NewChannel(size int) *Channel {
	if size < 0 {
		size = 0
	}
	return &Channel{
		ch:   make(chan Message, size),
		done: make(chan struct{}),
	}
}

// Post delivers msg. Buffers referenced by msg are handed over to the
// receiver and must not be modified by the sender afterwards.
func (c *Channel) Post(msg Message) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClosed
	}

	select {
	case c.ch <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Messages returns the receive side
func (c *Channel) Messages() <-chan Message {
	return c.ch
}

// Close stops delivery and unblocks pending posts. Messages already
// delivered to the buffer remain readable.
func (c *Channel) Close() {
	c.once.Do(func() {
		close(c.done)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.closed = true
		close(c.ch)
	})
}
