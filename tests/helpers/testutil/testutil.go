// Package testutil provides testing utilities and helpers for worker tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/docworker/internal/deps"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/runtime"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// RecordingPort is a protocol.Port that keeps every posted message.
type RecordingPort struct {
	mu       sync.Mutex
	messages []protocol.Message
	notify   chan struct{}
	err      error
}

// NewRecordingPort creates an empty recording port.
func NewRecordingPort() *RecordingPort {
	return &RecordingPort{notify: make(chan struct{}, 1)}
}

// Post records msg.
func (p *RecordingPort) Post(msg protocol.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)

	select {
	case p.notify <- struct{}{}:
	default:
	}
	return nil
}

// FailWith makes every later Post return err.
func (p *RecordingPort) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Messages returns a copy of everything posted so far.
func (p *RecordingPort) Messages() []protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.Message{}, p.messages...)
}

// Types returns the type tags of everything posted so far.
func (p *RecordingPort) Types() []protocol.Type {
	msgs := p.Messages()
	out := make([]protocol.Type, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

// Statuses returns the text of every status message in order.
func (p *RecordingPort) Statuses() []string {
	var out []string
	for _, m := range p.Messages() {
		if m.Type == protocol.TypeStatus {
			out = append(out, m.Msg)
		}
	}
	return out
}

// OfType returns the messages with the given tag.
func (p *RecordingPort) OfType(t protocol.Type) []protocol.Message {
	return FilterType(p.Messages(), t)
}

// WaitFor blocks until at least n messages of type t were posted.
func (p *RecordingPort) WaitFor(t *testing.T, typ protocol.Type, n int) []protocol.Message {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		if got := p.OfType(typ); len(got) >= n {
			return got
		}
		select {
		case <-p.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			require.FailNowf(t, "timed out", "waiting for %d %s messages, have %v", n, typ, p.Types())
		}
	}
}

// FilterType returns the messages of msgs with the given tag.
func FilterType(msgs []protocol.Message, t protocol.Type) []protocol.Message {
	var out []protocol.Message
	for _, m := range msgs {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

// MockResolver is a mock implementation of deps.Resolver for testing.
type MockResolver struct {
	mock.Mock
}

// Install mocks the Install method.
func (m *MockResolver) Install(ctx context.Context, h *runtime.Handle, d deps.Descriptor) error {
	args := m.Called(ctx, h, d)
	return args.Error(0)
}

// NewMockResolver creates a resolver that fails for the given display
// names and installs an empty module for everything else.
func NewMockResolver(t *testing.T, failing ...string) *MockResolver {
	t.Helper()
	m := new(MockResolver)

	for _, name := range failing {
		name := name
		m.On("Install", mock.Anything, mock.Anything, mock.MatchedBy(func(d deps.Descriptor) bool {
			return d.DisplayName() == name
		})).Return(deps.ErrNotFound).Maybe()
	}

	m.On("Install", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			h := args.Get(1).(*runtime.Handle)
			d := args.Get(2).(deps.Descriptor)
			if h != nil && !h.HasModule(d.Name) {
				_ = h.InstallModule(d.Name, d.Name+".js", "module.exports = {};")
			}
		}).
		Return(nil).
		Maybe()

	return m
}
