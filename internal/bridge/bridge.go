package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/GriffinCanCode/AgentOS/docworker/internal/document"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/protocol"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

var (
	ErrNotLinked       = errors.New("bridge is not linked")
	ErrAlreadyLinked   = errors.New("bridge is already linked")
	ErrPatchInFlight   = errors.New("a patch is already being applied")
	ErrInvalidLocation = errors.New("invalid location payload")
)

// Bridge synchronizes one document with the control side
type Bridge struct {
	doc    *document.Document
	port   protocol.Port
	logger *zap.Logger

	mu       sync.Mutex
	linked   bool
	inFlight bool
	unlink   func()
}

// New creates an unlinked bridge for doc posting on port
func New(doc *document.Document, port protocol.Port, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{doc: doc, port: port, logger: logger}
}

// Link starts forwarding document mutations. It may only happen once.
func (b *Bridge) Link() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.linked {
		return ErrAlreadyLinked
	}
	b.linked = true
	b.unlink = b.doc.OnChange(b.forward)
	b.logger.Debug("Document linked", zap.String("document", b.doc.ID()))
	return nil
}

// Linked reports whether Link has happened
func (b *Bridge) Linked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.linked
}

// forward posts a patch for every mutation that did not come from the
// control side
func (b *Bridge) forward(ev document.Event, setter document.Setter) {
	if setter == document.SetterExternal {
		return
	}

	patch, buffers, err := b.doc.CreatePatch(ev)
	if err != nil {
		b.logger.Error("Failed to create patch", zap.String("event", string(ev.Kind)), zap.Error(err))
		return
	}
	if err := b.port.Post(protocol.Patch(patch, buffers)); err != nil {
		b.logger.Warn("Failed to post patch", zap.Error(err))
	}
}

// ApplyPatch applies an inbound patch without echoing it and acknowledges
// it with idle. The acknowledgement is posted even when the patch is
// rejected so the control side never waits forever.
func (b *Bridge) ApplyPatch(raw json.RawMessage, buffers [][]byte) error {
	b.mu.Lock()
	if !b.linked {
		b.mu.Unlock()
		return ErrNotLinked
	}
	if b.inFlight {
		b.mu.Unlock()
		return ErrPatchInFlight
	}
	b.inFlight = true
	b.mu.Unlock()

	applyErr := b.apply(raw, buffers)

	b.mu.Lock()
	b.inFlight = false
	b.mu.Unlock()

	if err := b.port.Post(protocol.Idle()); err != nil {
		return fmt.Errorf("failed to post idle: %w", err)
	}
	return applyErr
}

func (b *Bridge) apply(raw json.RawMessage, buffers [][]byte) error {
	p, err := document.DecodePatch(raw, buffers)
	if err != nil {
		return err
	}
	if err := b.doc.ApplyPatch(p, document.SetterExternal); err != nil {
		return err
	}
	b.logger.Debug("Patch applied", zap.Int("events", len(p.Events)))
	return nil
}

// MergeLocation merges recognized keys of an encoded location mapping into
// the document location and returns the keys it merged. Unknown keys are
// dropped.
func (b *Bridge) MergeLocation(encoded string) ([]string, error) {
	if !b.Linked() {
		return nil, ErrNotLinked
	}

	var values map[string]any
	if err := sonic.UnmarshalString(encoded, &values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}

	loc := b.doc.Location()
	recognized := make(map[string]any, len(values))
	var dropped []string
	for k, v := range values {
		if loc.Recognizes(k) {
			recognized[k] = v
		} else {
			dropped = append(dropped, k)
		}
	}
	if len(dropped) > 0 {
		sort.Strings(dropped)
		b.logger.Debug("Ignoring unrecognized location keys", zap.Strings("keys", dropped))
	}

	err := loc.EditReadonly(func() error {
		return loc.Update(recognized)
	})
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(recognized))
	for k := range recognized {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close stops forwarding mutations
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unlink != nil {
		b.unlink()
		b.unlink = nil
	}
}
