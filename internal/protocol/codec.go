package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

var ErrUnknownType = errors.New("unknown message type")

// render and patch always carry their sequences, empty or not
type renderWire struct {
	Type        Type            `json:"type"`
	DocsJSON    json.RawMessage `json:"docs_json"`
	RenderItems json.RawMessage `json:"render_items"`
	RootIDs     []string        `json:"root_ids"`
}

type patchWire struct {
	Type    Type            `json:"type"`
	Patch   json.RawMessage `json:"patch"`
	Buffers [][]byte        `json:"buffers"`
}

// Encode serializes a message for a byte-oriented transport
func Encode(msg Message) ([]byte, error) {
	var v any = msg
	switch msg.Type {
	case TypeRender:
		rootIDs := msg.RootIDs
		if rootIDs == nil {
			rootIDs = []string{}
		}
		v = renderWire{Type: msg.Type, DocsJSON: msg.DocsJSON, RenderItems: msg.RenderItems, RootIDs: rootIDs}
	case TypePatch:
		buffers := msg.Buffers
		if buffers == nil {
			buffers = [][]byte{}
		}
		v = patchWire{Type: msg.Type, Patch: msg.Patch, Buffers: buffers}
	}

	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s message: %w", msg.Type, err)
	}
	return data, nil
}

// Decode parses a message received from a byte-oriented transport.
// Messages with an empty or unknown type tag are rejected.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("failed to decode message: %w", err)
	}
	if !msg.Type.Inbound() && !msg.Type.Outbound() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
	return msg, nil
}
