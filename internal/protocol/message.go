package protocol

import "encoding/json"

// Type tags a boundary message
type Type string

const (
	TypeStatus   Type = "status"
	TypeRender   Type = "render"
	TypePatch    Type = "patch"
	TypeIdle     Type = "idle"
	TypeRendered Type = "rendered"
	TypeLocation Type = "location"
)

// Message is a single unit crossing the worker boundary. Only the fields
// belonging to Type are populated.
type Message struct {
	Type Type `json:"type"`

	// status
	Msg string `json:"msg,omitempty"`

	// render
	DocsJSON    json.RawMessage `json:"docs_json,omitempty"`
	RenderItems json.RawMessage `json:"render_items,omitempty"`
	RootIDs     []string        `json:"root_ids,omitempty"`

	// patch (both directions). Buffers are only set on outbound patches and
	// are owned by the receiver once posted.
	Patch   json.RawMessage `json:"patch,omitempty"`
	Buffers [][]byte        `json:"buffers,omitempty"`

	// location
	Location string `json:"location,omitempty"`
}

// Status builds a status message
func Status(msg string) Message {
	return Message{Type: TypeStatus, Msg: msg}
}

// Render builds the initial snapshot message
func Render(docsJSON, renderItems json.RawMessage, rootIDs []string) Message {
	return Message{
		Type:        TypeRender,
		DocsJSON:    docsJSON,
		RenderItems: renderItems,
		RootIDs:     rootIDs,
	}
}

// Patch builds a patch message
func Patch(patch json.RawMessage, buffers [][]byte) Message {
	return Message{Type: TypePatch, Patch: patch, Buffers: buffers}
}

// Idle builds the inbound-patch acknowledgement
func Idle() Message {
	return Message{Type: TypeIdle}
}

// Rendered builds the control-side render acknowledgement
func Rendered() Message {
	return Message{Type: TypeRendered}
}

// Location builds a location update from an already JSON-encoded mapping
func Location(encoded string) Message {
	return Message{Type: TypeLocation, Location: encoded}
}

// Inbound reports whether t may be sent by the control side
func (t Type) Inbound() bool {
	switch t {
	case TypeRendered, TypePatch, TypeLocation:
		return true
	}
	return false
}

// Outbound reports whether t may be sent by the worker
func (t Type) Outbound() bool {
	switch t {
	case TypeStatus, TypeRender, TypePatch, TypeIdle:
		return true
	}
	return false
}
