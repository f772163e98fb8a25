package document

import "encoding/json"

// Setter tags the origin of a mutation
type Setter string

const (
	// SetterInternal marks changes made by application code in the runtime
	SetterInternal Setter = ""
	// SetterExternal marks changes applied on behalf of the control side
	SetterExternal Setter = "external"
)

// Model is a node of the document graph
type Model struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Attributes map[string]any `json:"attributes"`
}

// Ref points at a model by id
type Ref struct {
	ID string `json:"id"`
}

// EventKind identifies the mutation an Event describes
type EventKind string

const (
	ModelChanged EventKind = "ModelChanged"
	RootAdded    EventKind = "RootAdded"
	RootRemoved  EventKind = "RootRemoved"
	TitleChanged EventKind = "TitleChanged"
)

// Event describes one document mutation
type Event struct {
	Kind  EventKind `json:"kind"`
	Model *Ref      `json:"model,omitempty"`
	Attr  string    `json:"attr,omitempty"`
	New   any       `json:"new,omitempty"`
	Title string    `json:"title,omitempty"`
}

// Patch is the document's native delta representation
type Patch struct {
	Events     []Event `json:"events"`
	References []Model `json:"references,omitempty"`
}

// Snapshot is the serialized document at first render
type Snapshot struct {
	DocsJSON    json.RawMessage
	RenderItems json.RawMessage
	RootIDs     []string
}

// Callback receives every event together with the setter that caused it
type Callback func(ev Event, setter Setter)

// Watcher receives changes of a single model attribute
type Watcher func(old, new any, setter Setter)

func (m *Model) clone() Model {
	attrs := make(map[string]any, len(m.Attributes))
	for k, v := range m.Attributes {
		attrs[k] = v
	}
	return Model{ID: m.ID, Type: m.Type, Attributes: attrs}
}
