package document

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrUnknownModel  = errors.New("unknown model")
	ErrDuplicateRoot = errors.New("model is already a root")
	ErrNotRoot       = errors.New("model is not a root")
)

// Document is the live, mutable document. It is owned by the worker
// goroutine; the mutex only protects readers such as metrics and tests.
type Document struct {
	mu sync.RWMutex

	id     string
	title  string
	models map[string]*Model
	order  []string // creation order
	roots  []string
	nextID int

	// models created since the last snapshot or patch
	unsynced []string

	callbacks []callbackEntry
	nextCB    int
	watchers  map[string]map[string][]Watcher

	location *Location
}

type callbackEntry struct {
	id int
	fn Callback
}

// New creates an empty document with a fresh id
func New() *Document {
	return &Document{
		id:       uuid.NewString(),
		models:   make(map[string]*Model),
		nextID:   1000,
		watchers: make(map[string]map[string][]Watcher),
		location: NewLocation(),
	}
}

// ID returns the document id
func (d *Document) ID() string {
	return d.id
}

// Title returns the document title
func (d *Document) Title() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.title
}

// Location returns the mirrored control-side location
func (d *Document) Location() *Location {
	return d.location
}

// NewModel creates a detached model. It becomes visible to the control side
// through the next snapshot or patch.
func (d *Document) NewModel(typ string, attrs map[string]any) Ref {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := fmt.Sprintf("p%d", d.nextID)

	copied := make(map[string]any, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}

	d.models[id] = &Model{ID: id, Type: typ, Attributes: copied}
	d.order = append(d.order, id)
	d.unsynced = append(d.unsynced, id)

	return Ref{ID: id}
}

// Model returns a copy of the model with the given id
func (d *Document) Model(id string) (Model, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.models[id]
	if !ok {
		return Model{}, false
	}
	return m.clone(), true
}

// Attr returns a single attribute value
func (d *Document) Attr(id, attr string) (any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.models[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	return m.Attributes[attr], nil
}

// Roots returns the root ids in order
func (d *Document) Roots() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string{}, d.roots...)
}

// Len returns the number of models
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.models)
}

// Set changes one attribute. Setting an attribute to its current value is
// a no-op and emits nothing.
func (d *Document) Set(id, attr string, value any, setter Setter) error {
	d.mu.Lock()
	m, ok := d.models[id]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	old, existed := m.Attributes[attr]
	if existed && reflect.DeepEqual(old, value) {
		d.mu.Unlock()
		return nil
	}
	m.Attributes[attr] = value
	watchers := append([]Watcher{}, d.watchers[id][attr]...)
	d.mu.Unlock()

	d.emit(Event{Kind: ModelChanged, Model: &Ref{ID: id}, Attr: attr, New: value}, setter)

	for _, w := range watchers {
		w(old, value, setter)
	}
	return nil
}

// AddRoot appends a model to the root list
func (d *Document) AddRoot(id string, setter Setter) error {
	d.mu.Lock()
	if _, ok := d.models[id]; !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	for _, r := range d.roots {
		if r == id {
			d.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicateRoot, id)
		}
	}
	d.roots = append(d.roots, id)
	d.mu.Unlock()

	d.emit(Event{Kind: RootAdded, Model: &Ref{ID: id}}, setter)
	return nil
}

// RemoveRoot detaches a root. The model itself stays in the document.
func (d *Document) RemoveRoot(id string, setter Setter) error {
	d.mu.Lock()
	idx := -1
	for i, r := range d.roots {
		if r == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRoot, id)
	}
	d.roots = append(d.roots[:idx], d.roots[idx+1:]...)
	d.mu.Unlock()

	d.emit(Event{Kind: RootRemoved, Model: &Ref{ID: id}}, setter)
	return nil
}

// SetTitle changes the document title
func (d *Document) SetTitle(title string, setter Setter) {
	d.mu.Lock()
	if d.title == title {
		d.mu.Unlock()
		return
	}
	d.title = title
	d.mu.Unlock()

	d.emit(Event{Kind: TitleChanged, Title: title}, setter)
}

// OnChange registers a callback for every event and returns a function that
// removes it again.
func (d *Document) OnChange(cb Callback) (unsubscribe func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextCB++
	id := d.nextCB
	d.callbacks = append(d.callbacks, callbackEntry{id: id, fn: cb})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, c := range d.callbacks {
			if c.id == id {
				d.callbacks = append(d.callbacks[:i], d.callbacks[i+1:]...)
				return
			}
		}
	}
}

// Watch registers a watcher for one attribute of one model
func (d *Document) Watch(id, attr string, w Watcher) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.models[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	if d.watchers[id] == nil {
		d.watchers[id] = make(map[string][]Watcher)
	}
	d.watchers[id][attr] = append(d.watchers[id][attr], w)
	return nil
}

// emit runs callbacks outside the lock so they may mutate the document
func (d *Document) emit(ev Event, setter Setter) {
	d.mu.RLock()
	callbacks := make([]Callback, len(d.callbacks))
	for i, c := range d.callbacks {
		callbacks[i] = c.fn
	}
	d.mu.RUnlock()

	for _, cb := range callbacks {
		cb(ev, setter)
	}
}

// adopt registers a model defined by the other side under its own id
func (d *Document) adopt(m Model) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.models[m.ID]; ok {
		return
	}
	attrs := m.Attributes
	if attrs == nil {
		attrs = make(map[string]any)
	}
	d.models[m.ID] = &Model{ID: m.ID, Type: m.Type, Attributes: attrs}
	d.order = append(d.order, m.ID)
}

func (d *Document) drainUnsynced() []Model {
	d.mu.Lock()
	defer d.mu.Unlock()

	refs := make([]Model, 0, len(d.unsynced))
	for _, id := range d.unsynced {
		if m, ok := d.models[id]; ok {
			refs = append(refs, m.clone())
		}
	}
	d.unsynced = nil
	return refs
}
