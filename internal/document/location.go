package document

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var (
	ErrReadonly   = errors.New("location is read-only")
	ErrUnknownKey = errors.New("unrecognized location key")
)

// LocationKeys lists the fields a Location recognizes
var LocationKeys = []string{"href", "protocol", "hostname", "port", "pathname", "search", "hash", "reload"}

// Location mirrors the control side's navigable state. Application code
// may only read it; updates are accepted inside EditReadonly.
type Location struct {
	mu       sync.Mutex
	fields   map[string]any
	readonly bool
	watchers map[string][]func(old, new any)
}

// NewLocation creates a read-only location with empty fields
func NewLocation() *Location {
	fields := make(map[string]any, len(LocationKeys))
	for _, k := range LocationKeys {
		fields[k] = ""
	}
	fields["reload"] = false

	return &Location{
		fields:   fields,
		readonly: true,
		watchers: make(map[string][]func(old, new any)),
	}
}

// Recognizes reports whether key is a location field
func (l *Location) Recognizes(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.fields[key]
	return ok
}

// Get returns a field value
func (l *Location) Get(key string) any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fields[key]
}

// Fields returns a copy of all fields
func (l *Location) Fields() map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]any, len(l.fields))
	for k, v := range l.fields {
		out[k] = v
	}
	return out
}

// Readonly reports whether updates are currently rejected
func (l *Location) Readonly() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readonly
}

// Update sets several fields at once. Every key must be recognized; nothing
// is changed otherwise.
func (l *Location) Update(values map[string]any) error {
	type change struct {
		key      string
		old, new any
	}

	l.mu.Lock()
	if l.readonly {
		l.mu.Unlock()
		return ErrReadonly
	}
	for k := range values {
		if _, ok := l.fields[k]; !ok {
			l.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrUnknownKey, k)
		}
	}

	var changes []change
	var fire []func()
	for k, v := range values {
		old := l.fields[k]
		if reflect.DeepEqual(old, v) {
			continue
		}
		l.fields[k] = v
		changes = append(changes, change{key: k, old: old, new: v})
	}
	for _, c := range changes {
		for _, w := range l.watchers[c.key] {
			w, c := w, c
			fire = append(fire, func() { w(c.old, c.new) })
		}
	}
	l.mu.Unlock()

	for _, f := range fire {
		f()
	}
	return nil
}

// EditReadonly lifts read-only protection while fn runs and restores the
// previous protection afterwards, even if fn fails or panics.
func (l *Location) EditReadonly(fn func() error) error {
	l.mu.Lock()
	prev := l.readonly
	l.readonly = false
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.readonly = prev
		l.mu.Unlock()
	}()

	return fn()
}

// Watch registers fn for changes of key
func (l *Location) Watch(key string, fn func(old, new any)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.fields[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	l.watchers[key] = append(l.watchers[key], fn)
	return nil
}
