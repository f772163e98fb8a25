package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
)

const bufferKey = "__buffer__"

var ErrInvalidPatch = errors.New("invalid patch")

// CreatePatch serializes events into the wire form. Models created since
// the last snapshot or patch are attached as references, and byte slices are
// moved into the returned buffer list.
func (d *Document) CreatePatch(events ...Event) (json.RawMessage, [][]byte, error) {
	enc := &bufferEncoder{}

	p := Patch{
		Events:     make([]Event, len(events)),
		References: d.drainUnsynced(),
	}
	for i, ev := range events {
		ev.New = enc.value(ev.New)
		p.Events[i] = ev
	}
	for i := range p.References {
		p.References[i].Attributes = enc.attrs(p.References[i].Attributes)
	}

	data, err := sonic.Marshal(p)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode patch: %w", err)
	}
	return data, enc.buffers, nil
}

// DecodePatch converts a wire patch into the native representation,
// resolving buffer references against buffers.
func DecodePatch(raw json.RawMessage, buffers [][]byte) (*Patch, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidPatch)
	}

	var p Patch
	if err := sonic.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	for i := range p.Events {
		v, err := resolveBuffers(p.Events[i].New, buffers)
		if err != nil {
			return nil, err
		}
		p.Events[i].New = v
	}
	for i := range p.References {
		for k, attr := range p.References[i].Attributes {
			v, err := resolveBuffers(attr, buffers)
			if err != nil {
				return nil, err
			}
			p.References[i].Attributes[k] = v
		}
	}
	return &p, nil
}

// ApplyPatch validates every event before applying any of them, then
// applies them in order tagged with setter.
func (d *Document) ApplyPatch(p *Patch, setter Setter) error {
	if err := d.validate(p); err != nil {
		return err
	}

	for _, ref := range p.References {
		d.adopt(ref)
	}

	for _, ev := range p.Events {
		var err error
		switch ev.Kind {
		case ModelChanged:
			err = d.Set(ev.Model.ID, ev.Attr, ev.New, setter)
		case RootAdded:
			err = d.AddRoot(ev.Model.ID, setter)
			if errors.Is(err, ErrDuplicateRoot) {
				err = nil
			}
		case RootRemoved:
			err = d.RemoveRoot(ev.Model.ID, setter)
			if errors.Is(err, ErrNotRoot) {
				err = nil
			}
		case TitleChanged:
			d.SetTitle(ev.Title, setter)
		}
		if err != nil {
			return fmt.Errorf("failed to apply %s: %w", ev.Kind, err)
		}
	}
	return nil
}

func (d *Document) validate(p *Patch) error {
	if p == nil {
		return fmt.Errorf("%w: nil patch", ErrInvalidPatch)
	}

	incoming := make(map[string]bool, len(p.References))
	for _, ref := range p.References {
		if ref.ID == "" || ref.Type == "" {
			return fmt.Errorf("%w: reference without id or type", ErrInvalidPatch)
		}
		incoming[ref.ID] = true
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	for i, ev := range p.Events {
		switch ev.Kind {
		case ModelChanged, RootAdded, RootRemoved:
			if ev.Model == nil || ev.Model.ID == "" {
				return fmt.Errorf("%w: event %d (%s) has no model", ErrInvalidPatch, i, ev.Kind)
			}
			if _, ok := d.models[ev.Model.ID]; !ok && !incoming[ev.Model.ID] {
				return fmt.Errorf("%w: event %d references %s", ErrUnknownModel, i, ev.Model.ID)
			}
			if ev.Kind == ModelChanged && ev.Attr == "" {
				return fmt.Errorf("%w: event %d has no attribute", ErrInvalidPatch, i)
			}
		case TitleChanged:
		default:
			return fmt.Errorf("%w: event %d has unknown kind %q", ErrInvalidPatch, i, ev.Kind)
		}
	}
	return nil
}

type bufferEncoder struct {
	buffers [][]byte
}

func (e *bufferEncoder) value(v any) any {
	switch t := v.(type) {
	case []byte:
		if e == nil {
			return t
		}
		idx := len(e.buffers)
		e.buffers = append(e.buffers, t)
		return map[string]any{bufferKey: strconv.Itoa(idx)}
	case map[string]any:
		return e.attrs(t)
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = e.value(x)
		}
		return out
	default:
		return v
	}
}

func (e *bufferEncoder) attrs(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = e.value(v)
	}
	return out
}

func resolveBuffers(v any, buffers [][]byte) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if ref, ok := t[bufferKey]; ok && len(t) == 1 {
			s, _ := ref.(string)
			idx, err := strconv.Atoi(s)
			if err != nil || idx < 0 || idx >= len(buffers) {
				return nil, fmt.Errorf("%w: buffer reference %v out of range", ErrInvalidPatch, ref)
			}
			return buffers[idx], nil
		}
		for k, x := range t {
			r, err := resolveBuffers(x, buffers)
			if err != nil {
				return nil, err
			}
			t[k] = r
		}
		return t, nil
	case []any:
		for i, x := range t {
			r, err := resolveBuffers(x, buffers)
			if err != nil {
				return nil, err
			}
			t[i] = r
		}
		return t, nil
	default:
		return v, nil
	}
}
