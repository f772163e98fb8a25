package document

import (
	"encoding/json"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	ev     Event
	setter Setter
}

func record(d *Document) *[]recorded {
	var events []recorded
	d.OnChange(func(ev Event, setter Setter) {
		events = append(events, recorded{ev: ev, setter: setter})
	})
	return &events
}

func TestSetEmitsModelChanged(t *testing.T) {
	d := New()
	slider := d.NewModel("Slider", map[string]any{"value": int64(1)})
	events := record(d)

	require.NoError(t, d.Set(slider.ID, "value", int64(5), SetterInternal))
	require.NoError(t, d.Set(slider.ID, "value", int64(5), SetterInternal)) // no-op

	require.Len(t, *events, 1)
	got := (*events)[0]
	assert.Equal(t, ModelChanged, got.ev.Kind)
	assert.Equal(t, slider.ID, got.ev.Model.ID)
	assert.Equal(t, "value", got.ev.Attr)
	assert.Equal(t, int64(5), got.ev.New)
	assert.Equal(t, SetterInternal, got.setter)

	v, err := d.Attr(slider.ID, "value")
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
}

func TestSetUnknownModel(t *testing.T) {
	d := New()
	err := d.Set("p9999", "value", 1, SetterInternal)
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestRoots(t *testing.T) {
	d := New()
	col := d.NewModel("Column", nil)
	events := record(d)

	require.NoError(t, d.AddRoot(col.ID, SetterInternal))
	assert.ErrorIs(t, d.AddRoot(col.ID, SetterInternal), ErrDuplicateRoot)
	assert.Equal(t, []string{col.ID}, d.Roots())

	require.NoError(t, d.RemoveRoot(col.ID, SetterInternal))
	assert.ErrorIs(t, d.RemoveRoot(col.ID, SetterInternal), ErrNotRoot)
	assert.Empty(t, d.Roots())

	require.Len(t, *events, 2)
	assert.Equal(t, RootAdded, (*events)[0].ev.Kind)
	assert.Equal(t, RootRemoved, (*events)[1].ev.Kind)
}

func TestWatchersSeeOldAndNew(t *testing.T) {
	d := New()
	m := d.NewModel("Select", map[string]any{"value": "Drama"})

	var calls [][2]any
	require.NoError(t, d.Watch(m.ID, "value", func(old, new any, setter Setter) {
		calls = append(calls, [2]any{old, new})
		assert.Equal(t, SetterExternal, setter)
	}))

	require.NoError(t, d.Set(m.ID, "value", "Comedy", SetterExternal))
	assert.Equal(t, [][2]any{{"Drama", "Comedy"}}, calls)

	assert.ErrorIs(t, d.Watch("p1", "value", nil), ErrUnknownModel)
}

func TestCallbacksMayMutate(t *testing.T) {
	d := New()
	src := d.NewModel("Slider", map[string]any{"value": 0.0})
	dst := d.NewModel("Table", map[string]any{"rows": 0.0})

	require.NoError(t, d.Watch(src.ID, "value", func(_, new any, _ Setter) {
		require.NoError(t, d.Set(dst.ID, "rows", new, SetterInternal))
	}))

	require.NoError(t, d.Set(src.ID, "value", 3.0, SetterExternal))

	v, err := d.Attr(dst.ID, "rows")
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)
}

func TestUnsubscribe(t *testing.T) {
	d := New()
	m := d.NewModel("Div", nil)

	calls := 0
	unsubscribe := d.OnChange(func(Event, Setter) { calls++ })
	require.NoError(t, d.Set(m.ID, "text", "a", SetterInternal))
	unsubscribe()
	require.NoError(t, d.Set(m.ID, "text", "b", SetterInternal))

	assert.Equal(t, 1, calls)
}

func TestSnapshot(t *testing.T) {
	d := New()
	slider := d.NewModel("Slider", map[string]any{"value": int64(1950)})
	col := d.NewModel("Column", map[string]any{"children": []any{map[string]any{"id": slider.ID}}})
	require.NoError(t, d.AddRoot(col.ID, SetterInternal))
	d.SetTitle("Movies Dashboard", SetterInternal)

	snap, err := d.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []string{col.ID}, snap.RootIDs)

	var docs map[string]struct {
		Title   string `json:"title"`
		Version string `json:"version"`
		Roots   struct {
			RootIDs    []string `json:"root_ids"`
			References []Model  `json:"references"`
		} `json:"roots"`
	}
	require.NoError(t, json.Unmarshal(snap.DocsJSON, &docs))
	require.Contains(t, docs, d.ID())
	entry := docs[d.ID()]
	assert.Equal(t, "Movies Dashboard", entry.Title)
	assert.Equal(t, FormatVersion, entry.Version)
	assert.Equal(t, []string{col.ID}, entry.Roots.RootIDs)
	require.Len(t, entry.Roots.References, 2)
	assert.Equal(t, slider.ID, entry.Roots.References[0].ID)
	assert.Equal(t, "Column", entry.Roots.References[1].Type)

	var items []map[string]any
	require.NoError(t, json.Unmarshal(snap.RenderItems, &items))
	require.Len(t, items, 1)
	assert.Equal(t, d.ID(), items[0]["docid"])

	// snapshotted models are not repeated as patch references
	raw, _, err := d.CreatePatch(Event{Kind: TitleChanged, Title: "x"})
	require.NoError(t, err)
	var p Patch
	require.NoError(t, json.Unmarshal(raw, &p))
	assert.Empty(t, p.References)
}

func TestCreatePatchMovesBuffers(t *testing.T) {
	d := New()
	_, err := d.Snapshot()
	require.NoError(t, err)

	img := d.NewModel("Image", map[string]any{"data": []byte{0xde, 0xad}})
	raw, buffers, err := d.CreatePatch(Event{
		Kind:  ModelChanged,
		Model: &Ref{ID: img.ID},
		Attr:  "data",
		New:   []byte{0xbe, 0xef},
	})
	require.NoError(t, err)
	require.Len(t, buffers, 2)
	assert.Equal(t, []byte{0xbe, 0xef}, buffers[0])
	assert.Equal(t, []byte{0xde, 0xad}, buffers[1])

	var generic map[string]any
	require.NoError(t, sonic.Unmarshal(raw, &generic))
	events := generic["events"].([]any)
	ev := events[0].(map[string]any)
	assert.Equal(t, map[string]any{bufferKey: "0"}, ev["new"])

	decoded, err := DecodePatch(raw, buffers)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xbe, 0xef}, decoded.Events[0].New)
	assert.Equal(t, []byte{0xde, 0xad}, decoded.References[0].Attributes["data"])
}

func TestDecodePatchErrors(t *testing.T) {
	_, err := DecodePatch(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidPatch)

	_, err = DecodePatch(json.RawMessage(`{"events": 3}`), nil)
	assert.ErrorIs(t, err, ErrInvalidPatch)

	_, err = DecodePatch(json.RawMessage(`{"events":[{"kind":"ModelChanged","model":{"id":"p1"},"attr":"a","new":{"__buffer__":"4"}}]}`), nil)
	assert.ErrorIs(t, err, ErrInvalidPatch)
}

func TestApplyPatch(t *testing.T) {
	d := New()
	slider := d.NewModel("Slider", map[string]any{"value": 1.0})
	events := record(d)

	raw := json.RawMessage(`{
		"events": [
			{"kind": "ModelChanged", "model": {"id": "` + slider.ID + `"}, "attr": "value", "new": 7},
			{"kind": "RootAdded", "model": {"id": "c1"}},
			{"kind": "TitleChanged", "title": "Edited"}
		],
		"references": [{"id": "c1", "type": "Column", "attributes": {"children": []}}]
	}`)
	p, err := DecodePatch(raw, nil)
	require.NoError(t, err)
	require.NoError(t, d.ApplyPatch(p, SetterExternal))

	v, err := d.Attr(slider.ID, "value")
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)
	assert.Equal(t, []string{"c1"}, d.Roots())
	assert.Equal(t, "Edited", d.Title())

	require.Len(t, *events, 3)
	for _, e := range *events {
		assert.Equal(t, SetterExternal, e.setter)
	}
}

func TestApplyPatchValidatesBeforeApplying(t *testing.T) {
	d := New()
	slider := d.NewModel("Slider", map[string]any{"value": 1.0})

	tests := []struct {
		name string
		raw  string
	}{
		{name: "unknown model", raw: `{"events":[{"kind":"ModelChanged","model":{"id":"` + slider.ID + `"},"attr":"value","new":2},{"kind":"ModelChanged","model":{"id":"nope"},"attr":"value","new":3}]}`},
		{name: "missing attr", raw: `{"events":[{"kind":"ModelChanged","model":{"id":"` + slider.ID + `"},"new":2}]}`},
		{name: "unknown kind", raw: `{"events":[{"kind":"ColumnsStreamed","model":{"id":"` + slider.ID + `"}}]}`},
		{name: "reference without type", raw: `{"events":[],"references":[{"id":"x"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodePatch(json.RawMessage(tt.raw), nil)
			require.NoError(t, err)
			assert.Error(t, d.ApplyPatch(p, SetterExternal))

			v, err := d.Attr(slider.ID, "value")
			require.NoError(t, err)
			assert.Equal(t, 1.0, v, "no event may be applied when validation fails")
		})
	}
}
