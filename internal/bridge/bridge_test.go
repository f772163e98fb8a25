package bridge

import (
	"encoding/json"
	"testing"

	"github.com/GriffinCanCode/AgentOS/docworker/internal/document"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/docworker/tests/helpers/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T) (*document.Document, document.Ref, *testutil.RecordingPort, *Bridge) {
	t.Helper()
	doc := document.New()
	slider := doc.NewModel("Slider", map[string]any{"value": 1.0})
	_, err := doc.Snapshot()
	require.NoError(t, err)

	port := testutil.NewRecordingPort()
	b := New(doc, port, zap.NewNop())
	t.Cleanup(b.Close)
	return doc, slider, port, b
}

func valuePatch(id string, v float64) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{
		"events": []any{map[string]any{
			"kind":  "ModelChanged",
			"model": map[string]any{"id": id},
			"attr":  "value",
			"new":   v,
		}},
	})
	return raw
}

func TestInertBeforeLink(t *testing.T) {
	doc, slider, port, b := setup(t)

	require.NoError(t, doc.Set(slider.ID, "value", 2.0, document.SetterInternal))
	assert.Empty(t, port.Messages(), "no patch before link")

	assert.ErrorIs(t, b.ApplyPatch(valuePatch(slider.ID, 3), nil), ErrNotLinked)
	_, err := b.MergeLocation(`{"search": "?a"}`)
	assert.ErrorIs(t, err, ErrNotLinked)
	assert.False(t, b.Linked())
}

func TestLinkOnce(t *testing.T) {
	_, _, _, b := setup(t)

	require.NoError(t, b.Link())
	assert.True(t, b.Linked())
	assert.ErrorIs(t, b.Link(), ErrAlreadyLinked)
}

func TestOutboundPatches(t *testing.T) {
	doc, slider, port, b := setup(t)
	require.NoError(t, b.Link())

	require.NoError(t, doc.Set(slider.ID, "value", 2.0, document.SetterInternal))
	label := doc.NewModel("Div", map[string]any{"text": "hi"})
	require.NoError(t, doc.AddRoot(label.ID, document.SetterInternal))

	patches := port.OfType(protocol.TypePatch)
	require.Len(t, patches, 2)

	var first document.Patch
	require.NoError(t, json.Unmarshal(patches[0].Patch, &first))
	assert.Equal(t, document.ModelChanged, first.Events[0].Kind)
	assert.Equal(t, 2.0, first.Events[0].New)

	var second document.Patch
	require.NoError(t, json.Unmarshal(patches[1].Patch, &second))
	assert.Equal(t, document.RootAdded, second.Events[0].Kind)
	require.Len(t, second.References, 1)
	assert.Equal(t, label.ID, second.References[0].ID)
}

func TestOutboundBuffers(t *testing.T) {
	doc, _, port, b := setup(t)
	require.NoError(t, b.Link())

	img := doc.NewModel("Image", nil)
	require.NoError(t, doc.Set(img.ID, "data", []byte{1, 2, 3}, document.SetterInternal))

	// the event value and the new model's reference each carry a buffer
	patches := port.OfType(protocol.TypePatch)
	require.Len(t, patches, 1)
	assert.Equal(t, [][]byte{{1, 2, 3}, {1, 2, 3}}, patches[0].Buffers)
}

func TestInboundPatchIsNotEchoed(t *testing.T) {
	doc, slider, port, b := setup(t)
	require.NoError(t, b.Link())

	require.NoError(t, b.ApplyPatch(valuePatch(slider.ID, 7), nil))

	v, err := doc.Attr(slider.ID, "value")
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)
	assert.Equal(t, []protocol.Type{protocol.TypeIdle}, port.Types())
}

func TestInboundPatchTriggersDerivedPatch(t *testing.T) {
	doc, slider, port, b := setup(t)
	table := doc.NewModel("Table", map[string]any{"rows": 0.0})
	require.NoError(t, doc.Watch(slider.ID, "value", func(_, new any, _ document.Setter) {
		require.NoError(t, doc.Set(table.ID, "rows", new, document.SetterInternal))
	}))
	require.NoError(t, b.Link())

	require.NoError(t, b.ApplyPatch(valuePatch(slider.ID, 4), nil))

	assert.Equal(t, []protocol.Type{protocol.TypePatch, protocol.TypeIdle}, port.Types())
}

func TestInvalidPatchStillAcknowledged(t *testing.T) {
	_, _, port, b := setup(t)
	require.NoError(t, b.Link())

	err := b.ApplyPatch(valuePatch("p404", 1), nil)
	assert.ErrorIs(t, err, document.ErrUnknownModel)

	err = b.ApplyPatch(json.RawMessage(`not json`), nil)
	assert.ErrorIs(t, err, document.ErrInvalidPatch)

	assert.Equal(t, []protocol.Type{protocol.TypeIdle, protocol.TypeIdle}, port.Types())
}

func TestReentrantPatchRejected(t *testing.T) {
	doc, slider, port, b := setup(t)
	var nested error
	require.NoError(t, doc.Watch(slider.ID, "value", func(any, any, document.Setter) {
		nested = b.ApplyPatch(valuePatch(slider.ID, 100), nil)
	}))
	require.NoError(t, b.Link())

	require.NoError(t, b.ApplyPatch(valuePatch(slider.ID, 5), nil))

	assert.ErrorIs(t, nested, ErrPatchInFlight)
	assert.Len(t, port.OfType(protocol.TypeIdle), 1)

	// the marker is released afterwards
	require.NoError(t, b.ApplyPatch(valuePatch(slider.ID, 6), nil))
}

func TestMergeLocation(t *testing.T) {
	doc, _, port, b := setup(t)
	require.NoError(t, b.Link())

	keys, err := b.MergeLocation(`{"search": "?year=1990", "hash": "#top", "theme": "dark"}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"hash", "search"}, keys)

	loc := doc.Location()
	assert.Equal(t, "?year=1990", loc.Get("search"))
	assert.Equal(t, "#top", loc.Get("hash"))
	assert.True(t, loc.Readonly(), "read-only protection is restored")
	assert.False(t, loc.Recognizes("theme"))

	assert.Empty(t, port.Messages(), "location changes produce no outbound messages")

	_, err = b.MergeLocation(`[1, 2]`)
	assert.ErrorIs(t, err, ErrInvalidLocation)
}

func TestCloseStopsForwarding(t *testing.T) {
	doc, slider, port, b := setup(t)
	require.NoError(t, b.Link())
	b.Close()

	require.NoError(t, doc.Set(slider.ID, "value", 9.0, document.SetterInternal))
	assert.Empty(t, port.Messages())
}
