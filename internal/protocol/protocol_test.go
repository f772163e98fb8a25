package protocol

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeShapes(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{name: "status", msg: Status("Loading runtime"), want: `{"type":"status","msg":"Loading runtime"}`},
		{name: "idle", msg: Idle(), want: `{"type":"idle"}`},
		{name: "rendered", msg: Rendered(), want: `{"type":"rendered"}`},
		{
			name: "render",
			msg:  Render(json.RawMessage(`{"d1":{}}`), json.RawMessage(`[]`), []string{"p1"}),
			want: `{"type":"render","docs_json":{"d1":{}},"render_items":[],"root_ids":["p1"]}`,
		},
		{
			name: "render without roots",
			msg:  Render(json.RawMessage(`{}`), json.RawMessage(`[]`), nil),
			want: `{"type":"render","docs_json":{},"render_items":[],"root_ids":[]}`,
		},
		{
			name: "patch without buffers",
			msg:  Patch(json.RawMessage(`{"events":[]}`), nil),
			want: `{"type":"patch","patch":{"events":[]},"buffers":[]}`,
		},
		{
			name: "patch with buffers",
			msg:  Patch(json.RawMessage(`{"events":[]}`), [][]byte{{1, 2, 3}}),
			want: `{"type":"patch","patch":{"events":[]},"buffers":["AQID"]}`,
		},
		{
			name: "location",
			msg:  Location(`{"search":"?q=1"}`),
			want: `{"type":"location","location":"{\"search\":\"?q=1\"}"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestDecodePatchWithBuffers(t *testing.T) {
	data, err := Encode(Patch(json.RawMessage(`{"events":[]}`), [][]byte{{1, 2, 3}}))
	require.NoError(t, err)

	msg, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypePatch, msg.Type)
	assert.JSONEq(t, `{"events":[]}`, string(msg.Patch))
	assert.Equal(t, [][]byte{{1, 2, 3}}, msg.Buffers)
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"reload"}`))
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Decode([]byte(`{"msg":"no tag"}`))
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestTypeDirections(t *testing.T) {
	assert.True(t, TypePatch.Inbound())
	assert.True(t, TypePatch.Outbound())
	assert.True(t, TypeRendered.Inbound())
	assert.False(t, TypeRendered.Outbound())
	assert.True(t, TypeIdle.Outbound())
	assert.False(t, TypeIdle.Inbound())
}

func TestChannelPreservesOrder(t *testing.T) {
	ch := NewChannel(4)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			require.NoError(t, ch.Post(Status(string(rune('a'+i%26)))))
		}
		ch.Close()
	}()

	i := 0
	for msg := range ch.Messages() {
		assert.Equal(t, string(rune('a'+i%26)), msg.Msg)
		i++
	}
	wg.Wait()
	assert.Equal(t, 100, i)
}

func TestChannelClose(t *testing.T) {
	ch := NewChannel(0)

	errCh := make(chan error, 1)
	go func() {
		errCh <- ch.Post(Idle())
	}()

	ch.Close()
	assert.ErrorIs(t, <-errCh, ErrClosed)
	assert.ErrorIs(t, ch.Post(Idle()), ErrClosed)

	// closing twice is harmless
	ch.Close()
}
