package document

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationReadonlyByDefault(t *testing.T) {
	loc := NewLocation()
	assert.True(t, loc.Readonly())
	assert.ErrorIs(t, loc.Update(map[string]any{"search": "?a=1"}), ErrReadonly)
	assert.Equal(t, "", loc.Get("search"))
}

func TestLocationEditReadonly(t *testing.T) {
	loc := NewLocation()

	err := loc.EditReadonly(func() error {
		assert.False(t, loc.Readonly())
		return loc.Update(map[string]any{"search": "?genre=Drama", "hash": "#data"})
	})
	require.NoError(t, err)

	assert.True(t, loc.Readonly())
	assert.Equal(t, "?genre=Drama", loc.Get("search"))
	assert.Equal(t, "#data", loc.Get("hash"))
}

func TestLocationEditReadonlyRestoresOnError(t *testing.T) {
	loc := NewLocation()
	boom := errors.New("boom")

	err := loc.EditReadonly(func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.True(t, loc.Readonly())
}

func TestLocationRejectsUnknownKeys(t *testing.T) {
	loc := NewLocation()

	err := loc.EditReadonly(func() error {
		return loc.Update(map[string]any{"search": "?x", "theme": "dark"})
	})
	assert.ErrorIs(t, err, ErrUnknownKey)
	assert.Equal(t, "", loc.Get("search"), "a rejected update changes nothing")
	assert.False(t, loc.Recognizes("theme"))
	assert.True(t, loc.Recognizes("pathname"))
}

func TestLocationWatch(t *testing.T) {
	loc := NewLocation()

	var got []any
	require.NoError(t, loc.Watch("pathname", func(old, new any) {
		got = append(got, old, new)
	}))
	assert.ErrorIs(t, loc.Watch("theme", func(any, any) {}), ErrUnknownKey)

	require.NoError(t, loc.EditReadonly(func() error {
		return loc.Update(map[string]any{"pathname": "/movies"})
	}))
	require.NoError(t, loc.EditReadonly(func() error {
		return loc.Update(map[string]any{"pathname": "/movies"})
	}))

	assert.Equal(t, []any{"", "/movies"}, got)
}
