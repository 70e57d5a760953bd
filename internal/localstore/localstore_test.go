package localstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirSetGetRemove(t *testing.T) {
	d := NewDir(filepath.Join(t.TempDir(), "data"))

	_, err := d.Get("cart.lines")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, d.Set("cart.lines", []byte(`[1,2]`)))
	got, err := d.Get("cart.lines")
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(got))

	require.NoError(t, d.Set("cart.lines", []byte(`[]`)))
	got, err = d.Get("cart.lines")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))

	require.NoError(t, d.Remove("cart.lines"))
	require.NoError(t, d.Remove("cart.lines"))
	_, err = d.Get("cart.lines")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirLeavesNoTempFile(t *testing.T) {
	root := t.TempDir()
	d := NewDir(root)
	require.NoError(t, d.Set("guest.token", []byte(`"abc"`)))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "guest.token.json", entries[0].Name())
}

func TestDirRejectsPathKeys(t *testing.T) {
	d := NewDir(t.TempDir())
	for _, key := range []string{"", "..", "a/b", `a\b`} {
		assert.Error(t, d.Set(key, []byte("x")), "key %q", key)
	}
}

func TestMemoryCopiesValues(t *testing.T) {
	m := NewMemory()
	v := []byte("abc")
	require.NoError(t, m.Set("k", v))
	v[0] = 'z'

	got, err := m.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	got[0] = 'y'
	again, _ := m.Get("k")
	assert.Equal(t, "abc", string(again))

	require.NoError(t, m.Remove("k"))
	_, err = m.Get("k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, m.Keys())
}
