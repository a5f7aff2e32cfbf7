package scancache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_DependsOnFileAndSource(t *testing.T) {
	a := Key("/a.js", []byte("x"))
	assert.Equal(t, a, Key("/a.js", []byte("x")))
	assert.NotEqual(t, a, Key("/a.js", []byte("y")))
	assert.NotEqual(t, a, Key("/b.js", []byte("x")))
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New[int](2)
	require.NoError(t, err)

	c.Put("a", 1)
	c.Put("b", 2)
	_, _ = c.Get("a")
	c.Put("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestNew_DefaultSize(t *testing.T) {
	c, err := New[string](0)
	require.NoError(t, err)
	c.Put("k", "v")
	assert.Equal(t, 1, c.Len())
}
