package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLRUInvalidSize(t *testing.T) {
	t.Parallel()

	_, err := NewLRU(0)
	assert.Error(t, err)
}

func TestLRU(t *testing.T) {
	t.Parallel()

	c, err := NewLRU(2)
	require.NoError(t, err)

	c.Add(uint64(1), "a")
	c.Add(uint64(2), "b")

	v, ok := c.Get(uint64(1))
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 2, c.Len())

	v, ok = c.Peek(uint64(2))
	require.True(t, ok)
	assert.Equal(t, "b", v)

	c.Add(uint64(3), "c")
	assert.Equal(t, 2, c.Len())

	c.Delete(uint64(3))
	_, ok = c.Get(uint64(3))
	assert.False(t, ok)
	assert.Len(t, c.Keys(), 1)
}
