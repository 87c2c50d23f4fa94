package blockcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLRUEviction(t *testing.T) {
	c := NewLRU(2)
	c.Put("f1", "b0", []byte("a"))
	c.Put("f1", "b1", []byte("b"))
	c.Put("f1", "b2", []byte("c")) // evicts b0

	_, ok := c.Get("f1", "b0")
	require.False(t, ok)

	v, ok := c.Get("f1", "b1")
	require.True(t, ok)
	require.Equal(t, []byte("b"), v)

	hits, misses := c.Stats()
	require.Equal(t, int64(1), hits)
	require.Equal(t, int64(1), misses)
}
