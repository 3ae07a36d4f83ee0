package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLRUValidation(t *testing.T) {
	_, err := NewLRU[string](0)
	assert.Error(t, err)

	_, err = NewLRU[string](-5)
	assert.Error(t, err)

	c, err := NewLRU[string](10)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Size())
}

func TestLRUSetGet(t *testing.T) {
	c, err := NewLRU[string](3)
	require.NoError(t, err)

	created, err := c.Set("a", "1")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.Set("a", "2")
	require.NoError(t, err)
	assert.False(t, created, "updating existing key is not a create")

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLRUEmptyKeyRejected(t *testing.T) {
	c, err := NewLRU[string](3)
	require.NoError(t, err)

	_, err = c.Set("", "x")
	assert.Error(t, err)

	_, err = c.Delete("")
	assert.Error(t, err)
}

func TestLRUEvictsExactlyOneLeastRecentlyUsed(t *testing.T) {
	c, err := NewLRU[int](3)
	require.NoError(t, err)

	for i, key := range []string{"a", "b", "c"} {
		_, err := c.Set(key, i)
		require.NoError(t, err)
	}

	// Touch "a" so "b" becomes least recently used.
	_, ok := c.Get("a")
	require.True(t, ok)

	_, err = c.Set("d", 3)
	require.NoError(t, err)

	assert.Equal(t, 3, c.Size())
	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	for _, key := range []string{"a", "c", "d"} {
		_, ok := c.Get(key)
		assert.True(t, ok, "key %s should survive eviction", key)
	}
	assert.Equal(t, int64(1), c.Stats().Evictions())
}

func TestLRUEvictionCallback(t *testing.T) {
	var evictedKeys []string
	c, err := NewLRU[int](2, WithEvictionCallback[int](func(key string, _ int) {
		evictedKeys = append(evictedKeys, key)
	}))
	require.NoError(t, err)

	_, _ = c.Set("a", 1)
	_, _ = c.Set("b", 2)
	_, _ = c.Set("c", 3)

	require.Len(t, evictedKeys, 1)
	assert.Equal(t, "a", evictedKeys[0])
}

func TestLRUDelete(t *testing.T) {
	c, err := NewLRU[int](3)
	require.NoError(t, err)

	_, _ = c.Set("a", 1)

	deleted, err := c.Delete("a")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = c.Delete("a")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestLRUClear(t *testing.T) {
	c, err := NewLRU[int](5)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, _ = c.Set(fmt.Sprintf("k%d", i), i)
	}
	require.Equal(t, 5, c.Size())

	require.NoError(t, c.Clear())
	assert.Equal(t, 0, c.Size())
	assert.Empty(t, c.Keys())
}

func TestLRUKeysOrder(t *testing.T) {
	c, err := NewLRU[int](3)
	require.NoError(t, err)

	_, _ = c.Set("a", 1)
	_, _ = c.Set("b", 2)
	_, _ = c.Set("c", 3)

	// Access "a" to make it most recently used.
	_, _ = c.Get("a")

	assert.Equal(t, []string{"a", "c", "b"}, c.Keys())
}

func TestLRUStats(t *testing.T) {
	c, err := NewLRU[int](2)
	require.NoError(t, err)

	_, _ = c.Set("a", 1)
	_, _ = c.Get("a")
	_, _ = c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits())
	assert.Equal(t, int64(1), stats.Misses())
	assert.Equal(t, int64(1), stats.Sets())
	assert.InDelta(t, 0.5, stats.HitRatio(), 0.001)
}

func TestLRUConcurrentAccess(t *testing.T) {
	c, err := NewLRU[int](100)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%50)
				_, _ = c.Set(key, g*1000+i)
				_, _ = c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Size(), 100)
}
