package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360/confstream/storage/memstore"
	"github.com/c360/confstream/types"
)

// A refresh that cannot produce a fresh copy must drop the old cache entry
// so readers fall through to storage instead of seeing a stale version.
func TestRefreshCacheInvalidatesOnCloneFailure(t *testing.T) {
	m, err := NewManager(memstore.New())
	require.NoError(t, err)
	defer m.Close()

	stale := &types.ConfigSpec{
		Name:    "server",
		Version: 1,
		Data:    map[string]any{"port": float64(80)},
	}
	_, err = m.cache.Set("server", stale)
	require.NoError(t, err)

	// A channel value cannot round-trip through JSON, so Clone fails.
	broken := &types.ConfigSpec{
		Name:    "server",
		Version: 2,
		Data:    map[string]any{"bad": make(chan int)},
	}
	m.refreshCache("server", broken)

	_, ok := m.cache.Get("server")
	require.False(t, ok, "stale entry must be invalidated when the refresh fails")
}

func TestRefreshCacheStoresPrivateCopy(t *testing.T) {
	m, err := NewManager(memstore.New())
	require.NoError(t, err)
	defer m.Close()

	stored := &types.ConfigSpec{
		Name:    "server",
		Version: 3,
		Data:    map[string]any{"port": float64(8080)},
	}
	m.refreshCache("server", stored)

	cached, ok := m.cache.Get("server")
	require.True(t, ok)
	require.Equal(t, int64(3), cached.Version)

	// Mutating the original must not reach the cached copy.
	stored.Data["port"] = float64(1)
	cached, _ = m.cache.Get("server")
	require.Equal(t, float64(8080), cached.Data["port"])
}
