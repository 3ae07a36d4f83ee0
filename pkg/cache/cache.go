// Package cache provides a generic, thread-safe LRU cache with built-in
// statistics (always enabled for observability) and optional Prometheus
// metrics integration via functional options.
package cache

import (
	"github.com/c360/confstream/errors"
)

// Cache is the generic cache interface, parameterized by value type V.
type Cache[V any] interface {
	// Get retrieves a value by key. Returns the value and true if found,
	// zero value and false otherwise.
	Get(key string) (V, bool)

	// Set stores a value with the given key. Returns true if a new entry was
	// created, false if an existing entry was updated.
	Set(key string, value V) (bool, error)

	// Delete removes an entry by key. Returns true if the key existed.
	Delete(key string) (bool, error)

	// Clear removes all entries from the cache.
	Clear() error

	// Size returns the current number of entries in the cache.
	Size() int

	// Keys returns all keys currently in the cache, most recently used first.
	Keys() []string

	// Stats returns cache statistics.
	Stats() *Statistics

	// Close shuts down the cache and releases any resources.
	Close() error
}

// EvictCallback is called when an entry is evicted from the cache.
type EvictCallback[V any] func(key string, value V)

// NewLRU creates a bounded LRU cache. Once maxSize is exceeded, exactly one
// entry (the least recently used) is evicted per insertion.
func NewLRU[V any](maxSize int, opts ...Option[V]) (Cache[V], error) {
	if maxSize <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidData,
			"cache", "NewLRU", "maxSize must be positive")
	}
	return newLRUCache(maxSize, applyOptions(opts...))
}

// validateKey validates a cache key for basic requirements.
func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
