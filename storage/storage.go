// Package storage defines the pluggable backend interface for versioned
// configuration persistence.
package storage

import (
	"context"

	"github.com/c360/confstream/types"
)

// Store is the pluggable backend interface for configuration persistence.
//
// A store holds an append-only version history per configuration name:
// saved versions are never overwritten or deleted, only extended. Version
// assignment is the manager's job; the store only enforces that an existing
// (name, version) pair is never replaced.
//
// Error contract:
//   - LoadLatest on an unknown name returns errors.ErrNotFound.
//   - LoadVersion on an unknown version returns errors.ErrVersionNotFound.
//   - Save of an existing (name, version) returns errors.ErrVersionConflict.
//   - Backend failures are wrapped with errors.ErrStorageUnavailable,
//     preserving the underlying error for inspection.
//
// Implementations must round-trip specs exactly (including Metadata) and be
// safe for concurrent use from multiple goroutines. Returned specs are
// private copies; callers may mutate them freely.
//
// Example implementations:
//   - memstore.Store: in-memory map, the default backend
//   - natsstore.Store: NATS JetStream KV backend
type Store interface {
	// LoadLatest returns the highest-version spec for a name.
	LoadLatest(ctx context.Context, name string) (*types.ConfigSpec, error)

	// LoadVersion returns one specific historical version.
	LoadVersion(ctx context.Context, name string, version int64) (*types.ConfigSpec, error)

	// Save appends a new version. The spec must carry a name, a positive
	// version, and a checksum.
	Save(ctx context.Context, spec *types.ConfigSpec) error

	// Versions lists all stored versions for a name in ascending order.
	// An unknown name yields an empty slice, not an error.
	Versions(ctx context.Context, name string) ([]int64, error)
}
