// Package memstore provides an in-memory configuration store. It is the
// default backend and the one unit tests run against.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/c360/confstream/errors"
	"github.com/c360/confstream/storage"
	"github.com/c360/confstream/types"
)

// Store keeps per-name version histories in memory. Specs are deep-copied on
// the way in and out, so callers can never mutate stored state through a
// returned pointer.
type Store struct {
	mu       sync.RWMutex
	versions map[string][]*types.ConfigSpec // Ascending by version
}

// Compile-time interface check
var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{versions: make(map[string][]*types.ConfigSpec)}
}

// LoadLatest implements storage.Store.
func (s *Store) LoadLatest(ctx context.Context, name string) (*types.ConfigSpec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.versions[name]
	if len(history) == 0 {
		return nil, errors.WrapInvalid(errors.ErrNotFound, "memstore", "LoadLatest", "load "+name)
	}
	return history[len(history)-1].Clone()
}

// LoadVersion implements storage.Store.
func (s *Store) LoadVersion(ctx context.Context, name string, version int64) (*types.ConfigSpec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, spec := range s.versions[name] {
		if spec.Version == version {
			return spec.Clone()
		}
	}
	return nil, errors.WrapInvalid(errors.ErrVersionNotFound, "memstore", "LoadVersion", "load "+name)
}

// Save implements storage.Store.
func (s *Store) Save(ctx context.Context, spec *types.ConfigSpec) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	if spec.Version < 1 {
		return errors.WrapInvalid(errors.ErrInvalidSpec, "memstore", "Save", "version must be positive")
	}

	stored, err := spec.Clone()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.versions[spec.Name]
	for _, existing := range history {
		if existing.Version == spec.Version {
			return errors.WrapInvalid(errors.ErrVersionConflict, "memstore", "Save", "save "+spec.Name)
		}
	}

	s.versions[spec.Name] = append(history, stored)
	sort.Slice(s.versions[spec.Name], func(i, j int) bool {
		return s.versions[spec.Name][i].Version < s.versions[spec.Name][j].Version
	})
	return nil
}

// Versions implements storage.Store.
func (s *Store) Versions(ctx context.Context, name string) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.versions[name]
	out := make([]int64, len(history))
	for i, spec := range history {
		out[i] = spec.Version
	}
	return out, nil
}

// Names lists every configuration name with at least one stored version.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.versions))
	for name := range s.versions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
