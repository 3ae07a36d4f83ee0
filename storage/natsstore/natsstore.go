// Package natsstore provides a durable configuration store backed by NATS
// JetStream KV.
//
// Each version is written once under "<name>.v.<version>" with a KV Create,
// so the append-only invariant is enforced by the bucket itself: an existing
// key can never be replaced. A "<name>.latest" pointer tracks the highest
// version and is updated after the version key lands; reads walk the pointer
// past any versions an interrupted Save left it trailing behind.
package natsstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/confstream/errors"
	"github.com/c360/confstream/natsclient"
	"github.com/c360/confstream/pkg/retry"
	"github.com/c360/confstream/storage"
	"github.com/c360/confstream/types"
)

// DefaultBucket is the KV bucket name used when none is configured.
const DefaultBucket = "confstream_versions"

// Store persists configuration versions in a JetStream KV bucket.
type Store struct {
	kvStore *natsclient.KVStore
	logger  *slog.Logger
}

// Compile-time interface check
var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*options)

type options struct {
	bucket string
	logger *slog.Logger
}

// WithBucket overrides the KV bucket name.
func WithBucket(name string) Option {
	return func(o *options) {
		if name != "" {
			o.bucket = name
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates a store over the given client, creating the KV bucket if
// needed. Bucket creation is retried briefly since it commonly races server
// startup in fresh environments.
func New(ctx context.Context, client *natsclient.Client, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "natsstore", "New", "nats client cannot be nil")
	}

	o := &options{bucket: DefaultBucket, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	var bucket jetstream.KeyValue
	err := retry.Do(ctx, retry.Quick(), func() error {
		var err error
		bucket, err = client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
			Bucket:      o.bucket,
			Description: "Versioned configuration snapshots",
		})
		return err
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "natsstore", "New", "create KV bucket")
	}

	return &Store{
		kvStore: client.NewKVStore(bucket),
		logger:  o.logger,
	}, nil
}

// LoadLatest implements storage.Store.
func (s *Store) LoadLatest(ctx context.Context, name string) (*types.ConfigSpec, error) {
	if name == "" {
		return nil, errors.WrapInvalid(errors.ErrNotFound, "natsstore", "LoadLatest", "name cannot be empty")
	}

	version, err := s.latestVersion(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.LoadVersion(ctx, name, version)
}

// latestVersion resolves the highest stored version of a name. The latest
// pointer is the fast path, but an interrupted Save can leave a version key
// the pointer never reached, so the pointer is walked forward past any such
// orphans and repaired before use. Without this, every later Save would
// collide with the orphaned key and the name would be stuck.
func (s *Store) latestVersion(ctx context.Context, name string) (int64, error) {
	var version int64
	entry, err := s.kvStore.Get(ctx, latestKey(name))
	switch {
	case err == nil:
		version, err = strconv.ParseInt(string(entry.Value), 10, 64)
		if err != nil {
			return 0, errors.WrapFatal(errors.ErrDataCorrupted, "natsstore", "LoadLatest", "parse latest pointer")
		}
	case natsclient.IsKVNotFoundError(err):
		// The pointer itself can be missing if the very first Save was
		// interrupted; version keys may still exist.
		version = 0
	default:
		return 0, storageFailure(err, "LoadLatest", "read latest pointer")
	}

	resolved := version
	for {
		if _, err := s.kvStore.Get(ctx, versionKey(name, resolved+1)); err != nil {
			if natsclient.IsKVNotFoundError(err) {
				break
			}
			return 0, storageFailure(err, "LoadLatest", "probe version key")
		}
		resolved++
	}

	if resolved == 0 {
		return 0, errors.WrapInvalid(errors.ErrNotFound, "natsstore", "LoadLatest", "load "+name)
	}

	if resolved != version {
		// Repair is best effort; reads stay correct without it.
		value := []byte(strconv.FormatInt(resolved, 10))
		if _, err := s.kvStore.Put(ctx, latestKey(name), value); err != nil {
			s.logger.Warn("failed to repair latest pointer",
				"name", name, "version", resolved, "error", err)
		} else {
			s.logger.Info("repaired latest pointer",
				"name", name, "from", version, "to", resolved)
		}
	}
	return resolved, nil
}

// LoadVersion implements storage.Store.
func (s *Store) LoadVersion(ctx context.Context, name string, version int64) (*types.ConfigSpec, error) {
	entry, err := s.kvStore.Get(ctx, versionKey(name, version))
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, errors.WrapInvalid(errors.ErrVersionNotFound, "natsstore", "LoadVersion",
				fmt.Sprintf("load %s v%d", name, version))
		}
		return nil, storageFailure(err, "LoadVersion", "read version key")
	}

	spec, err := types.UnmarshalSpec(entry.Value)
	if err != nil {
		return nil, errors.WrapFatal(errors.ErrDataCorrupted, "natsstore", "LoadVersion", "decode spec")
	}
	return spec, nil
}

// Save implements storage.Store.
func (s *Store) Save(ctx context.Context, spec *types.ConfigSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if spec.Version < 1 {
		return errors.WrapInvalid(errors.ErrInvalidSpec, "natsstore", "Save", "version must be positive")
	}

	data, err := spec.Marshal()
	if err != nil {
		return err
	}

	// KV Create fails on an existing key, which is exactly the append-only
	// guarantee the store promises.
	if _, err := s.kvStore.Create(ctx, versionKey(spec.Name, spec.Version), data); err != nil {
		if natsclient.IsKVConflictError(err) {
			return errors.WrapInvalid(errors.ErrVersionConflict, "natsstore", "Save", "save "+spec.Name)
		}
		return storageFailure(err, "Save", "create version key")
	}

	// The latest pointer trails the version key. If this Put fails the
	// version key is already stored; LoadLatest detects the trailing
	// pointer and repairs it.
	latest := []byte(strconv.FormatInt(spec.Version, 10))
	if _, err := s.kvStore.Put(ctx, latestKey(spec.Name), latest); err != nil {
		s.logger.Error("failed to update latest pointer",
			"name", spec.Name,
			"version", spec.Version,
			"error", err)
		return storageFailure(err, "Save", "update latest pointer")
	}

	s.logger.Debug("saved configuration version", "name", spec.Name, "version", spec.Version)
	return nil
}

// Versions implements storage.Store.
func (s *Store) Versions(ctx context.Context, name string) ([]int64, error) {
	keys, err := s.kvStore.Keys(ctx, name+".v.*")
	if err != nil {
		return nil, storageFailure(err, "Versions", "list version keys")
	}

	versions := make([]int64, 0, len(keys))
	for _, key := range keys {
		idx := strings.LastIndex(key, ".")
		if idx < 0 {
			continue
		}
		v, err := strconv.ParseInt(key[idx+1:], 10, 64)
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}

	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions, nil
}

func versionKey(name string, version int64) string {
	return fmt.Sprintf("%s.v.%d", name, version)
}

func latestKey(name string) string {
	return name + ".latest"
}

// storageFailure wraps a backend error in the storage-unavailable class,
// keeping the original error inspectable.
func storageFailure(err error, method, action string) error {
	return errors.WrapTransient(
		fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err),
		"natsstore", method, action)
}
