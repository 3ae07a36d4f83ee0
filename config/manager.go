// Package config implements the configuration manager, the single entry
// point for reading, updating, rolling back, and tracking versioned
// configurations.
//
// The manager composes the engine's parts: a storage.Store holding the
// append-only version history, an LRU cache over latest versions, a
// validation rule set evaluated on a bounded operation pool, and an event
// bus carrying one ConfigChange per accepted update.
package config

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"log/slog"

	"github.com/c360/confstream/errors"
	"github.com/c360/confstream/eventbus"
	"github.com/c360/confstream/metric"
	"github.com/c360/confstream/pkg/cache"
	"github.com/c360/confstream/pool"
	"github.com/c360/confstream/storage"
	"github.com/c360/confstream/types"
	"github.com/c360/confstream/validate"
)

// Manager orchestrates configuration reads, updates, rollbacks, and change
// tracking. Safe for concurrent use; updates to different names proceed
// fully in parallel.
type Manager struct {
	store   storage.Store
	cache   cache.Cache[*types.ConfigSpec]
	bus     *eventbus.Bus
	pool    *pool.Pool[[]validate.Error]
	rules   *validate.RuleSet
	logger  *slog.Logger
	metrics *metric.Metrics

	validationTimeout time.Duration

	// Per-name update locks serialize version assignment for one name
	// without blocking updates to other names.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	closeMu sync.Mutex
	closed  bool
}

// NewManager creates a configuration manager over the given store.
func NewManager(store storage.Store, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData,
			"Manager", "NewManager", "store cannot be nil")
	}

	o := defaultManagerOptions()
	for _, opt := range opts {
		opt(o)
	}

	var cacheOpts []cache.Option[*types.ConfigSpec]
	var poolOpts []pool.Option[[]validate.Error]
	var busOpts []eventbus.Option
	var metrics *metric.Metrics
	if o.registry != nil {
		metrics = o.registry.CoreMetrics()
		cacheOpts = append(cacheOpts, cache.WithMetrics[*types.ConfigSpec](o.registry, "config_cache"))
		poolOpts = append(poolOpts, pool.WithMetricsRegistry[[]validate.Error](o.registry, "validation_pool"))
	}
	if o.eventBuffer > 0 {
		busOpts = append(busOpts, eventbus.WithBuffer(o.eventBuffer))
	}
	busOpts = append(busOpts, eventbus.WithLogger(o.logger))

	specCache, err := cache.NewLRU[*types.ConfigSpec](o.cacheSize, cacheOpts...)
	if err != nil {
		return nil, err
	}

	poolOpts = append(poolOpts, pool.WithDefaultTimeout[[]validate.Error](o.validationTimeout))

	return &Manager{
		store:             store,
		cache:             specCache,
		bus:               eventbus.New(busOpts...),
		pool:              pool.New[[]validate.Error](o.concurrency, poolOpts...),
		rules:             o.rules,
		logger:            o.logger,
		metrics:           metrics,
		validationTimeout: o.validationTimeout,
		locks:             make(map[string]*sync.Mutex),
	}, nil
}

// GetConfig returns the latest version of a named configuration. The result
// is the caller's private copy. Unknown names yield errors.ErrNotFound.
func (m *Manager) GetConfig(ctx context.Context, name string) (*types.ConfigSpec, error) {
	if err := m.checkOpen("GetConfig"); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errors.WrapInvalid(errors.ErrNotFound, "Manager", "GetConfig", "name cannot be empty")
	}

	start := time.Now()

	if cached, ok := m.cache.Get(name); ok {
		if m.metrics != nil {
			m.metrics.RecordGetDuration("cache", time.Since(start))
		}
		return cached.Clone()
	}

	spec, err := m.store.LoadLatest(ctx, name)
	if err != nil {
		if m.metrics != nil {
			m.metrics.RecordStorageOp("load_latest", "error")
		}
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.RecordStorageOp("load_latest", "success")
		m.metrics.RecordGetDuration("storage", time.Since(start))
	}

	cached, err := spec.Clone()
	if err != nil {
		return nil, err
	}
	if _, err := m.cache.Set(name, cached); err != nil {
		m.logger.Warn("failed to cache configuration", "name", name, "error", err)
	}

	return spec, nil
}

// UpdateConfig validates and persists a new version of a configuration.
//
// The submitted spec carries the name, payload, environment, and metadata;
// version, timestamp, and checksum are assigned here. If the payload is
// byte-identical to the current latest (by checksum), the current latest is
// returned unchanged: no new version, no event.
//
// Validation failures return a *validate.FailedError carrying every error.
// The store and cache are untouched on any failure.
func (m *Manager) UpdateConfig(ctx context.Context, spec *types.ConfigSpec) (*types.ConfigSpec, error) {
	if err := m.checkOpen("UpdateConfig"); err != nil {
		return nil, err
	}
	if spec == nil || spec.Name == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidSpec,
			"Manager", "UpdateConfig", "spec must carry a name")
	}

	checksum, err := types.Checksum(spec.Data)
	if err != nil {
		m.recordUpdate("error")
		return nil, err
	}

	// Fast no-op check before paying for validation.
	current, err := m.currentLatest(ctx, spec.Name)
	if err != nil {
		m.recordUpdate("error")
		return nil, err
	}
	if current != nil && current.Checksum == checksum {
		m.recordUpdate("noop")
		return current, nil
	}

	if err := m.runValidation(ctx, spec.Data); err != nil {
		return nil, err
	}

	lock := m.nameLock(spec.Name)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock: another updater may have won the race.
	current, err = m.currentLatest(ctx, spec.Name)
	if err != nil {
		m.recordUpdate("error")
		return nil, err
	}
	if current != nil && current.Checksum == checksum {
		m.recordUpdate("noop")
		return current, nil
	}

	var oldVersion int64
	var oldData map[string]any
	if current != nil {
		oldVersion = current.Version
		oldData = current.Data
	}

	stored, err := spec.Clone()
	if err != nil {
		m.recordUpdate("error")
		return nil, err
	}
	stored.Version = oldVersion + 1
	stored.Timestamp = time.Now().UTC()
	stored.Checksum = checksum

	if err := m.store.Save(ctx, stored); err != nil {
		m.recordUpdate("error")
		if m.metrics != nil {
			m.metrics.RecordStorageOp("save", "error")
		}
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.RecordStorageOp("save", "success")
	}

	// Cache is refreshed before the caller sees the new version, so a
	// GetConfig issued after this return can never observe stale data.
	m.refreshCache(spec.Name, stored)

	change := types.NewConfigChange(spec.Name, oldVersion, stored.Version, oldData, stored.Data)
	m.bus.Publish(change)
	if m.metrics != nil {
		m.metrics.RecordEventPublished()
	}
	m.recordUpdate("accepted")

	m.logger.Info("configuration updated",
		"name", spec.Name,
		"old_version", oldVersion,
		"new_version", stored.Version,
		"diff", change.DiffSummary)

	return stored.Clone()
}

// RollbackConfig reinstates a historical payload as a brand-new version. The
// old version identifier is never reused; rolling back from v3 to v1
// produces v4 carrying v1's payload. All intermediate versions remain
// retrievable.
func (m *Manager) RollbackConfig(ctx context.Context, name string, version int64) (*types.ConfigSpec, error) {
	if err := m.checkOpen("RollbackConfig"); err != nil {
		return nil, err
	}

	historical, err := m.store.LoadVersion(ctx, name, version)
	if err != nil {
		m.recordRollback("error")
		return nil, err
	}

	spec := &types.ConfigSpec{
		Name:        name,
		Environment: historical.Environment,
		Data:        historical.Data,
		Metadata:    historical.Metadata,
	}

	restored, err := m.UpdateConfig(ctx, spec)
	if err != nil {
		m.recordRollback("error")
		return nil, err
	}

	m.recordRollback("success")
	m.logger.Info("configuration rolled back",
		"name", name,
		"restored_version", version,
		"new_version", restored.Version)
	return restored, nil
}

// TrackChanges subscribes to every accepted update across all
// configurations, from subscription time onward.
func (m *Manager) TrackChanges() (*eventbus.Subscription, error) {
	return m.bus.Subscribe("config.*")
}

// OnChange subscribes to changes matching a topic pattern: an exact
// "config.<name>" topic or "config.*".
func (m *Manager) OnChange(pattern string) (*eventbus.Subscription, error) {
	return m.bus.Subscribe(pattern)
}

// Versions lists the stored version history for a name in ascending order.
func (m *Manager) Versions(ctx context.Context, name string) ([]int64, error) {
	if err := m.checkOpen("Versions"); err != nil {
		return nil, err
	}
	return m.store.Versions(ctx, name)
}

// GetVersion returns one specific historical version.
func (m *Manager) GetVersion(ctx context.Context, name string, version int64) (*types.ConfigSpec, error) {
	if err := m.checkOpen("GetVersion"); err != nil {
		return nil, err
	}
	return m.store.LoadVersion(ctx, name, version)
}

// Close shuts the manager down: the validation pool stops accepting work,
// subscriber channels close, and the cache is released. The store is owned
// by the caller and stays open.
func (m *Manager) Close() error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	m.pool.Close()
	m.bus.Close()
	return m.cache.Close()
}

// currentLatest loads the latest version through the cache, treating an
// unknown name as nil rather than an error.
func (m *Manager) currentLatest(ctx context.Context, name string) (*types.ConfigSpec, error) {
	spec, err := m.GetConfig(ctx, name)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return spec, nil
}

// refreshCache replaces the cached latest for a name with a private copy of
// the newly stored version. When the copy cannot be produced or stored, the
// old entry is invalidated instead so readers fall through to storage rather
// than seeing a stale version.
func (m *Manager) refreshCache(name string, stored *types.ConfigSpec) {
	cached, err := stored.Clone()
	if err == nil {
		if _, err = m.cache.Set(name, cached); err == nil {
			return
		}
	}

	m.logger.Warn("failed to refresh cache, invalidating entry", "name", name, "error", err)
	if _, delErr := m.cache.Delete(name); delErr != nil {
		m.logger.Warn("failed to invalidate cache entry", "name", name, "error", delErr)
	}
}

// runValidation evaluates the rule set on the operation pool, bounded by the
// validation timeout.
func (m *Manager) runValidation(ctx context.Context, data map[string]any) error {
	if m.rules == nil || m.rules.Len() == 0 {
		return nil
	}

	result := m.pool.Submit(ctx, func(context.Context) ([]validate.Error, error) {
		return m.rules.Evaluate(data), nil
	}, m.validationTimeout)

	if result.Err != nil {
		m.recordUpdate("error")
		if stderrors.Is(result.Err, errors.ErrTimeout) {
			return errors.WrapTransient(errors.ErrTimeout, "Manager", "UpdateConfig", "validation timed out")
		}
		return result.Err
	}

	if len(result.Value) > 0 {
		m.recordUpdate("rejected")
		if m.metrics != nil {
			m.metrics.RecordValidationErrors(len(result.Value))
		}
		return &validate.FailedError{Errors: result.Value}
	}
	return nil
}

// nameLock returns the update mutex for one configuration name.
func (m *Manager) nameLock(name string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	lock, ok := m.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[name] = lock
	}
	return lock
}

// checkOpen fails with ErrManagerClosed after Close.
func (m *Manager) checkOpen(method string) error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	if m.closed {
		return errors.WrapFatal(errors.ErrManagerClosed, "Manager", method, "manager is closed")
	}
	return nil
}

// recordUpdate increments the update outcome counter when metrics are on.
func (m *Manager) recordUpdate(outcome string) {
	if m.metrics != nil {
		m.metrics.RecordUpdate(outcome)
	}
}

// recordRollback increments the rollback outcome counter when metrics are on.
func (m *Manager) recordRollback(outcome string) {
	if m.metrics != nil {
		m.metrics.RecordRollback(outcome)
	}
}
