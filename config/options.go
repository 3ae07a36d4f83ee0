package config

import (
	"time"

	"log/slog"

	"github.com/c360/confstream/metric"
	"github.com/c360/confstream/validate"
)

// Defaults applied by NewManager when no option overrides them.
const (
	DefaultCacheSize         = 128
	DefaultConcurrency       = 8
	DefaultValidationTimeout = 5 * time.Second
)

// Option configures a Manager.
type Option func(*managerOptions)

type managerOptions struct {
	cacheSize         int
	concurrency       int
	validationTimeout time.Duration
	eventBuffer       int
	rules             *validate.RuleSet
	logger            *slog.Logger
	registry          *metric.MetricsRegistry
}

// WithCacheSize bounds the number of latest-version specs held in the LRU
// cache.
func WithCacheSize(size int) Option {
	return func(o *managerOptions) {
		if size > 0 {
			o.cacheSize = size
		}
	}
}

// WithRules sets the validation rule set applied to every update. Without
// rules, updates are accepted unvalidated.
func WithRules(rules *validate.RuleSet) Option {
	return func(o *managerOptions) {
		o.rules = rules
	}
}

// WithValidationTimeout bounds each validation run.
func WithValidationTimeout(timeout time.Duration) Option {
	return func(o *managerOptions) {
		if timeout > 0 {
			o.validationTimeout = timeout
		}
	}
}

// WithConcurrency caps concurrent validation runs.
func WithConcurrency(n int) Option {
	return func(o *managerOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *managerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsRegistry enables engine metrics on the shared registry.
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(o *managerOptions) {
		o.registry = registry
	}
}

// WithEventBuffer sets the per-subscriber event channel capacity.
func WithEventBuffer(size int) Option {
	return func(o *managerOptions) {
		if size > 0 {
			o.eventBuffer = size
		}
	}
}

func defaultManagerOptions() *managerOptions {
	return &managerOptions{
		cacheSize:         DefaultCacheSize,
		concurrency:       DefaultConcurrency,
		validationTimeout: DefaultValidationTimeout,
		logger:            slog.Default(),
	}
}
