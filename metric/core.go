package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains engine-level metrics shared by the configuration manager
// and its collaborators.
type Metrics struct {
	Updates          *prometheus.CounterVec
	ValidationErrors prometheus.Counter
	Rollbacks        *prometheus.CounterVec
	GetDuration      *prometheus.HistogramVec
	StorageOps       *prometheus.CounterVec
	EventsPublished  prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all engine metrics
func NewMetrics() *Metrics {
	return &Metrics{
		Updates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "confstream",
				Subsystem: "config",
				Name:      "updates_total",
				Help:      "Total number of configuration updates by outcome",
			},
			[]string{"outcome"}, // accepted, rejected, noop, error
		),

		ValidationErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "confstream",
				Subsystem: "config",
				Name:      "validation_errors_total",
				Help:      "Total number of validation errors reported",
			},
		),

		Rollbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "confstream",
				Subsystem: "config",
				Name:      "rollbacks_total",
				Help:      "Total number of rollback operations by outcome",
			},
			[]string{"outcome"}, // success, error
		),

		GetDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "confstream",
				Subsystem: "config",
				Name:      "get_duration_seconds",
				Help:      "Configuration read latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source"}, // cache, storage
		),

		StorageOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "confstream",
				Subsystem: "storage",
				Name:      "operations_total",
				Help:      "Total number of storage backend operations",
			},
			[]string{"operation", "status"},
		),

		EventsPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "confstream",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Total number of change events published",
			},
		),
	}
}

// RecordUpdate increments the update counter for an outcome
func (c *Metrics) RecordUpdate(outcome string) {
	c.Updates.WithLabelValues(outcome).Inc()
}

// RecordValidationErrors adds to the validation error counter
func (c *Metrics) RecordValidationErrors(count int) {
	c.ValidationErrors.Add(float64(count))
}

// RecordRollback increments the rollback counter for an outcome
func (c *Metrics) RecordRollback(outcome string) {
	c.Rollbacks.WithLabelValues(outcome).Inc()
}

// RecordGetDuration records configuration read latency
func (c *Metrics) RecordGetDuration(source string, duration time.Duration) {
	c.GetDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordStorageOp increments the storage operation counter
func (c *Metrics) RecordStorageOp(operation, status string) {
	c.StorageOps.WithLabelValues(operation, status).Inc()
}

// RecordEventPublished increments the published event counter
func (c *Metrics) RecordEventPublished() {
	c.EventsPublished.Inc()
}
