// Package pool provides a bounded-concurrency operation pool with uniform
// result capture.
//
// A Pool caps the number of operations running at once with a weighted
// semaphore. Submit blocks the caller: it waits for a slot, runs the
// operation under a deadline, and returns a Result that always carries either
// a value or an error plus the observed duration. Failures, timeouts, and
// panics all come back through the same Result shape, never as a raised
// panic on the caller's goroutine.
//
// There is no out-of-band cancellation. Once an operation is running, the
// only way to abandon it is its deadline; the runner goroutine keeps its
// concurrency slot until the operation actually returns.
package pool

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"github.com/c360/confstream/errors"
	"github.com/c360/confstream/metric"
)

// DefaultTimeout bounds operations submitted without an explicit timeout.
const DefaultTimeout = 30 * time.Second

// Operation is a unit of work executed by the pool. Implementations must
// honor ctx cancellation; the pool cannot interrupt an operation that
// ignores its context.
type Operation[T any] func(ctx context.Context) (T, error)

// Result is the uniform outcome of one operation. Exactly one of Value and
// Err is meaningful. Duration covers submission to completion, including any
// wait for a concurrency slot.
type Result[T any] struct {
	Value    T
	Err      error
	Duration time.Duration
	Metadata map[string]string // Carries "operation_id"
}

// Pool executes operations of type T with a hard concurrency ceiling.
type Pool[T any] struct {
	// Configuration
	maxConcurrency int64
	defaultTimeout time.Duration

	// Runtime state
	sem     *semaphore.Weighted
	metrics *Metrics

	// Lifecycle management
	lifecycleMu sync.Mutex
	closed      bool

	// Statistics (atomic)
	submitted int64
	completed int64
	failed    int64
	timeouts  int64
	inFlight  int64

	// Metrics configuration
	metricsRegistry *metric.MetricsRegistry
	metricsPrefix   string
}

// Metrics holds Prometheus metrics for pool monitoring
type Metrics struct {
	inFlight  prometheus.Gauge
	submitted prometheus.Counter
	completed prometheus.Counter
	failed    prometheus.Counter
	timeouts  prometheus.Counter
	duration  *prometheus.HistogramVec
}

// Option represents a configuration option for the pool
type Option[T any] func(*Pool[T])

// WithDefaultTimeout sets the timeout applied when Submit receives a
// non-positive timeout.
func WithDefaultTimeout[T any](timeout time.Duration) Option[T] {
	return func(p *Pool[T]) {
		if timeout > 0 {
			p.defaultTimeout = timeout
		}
	}
}

// WithMetricsRegistry configures the pool to register metrics with the
// shared registry under the given prefix.
func WithMetricsRegistry[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(p *Pool[T]) {
		p.metricsRegistry = registry
		p.metricsPrefix = prefix
	}
}

// New creates an operation pool with the given concurrency ceiling.
func New[T any](maxConcurrency int, opts ...Option[T]) *Pool[T] {
	if maxConcurrency <= 0 {
		maxConcurrency = 10 // Default ceiling
	}

	pool := &Pool[T]{
		maxConcurrency: int64(maxConcurrency),
		defaultTimeout: DefaultTimeout,
		sem:            semaphore.NewWeighted(int64(maxConcurrency)),
	}

	for _, opt := range opts {
		opt(pool)
	}

	if pool.metricsRegistry != nil && pool.metricsPrefix != "" {
		pool.initializeMetrics()
	}

	return pool
}

// initializeMetrics creates and registers metrics with the shared registry
func (p *Pool[T]) initializeMetrics() {
	prefix := p.metricsPrefix

	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: prefix + "_in_flight",
		Help: "Operations currently running or waiting on a slot",
	})
	submitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_submitted_total",
		Help: "Total operations submitted",
	})
	completed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_completed_total",
		Help: "Total operations completed successfully",
	})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_failed_total",
		Help: "Total operations that returned an error",
	})
	timeouts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_timeouts_total",
		Help: "Total operations abandoned at their deadline",
	})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    prefix + "_duration_seconds",
		Help:    "Operation duration from submission to completion",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
	}, []string{"status"})

	serviceName := "operation_pool"
	p.metricsRegistry.RegisterGauge(serviceName, prefix+"_in_flight", inFlight)
	p.metricsRegistry.RegisterCounter(serviceName, prefix+"_submitted_total", submitted)
	p.metricsRegistry.RegisterCounter(serviceName, prefix+"_completed_total", completed)
	p.metricsRegistry.RegisterCounter(serviceName, prefix+"_failed_total", failed)
	p.metricsRegistry.RegisterCounter(serviceName, prefix+"_timeouts_total", timeouts)
	p.metricsRegistry.RegisterHistogramVec(serviceName, prefix+"_duration_seconds", duration)

	p.metrics = &Metrics{
		inFlight:  inFlight,
		submitted: submitted,
		completed: completed,
		failed:    failed,
		timeouts:  timeouts,
		duration:  duration,
	}
}

// Submit runs one operation under the pool's concurrency ceiling and blocks
// until it completes or its deadline passes. The timeout budget covers both
// the wait for a slot and the operation itself; a non-positive timeout uses
// the pool default.
//
// On timeout the caller gets errors.ErrTimeout immediately. The runner
// goroutine holds its slot until the operation actually returns, so a pool
// of slow, context-ignoring operations degrades by queuing rather than by
// exceeding the ceiling.
func (p *Pool[T]) Submit(ctx context.Context, op Operation[T], timeout time.Duration) Result[T] {
	start := time.Now()
	result := Result[T]{
		Metadata: map[string]string{"operation_id": uuid.NewString()},
	}

	if op == nil {
		result.Err = ErrNilOperation
		result.Duration = time.Since(start)
		return result
	}

	p.lifecycleMu.Lock()
	closed := p.closed
	p.lifecycleMu.Unlock()
	if closed {
		result.Err = ErrPoolClosed
		result.Duration = time.Since(start)
		return result
	}

	if timeout <= 0 {
		timeout = p.defaultTimeout
	}
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	atomic.AddInt64(&p.submitted, 1)
	atomic.AddInt64(&p.inFlight, 1)
	defer atomic.AddInt64(&p.inFlight, -1)
	if p.metrics != nil {
		p.metrics.submitted.Inc()
		p.metrics.inFlight.Inc()
		defer p.metrics.inFlight.Dec()
	}

	if err := p.sem.Acquire(opCtx, 1); err != nil {
		result.Err = p.deadlineError(ctx, opCtx, "acquire slot")
		result.Duration = time.Since(start)
		p.recordOutcome(result.Err, result.Duration)
		return result
	}

	done := make(chan Result[T], 1)
	go p.run(opCtx, op, done)

	select {
	case r := <-done:
		result.Value = r.Value
		result.Err = r.Err
	case <-opCtx.Done():
		// The runner keeps its slot until op returns; the caller moves on.
		result.Err = p.deadlineError(ctx, opCtx, "run operation")
	}

	result.Duration = time.Since(start)
	p.recordOutcome(result.Err, result.Duration)
	return result
}

// run executes an operation on its own goroutine, converting panics into
// errors. The semaphore slot is released exactly once, after the operation
// returns or panics, never on the caller's timeout path.
func (p *Pool[T]) run(ctx context.Context, op Operation[T], done chan<- Result[T]) {
	defer p.sem.Release(1)
	defer func() {
		if r := recover(); r != nil {
			var zero T
			done <- Result[T]{
				Value: zero,
				Err:   errors.WrapFatal(fmt.Errorf("operation panicked: %v", r), "Pool", "run", "execute"),
			}
		}
	}()

	value, err := op(ctx)
	done <- Result[T]{Value: value, Err: err}
}

// Map runs every operation under the shared ceiling and returns results in
// input order regardless of completion order. All operations share the same
// per-operation timeout.
func (p *Pool[T]) Map(ctx context.Context, ops []Operation[T], timeout time.Duration) []Result[T] {
	results := make([]Result[T], len(ops))

	var wg sync.WaitGroup
	for i, op := range ops {
		wg.Add(1)
		go func(i int, op Operation[T]) {
			defer wg.Done()
			results[i] = p.Submit(ctx, op, timeout)
		}(i, op)
	}
	wg.Wait()

	return results
}

// Close marks the pool closed. Subsequent Submit calls fail with
// ErrPoolClosed; operations already running finish normally.
func (p *Pool[T]) Close() {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	p.closed = true
}

// Stats returns current pool statistics
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		MaxConcurrency: int(p.maxConcurrency),
		InFlight:       atomic.LoadInt64(&p.inFlight),
		Submitted:      atomic.LoadInt64(&p.submitted),
		Completed:      atomic.LoadInt64(&p.completed),
		Failed:         atomic.LoadInt64(&p.failed),
		Timeouts:       atomic.LoadInt64(&p.timeouts),
	}
}

// PoolStats represents operation pool statistics
type PoolStats struct {
	MaxConcurrency int   `json:"max_concurrency"`
	InFlight       int64 `json:"in_flight"`
	Submitted      int64 `json:"submitted"`
	Completed      int64 `json:"completed"`
	Failed         int64 `json:"failed"`
	Timeouts       int64 `json:"timeouts"`
}

// deadlineError maps a context failure to the taxonomy: the pool's own
// deadline becomes ErrTimeout, cancellation from the caller passes through.
func (p *Pool[T]) deadlineError(parent, opCtx context.Context, action string) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if opCtx.Err() == context.DeadlineExceeded {
		return errors.WrapTransient(errors.ErrTimeout, "Pool", "Submit", action)
	}
	return opCtx.Err()
}

// recordOutcome updates statistics and metrics for one finished submission.
func (p *Pool[T]) recordOutcome(err error, duration time.Duration) {
	status := "success"
	switch {
	case err == nil:
		atomic.AddInt64(&p.completed, 1)
	case stderrors.Is(err, errors.ErrTimeout):
		atomic.AddInt64(&p.timeouts, 1)
		status = "timeout"
	default:
		atomic.AddInt64(&p.failed, 1)
		status = "error"
	}

	if p.metrics != nil {
		switch status {
		case "success":
			p.metrics.completed.Inc()
		case "timeout":
			p.metrics.timeouts.Inc()
		default:
			p.metrics.failed.Inc()
		}
		p.metrics.duration.WithLabelValues(status).Observe(duration.Seconds())
	}
}
