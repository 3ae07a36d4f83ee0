// Package eventbus provides in-process pub/sub for configuration change
// events.
//
// Topics are dot-delimited, one segment per level: a change to configuration
// "server" publishes on "config.server". Subscriptions match either an exact
// topic or a pattern with a single trailing wildcard segment: "config.*"
// matches "config.server" but not "config.server.port". No other wildcard
// forms exist.
//
// Publish is fire-and-forget. Each subscriber owns a buffered channel; a
// subscriber that falls behind loses events rather than stalling the
// publisher.
package eventbus

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/c360/confstream/errors"
	"github.com/c360/confstream/types"
)

// DefaultBuffer is the per-subscription channel capacity.
const DefaultBuffer = 64

// Subscription is one subscriber's view of the bus. Events arrive on C from
// subscription time onward; there is no replay of earlier changes.
type Subscription struct {
	Pattern string
	C       <-chan types.ConfigChange

	bus  *Bus
	ch   chan types.ConfigChange
	once sync.Once
}

// Unsubscribe detaches the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.ch)
	})
}

// Bus fans configuration changes out to pattern subscribers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string][]*Subscription
	closed  bool
	buffer  int
	logger  *slog.Logger
	dropped int64
}

// Option configures a Bus.
type Option func(*Bus)

// WithBuffer sets the per-subscription channel capacity.
func WithBuffer(size int) Option {
	return func(b *Bus) {
		if size > 0 {
			b.buffer = size
		}
	}
}

// WithLogger sets the logger used to report dropped events.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates an event bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[string][]*Subscription),
		buffer: DefaultBuffer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a pattern and returns a subscription whose channel
// receives every subsequent matching change. Returns ErrBusClosed after
// Close.
func (b *Bus) Subscribe(pattern string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.WrapFatal(errors.ErrBusClosed, "Bus", "Subscribe", "register pattern")
	}

	ch := make(chan types.ConfigChange, b.buffer)
	sub := &Subscription{Pattern: pattern, C: ch, bus: b, ch: ch}
	b.subs[pattern] = append(b.subs[pattern], sub)
	return sub, nil
}

// Publish delivers a change to every matching subscriber without blocking.
// A full subscriber channel drops the event for that subscriber only.
// Publishing on a closed bus is a no-op.
func (b *Bus) Publish(change types.ConfigChange) {
	topic := change.Topic()

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for pattern, subs := range b.subs {
		if !matchesPattern(topic, pattern) {
			continue
		}
		for _, sub := range subs {
			select {
			case sub.ch <- change:
			default:
				atomic.AddInt64(&b.dropped, 1)
				b.logger.Warn("dropping change event for slow subscriber",
					"topic", topic,
					"pattern", pattern,
					"change_id", change.ID)
			}
		}
	}
}

// Close shuts the bus down, closing every subscriber channel. Subsequent
// Publish calls are no-ops and Subscribe fails.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true

	var all []*Subscription
	for _, subs := range b.subs {
		all = append(all, subs...)
	}
	b.subs = make(map[string][]*Subscription)
	b.mu.Unlock()

	// Channels are closed after the lock is released: Unsubscribe takes the
	// lock inside its sync.Once, so firing the Onces while holding it would
	// deadlock against a concurrent Unsubscribe.
	for _, sub := range all {
		sub.once.Do(func() { close(sub.ch) })
	}
}

// Dropped returns the number of events lost to slow subscribers.
func (b *Bus) Dropped() int64 {
	return atomic.LoadInt64(&b.dropped)
}

// remove detaches a subscription from the bus.
func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[s.Pattern]
	for i, sub := range subs {
		if sub == s {
			b.subs[s.Pattern] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[s.Pattern]) == 0 {
		delete(b.subs, s.Pattern)
	}
}

// matchesPattern reports whether a topic matches a subscription pattern.
// Patterns are exact topics, or end in a single ".*" that matches exactly
// one trailing segment.
func matchesPattern(topic, pattern string) bool {
	if topic == pattern {
		return true
	}

	prefix, ok := strings.CutSuffix(pattern, ".*")
	if !ok || strings.Contains(prefix, "*") {
		return false
	}

	rest, ok := strings.CutPrefix(topic, prefix+".")
	if !ok {
		return false
	}
	// The wildcard covers exactly one segment.
	return rest != "" && !strings.Contains(rest, ".")
}
