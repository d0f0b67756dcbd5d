// Package cache provides a single-flight memoizing gate with a fixed TTL.
package cache

import (
	"errors"
	"sync"
	"time"

	"icalmerge/internal/metrics"
)

// ErrBuildPanicked is returned to callers waiting on a build that panicked.
var ErrBuildPanicked = errors.New("cache: build panicked")

// DefaultTTL is how long a successful build is served from the gate.
const DefaultTTL = 15 * time.Minute

// entry is one build, in flight or finished. done is closed when value and
// err are final.
type entry[V any] struct {
	done      chan struct{}
	value     V
	err       error
	createdAt time.Time
}

// Gate memoizes the result of a build per key. Concurrent callers of the same
// key share a single in-flight build; its result is served until TTL elapses.
// Failed builds are never cached.
type Gate[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
}

// Option configures a Gate.
type Option func(*options)

type options struct {
	now     func() time.Time
	metrics *metrics.Metrics
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMetrics records hit, miss and coalesced lookups on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New returns a Gate keeping results for ttl. A non-positive ttl uses
// DefaultTTL.
func New[V any](ttl time.Duration, opts ...Option) *Gate[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Gate[V]{
		entries: make(map[string]*entry[V]),
		ttl:     ttl,
		now:     o.now,
		metrics: o.metrics,
	}
}

// TTL returns the retention of successful results.
func (g *Gate[V]) TTL() time.Duration {
	return g.ttl
}

// Do returns the memoized result for key, or runs build. While build runs,
// other callers of the same key wait for it and receive the same outcome.
// An error is delivered to every waiter and then forgotten, so the next call
// starts a fresh build.
func (g *Gate[V]) Do(key string, build func() (V, error)) (V, error) {
	g.mu.Lock()
	if e, ok := g.entries[key]; ok {
		select {
		case <-e.done:
			if g.now().Sub(e.createdAt) < g.ttl {
				g.mu.Unlock()
				g.metrics.IncCacheLookup(metrics.CacheHit)
				return e.value, e.err
			}
			delete(g.entries, key)
		default:
			g.mu.Unlock()
			g.metrics.IncCacheLookup(metrics.CacheCoalesced)
			<-e.done
			return e.value, e.err
		}
	}

	e := &entry[V]{done: make(chan struct{})}
	g.entries[key] = e
	g.mu.Unlock()
	g.metrics.IncCacheLookup(metrics.CacheMiss)

	g.run(key, e, build)
	return e.value, e.err
}

func (g *Gate[V]) run(key string, e *entry[V], build func() (V, error)) {
	finished := false
	defer func() {
		if finished {
			return
		}
		// build panicked: release the waiters, the panic keeps unwinding.
		e.err = ErrBuildPanicked
		g.finish(key, e)
	}()

	v, err := build()
	e.value, e.err = v, err
	finished = true
	g.finish(key, e)
}

func (g *Gate[V]) finish(key string, e *entry[V]) {
	g.mu.Lock()
	if e.err != nil {
		if g.entries[key] == e {
			delete(g.entries, key)
		}
	} else {
		e.createdAt = g.now()
	}
	g.mu.Unlock()
	close(e.done)
}

// Forget drops any finished result for key. An in-flight build is left alone.
func (g *Gate[V]) Forget(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.entries[key]; ok {
		select {
		case <-e.done:
			delete(g.entries, key)
		default:
		}
	}
}
