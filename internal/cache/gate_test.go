package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icalmerge/internal/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestGate_Coalesces(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	g := New[string](time.Minute, WithMetrics(m))

	var builds atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})
	build := func() (string, error) {
		if builds.Add(1) == 1 {
			close(started)
		}
		<-release
		return "calendar", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 5)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = g.Do("k", build)
	}()
	<-started

	for i := 1; i < len(results); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = g.Do("k", build)
		}()
	}

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.CacheLookups.WithLabelValues(metrics.CacheCoalesced)) == 4
	}, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	for _, r := range results {
		assert.Equal(t, "calendar", r)
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheLookups.WithLabelValues(metrics.CacheMiss)))
}

func TestGate_TTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)}
	g := New[int](DefaultTTL, WithClock(clock.Now))

	n := 0
	build := func() (int, error) {
		n++
		return n, nil
	}

	v, err := g.Do("k", build)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	clock.Advance(14 * time.Minute)
	v, _ = g.Do("k", build)
	assert.Equal(t, 1, v)

	clock.Advance(time.Minute)
	v, _ = g.Do("k", build)
	assert.Equal(t, 2, v)
}

func TestGate_ErrorsAreNotCached(t *testing.T) {
	g := New[string](time.Minute)
	boom := errors.New("boom")

	_, err := g.Do("k", func() (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)

	v, err := g.Do("k", func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestGate_KeysAreIndependent(t *testing.T) {
	g := New[string](time.Minute)

	a, _ := g.Do("a", func() (string, error) { return "A", nil })
	b, _ := g.Do("b", func() (string, error) { return "B", nil })
	assert.Equal(t, "A", a)
	assert.Equal(t, "B", b)
}

func TestGate_Forget(t *testing.T) {
	g := New[int](time.Hour)
	n := 0
	build := func() (int, error) {
		n++
		return n, nil
	}

	_, _ = g.Do("k", build)
	g.Forget("k")
	v, _ := g.Do("k", build)
	assert.Equal(t, 2, v)
}

func TestGate_Panic(t *testing.T) {
	g := New[string](time.Minute)

	assert.Panics(t, func() {
		_, _ = g.Do("k", func() (string, error) { panic("bad build") })
	})

	v, err := g.Do("k", func() (string, error) { return "recovered", nil })
	require.NoError(t, err)
	assert.Equal(t, "recovered", v)
}

func TestNew_DefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultTTL, New[string](0).TTL())
}
