package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-booking/internal/metrics"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 8, 21, 14, 30, 0, 0, time.UTC)}
}

func TestPutGet(t *testing.T) {
	c := New()
	c.Put("appointments", []string{"a1"}, 0)

	v, ok := c.Get("appointments")
	require.True(t, ok)
	assert.Equal(t, []string{"a1"}, v)

	_, ok = c.Get("notifications")
	assert.False(t, ok)
}

func TestPutOverwrites(t *testing.T) {
	clock := newClock()
	c := New(WithClock(clock.Now))

	c.Put("k", 1, time.Minute)
	clock.Advance(30 * time.Second)
	c.Put("k", 2, 0)

	clock.Advance(time.Hour)
	v, ok := c.Get("k")
	require.True(t, ok, "second put had no ttl")
	assert.Equal(t, 2, v)

	at, ok := c.WrittenAt("k")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 8, 21, 14, 30, 30, 0, time.UTC), at)
}

func TestTTLExpiry(t *testing.T) {
	clock := newClock()
	c := New(WithClock(clock.Now))
	c.Put("k", "v", 5*time.Minute)

	clock.Advance(5*time.Minute - time.Nanosecond)
	_, ok := c.Get("k")
	assert.True(t, ok, "still fresh just before expiry")

	clock.Advance(time.Nanosecond)
	_, ok = c.Get("k")
	assert.False(t, ok, "expiresAt must be strictly in the future")
	assert.Equal(t, 0, c.Len(), "expired entry is evicted on read")
}

func TestInvalidateAndClear(t *testing.T) {
	c := New()
	c.Put("a", 1, 0)
	c.Put("b", 2, 0)

	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestLookupMetrics(t *testing.T) {
	clock := newClock()
	c := New(WithClock(clock.Now))

	hits := testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("hit"))
	misses := testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("miss"))
	expired := testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("expired"))

	c.Put("k", 1, time.Second)
	c.Get("k")
	c.Get("nope")
	clock.Advance(time.Second)
	c.Get("k")

	assert.Equal(t, hits+1, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, misses+1, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, expired+1, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("expired")))
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Put("k", i, time.Minute)
			c.Get("k")
			c.Invalidate("other")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, c.Len())
}
