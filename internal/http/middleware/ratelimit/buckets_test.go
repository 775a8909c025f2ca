package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func allowN(l Limiter, key string, n int) int {
	ok := 0
	for range n {
		if l.Allow(key) {
			ok++
		}
	}
	return ok
}

func TestKeyedBuckets_LocationBurstRefillsAtRate(t *testing.T) {
	t.Parallel()

	clk := newManualClock()
	l := NewKeyedBuckets(clk, Config{Rate: 2, Burst: 5})
	key := "principal:cap-1"

	assert.Equal(t, 5, allowN(l, key, 8), "burst drains the bucket")

	clk.advance(time.Second)
	assert.Equal(t, 2, allowN(l, key, 5), "two tokens per second")

	clk.advance(time.Minute)
	assert.Equal(t, 5, allowN(l, key, 10), "refill is capped at burst")
}

func TestKeyedBuckets_CaptainsDoNotShareBuckets(t *testing.T) {
	t.Parallel()

	l := NewKeyedBuckets(newManualClock(), Config{Rate: 1, Burst: 1})

	require.True(t, l.Allow("principal:cap-1"))
	require.False(t, l.Allow("principal:cap-1"))
	assert.True(t, l.Allow("principal:cap-2"))
	assert.True(t, l.Allow("ip:10.0.0.7"))
}

func TestKeyedBuckets_IdleBucketsAreDropped(t *testing.T) {
	t.Parallel()

	clk := newManualClock()
	l := NewKeyedBuckets(clk, Config{Rate: 10, Burst: 1, TTL: 10 * time.Second})

	l.Allow("principal:cap-idle")
	l.Allow("principal:cap-busy")
	require.Equal(t, 2, l.Len())

	for range 3 {
		clk.advance(6 * time.Second)
		l.Allow("principal:cap-busy")
	}
	assert.Equal(t, 1, l.Len())
}

func TestKeyedBuckets_FullTableRefusesNewKeysUntilIdleExpire(t *testing.T) {
	t.Parallel()

	clk := newManualClock()
	l := NewKeyedBuckets(clk, Config{Rate: 1, Burst: 3, TTL: time.Minute, MaxBuckets: 2})

	require.True(t, l.Allow("ip:10.0.0.1"))
	require.True(t, l.Allow("ip:10.0.0.2"))
	assert.False(t, l.Allow("ip:10.0.0.3"), "no room for a third caller")
	assert.True(t, l.Allow("ip:10.0.0.1"), "known callers keep their bucket")

	clk.advance(2 * time.Minute)
	assert.True(t, l.Allow("ip:10.0.0.3"))
	assert.Equal(t, 1, l.Len())
}

func TestNewKeyedBuckets_Defaults(t *testing.T) {
	t.Parallel()

	l := NewKeyedBuckets(nil, Config{MaxBuckets: -1})
	assert.Equal(t, 1.0, l.cfg.Rate)
	assert.Equal(t, 1, l.cfg.Burst)
	assert.Zero(t, l.cfg.MaxBuckets)
	assert.NotNil(t, l.clock)
}

func TestNopLimiter(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 50, allowN(NopLimiter{}, "anyone", 50))
}
