package ratelimit

import (
	"sync"
	"time"
)

// Config sizes a KeyedBuckets limiter.
type Config struct {
	Rate       float64       // refill per second
	Burst      int           // bucket capacity
	TTL        time.Duration // idle buckets older than this are dropped; 0 keeps them
	MaxBuckets int           // 0 means unbounded
}

// KeyedBuckets keeps one token bucket per caller key. Captains posting
// location pings and customers polling their orders each drain their own
// bucket.
type KeyedBuckets struct {
	cfg   Config
	clock Clock

	mu        sync.Mutex
	buckets   map[string]*bucket
	nextSweep time.Time
}

type bucket struct {
	tokens float64
	at     time.Time
}

// NewKeyedBuckets builds the limiter. Non-positive rate or burst fall back
// to one.
func NewKeyedBuckets(clock Clock, cfg Config) *KeyedBuckets {
	if clock == nil {
		clock = SystemClock
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxBuckets < 0 {
		cfg.MaxBuckets = 0
	}
	return &KeyedBuckets{cfg: cfg, clock: clock, buckets: make(map[string]*bucket)}
}

// Allow takes one token from key's bucket. A new key is refused when the
// table is full even after idle buckets are dropped.
func (l *KeyedBuckets) Allow(key string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cfg.TTL > 0 && !now.Before(l.nextSweep) {
		l.sweep(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		if l.full() {
			l.sweep(now)
			if l.full() {
				return false
			}
		}
		b = &bucket{tokens: float64(l.cfg.Burst), at: now}
		l.buckets[key] = b
	}

	if elapsed := now.Sub(b.at); elapsed > 0 {
		b.tokens = min(float64(l.cfg.Burst), b.tokens+elapsed.Seconds()*l.cfg.Rate)
		b.at = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Len reports how many keys hold a bucket.
func (l *KeyedBuckets) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *KeyedBuckets) full() bool {
	return l.cfg.MaxBuckets > 0 && len(l.buckets) >= l.cfg.MaxBuckets
}

// sweep drops buckets idle for longer than TTL. Caller holds mu.
func (l *KeyedBuckets) sweep(now time.Time) {
	if l.cfg.TTL <= 0 {
		return
	}
	for k, b := range l.buckets {
		if now.Sub(b.at) > l.cfg.TTL {
			delete(l.buckets, k)
		}
	}
	l.nextSweep = now.Add(l.cfg.TTL / 2)
}
