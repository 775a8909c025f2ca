package ratelimit

import "time"

// Limiter admits or rejects one request for key.
type Limiter interface {
	Allow(key string) bool
}

// Clock is the time source buckets refill against.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// NopLimiter admits everything. It backs a disabled limit.
type NopLimiter struct{}

func (NopLimiter) Allow(string) bool { return true }
