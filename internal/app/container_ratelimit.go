package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"captain-dispatch/internal/config"
	"captain-dispatch/internal/http/middleware/ratelimit"
	"captain-dispatch/internal/logx"
	"captain-dispatch/internal/metrics"
)

// Health checks and scrapes bypass the limiter.
var rateLimitExempt = []string{"/ping", "/healthcheck", "/metrics"}

func newRateLimiter(cfg *config.Config, clock ratelimit.Clock) ratelimit.Limiter {
	rl := cfg.RateLimit
	if !rl.Enabled {
		return ratelimit.NopLimiter{}
	}
	return ratelimit.NewKeyedBuckets(clock, ratelimit.Config{
		Rate:       rl.Rate,
		Burst:      rl.Burst,
		TTL:        rl.TTL,
		MaxBuckets: rl.MaxBuckets,
	})
}

func newRateLimitClock() ratelimit.Clock {
	return ratelimit.SystemClock
}

type rateLimitCounterOut struct {
	dig.Out

	Counter prometheus.Counter `name:"rate_limit_exceeded_total"`
}

func newRateLimitCounter(reg *prometheus.Registry) (rateLimitCounterOut, error) {
	c, err := metrics.Register(reg, metrics.NewRateLimitExceededTotal())
	if err != nil {
		return rateLimitCounterOut{}, err
	}
	return rateLimitCounterOut{Counter: c}, nil
}

type rateLimitIn struct {
	dig.In
	Logger  logx.Logger
	Counter prometheus.Counter `name:"rate_limit_exceeded_total"`
	Limiter ratelimit.Limiter
}

func newRateLimitMiddleware(in rateLimitIn) *ratelimit.Middleware {
	return ratelimit.New(in.Logger, in.Counter, in.Limiter, rateLimitExempt...)
}

func registerRateLimit(container *dig.Container) error {
	return provideAll(container,
		newRateLimitClock,
		newRateLimiter,
		newRateLimitCounter,
		newRateLimitMiddleware,
	)
}
