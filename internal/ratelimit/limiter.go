// Package ratelimit provides per-key token-bucket rate limiting for tasks
// that declare a rate_limit.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter owns one *rate.Limiter per key, created lazily on first use.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New returns an empty Limiter.
func New() *Limiter {
	return &Limiter{limiters: make(map[string]*rate.Limiter)}
}

// Acquire blocks until a token for key is available, at the given rate
// (calls per second). Burst is fixed at 1: an arrival beyond the single
// token must wait for the next tick, which is what keeps spaced-out
// acquisitions deterministic. ctx cancellation unblocks early with ctx.Err().
func (l *Limiter) Acquire(ctx context.Context, key string, ratePerSecond float64) error {
	return l.forKey(key, ratePerSecond).Wait(ctx)
}

func (l *Limiter) forKey(key string, ratePerSecond float64) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
		l.limiters[key] = lim
	}
	return lim
}
