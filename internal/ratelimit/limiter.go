package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces outbound calls to one remote collaborator. Permits are
// spaced window/maxCalls apart with a single-token bucket, so at most
// maxCalls acquisitions complete within any window.
type Limiter struct {
	limiter *rate.Limiter
}

// New builds a limiter allowing maxCalls per window.
func New(maxCalls int, window time.Duration) *Limiter {
	if maxCalls <= 0 {
		maxCalls = 1
	}
	if window <= 0 {
		window = time.Second
	}
	interval := window / time.Duration(maxCalls)
	return &Limiter{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Acquire blocks until a permit is available or the context is done.
// Safe for concurrent callers.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether a permit is immediately available, consuming it if so.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}
