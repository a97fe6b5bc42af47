// Package ratelimit paces tile fetch starts to at most RateLimit tiles per
// second using golang.org/x/time/rate.
//
// Contract (spec §4.7): Acquire must be called from inside each fetch task,
// never from the scheduler's dispatch loop. Calling it from dispatch would
// serialize slot acquisition and collapse effective concurrency to 1;
// calling it from inside the task lets up to Concurrency tasks queue on the
// limiter at once.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter paces calls to Acquire. A Limiter built by New with a
// non-positive rate, or a nil *Limiter, never blocks.
type Limiter struct {
	rl *rate.Limiter
}

// New builds a Limiter that allows at most ratePerSecond acquisitions per
// second, on average, with no burst beyond 1 (each acquisition must wait
// out the full interval from the previous one once the burst is consumed).
func New(ratePerSecond float64) *Limiter {
	if ratePerSecond <= 0 {
		return &Limiter{}
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(ratePerSecond), 1)}
}

// Acquire blocks until the next slot is available, or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l == nil || l.rl == nil {
		return nil
	}
	return l.rl.Wait(ctx)
}
