// Package ratelimit throttles repeated work to a per-minute budget.
//
// The pipeline uses it to bound how often Singer state is persisted while a
// run is in progress:
//
//	limiter := ratelimit.New(6) // at most 6 flushes per minute
//	if limiter.Allow() {
//		flush(state)
//	}
package ratelimit

import (
	"golang.org/x/time/rate"
)

// Limiter is a token bucket sized in events per minute.
// Burst equals one event so events are spread across the minute.
// A limit of zero or less is unlimited.
//
// Thread safety: All methods are safe for concurrent use.
type Limiter struct {
	limiter   *rate.Limiter
	perMinute int
}

// New returns a Limiter allowing perMinute events per minute.
func New(perMinute int) *Limiter {
	if perMinute <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{
		limiter:   rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
		perMinute: perMinute,
	}
}

// Allow reports whether an event may happen now and consumes it if so.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Limit returns the budget per minute; zero means unlimited.
func (l *Limiter) Limit() int {
	return l.perMinute
}
