package scheduler

import "time"

// WithAfter replaces time.After so tests do not wait for real intervals.
func WithAfter(after func(time.Duration) <-chan time.Time) Option {
	return func(s *Scheduler) { s.after = after }
}
