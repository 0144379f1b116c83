// Package health tracks schedule health with circuit breakers.
//
// Each schedule gets its own breaker: after FailureThreshold consecutive failed
// runs the schedule is skipped until OpenDuration has elapsed, then a single
// probe run decides whether it closes again.
package health

import "time"

// Default configuration values.
const (
	DefaultFailureThreshold = 3
	DefaultOpenDuration     = 30 * time.Minute
	DefaultHalfOpenProbes   = 1
)

// CircuitBreakerConfig defines circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening the circuit.
	FailureThreshold int `env:"FAILURE_THRESHOLD"`
	// OpenDuration is how long the circuit stays open before a probe run.
	OpenDuration time.Duration `env:"OPEN_DURATION"`
	// HalfOpenProbes is the number of runs allowed while half-open.
	HalfOpenProbes int `env:"HALF_OPEN_PROBES"`
}

// GetFailureThreshold returns the configured failure threshold or the default.
func (c *CircuitBreakerConfig) GetFailureThreshold() int {
	if c.FailureThreshold <= 0 {
		return DefaultFailureThreshold
	}
	return c.FailureThreshold
}

// GetOpenDuration returns the open duration or the default.
func (c *CircuitBreakerConfig) GetOpenDuration() time.Duration {
	if c.OpenDuration <= 0 {
		return DefaultOpenDuration
	}
	return c.OpenDuration
}

// GetHalfOpenProbes returns the configured half-open probes or the default.
func (c *CircuitBreakerConfig) GetHalfOpenProbes() int {
	if c.HalfOpenProbes <= 0 {
		return DefaultHalfOpenProbes
	}
	return c.HalfOpenProbes
}
