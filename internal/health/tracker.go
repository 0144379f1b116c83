package health

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Tracker manages per-schedule circuit breakers.
type Tracker struct {
	circuits map[string]*CircuitBreaker
	logger   *zerolog.Logger
	onChange StateChangeFunc
	config   CircuitBreakerConfig
	mu       sync.RWMutex
}

// NewTracker creates a Tracker. onChange may be nil.
func NewTracker(cfg CircuitBreakerConfig, logger *zerolog.Logger, onChange StateChangeFunc) *Tracker {
	return &Tracker{
		circuits: make(map[string]*CircuitBreaker),
		config:   cfg,
		logger:   logger,
		onChange: onChange,
	}
}

// GetOrCreateCircuit returns the circuit breaker for a schedule, creating it if necessary.
func (t *Tracker) GetOrCreateCircuit(schedule string) *CircuitBreaker {
	t.mu.RLock()
	cb, exists := t.circuits[schedule]
	t.mu.RUnlock()
	if exists {
		return cb
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if cb, exists = t.circuits[schedule]; exists {
		return cb
	}
	cb = NewCircuitBreaker(schedule, t.config, t.logger, t.onChange)
	t.circuits[schedule] = cb
	return cb
}

// GetState returns the state of a schedule's breaker, StateClosed when it has none.
func (t *Tracker) GetState(schedule string) State {
	t.mu.RLock()
	cb, exists := t.circuits[schedule]
	t.mu.RUnlock()

	if !exists {
		return StateClosed
	}
	return cb.State()
}

// AllStates returns a snapshot of all schedule circuit states.
func (t *Tracker) AllStates() map[string]State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	states := make(map[string]State, len(t.circuits))
	for name, cb := range t.circuits {
		states[name] = cb.State()
	}
	return states
}

// Names returns the tracked schedule names in order.
func (t *Tracker) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.circuits))
	for name := range t.circuits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
