package health

import "errors"

// ErrCircuitOpen is returned when a schedule's circuit is open and its run is skipped.
var ErrCircuitOpen = errors.New("health: circuit breaker is open")
