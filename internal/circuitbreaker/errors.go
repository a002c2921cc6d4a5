package circuitbreaker

import (
	"errors"
	"fmt"
	"time"
)

// CircuitOpenError is returned when a request is rejected because the
// circuit is open (or gated during gradual recovery). It is a
// control-flow signal, not a backend failure: the protected operation
// was never invoked.
type CircuitOpenError struct {
	// Name of the breaker that rejected the request
	Name string

	// RetryAfter is the remaining cooldown before the next attempt
	// will be admitted. Zero when rejected by recovery gating.
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("circuit breaker %q is open, retry in %s", e.Name, e.RetryAfter.Round(time.Millisecond))
	}
	return fmt.Sprintf("circuit breaker %q is open", e.Name)
}

// IsCircuitOpen reports whether err is a circuit-open rejection.
func IsCircuitOpen(err error) bool {
	var coe *CircuitOpenError
	return errors.As(err, &coe)
}
