package circuitbreaker

import (
	"fmt"
	"time"
)

// State represents the circuit breaker state
type State int

const (
	// StateClosed - Circuit is closed, requests pass through
	StateClosed State = iota

	// StateHalfOpen - Circuit is testing if the backend recovered
	StateHalfOpen

	// StateOpen - Circuit is open, requests fail fast
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("unknown state: %d", int(s))
	}
}

// FailureType categorizes a recorded failure for observability.
// Classification is best-effort; it never changes which error the
// caller sees.
type FailureType string

const (
	FailureTimeout            FailureType = "timeout"
	FailureConnection         FailureType = "connection_error"
	FailureAuthentication     FailureType = "authentication_error"
	FailureRateLimit          FailureType = "rate_limit"
	FailureServiceUnavailable FailureType = "service_unavailable"
	FailureHTTPError          FailureType = "http_error"
	FailureUnknown            FailureType = "unknown"
)

// FailureRecord is a single classified failure kept in the bounded
// failure history of a breaker.
type FailureRecord struct {
	Timestamp    time.Time
	Type         FailureType
	Message      string
	ResponseTime time.Duration
	HTTPStatus   int
}

// Age returns how long ago the failure occurred.
func (r FailureRecord) Age() time.Duration {
	return time.Since(r.Timestamp)
}

// StateChange is one entry in a breaker's bounded transition history.
type StateChange struct {
	From   State
	To     State
	At     time.Time
	Reason string
}
