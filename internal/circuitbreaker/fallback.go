package circuitbreaker

import (
	"context"
	"fmt"
)

// FallbackFunc is a function that provides fallback behavior
type FallbackFunc func(err error) error

// DoWithFallback runs op through the circuit breaker. If the circuit
// rejects the request or op fails, the fallback is called with the
// error.
func (cb *CircuitBreaker) DoWithFallback(ctx context.Context, op Operation, fallback FallbackFunc) error {
	err := cb.Do(ctx, op)
	if err != nil {
		return fallback(err)
	}
	return nil
}

// DoResultWithFallback is a generic variant that supports returning a
// value along with an error. Connectors use it to serve cached
// threat-intel data while a backend is shorted out.
func DoResultWithFallback[T any](ctx context.Context, cb *CircuitBreaker, op func(ctx context.Context) (T, error), fallback func(error) (T, error)) (T, error) {
	result, err := DoResult(ctx, cb, op)
	if err != nil {
		return fallback(err)
	}
	return result, nil
}

// Common fallback strategies

// IgnoreFallback returns nil, ignoring the error
func IgnoreFallback() FallbackFunc {
	return func(err error) error {
		return nil
	}
}

// ReturnErrorFallback returns the original error
func ReturnErrorFallback() FallbackFunc {
	return func(err error) error {
		return err
	}
}

// WrapErrorFallback wraps the error with additional context
func WrapErrorFallback(message string) FallbackFunc {
	return func(err error) error {
		return fmt.Errorf("%s: %w", message, err)
	}
}

// DefaultValueFallback returns a default value function
func DefaultValueFallback[T any](defaultValue T) func(error) (T, error) {
	return func(err error) (T, error) {
		return defaultValue, nil
	}
}

// CacheFallback returns a cached value when the circuit is open. Other
// errors pass through so real failures stay visible.
func CacheFallback[T any](getCached func() (T, bool)) func(error) (T, error) {
	return func(err error) (T, error) {
		if IsCircuitOpen(err) {
			if cached, ok := getCached(); ok {
				return cached, nil
			}
		}
		var zero T
		return zero, err
	}
}

// ChainedFallback tries multiple fallback strategies in order
func ChainedFallback[T any](fallbacks ...func(error) (T, error)) func(error) (T, error) {
	return func(err error) (T, error) {
		for _, fb := range fallbacks {
			result, fbErr := fb(err)
			if fbErr == nil {
				return result, nil
			}
		}
		var zero T
		return zero, err
	}
}
