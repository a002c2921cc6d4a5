package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/siemguard/circuit-breaker/internal/circuitbreaker"
)

// HTTPMiddlewareConfig configures the HTTP middleware
type HTTPMiddlewareConfig struct {
	// CircuitBreaker to use
	Breaker *circuitbreaker.CircuitBreaker

	// Metrics for recording request stats
	Metrics *circuitbreaker.Metrics

	// OnCircuitOpen is called when the circuit is open, allowing custom responses
	OnCircuitOpen func(w http.ResponseWriter, r *http.Request, retryAfter time.Duration)

	// IsSuccessful determines if a response is considered successful
	// Defaults to: 2xx and 3xx status codes
	IsSuccessful func(status int) bool
}

// HTTPMiddleware wraps HTTP handlers with circuit breaker protection
type HTTPMiddleware struct {
	config     HTTPMiddlewareConfig
	classifier *circuitbreaker.Classifier
}

// NewHTTPMiddleware creates a new HTTP middleware
func NewHTTPMiddleware(config HTTPMiddlewareConfig) *HTTPMiddleware {
	if config.OnCircuitOpen == nil {
		config.OnCircuitOpen = defaultCircuitOpenHandler
	}
	if config.IsSuccessful == nil {
		config.IsSuccessful = defaultIsSuccessful
	}

	return &HTTPMiddleware{
		config:     config,
		classifier: circuitbreaker.DefaultClassifier(),
	}
}

// Wrap wraps an http.Handler with circuit breaker protection
func (m *HTTPMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		// Execute through circuit breaker
		err := m.config.Breaker.Do(r.Context(), func(context.Context) error {
			next.ServeHTTP(wrapped, r)

			// Check if response indicates failure
			if !m.config.IsSuccessful(wrapped.statusCode) {
				return &httpError{statusCode: wrapped.statusCode}
			}
			return nil
		})

		duration := time.Since(start).Seconds()
		name := m.config.Breaker.Name()

		var openErr *circuitbreaker.CircuitOpenError
		if errors.As(err, &openErr) {
			if m.config.Metrics != nil {
				m.config.Metrics.RecordRejection(name)
			}
			m.config.OnCircuitOpen(w, r, openErr.RetryAfter)
			return
		}

		// Record metrics
		if m.config.Metrics != nil {
			m.config.Metrics.RecordRequest(name)
			if err == nil {
				m.config.Metrics.RecordSuccess(name)
				m.config.Metrics.RecordDuration(name, "success", duration)
			} else {
				m.config.Metrics.RecordFailure(name, m.classifier.Classify(err))
				m.config.Metrics.RecordDuration(name, "failure", duration)
			}
		}
	})
}

// WrapFunc wraps an http.HandlerFunc with circuit breaker protection
func (m *HTTPMiddleware) WrapFunc(next http.HandlerFunc) http.Handler {
	return m.Wrap(next)
}

// Handler returns a middleware handler for use with chi, gorilla/mux, etc.
func (m *HTTPMiddleware) Handler(next http.Handler) http.Handler {
	return m.Wrap(next)
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// httpError represents an HTTP error response
type httpError struct {
	statusCode int
}

func (e *httpError) Error() string {
	return http.StatusText(e.statusCode)
}

// HTTPStatus exposes the status code for failure classification.
func (e *httpError) HTTPStatus() int {
	return e.statusCode
}

// defaultCircuitOpenHandler returns a 503 Service Unavailable with a
// Retry-After hint derived from the remaining cooldown
func defaultCircuitOpenHandler(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	seconds := int(retryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
	w.WriteHeader(http.StatusServiceUnavailable)
	fmt.Fprintf(w, `{"error":"service temporarily unavailable","retry_after":%d}`, seconds)
}

// defaultIsSuccessful considers 2xx and 3xx status codes as successful
func defaultIsSuccessful(status int) bool {
	return status >= 200 && status < 400
}

// RoundTripper wraps http.RoundTripper with circuit breaker protection
// for outgoing requests. SIEM connectors install it on their HTTP
// clients so every outbound call goes through the breaker's gate.
type RoundTripper struct {
	base       http.RoundTripper
	breaker    *circuitbreaker.CircuitBreaker
	metrics    *circuitbreaker.Metrics
	classifier *circuitbreaker.Classifier
}

// NewRoundTripper creates a new circuit-protected RoundTripper
func NewRoundTripper(base http.RoundTripper, breaker *circuitbreaker.CircuitBreaker, metrics *circuitbreaker.Metrics) *RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RoundTripper{
		base:       base,
		breaker:    breaker,
		metrics:    metrics,
		classifier: circuitbreaker.DefaultClassifier(),
	}
}

// RoundTrip implements http.RoundTripper
func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response

	start := time.Now()
	err := rt.breaker.Do(req.Context(), func(context.Context) error {
		var err error
		resp, err = rt.base.RoundTrip(req)
		if err != nil {
			return err
		}

		// Consider 5xx as failures
		if resp.StatusCode >= 500 {
			return &httpError{statusCode: resp.StatusCode}
		}
		return nil
	})

	duration := time.Since(start).Seconds()
	name := rt.breaker.Name()

	// Record metrics
	if rt.metrics != nil {
		if err == nil {
			rt.metrics.RecordSuccess(name)
			rt.metrics.RecordDuration(name, "success", duration)
		} else if circuitbreaker.IsCircuitOpen(err) {
			rt.metrics.RecordRejection(name)
		} else {
			rt.metrics.RecordFailure(name, rt.classifier.Classify(err))
			rt.metrics.RecordDuration(name, "failure", duration)
		}
	}

	return resp, err
}
