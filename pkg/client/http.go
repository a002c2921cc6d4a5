// Package client provides an HTTP client for SIEM and threat-intel
// connectors whose outbound calls are gated by a circuit breaker.
package client

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/siemguard/circuit-breaker/internal/circuitbreaker"
	"github.com/siemguard/circuit-breaker/internal/middleware"
)

// HTTPClient wraps http.Client with circuit breaker protection. The
// client sets no request timeout beyond the transport default; pass a
// context with a deadline to bound individual calls.
type HTTPClient struct {
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// New creates a protected HTTP client. The breaker is registered with
// the manager under name, so its state shows up in the manager's
// global status.
func New(name string, manager *circuitbreaker.Manager, config circuitbreaker.Config, metrics *circuitbreaker.Metrics) (*HTTPClient, error) {
	breaker, err := manager.CreateBreaker(name, config)
	if err != nil {
		return nil, err
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: middleware.NewRoundTripper(nil, breaker, metrics),
		},
		breaker: breaker,
	}, nil
}

// Get performs a GET request through the circuit breaker
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil)
}

// Post performs a POST request through the circuit breaker
func (c *HTTPClient) Post(ctx context.Context, url string, body io.Reader) (*http.Response, error) {
	return c.Do(ctx, http.MethodPost, url, body)
}

// Do performs an HTTP request through the circuit breaker
func (c *HTTPClient) Do(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	return c.client.Do(req)
}

// State returns the current state of the circuit breaker
func (c *HTTPClient) State() circuitbreaker.State {
	return c.breaker.State()
}

// Status returns the breaker's full status snapshot
func (c *HTTPClient) Status() circuitbreaker.Status {
	return c.breaker.Status()
}

// CircuitBreaker returns the underlying circuit breaker
func (c *HTTPClient) CircuitBreaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}
