package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// White-box tests for the gradual-recovery gate: the admission
// probability is internal state, so these drive it directly.

func TestRecovery_EnabledOnlyForBusyBreakers(t *testing.T) {
	cb := New("busy", Config{Timeout: 50 * time.Millisecond, Jitter: false})
	defer cb.Cleanup()

	cb.mu.Lock()
	cb.metrics.totalRequests = recoveryModeThreshold + 500
	cb.transitionLocked(StateOpen, "test", time.Now().Add(-time.Second))
	cb.nextAttempt = time.Now().Add(-time.Millisecond)
	cb.mu.Unlock()

	// Crossing the cooldown flips to half-open with the canary gate on.
	// The trial itself is always admitted.
	require.NoError(t, cb.Do(context.Background(), func(context.Context) error { return nil }))

	status := cb.Status()
	assert.Equal(t, StateHalfOpen, status.State)
	assert.True(t, status.Recovery.Active)
	// One success has already grown the rate from the recovery factor.
	assert.InDelta(t, 0.1*1.1, status.Recovery.AdmissionRate, 1e-9)
}

func TestRecovery_QuietBreakerAdmitsFullTraffic(t *testing.T) {
	cb := New("quiet", Config{Timeout: 50 * time.Millisecond, Jitter: false})
	defer cb.Cleanup()

	cb.mu.Lock()
	cb.metrics.totalRequests = 20
	cb.transitionLocked(StateOpen, "test", time.Now().Add(-time.Second))
	cb.nextAttempt = time.Now().Add(-time.Millisecond)
	cb.mu.Unlock()

	require.NoError(t, cb.Do(context.Background(), func(context.Context) error { return nil }))

	status := cb.Status()
	assert.Equal(t, StateHalfOpen, status.State)
	assert.False(t, status.Recovery.Active)
}

func TestRecovery_GateRejectsWhenRateIsZero(t *testing.T) {
	cb := New("gated", Config{})
	defer cb.Cleanup()

	cb.mu.Lock()
	cb.state = StateHalfOpen
	cb.recoveryMode = true
	cb.recoveryRate = 0
	cb.mu.Unlock()

	invoked := false
	err := cb.Do(context.Background(), func(context.Context) error {
		invoked = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, IsCircuitOpen(err))
	assert.False(t, invoked)
}

func TestRecovery_GateAdmitsWhenRateIsFull(t *testing.T) {
	cb := New("open-gate", Config{})
	defer cb.Cleanup()

	cb.mu.Lock()
	cb.state = StateHalfOpen
	cb.recoveryMode = true
	cb.recoveryRate = 1.0
	cb.mu.Unlock()

	for i := 0; i < 20; i++ {
		require.NoError(t, cb.Do(context.Background(), func(context.Context) error { return nil }))
		// Keep half-open so the gate stays in play.
		cb.mu.Lock()
		cb.state = StateHalfOpen
		cb.metrics.ResetStreaks()
		cb.mu.Unlock()
	}
}

func TestRecovery_RateGrowsOnSuccessAndDecaysOnFailure(t *testing.T) {
	cfg := Config{FailureThreshold: 100, FailureRateThreshold: 0.99, MinimumThroughput: 100}
	cb := New("rate", cfg)
	defer cb.Cleanup()

	cb.mu.Lock()
	cb.state = StateHalfOpen
	cb.recoveryMode = true
	cb.recoveryRate = 0.5
	cb.mu.Unlock()

	cb.recordSuccess(time.Millisecond)
	assert.InDelta(t, 0.55, cb.Status().Recovery.AdmissionRate, 1e-9)

	cb.recordFailure(errors.New("boom"), time.Millisecond)
	assert.InDelta(t, 0.275, cb.Status().Recovery.AdmissionRate, 1e-9)
}

func TestRecovery_RateClampedAtOne(t *testing.T) {
	cb := New("clamp", Config{FailureThreshold: 100, MinimumThroughput: 100})
	defer cb.Cleanup()

	cb.mu.Lock()
	cb.state = StateHalfOpen
	cb.recoveryMode = true
	cb.recoveryRate = 0.99
	cb.mu.Unlock()

	for i := 0; i < 5; i++ {
		cb.recordSuccess(time.Millisecond)
		cb.mu.Lock()
		cb.state = StateHalfOpen
		cb.metrics.ResetStreaks()
		cb.mu.Unlock()
	}
	assert.Equal(t, 1.0, cb.Status().Recovery.AdmissionRate)
}
