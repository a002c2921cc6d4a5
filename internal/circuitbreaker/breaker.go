// Package circuitbreaker implements an adaptive circuit breaker for
// calls to unreliable SIEM and threat-intel backends.
//
// A breaker admits requests while closed, fails fast while open, and
// trials a recovering backend while half-open. Opening is driven by
// consecutive failures, the overall failure rate, or the slow-call
// rate; the open cooldown grows with exponential backoff and optional
// jitter, and heavily used breakers re-admit traffic gradually instead
// of all at once.
package circuitbreaker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// stateHistorySize bounds the retained transition history.
	stateHistorySize = 100

	// recoveryModeThreshold is the lifetime request count above which a
	// breaker entering half-open uses gradual recovery.
	recoveryModeThreshold = 1000

	// jitterSpread is the ±20% randomization applied to the cooldown.
	jitterSpread = 0.2

	// recentFailureMaxAge and recentFailureLimit scope the failure
	// analysis report.
	recentFailureMaxAge = 10 * time.Minute
	recentFailureLimit  = 10
)

// Operation is a protected call. The breaker imposes no timeout of its
// own; cancellation and deadlines belong to the caller's context.
type Operation func(ctx context.Context) error

// CircuitBreaker guards calls to a single backend. All mutable state is
// protected by one mutex; the wrapped operation runs outside the lock.
type CircuitBreaker struct {
	name   string
	config Config
	log    *logrus.Entry

	mu                sync.Mutex
	state             State
	stateChangedAt    time.Time
	nextAttempt       time.Time
	backoffMultiplier float64
	recoveryMode      bool
	recoveryRate      float64
	metrics           *HealthMetrics
	history           []StateChange
	healthStop        chan struct{}
	rng               *rand.Rand

	callbacks Callbacks

	// stateListener is the manager's aggregate hook, distinct from the
	// user-facing OnStateChange callback.
	stateListener func(name string, from, to State)
}

// New creates a circuit breaker with the given configuration. Zero
// fields are defaulted; use Config.Validate to reject bad thresholds
// before calling New.
func New(name string, config Config) *CircuitBreaker {
	return &CircuitBreaker{
		name:              name,
		config:            config.merge(),
		log:               logrus.WithField("breaker", name),
		state:             StateClosed,
		stateChangedAt:    time.Now(),
		backoffMultiplier: 1.0,
		metrics:           NewHealthMetrics(),
		history:           make([]StateChange, 0, stateHistorySize),
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetCallbacks registers the optional observer hooks.
func (cb *CircuitBreaker) SetCallbacks(callbacks Callbacks) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.callbacks = callbacks
}

// Name returns the circuit breaker name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Do runs op if the breaker admits the request. Rejections return
// *CircuitOpenError and op is never invoked. Errors from op are
// classified for bookkeeping and returned unchanged.
func (cb *CircuitBreaker) Do(ctx context.Context, op Operation) error {
	if err := cb.allowRequest(); err != nil {
		return err
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			cb.recordFailure(fmt.Errorf("panic: %v", r), time.Since(start))
			panic(r)
		}
	}()

	err := op(ctx)
	duration := time.Since(start)

	if err != nil {
		cb.recordFailure(err, duration)
		return err
	}

	cb.recordSuccess(duration)
	return nil
}

// Execute runs fn without a caller context.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	return cb.Do(context.Background(), func(context.Context) error {
		return fn()
	})
}

// DoResult runs op through cb and returns its value alongside the error.
func DoResult[T any](ctx context.Context, cb *CircuitBreaker, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := cb.Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}

// allowRequest applies the admission rules. Crossing the open cooldown
// flips the breaker to half-open as a side effect of admission.
func (cb *CircuitBreaker) allowRequest() error {
	cb.mu.Lock()

	now := time.Now()
	var change *StateChange

	switch cb.state {
	case StateOpen:
		if now.Before(cb.nextAttempt) {
			err := &CircuitOpenError{Name: cb.name, RetryAfter: cb.nextAttempt.Sub(now)}
			cb.mu.Unlock()
			return err
		}
		// Cooldown elapsed: this request becomes the trial.
		change = cb.transitionLocked(StateHalfOpen, "cooldown elapsed", now)

	case StateHalfOpen:
		if cb.recoveryMode && cb.rng.Float64() > cb.recoveryRate {
			err := &CircuitOpenError{Name: cb.name}
			cb.mu.Unlock()
			return err
		}
	}

	cb.mu.Unlock()
	cb.notifyStateChange(change)
	return nil
}

func (cb *CircuitBreaker) recordSuccess(duration time.Duration) {
	cb.mu.Lock()

	now := time.Now()
	cb.metrics.RecordSuccess(duration)

	if cb.recoveryMode {
		cb.recoveryRate *= cb.config.RecoveryGrowth
		if cb.recoveryRate > 1.0 {
			cb.recoveryRate = 1.0
		}
	}

	var change *StateChange
	if cb.state == StateHalfOpen && cb.metrics.ConsecutiveSuccesses() >= cb.config.SuccessThreshold {
		change = cb.transitionLocked(StateClosed, "success threshold reached", now)
	}

	onSuccess := cb.callbacks.OnSuccess
	cb.mu.Unlock()

	cb.notifyStateChange(change)
	if onSuccess != nil {
		safeCall(cb.log, "on_success", func() { onSuccess(cb.name, duration) })
	}
}

func (cb *CircuitBreaker) recordFailure(err error, duration time.Duration) {
	cb.mu.Lock()

	now := time.Now()
	record := FailureRecord{
		Timestamp:    now,
		Type:         cb.config.Classifier.Classify(err),
		Message:      err.Error(),
		ResponseTime: duration,
	}
	if status, ok := statusOf(err); ok {
		record.HTTPStatus = status
	}
	cb.metrics.RecordFailure(record)

	// During gradual recovery a failure throttles the canary before any
	// reopen decision.
	if cb.recoveryMode {
		cb.recoveryRate *= cb.config.RecoveryDecay
	}

	var change *StateChange
	if cb.state == StateClosed || cb.state == StateHalfOpen {
		if reason, trip := cb.shouldTripLocked(); trip {
			change = cb.transitionLocked(StateOpen, reason, now)
		}
	}

	onFailure := cb.callbacks.OnFailure
	cb.mu.Unlock()

	cb.notifyStateChange(change)
	if onFailure != nil {
		safeCall(cb.log, "on_failure", func() { onFailure(cb.name, record) })
	}
}

// shouldTripLocked evaluates the open conditions. Rate-based rules only
// fire after the minimum throughput has been observed.
func (cb *CircuitBreaker) shouldTripLocked() (string, bool) {
	if cb.metrics.TotalRequests() < uint64(cb.config.MinimumThroughput) {
		return "", false
	}

	if streak := cb.metrics.ConsecutiveFailures(); streak >= cb.config.FailureThreshold {
		return fmt.Sprintf("%d consecutive failures", streak), true
	}
	if rate := cb.metrics.FailureRate(); rate >= cb.config.FailureRateThreshold {
		return fmt.Sprintf("failure rate %.1f%%", rate*100), true
	}
	if rate := cb.metrics.SlowCallRate(cb.config.SlowCallThreshold); rate >= cb.config.SlowCallRateThreshold {
		return fmt.Sprintf("slow call rate %.1f%%", rate*100), true
	}
	return "", false
}

// transitionLocked moves the breaker to a new state and returns the
// history entry, or nil when already in that state. Callers flush the
// returned change through notifyStateChange after unlocking.
func (cb *CircuitBreaker) transitionLocked(to State, reason string, now time.Time) *StateChange {
	if cb.state == to {
		return nil
	}

	change := StateChange{From: cb.state, To: to, At: now, Reason: reason}
	cb.state = to
	cb.stateChangedAt = now

	if len(cb.history) >= stateHistorySize {
		cb.history = cb.history[1:]
	}
	cb.history = append(cb.history, change)

	switch to {
	case StateClosed:
		cb.backoffMultiplier = 1.0
		cb.recoveryMode = false
		cb.recoveryRate = 0
		cb.nextAttempt = time.Time{}
		cb.stopHealthLoopLocked()

	case StateHalfOpen:
		cb.metrics.ResetStreaks()
		if cb.metrics.TotalRequests() > recoveryModeThreshold {
			cb.recoveryMode = true
			cb.recoveryRate = cb.config.RecoveryFactor
		} else {
			cb.recoveryMode = false
			cb.recoveryRate = 0
		}
		cb.stopHealthLoopLocked()

	case StateOpen:
		cooldown := time.Duration(float64(cb.config.Timeout) * cb.backoffMultiplier)
		if cooldown > cb.config.MaxTimeout {
			cooldown = cb.config.MaxTimeout
		}
		if cb.config.Jitter {
			spread := 1 - jitterSpread + 2*jitterSpread*cb.rng.Float64()
			cooldown = time.Duration(float64(cooldown) * spread)
		}
		cb.nextAttempt = now.Add(cooldown)
		if cb.config.ExponentialBackoff {
			cb.backoffMultiplier *= 2
		}
		cb.startHealthLoopLocked()
	}

	return &change
}

// notifyStateChange logs the transition and fires the manager listener
// and the user hook. Runs outside the breaker lock.
func (cb *CircuitBreaker) notifyStateChange(change *StateChange) {
	if change == nil {
		return
	}

	cb.log.WithFields(logrus.Fields{
		"from":   change.From.String(),
		"to":     change.To.String(),
		"reason": change.Reason,
	}).Info("circuit breaker state changed")

	cb.mu.Lock()
	listener := cb.stateListener
	hook := cb.callbacks.OnStateChange
	cb.mu.Unlock()

	if listener != nil {
		safeCall(cb.log, "state_listener", func() { listener(cb.name, change.From, change.To) })
	}
	if hook != nil {
		safeCall(cb.log, "on_state_change", func() { hook(cb.name, change.From, change.To) })
	}
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// NextAttemptIn returns the remaining open cooldown, or zero when the
// breaker is not open.
func (cb *CircuitBreaker) NextAttemptIn() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return 0
	}
	remaining := time.Until(cb.nextAttempt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset forces the breaker closed and clears timers, backoff and
// recovery gating. Historical counters survive; they exist for
// postmortems, not for operational state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	now := time.Now()
	change := cb.transitionLocked(StateClosed, "manual reset", now)
	cb.metrics.ResetStreaks()
	cb.backoffMultiplier = 1.0
	cb.recoveryMode = false
	cb.recoveryRate = 0
	cb.nextAttempt = time.Time{}
	cb.mu.Unlock()

	cb.notifyStateChange(change)
}

// ForceOpen is an administrative override that opens the circuit
// without evaluating any thresholds.
func (cb *CircuitBreaker) ForceOpen(reason string) {
	cb.mu.Lock()
	change := cb.transitionLocked(StateOpen, reason, time.Now())
	cb.mu.Unlock()

	cb.notifyStateChange(change)
}

// Cleanup stops the background health-check loop. Safe to call more
// than once; the breaker remains usable afterwards.
func (cb *CircuitBreaker) Cleanup() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.stopHealthLoopLocked()
}

// startHealthLoopLocked (re)starts the diagnostic loop for the current
// open episode.
func (cb *CircuitBreaker) startHealthLoopLocked() {
	cb.stopHealthLoopLocked()

	stop := make(chan struct{})
	cb.healthStop = stop
	go cb.healthLoop(stop, cb.config.HealthCheckInterval)
}

func (cb *CircuitBreaker) stopHealthLoopLocked() {
	if cb.healthStop != nil {
		close(cb.healthStop)
		cb.healthStop = nil
	}
}

// healthLoop performs no network activity. It bounds the wait on an
// open circuit for diagnostics and exits when the cooldown elapses, the
// state changes, or the breaker is cleaned up.
func (cb *CircuitBreaker) healthLoop(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			cb.mu.Lock()
			state := cb.state
			remaining := time.Until(cb.nextAttempt)
			cb.mu.Unlock()

			if state != StateOpen || remaining <= 0 {
				return
			}
			cb.log.WithField("next_attempt_in", remaining.Round(time.Millisecond)).
				Debug("circuit open, waiting out cooldown")
		}
	}
}

// RecoverySnapshot describes the gradual-recovery gate.
type RecoverySnapshot struct {
	Active            bool    `json:"active"`
	AdmissionRate     float64 `json:"admission_rate"`
	BackoffMultiplier float64 `json:"backoff_multiplier"`
}

// Status is a point-in-time view of one breaker.
type Status struct {
	Name          string           `json:"name"`
	State         State            `json:"state"`
	StateDuration time.Duration    `json:"state_duration"`
	NextAttemptIn time.Duration    `json:"next_attempt_in"`
	Metrics       MetricsSnapshot  `json:"metrics"`
	Config        Config           `json:"config"`
	Recovery      RecoverySnapshot `json:"recovery"`
}

// Status reports the breaker's state, counters and recovery gate.
func (cb *CircuitBreaker) Status() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	nextAttemptIn := time.Duration(0)
	if cb.state == StateOpen {
		if remaining := time.Until(cb.nextAttempt); remaining > 0 {
			nextAttemptIn = remaining
		}
	}

	return Status{
		Name:          cb.name,
		State:         cb.state,
		StateDuration: time.Since(cb.stateChangedAt),
		NextAttemptIn: nextAttemptIn,
		Metrics:       cb.metrics.Snapshot(),
		Config:        cb.config,
		Recovery: RecoverySnapshot{
			Active:            cb.recoveryMode,
			AdmissionRate:     cb.recoveryRate,
			BackoffMultiplier: cb.backoffMultiplier,
		},
	}
}

// FailureAnalysis summarizes the retained failure history.
type FailureAnalysis struct {
	FailureTypes      map[FailureType]int `json:"failure_types"`
	TotalFailures     uint64              `json:"total_failures"`
	RecentFailures    []FailureRecord     `json:"recent_failures"`
	MostCommonFailure FailureType         `json:"most_common_failure"`
}

// FailureAnalysis reports the failure-type histogram and the most
// recent failures (younger than ten minutes, at most ten).
func (cb *CircuitBreaker) FailureAnalysis() FailureAnalysis {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return FailureAnalysis{
		FailureTypes:      cb.metrics.FailureHistogram(),
		TotalFailures:     cb.metrics.Snapshot().TotalFailures,
		RecentFailures:    cb.metrics.RecentFailures(recentFailureMaxAge, recentFailureLimit),
		MostCommonFailure: cb.metrics.MostCommonFailure(),
	}
}

// ResponseTimeStats summarizes the retained latency window.
type ResponseTimeStats struct {
	Avg     time.Duration `json:"avg"`
	P95     time.Duration `json:"p95"`
	Samples int           `json:"samples"`
}

// SlowCallStats summarizes slow calls over the retained window.
type SlowCallStats struct {
	Count     int           `json:"count"`
	Rate      float64       `json:"rate"`
	Threshold time.Duration `json:"threshold"`
}

// PerformanceAnalysis reports latency statistics and the trend.
type PerformanceAnalysis struct {
	ResponseTimes ResponseTimeStats `json:"response_time_stats"`
	SlowCalls     SlowCallStats     `json:"slow_calls"`
	Trend         string            `json:"trend"`
}

// PerformanceAnalysis reports latency stats, slow-call pressure and the
// recent performance trend.
func (cb *CircuitBreaker) PerformanceAnalysis() PerformanceAnalysis {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	slow, total := cb.metrics.SlowCalls(cb.config.SlowCallThreshold)
	return PerformanceAnalysis{
		ResponseTimes: ResponseTimeStats{
			Avg:     cb.metrics.AvgResponseTime(),
			P95:     cb.metrics.P95ResponseTime(),
			Samples: total,
		},
		SlowCalls: SlowCallStats{
			Count:     slow,
			Rate:      cb.metrics.SlowCallRate(cb.config.SlowCallThreshold),
			Threshold: cb.config.SlowCallThreshold,
		},
		Trend: cb.metrics.Trend(),
	}
}

// History returns a copy of the retained state transitions, oldest first.
func (cb *CircuitBreaker) History() []StateChange {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	history := make([]StateChange, len(cb.history))
	copy(history, cb.history)
	return history
}
