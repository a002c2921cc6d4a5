package circuitbreaker

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager is a named registry of circuit breakers. It keeps aggregate
// per-state counts that always equal the sum of its breakers' states,
// maintained solely through each breaker's state-change listener.
//
// Construct one at the application's composition root and pass it to
// collaborators; there is no package-level singleton.
type Manager struct {
	log     *logrus.Entry
	metrics *Metrics

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	byState  map[State]int
}

// NewManager creates an empty registry. metrics may be nil when
// Prometheus reporting is not wanted.
func NewManager(metrics *Metrics) *Manager {
	return &Manager{
		log:      logrus.WithField("component", "breaker-manager"),
		metrics:  metrics,
		breakers: make(map[string]*CircuitBreaker),
		byState:  make(map[State]int),
	}
}

// CreateBreaker creates and registers a breaker. Idempotent by name:
// asking for an existing name returns the existing instance and logs a
// warning, ignoring the new config. Invalid configs are rejected.
func (m *Manager) CreateBreaker(name string, config Config) (*CircuitBreaker, error) {
	merged := config.merge()
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config for breaker %q: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.breakers[name]; ok {
		m.log.WithField("breaker", name).Warn("breaker already registered, returning existing instance")
		return existing, nil
	}

	cb := New(name, merged)
	cb.stateListener = m.onStateChange
	m.breakers[name] = cb
	m.byState[StateClosed]++

	if m.metrics != nil {
		m.metrics.RecordState(name, StateClosed)
	}
	return cb, nil
}

// GetBreaker returns the named breaker, or nil when unknown.
func (m *Manager) GetBreaker(name string) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breakers[name]
}

// onStateChange keeps the aggregate counters in step with breaker
// transitions. Serialized by the manager mutex.
func (m *Manager) onStateChange(name string, from, to State) {
	m.mu.Lock()
	m.byState[from]--
	m.byState[to]++
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordStateChange(name, from, to)
	}
}

// AggregateCounts holds per-state breaker counts.
type AggregateCounts struct {
	Closed   int `json:"closed"`
	HalfOpen int `json:"half_open"`
	Open     int `json:"open"`
	Total    int `json:"total"`
}

// HealthSummary derives fleet health from the aggregate counts.
type HealthSummary struct {
	HealthyPercentage float64 `json:"healthy_percentage"`
}

// GlobalStatus is a snapshot of every registered breaker.
type GlobalStatus struct {
	Breakers      map[string]Status `json:"breakers"`
	Aggregate     AggregateCounts   `json:"aggregate"`
	HealthSummary HealthSummary     `json:"health_summary"`
}

// GlobalStatus reports per-breaker snapshots, aggregate counts and the
// healthy percentage (closed over total).
func (m *Manager) GlobalStatus() GlobalStatus {
	m.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(m.breakers))
	for _, cb := range m.breakers {
		breakers = append(breakers, cb)
	}
	counts := AggregateCounts{
		Closed:   m.byState[StateClosed],
		HalfOpen: m.byState[StateHalfOpen],
		Open:     m.byState[StateOpen],
		Total:    len(m.breakers),
	}
	m.mu.Unlock()

	// Breaker snapshots are taken outside the manager lock; each one
	// locks its own breaker.
	statuses := make(map[string]Status, len(breakers))
	for _, cb := range breakers {
		statuses[cb.Name()] = cb.Status()
	}

	healthy := 100.0
	if counts.Total > 0 {
		healthy = float64(counts.Closed) / float64(counts.Total) * 100
	}

	return GlobalStatus{
		Breakers:      statuses,
		Aggregate:     counts,
		HealthSummary: HealthSummary{HealthyPercentage: healthy},
	}
}

// ResetAll forces every registered breaker closed.
func (m *Manager) ResetAll() {
	for _, cb := range m.snapshot() {
		cb.Reset()
	}
	m.log.Info("all circuit breakers reset")
}

// CleanupAll stops every breaker's background loop, clears the registry
// and zeroes the aggregates.
func (m *Manager) CleanupAll() {
	for _, cb := range m.snapshot() {
		cb.Cleanup()
	}

	m.mu.Lock()
	m.breakers = make(map[string]*CircuitBreaker)
	m.byState = make(map[State]int)
	m.mu.Unlock()

	m.log.Info("all circuit breakers cleaned up")
}

func (m *Manager) snapshot() []*CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	breakers := make([]*CircuitBreaker, 0, len(m.breakers))
	for _, cb := range m.breakers {
		breakers = append(breakers, cb)
	}
	return breakers
}
