package circuitbreaker

import (
	"sort"
	"time"
)

const (
	// windowSize bounds the response-time and failure-history rings.
	windowSize = 100

	// emaAlpha is the smoothing factor for the running average latency.
	emaAlpha = 0.1

	// recentFailureWindow and recentFailureSample scope the recent
	// failure rate to failures younger than the window, over at most
	// the last sample of requests.
	recentFailureWindow = 5 * time.Minute
	recentFailureSample = 50

	// trendSample is the number of latency samples each side of the
	// trend comparison uses.
	trendSample = 10
)

// Trend classification results.
const (
	TrendImproving        = "improving"
	TrendDegrading        = "degrading"
	TrendStable           = "stable"
	TrendInsufficientData = "insufficient_data"
)

// HealthMetrics tracks request outcomes and latency for one breaker in
// bounded in-memory buffers. It is owned by exactly one CircuitBreaker
// and mutated only under that breaker's lock, so it carries no locking
// of its own.
type HealthMetrics struct {
	totalRequests  uint64
	totalSuccesses uint64
	totalFailures  uint64

	responseTimes  []time.Duration
	failureHistory []FailureRecord

	lastSuccess time.Time
	lastFailure time.Time

	consecutiveSuccesses int
	consecutiveFailures  int

	avgResponseTime float64 // EMA, nanoseconds
}

// NewHealthMetrics creates an empty recorder.
func NewHealthMetrics() *HealthMetrics {
	return &HealthMetrics{
		responseTimes:  make([]time.Duration, 0, windowSize),
		failureHistory: make([]FailureRecord, 0, windowSize),
	}
}

// RecordSuccess records a successful call and its duration.
func (m *HealthMetrics) RecordSuccess(duration time.Duration) {
	m.totalRequests++
	m.totalSuccesses++
	m.consecutiveSuccesses++
	m.consecutiveFailures = 0
	m.lastSuccess = time.Now()
	m.recordResponseTime(duration)
}

// RecordFailure records a classified failure. The duration may be zero
// when the call failed before any response was measured.
func (m *HealthMetrics) RecordFailure(record FailureRecord) {
	m.totalRequests++
	m.totalFailures++
	m.consecutiveFailures++
	m.consecutiveSuccesses = 0
	m.lastFailure = record.Timestamp

	if record.ResponseTime > 0 {
		m.recordResponseTime(record.ResponseTime)
	}

	if len(m.failureHistory) >= windowSize {
		m.failureHistory = m.failureHistory[1:]
	}
	m.failureHistory = append(m.failureHistory, record)
}

func (m *HealthMetrics) recordResponseTime(duration time.Duration) {
	if len(m.responseTimes) >= windowSize {
		m.responseTimes = m.responseTimes[1:]
	}
	m.responseTimes = append(m.responseTimes, duration)

	if m.avgResponseTime == 0 {
		m.avgResponseTime = float64(duration)
	} else {
		m.avgResponseTime = emaAlpha*float64(duration) + (1-emaAlpha)*m.avgResponseTime
	}
}

// TotalRequests returns the lifetime request count.
func (m *HealthMetrics) TotalRequests() uint64 { return m.totalRequests }

// ConsecutiveSuccesses returns the current success streak.
func (m *HealthMetrics) ConsecutiveSuccesses() int { return m.consecutiveSuccesses }

// ConsecutiveFailures returns the current failure streak.
func (m *HealthMetrics) ConsecutiveFailures() int { return m.consecutiveFailures }

// ResetStreaks zeroes both consecutive counters. Historical totals are
// untouched.
func (m *HealthMetrics) ResetStreaks() {
	m.consecutiveSuccesses = 0
	m.consecutiveFailures = 0
}

// SuccessRate returns successes over total requests (0.0 to 1.0).
func (m *HealthMetrics) SuccessRate() float64 {
	if m.totalRequests == 0 {
		return 1.0
	}
	return float64(m.totalSuccesses) / float64(m.totalRequests)
}

// FailureRate returns failures over total requests (0.0 to 1.0).
func (m *HealthMetrics) FailureRate() float64 {
	if m.totalRequests == 0 {
		return 0.0
	}
	return float64(m.totalFailures) / float64(m.totalRequests)
}

// RecentFailureRate returns failures younger than five minutes over the
// last min(50, total) requests.
func (m *HealthMetrics) RecentFailureRate() float64 {
	if m.totalRequests == 0 {
		return 0.0
	}

	sample := m.totalRequests
	if sample > recentFailureSample {
		sample = recentFailureSample
	}

	cutoff := time.Now().Add(-recentFailureWindow)
	recent := 0
	for _, f := range m.failureHistory {
		if f.Timestamp.After(cutoff) {
			recent++
		}
	}
	return float64(recent) / float64(sample)
}

// AvgResponseTime returns the exponentially weighted average latency.
func (m *HealthMetrics) AvgResponseTime() time.Duration {
	return time.Duration(m.avgResponseTime)
}

// P95ResponseTime returns the 95th percentile over the retained window.
func (m *HealthMetrics) P95ResponseTime() time.Duration {
	if len(m.responseTimes) == 0 {
		return 0
	}

	snapshot := make([]time.Duration, len(m.responseTimes))
	copy(snapshot, m.responseTimes)
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i] < snapshot[j] })

	idx := int(float64(len(snapshot)) * 0.95)
	if idx >= len(snapshot) {
		idx = len(snapshot) - 1
	}
	return snapshot[idx]
}

// SlowCalls returns how many calls in the retained window exceeded the
// threshold, alongside the window size.
func (m *HealthMetrics) SlowCalls(threshold time.Duration) (slow, total int) {
	for _, d := range m.responseTimes {
		if d > threshold {
			slow++
		}
	}
	return slow, len(m.responseTimes)
}

// SlowCallRate returns the fraction of retained calls slower than the
// threshold (0.0 to 1.0).
func (m *HealthMetrics) SlowCallRate(threshold time.Duration) float64 {
	slow, total := m.SlowCalls(threshold)
	if total == 0 {
		return 0.0
	}
	return float64(slow) / float64(total)
}

// FailureHistogram returns counts per failure type over the retained
// failure history.
func (m *HealthMetrics) FailureHistogram() map[FailureType]int {
	hist := make(map[FailureType]int)
	for _, f := range m.failureHistory {
		hist[f.Type]++
	}
	return hist
}

// MostCommonFailure returns the dominant failure type in the retained
// history, or FailureUnknown when there is none.
func (m *HealthMetrics) MostCommonFailure() FailureType {
	hist := m.FailureHistogram()
	best := FailureUnknown
	bestCount := 0
	for ft, count := range hist {
		if count > bestCount {
			best = ft
			bestCount = count
		}
	}
	return best
}

// RecentFailures returns up to limit failures younger than maxAge,
// newest last.
func (m *HealthMetrics) RecentFailures(maxAge time.Duration, limit int) []FailureRecord {
	cutoff := time.Now().Add(-maxAge)
	recent := make([]FailureRecord, 0, limit)
	for _, f := range m.failureHistory {
		if f.Timestamp.After(cutoff) {
			recent = append(recent, f)
		}
	}
	if len(recent) > limit {
		recent = recent[len(recent)-limit:]
	}
	return recent
}

// Trend compares the mean of the last ten latency samples to the ten
// before them with a ±10% hysteresis band.
func (m *HealthMetrics) Trend() string {
	n := len(m.responseTimes)
	if n < trendSample {
		return TrendInsufficientData
	}

	recent := m.responseTimes[n-trendSample:]
	start := n - 2*trendSample
	if start < 0 {
		start = 0
	}
	previous := m.responseTimes[start : n-trendSample]
	if len(previous) == 0 {
		return TrendInsufficientData
	}

	recentMean := mean(recent)
	previousMean := mean(previous)
	if previousMean == 0 {
		return TrendStable
	}

	switch ratio := recentMean / previousMean; {
	case ratio < 0.9:
		return TrendImproving
	case ratio > 1.1:
		return TrendDegrading
	default:
		return TrendStable
	}
}

func mean(samples []time.Duration) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range samples {
		sum += d
	}
	return float64(sum) / float64(len(samples))
}

// MetricsSnapshot is a read-only copy of the health counters used by
// the reporting surface.
type MetricsSnapshot struct {
	TotalRequests        uint64        `json:"total_requests"`
	TotalSuccesses       uint64        `json:"total_successes"`
	TotalFailures        uint64        `json:"total_failures"`
	SuccessRate          float64       `json:"success_rate"`
	FailureRate          float64       `json:"failure_rate"`
	RecentFailureRate    float64       `json:"recent_failure_rate"`
	ConsecutiveSuccesses int           `json:"consecutive_successes"`
	ConsecutiveFailures  int           `json:"consecutive_failures"`
	AvgResponseTime      time.Duration `json:"avg_response_time"`
	P95ResponseTime      time.Duration `json:"p95_response_time"`
	LastSuccess          time.Time     `json:"last_success"`
	LastFailure          time.Time     `json:"last_failure"`
}

// Snapshot captures the current counters.
func (m *HealthMetrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TotalRequests:        m.totalRequests,
		TotalSuccesses:       m.totalSuccesses,
		TotalFailures:        m.totalFailures,
		SuccessRate:          m.SuccessRate(),
		FailureRate:          m.FailureRate(),
		RecentFailureRate:    m.RecentFailureRate(),
		ConsecutiveSuccesses: m.consecutiveSuccesses,
		ConsecutiveFailures:  m.consecutiveFailures,
		AvgResponseTime:      m.AvgResponseTime(),
		P95ResponseTime:      m.P95ResponseTime(),
		LastSuccess:          m.lastSuccess,
		LastFailure:          m.lastFailure,
	}
}
