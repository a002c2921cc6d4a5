package circuitbreaker_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/siemguard/circuit-breaker/internal/circuitbreaker"
)

func failureAt(age time.Duration, ft circuitbreaker.FailureType) circuitbreaker.FailureRecord {
	return circuitbreaker.FailureRecord{
		Timestamp: time.Now().Add(-age),
		Type:      ft,
		Message:   string(ft),
	}
}

func TestHealthMetrics_Rates(t *testing.T) {
	m := circuitbreaker.NewHealthMetrics()

	for i := 0; i < 7; i++ {
		m.RecordSuccess(10 * time.Millisecond)
	}
	for i := 0; i < 3; i++ {
		m.RecordFailure(failureAt(0, circuitbreaker.FailureTimeout))
	}

	snap := m.Snapshot()
	assert.Equal(t, uint64(10), snap.TotalRequests)
	assert.InDelta(t, 0.7, snap.SuccessRate, 1e-9)
	assert.InDelta(t, 0.3, snap.FailureRate, 1e-9)
	assert.Equal(t, 3, snap.ConsecutiveFailures)
	assert.Zero(t, snap.ConsecutiveSuccesses)
}

func TestHealthMetrics_StreaksAreMutuallyExclusive(t *testing.T) {
	m := circuitbreaker.NewHealthMetrics()

	m.RecordFailure(failureAt(0, circuitbreaker.FailureUnknown))
	m.RecordFailure(failureAt(0, circuitbreaker.FailureUnknown))
	assert.Equal(t, 2, m.ConsecutiveFailures())
	assert.Zero(t, m.ConsecutiveSuccesses())

	m.RecordSuccess(time.Millisecond)
	assert.Zero(t, m.ConsecutiveFailures())
	assert.Equal(t, 1, m.ConsecutiveSuccesses())
}

func TestHealthMetrics_RecentFailureRate(t *testing.T) {
	m := circuitbreaker.NewHealthMetrics()

	// Two stale failures and three fresh ones over five requests total.
	m.RecordFailure(failureAt(10*time.Minute, circuitbreaker.FailureTimeout))
	m.RecordFailure(failureAt(8*time.Minute, circuitbreaker.FailureTimeout))
	m.RecordFailure(failureAt(time.Minute, circuitbreaker.FailureConnection))
	m.RecordFailure(failureAt(30*time.Second, circuitbreaker.FailureConnection))
	m.RecordFailure(failureAt(time.Second, circuitbreaker.FailureConnection))

	assert.InDelta(t, 0.6, m.RecentFailureRate(), 1e-9)
}

func TestHealthMetrics_EMA(t *testing.T) {
	m := circuitbreaker.NewHealthMetrics()

	m.RecordSuccess(100 * time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, m.AvgResponseTime())

	m.RecordSuccess(200 * time.Millisecond)
	assert.Equal(t, 110*time.Millisecond, m.AvgResponseTime())
}

func TestHealthMetrics_P95(t *testing.T) {
	m := circuitbreaker.NewHealthMetrics()

	// 1ms..100ms, recorded out of order.
	for i := 100; i >= 1; i-- {
		m.RecordSuccess(time.Duration(i) * time.Millisecond)
	}
	assert.Equal(t, 96*time.Millisecond, m.P95ResponseTime())
}

func TestHealthMetrics_WindowIsBounded(t *testing.T) {
	m := circuitbreaker.NewHealthMetrics()

	for i := 0; i < 250; i++ {
		m.RecordFailure(failureAt(0, circuitbreaker.FailureUnknown))
		m.RecordSuccess(time.Millisecond)
	}

	// Histogram is computed over the retained ring only.
	hist := m.FailureHistogram()
	assert.Equal(t, 100, hist[circuitbreaker.FailureUnknown])

	_, samples := m.SlowCalls(time.Hour)
	assert.Equal(t, 100, samples)
}

func TestHealthMetrics_SlowCalls(t *testing.T) {
	m := circuitbreaker.NewHealthMetrics()

	for i := 0; i < 6; i++ {
		m.RecordSuccess(5 * time.Millisecond)
	}
	for i := 0; i < 4; i++ {
		m.RecordSuccess(50 * time.Millisecond)
	}

	slow, total := m.SlowCalls(10 * time.Millisecond)
	assert.Equal(t, 4, slow)
	assert.Equal(t, 10, total)
	assert.InDelta(t, 0.4, m.SlowCallRate(10*time.Millisecond), 1e-9)
}

func TestHealthMetrics_MostCommonFailure(t *testing.T) {
	m := circuitbreaker.NewHealthMetrics()
	assert.Equal(t, circuitbreaker.FailureUnknown, m.MostCommonFailure())

	m.RecordFailure(failureAt(0, circuitbreaker.FailureTimeout))
	m.RecordFailure(failureAt(0, circuitbreaker.FailureRateLimit))
	m.RecordFailure(failureAt(0, circuitbreaker.FailureRateLimit))
	assert.Equal(t, circuitbreaker.FailureRateLimit, m.MostCommonFailure())
}

func TestHealthMetrics_RecentFailuresCapped(t *testing.T) {
	m := circuitbreaker.NewHealthMetrics()

	m.RecordFailure(failureAt(time.Hour, circuitbreaker.FailureTimeout))
	for i := 0; i < 15; i++ {
		m.RecordFailure(circuitbreaker.FailureRecord{
			Timestamp: time.Now().Add(-time.Duration(15-i) * time.Second),
			Type:      circuitbreaker.FailureConnection,
			Message:   fmt.Sprintf("failure %d", i),
		})
	}

	recent := m.RecentFailures(10*time.Minute, 10)
	assert.Len(t, recent, 10)
	// Newest entries win; the stale one is excluded.
	for _, r := range recent {
		assert.Equal(t, circuitbreaker.FailureConnection, r.Type)
	}
	assert.Equal(t, "failure 14", recent[len(recent)-1].Message)
}

func TestHealthMetrics_Trend(t *testing.T) {
	t.Run("insufficient data", func(t *testing.T) {
		m := circuitbreaker.NewHealthMetrics()
		for i := 0; i < 9; i++ {
			m.RecordSuccess(10 * time.Millisecond)
		}
		assert.Equal(t, circuitbreaker.TrendInsufficientData, m.Trend())
	})

	t.Run("improving", func(t *testing.T) {
		m := circuitbreaker.NewHealthMetrics()
		for i := 0; i < 10; i++ {
			m.RecordSuccess(100 * time.Millisecond)
		}
		for i := 0; i < 10; i++ {
			m.RecordSuccess(50 * time.Millisecond)
		}
		assert.Equal(t, circuitbreaker.TrendImproving, m.Trend())
	})

	t.Run("degrading", func(t *testing.T) {
		m := circuitbreaker.NewHealthMetrics()
		for i := 0; i < 10; i++ {
			m.RecordSuccess(50 * time.Millisecond)
		}
		for i := 0; i < 10; i++ {
			m.RecordSuccess(100 * time.Millisecond)
		}
		assert.Equal(t, circuitbreaker.TrendDegrading, m.Trend())
	})

	t.Run("stable within hysteresis band", func(t *testing.T) {
		m := circuitbreaker.NewHealthMetrics()
		for i := 0; i < 10; i++ {
			m.RecordSuccess(100 * time.Millisecond)
		}
		for i := 0; i < 10; i++ {
			m.RecordSuccess(105 * time.Millisecond)
		}
		assert.Equal(t, circuitbreaker.TrendStable, m.Trend())
	})
}
