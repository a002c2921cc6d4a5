package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_MergeAppliesDefaults(t *testing.T) {
	merged := Config{}.merge()

	defaults := DefaultConfig()
	assert.Equal(t, defaults.FailureThreshold, merged.FailureThreshold)
	assert.Equal(t, defaults.SuccessThreshold, merged.SuccessThreshold)
	assert.Equal(t, defaults.Timeout, merged.Timeout)
	assert.Equal(t, defaults.MaxTimeout, merged.MaxTimeout)
	assert.Equal(t, defaults.FailureRateThreshold, merged.FailureRateThreshold)
	assert.Equal(t, defaults.SlowCallThreshold, merged.SlowCallThreshold)
	assert.Equal(t, defaults.MinimumThroughput, merged.MinimumThroughput)
	assert.Equal(t, defaults.HealthCheckInterval, merged.HealthCheckInterval)
	assert.Equal(t, defaults.RecoveryFactor, merged.RecoveryFactor)
	assert.NotNil(t, merged.Classifier)
}

func TestConfig_MergeKeepsOverrides(t *testing.T) {
	merged := Config{
		FailureThreshold: 2,
		Timeout:          5 * time.Second,
	}.merge()

	assert.Equal(t, 2, merged.FailureThreshold)
	assert.Equal(t, 5*time.Second, merged.Timeout)
	// Untouched fields still get defaults.
	assert.Equal(t, 3, merged.SuccessThreshold)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.FailureRateThreshold = 1.5
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.MaxTimeout = bad.Timeout / 2
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.RecoveryGrowth = 0.5
	assert.Error(t, bad.Validate())
}
