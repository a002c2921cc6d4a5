package circuitbreaker

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config holds configuration for the circuit breaker
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit once MinimumThroughput has been reached.
	FailureThreshold int `mapstructure:"failure_threshold"`

	// SuccessThreshold is the consecutive-success count that closes the
	// circuit from half-open.
	SuccessThreshold int `mapstructure:"success_threshold"`

	// Timeout is the base cooldown of the open state before a trial
	// request is admitted.
	Timeout time.Duration `mapstructure:"timeout"`

	// MaxTimeout caps the cooldown after exponential backoff.
	MaxTimeout time.Duration `mapstructure:"max_timeout"`

	// FailureRateThreshold opens the circuit when the lifetime failure
	// rate reaches it (0.0 to 1.0).
	FailureRateThreshold float64 `mapstructure:"failure_rate_threshold"`

	// SlowCallThreshold is the latency above which a call counts as slow.
	SlowCallThreshold time.Duration `mapstructure:"slow_call_threshold"`

	// SlowCallRateThreshold opens the circuit when the slow-call rate
	// over the retained window reaches it (0.0 to 1.0).
	SlowCallRateThreshold float64 `mapstructure:"slow_call_rate_threshold"`

	// MinimumThroughput is the request count required before any
	// rate-based trip evaluation fires.
	MinimumThroughput int `mapstructure:"minimum_throughput"`

	// ExponentialBackoff doubles the cooldown multiplier on every open
	// episode until the circuit closes again.
	ExponentialBackoff bool `mapstructure:"exponential_backoff"`

	// Jitter applies a ±20% randomization to the cooldown so breakers
	// across instances do not retry in lockstep.
	Jitter bool `mapstructure:"jitter"`

	// HealthCheckInterval is the tick period of the diagnostic loop
	// that runs while the circuit is open.
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`

	// RecoveryFactor is the initial fraction of traffic admitted when a
	// heavily used breaker enters half-open.
	RecoveryFactor float64 `mapstructure:"recovery_factor"`

	// RecoveryGrowth multiplies the admitted fraction on every success
	// during gradual recovery (clamped to 1.0).
	RecoveryGrowth float64 `mapstructure:"recovery_growth"`

	// RecoveryDecay multiplies the admitted fraction on every failure
	// during gradual recovery.
	RecoveryDecay float64 `mapstructure:"recovery_decay"`

	// Classifier maps errors to failure types for observability.
	// Defaults to DefaultClassifier.
	Classifier *Classifier `mapstructure:"-"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		FailureThreshold:      5,
		SuccessThreshold:      3,
		Timeout:               60 * time.Second,
		MaxTimeout:            300 * time.Second,
		FailureRateThreshold:  0.5,
		SlowCallThreshold:     10 * time.Second,
		SlowCallRateThreshold: 0.5,
		MinimumThroughput:     10,
		ExponentialBackoff:    true,
		Jitter:                true,
		HealthCheckInterval:   30 * time.Second,
		RecoveryFactor:        0.1,
		RecoveryGrowth:        1.1,
		RecoveryDecay:         0.5,
		Classifier:            DefaultClassifier(),
	}
}

// merge fills zero-valued fields from the defaults. Booleans cannot be
// distinguished from "unset", so ExponentialBackoff and Jitter are
// taken as given.
func (c Config) merge() Config {
	defaults := DefaultConfig()

	if c.FailureThreshold == 0 {
		c.FailureThreshold = defaults.FailureThreshold
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = defaults.SuccessThreshold
	}
	if c.Timeout == 0 {
		c.Timeout = defaults.Timeout
	}
	if c.MaxTimeout == 0 {
		c.MaxTimeout = defaults.MaxTimeout
	}
	if c.FailureRateThreshold == 0 {
		c.FailureRateThreshold = defaults.FailureRateThreshold
	}
	if c.SlowCallThreshold == 0 {
		c.SlowCallThreshold = defaults.SlowCallThreshold
	}
	if c.SlowCallRateThreshold == 0 {
		c.SlowCallRateThreshold = defaults.SlowCallRateThreshold
	}
	if c.MinimumThroughput == 0 {
		c.MinimumThroughput = defaults.MinimumThroughput
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = defaults.HealthCheckInterval
	}
	if c.RecoveryFactor == 0 {
		c.RecoveryFactor = defaults.RecoveryFactor
	}
	if c.RecoveryGrowth == 0 {
		c.RecoveryGrowth = defaults.RecoveryGrowth
	}
	if c.RecoveryDecay == 0 {
		c.RecoveryDecay = defaults.RecoveryDecay
	}
	if c.Classifier == nil {
		c.Classifier = defaults.Classifier
	}

	return c
}

// Validate checks threshold sanity. Called on merged configs, so zero
// values have already been defaulted.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.FailureThreshold, validation.Min(1)),
		validation.Field(&c.SuccessThreshold, validation.Min(1)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(1))),
		validation.Field(&c.MaxTimeout, validation.Min(c.Timeout)),
		validation.Field(&c.FailureRateThreshold, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.SlowCallRateThreshold, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.MinimumThroughput, validation.Min(1)),
		validation.Field(&c.RecoveryFactor, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.RecoveryGrowth, validation.Min(1.0)),
		validation.Field(&c.RecoveryDecay, validation.Min(0.0), validation.Max(1.0)),
	)
}
