package circuitbreaker

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Callbacks holds optional observer hooks. Every slot may be nil.
// Hooks run outside the breaker lock; a panicking hook is recovered and
// logged, never propagated, so breaker bookkeeping cannot be disturbed
// by observers.
type Callbacks struct {
	// OnSuccess fires after a successful call with its duration.
	OnSuccess func(name string, duration time.Duration)

	// OnFailure fires after a failed call with the classified record.
	OnFailure func(name string, record FailureRecord)

	// OnStateChange fires on every transition.
	OnStateChange func(name string, from, to State)
}

// safeCall invokes fn, swallowing and logging any panic.
func safeCall(log *logrus.Entry, hook string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logrus.Fields{
				"hook":  hook,
				"panic": r,
			}).Error("circuit breaker callback panicked")
		}
	}()
	fn()
}
