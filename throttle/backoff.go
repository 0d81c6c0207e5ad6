package throttle

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/c360studio/flowengine/stepmodel"
)

// NewBackOff builds a cenkalti/backoff/v4 strategy from a RetryPolicy,
// bounded to MaxAttempts via backoff.WithMaxRetries. A nil policy yields a
// backoff that never retries.
func NewBackOff(policy *stepmodel.RetryPolicy) backoff.BackOff {
	if policy == nil || policy.MaxAttempts <= 0 {
		return &backoff.StopBackOff{}
	}

	var b backoff.BackOff
	switch policy.Backoff.Kind {
	case "fixed":
		b = backoff.NewConstantBackOff(delay(policy.Backoff.DelayMs))
	default:
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = delay(policy.Backoff.DelayMs)
		eb.Multiplier = 2
		eb.MaxElapsedTime = 0 // bounded by MaxRetries below, not wall-clock
		b = eb
	}
	return backoff.WithMaxRetries(b, uint64(policy.MaxAttempts-1))
}

func delay(ms int) time.Duration {
	if ms <= 0 {
		return time.Second
	}
	return time.Duration(ms) * time.Millisecond
}
