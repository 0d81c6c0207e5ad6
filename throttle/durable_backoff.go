package throttle

import (
	"github.com/c360studio/flowengine/durable"
	"github.com/c360studio/flowengine/stepmodel"
)

// DurableBackoff adapts a RetryPolicy's backoff description into the
// durable.BackoffFunc shape the orchestrator's Runtime expects, independent
// of the cenkalti/backoff/v4 strategy NewBackOff builds for direct retries.
// A nil policy yields a flat 1s backoff; a non-positive delay is replaced
// by a 1s base.
func DurableBackoff(policy *stepmodel.RetryPolicy) durable.BackoffFunc {
	if policy == nil {
		return func(attempt int) durable.Delay { return durable.Delay{Milliseconds: 1000} }
	}
	base := int64(policy.Backoff.DelayMs)
	if base <= 0 {
		base = 1000
	}
	kind := policy.Backoff.Kind
	return func(attempt int) durable.Delay {
		if kind == "fixed" {
			return durable.Delay{Milliseconds: base}
		}
		ms := base
		for i := 1; i < attempt; i++ {
			ms *= 2
		}
		return durable.Delay{Milliseconds: ms}
	}
}

// MaxAttempts returns the RetryPolicy's attempt count, defaulting to 1 (no
// retry) for a nil policy.
func MaxAttempts(policy *stepmodel.RetryPolicy) int {
	if policy == nil || policy.MaxAttempts <= 0 {
		return 1
	}
	return policy.MaxAttempts
}
