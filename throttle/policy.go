// Package throttle implements the per-step-type throttling policy table
// (concurrency, rate limit, retry/backoff) described in spec §4.8. policyFor
// is a pure function: equal (type, critical) always yields an equal policy.
package throttle

import (
	"github.com/c360studio/flowengine/stepmodel"
)

// GlobalDefaults returns the platform-wide default policy. The orchestrator
// takes every step's policy from PolicyFor and does not call it.
func GlobalDefaults() stepmodel.ThrottlingPolicy {
	return stepmodel.ThrottlingPolicy{
		Concurrency: 10,
		RateLimit:   &stepmodel.RateLimit{Max: 100, PerMs: 60_000},
		Retry: &stepmodel.RetryPolicy{
			MaxAttempts: 3,
			Backoff:     stepmodel.Backoff{Kind: "exponential", DelayMs: 2_000},
		},
	}
}

// PolicyFor is the pure function policyFor(step) -> ThrottlingPolicy from
// spec §4.8. It only depends on the step's type and critical flag.
func PolicyFor(step stepmodel.FlowStep) stepmodel.ThrottlingPolicy {
	critical := step.IsCritical()

	switch step.Type {
	case stepmodel.StepHTTPRequest, stepmodel.StepOAuthAPICall:
		if critical {
			return stepmodel.ThrottlingPolicy{
				Concurrency: 2,
				RateLimit:   &stepmodel.RateLimit{Max: 10, PerMs: 10_000},
				Retry: &stepmodel.RetryPolicy{
					MaxAttempts: 5,
					Backoff:     stepmodel.Backoff{Kind: "exponential", DelayMs: 3_000},
				},
			}
		}
		return stepmodel.ThrottlingPolicy{
			Concurrency: 5,
			RateLimit:   &stepmodel.RateLimit{Max: 10, PerMs: 10_000},
			Retry: &stepmodel.RetryPolicy{
				MaxAttempts: 3,
				Backoff:     stepmodel.Backoff{Kind: "exponential", DelayMs: 3_000},
			},
		}

	case stepmodel.StepSandboxSync, stepmodel.StepSandboxAsync, stepmodel.StepCodeExecution:
		return stepmodel.ThrottlingPolicy{
			Concurrency: 3,
			RateLimit:   &stepmodel.RateLimit{Max: 20, PerMs: 30_000},
			Retry: &stepmodel.RetryPolicy{
				MaxAttempts: 2,
				Backoff:     stepmodel.Backoff{Kind: "fixed", DelayMs: 5_000},
			},
		}

	case stepmodel.StepDataTransform, stepmodel.StepConditional:
		return stepmodel.ThrottlingPolicy{
			Concurrency: 15,
			RateLimit:   &stepmodel.RateLimit{Max: 50, PerMs: 30_000},
			Retry: &stepmodel.RetryPolicy{
				MaxAttempts: 2,
				Backoff:     stepmodel.Backoff{Kind: "fixed", DelayMs: 1_000},
			},
		}

	case stepmodel.StepDelay:
		return stepmodel.ThrottlingPolicy{}

	default:
		return stepmodel.ThrottlingPolicy{
			Concurrency: 2,
			RateLimit:   &stepmodel.RateLimit{Max: 5, PerMs: 30_000},
			Retry: &stepmodel.RetryPolicy{
				MaxAttempts: 1,
				Backoff:     stepmodel.Backoff{Kind: "fixed", DelayMs: 5_000},
			},
		}
	}
}
