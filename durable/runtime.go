// Package durable defines the boundary between the Flow Orchestrator and
// whatever job-queue runtime actually hosts it. The orchestrator's step
// loop is expressed as a sequence of named, idempotent sub-units; a
// Runtime is anything that can run a named sub-unit with at-least-once
// semantics and memoize its result so re-entry resumes at the next
// incomplete sub-unit instead of repeating committed work.
package durable

import "context"

// Func is one sub-unit of work. It receives the attempt number (1 on the
// first entry, incrementing on each retry) so the routine can report
// retry-aware metrics without the runtime leaking its own internals.
type Func func(ctx context.Context, attempt int) (any, error)

// Runtime runs a named sub-unit to completion, retrying per policy and
// memoizing the outcome. A Runtime implementation backed by a real durable
// queue (temporal, river, a custom NATS-based one, ...) re-enters Step
// after a crash with the same name and returns the memoized result instead
// of calling fn again, once fn has already succeeded.
type Runtime interface {
	// Step runs fn under the given sub-unit name, retrying up to
	// maxAttempts times with the supplied backoff between attempts.
	// maxAttempts <= 1 means "run once, no retry."
	Step(ctx context.Context, name string, maxAttempts int, backoff BackoffFunc, fn Func) (any, error)
}

// BackoffFunc computes the delay before the next attempt, given the
// attempt number that just failed (1-indexed).
type BackoffFunc func(attempt int) (delay Delay)

// Delay is a runtime-agnostic duration; kept as its own type so Runtime
// implementations backed by a real scheduler (which may express delay as
// "resume at wall-clock time T" rather than "sleep for D") aren't forced
// through time.Duration specifically.
type Delay struct {
	Milliseconds int64
}
