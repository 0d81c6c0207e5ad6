// Package stepmodel holds the data types shared across the flow engine:
// FlowExecution, FlowStep, StepInvocation, ThrottlingPolicy and StepResult,
// as defined by the engine's data model. ToolCredentials lives in the
// credentials package.
package stepmodel

import (
	"encoding/json"
	"time"

	"github.com/c360studio/flowengine/flowerr"
)

// StepType is the closed set of step types the dispatcher recognizes.
type StepType string

const (
	StepSandboxSync    StepType = "sandbox_sync"
	StepSandboxAsync   StepType = "sandbox_async"
	StepCodeExecution  StepType = "code_execution"
	StepDataTransform  StepType = "data_transform"
	StepConditional    StepType = "conditional"
	StepHTTPRequest    StepType = "http_request"
	StepOAuthAPICall   StepType = "oauth_api_call"
	StepDelay          StepType = "delay"
)

// ExecutionStatus is the overall status of a FlowExecution.
type ExecutionStatus string

const (
	ExecutionQueued    ExecutionStatus = "queued"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// InvocationStatus is the lifecycle status of one StepInvocation.
type InvocationStatus string

const (
	InvocationStarted   InvocationStatus = "started"
	InvocationCompleted InvocationStatus = "completed"
	InvocationFailed    InvocationStatus = "failed"
	InvocationSkipped   InvocationStatus = "skipped"
)

// FlowStep is the immutable declaration of one step in a flow.
type FlowStep struct {
	ID         string         `json:"id"`
	Type       StepType       `json:"type"`
	Name       string         `json:"name"`
	Config     map[string]any `json:"config,omitempty"`
	ExecuteIf  json.RawMessage `json:"executeIf,omitempty"`
	Critical   *bool          `json:"critical,omitempty"`
	DependsOn  []string       `json:"dependsOn,omitempty"`
}

// IsCritical implements the spec's "true unless literal false" rule:
// absent or any non-false value is treated as critical.
func (s FlowStep) IsCritical() bool {
	if s.Critical == nil {
		return true
	}
	return *s.Critical
}

// FlowExecution is the mutable runtime record of one flow run.
type FlowExecution struct {
	ID           string                    `json:"id"`
	OrgID        string                    `json:"orgId"`
	FlowID       string                    `json:"flowId"`
	UserID       string                    `json:"userId"`
	Variables    map[string]any            `json:"variables"`
	StepOutputs  map[string]any            `json:"stepOutputs"`
	Status       ExecutionStatus           `json:"status"`
	StartedAt    time.Time                 `json:"startedAt,omitempty"`
	EndedAt      time.Time                 `json:"endedAt,omitempty"`
	Error        *flowerr.Error            `json:"error,omitempty"`
}

// Terminal reports whether the execution has reached a final status.
func (e *FlowExecution) Terminal() bool {
	switch e.Status {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return true
	default:
		return false
	}
}

// InputsSnapshot is the frozen view of context handed to a step at start.
type InputsSnapshot struct {
	StepName    string          `json:"stepName"`
	StepType    StepType        `json:"stepType"`
	Config      map[string]any  `json:"config,omitempty"`
	ExecuteIf   json.RawMessage `json:"executeIf,omitempty"`
	Variables   map[string]any  `json:"variables,omitempty"`
	StepOutputs map[string]any  `json:"stepOutputs,omitempty"`
}

// StepInvocation is the runtime, one-row-per-attempt record of a step run.
type StepInvocation struct {
	ID          string           `json:"id"`
	ExecutionID string           `json:"executionId"`
	OrgID       string           `json:"orgId"`
	FlowID      string           `json:"flowId"`
	StepID      string           `json:"stepId"`
	Attempt     int              `json:"attempt"`
	Status      InvocationStatus `json:"status"`
	Inputs      InputsSnapshot   `json:"inputs"`
	Outputs     map[string]any   `json:"outputs,omitempty"`
	Error       *flowerr.Error   `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// Backoff describes a retry backoff strategy.
type Backoff struct {
	Kind    string        `json:"kind"` // "fixed" | "exponential"
	DelayMs int           `json:"delayMs"`
}

// RetryPolicy describes how many attempts and what backoff a step type gets.
type RetryPolicy struct {
	MaxAttempts int     `json:"maxAttempts"`
	Backoff     Backoff `json:"backoff"`
}

// RateLimit caps throughput for a step type.
type RateLimit struct {
	Max   int `json:"max"`
	PerMs int `json:"perMs"`
}

// ThrottlingPolicy is the pure value produced by policyFor(step).
type ThrottlingPolicy struct {
	Concurrency int        `json:"concurrency,omitempty"`
	RateLimit   *RateLimit `json:"rateLimit,omitempty"`
	Retry       *RetryPolicy `json:"retry,omitempty"`
}

// StepResult is what a dispatcher handler returns; metadata.duration is
// filled in by the orchestrator, never the handler.
type StepResult struct {
	Success    bool           `json:"success"`
	Skipped    bool           `json:"skipped,omitempty"`
	SkipReason string         `json:"skipReason,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	Error      *flowerr.Error `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata"`
}

// WithDuration returns a copy of r with metadata.duration set.
func (r StepResult) WithDuration(d time.Duration) StepResult {
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	r.Metadata["duration"] = d.Milliseconds()
	return r
}
