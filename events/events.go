// Package events implements the Event Publisher (C4): fire-and-forget
// fan-out of step and flow lifecycle events on per-execution and per-org
// channels. Publish is at-most-once from the Orchestrator's perspective —
// internal retries are invisible to the caller, and exhaustion just drops
// the event rather than failing the flow.
package events

import "time"

// StepEventStatus is the lifecycle status carried on a step event.
type StepEventStatus string

const (
	StepStarted   StepEventStatus = "started"
	StepCompleted StepEventStatus = "completed"
	StepFailed    StepEventStatus = "failed"
	StepSkipped   StepEventStatus = "skipped"
)

// ExecutionEventStatus is the lifecycle status carried on an execution event.
type ExecutionEventStatus string

const (
	ExecStarted   ExecutionEventStatus = "started"
	ExecCompleted ExecutionEventStatus = "completed"
	ExecFailed    ExecutionEventStatus = "failed"
	ExecCancelled ExecutionEventStatus = "cancelled"
)

// ErrorPayload is the normalized error shape carried on events.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Stack   string `json:"stack,omitempty"`
}

// StepEvent is published on the per-execution channel for every step
// status transition.
type StepEvent struct {
	StepID      string          `json:"stepId"`
	Status      StepEventStatus `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
	ExecutionID string          `json:"executionId"`
	OrgID       string          `json:"orgId"`
	FlowID      string          `json:"flowId"`
	StepName    string          `json:"stepName,omitempty"`
	Output      map[string]any  `json:"output,omitempty"`
	Error       *ErrorPayload   `json:"error,omitempty"`
	DurationMs  int64           `json:"duration,omitempty"`
	SkipReason  string          `json:"skipReason,omitempty"`
	ExecuteIf   any             `json:"executeIf,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
}

// ExecutionEvent is published on the per-execution and per-org channels
// for overall flow status transitions.
type ExecutionEvent struct {
	ExecutionID    string               `json:"executionId"`
	Status         ExecutionEventStatus `json:"status"`
	Timestamp      time.Time            `json:"timestamp"`
	OrgID          string               `json:"orgId"`
	FlowID         string               `json:"flowId"`
	TotalSteps     int                  `json:"totalSteps,omitempty"`
	CompletedSteps int                  `json:"completedSteps,omitempty"`
	FailedSteps    int                  `json:"failedSteps,omitempty"`
	SkippedSteps   int                  `json:"skippedSteps,omitempty"`
	DurationMs     int64                `json:"duration,omitempty"`
	Output         map[string]any       `json:"output,omitempty"`
	Error          *ErrorPayload        `json:"error,omitempty"`
}

// Publisher is the C4 contract. Implementations must never return an
// error that the caller is expected to react to — event loss is
// acceptable and logged, never propagated.
type Publisher interface {
	PublishStepEvent(orgID, executionID string, event StepEvent)
	PublishExecutionEvent(orgID, executionID string, event ExecutionEvent)
}

// ExecutionChannel returns the per-execution subject for (org, executionId).
func ExecutionChannel(orgID, executionID string) string {
	return "flows." + orgID + "." + executionID
}

// OrgChannel returns the per-org broadcast subject.
func OrgChannel(orgID string) string {
	return "flows." + orgID
}
