// Package flowerr defines the error taxonomy shared by every flow-engine
// component. Handlers and stores return these values instead of raising;
// the orchestrator is the only place an error is allowed to halt a flow.
package flowerr

import (
	"errors"
	"fmt"
)

// Code classifies an error into the closed taxonomy the orchestrator and
// execution log understand.
type Code string

const (
	MissingCode          Code = "MISSING_CODE"
	SandboxUnavailable   Code = "SANDBOX_UNAVAILABLE"
	SandboxSyncError     Code = "SANDBOX_SYNC_ERROR"
	SandboxAsyncTimeout  Code = "SANDBOX_ASYNC_TIMEOUT"
	TransformError       Code = "TRANSFORM_ERROR"
	ConditionError       Code = "CONDITION_ERROR"
	HTTPError            Code = "HTTP_ERROR"
	NetworkError         Code = "NETWORK_ERROR"
	UnknownStepType      Code = "UNKNOWN_STEP_TYPE"
	StepExecutionError   Code = "STEP_EXECUTION_ERROR"
	InvalidConditionRule Code = "INVALID_CONDITION_RULE"
	LogUpdateError       Code = "LOG_UPDATE_ERROR"
	NotFound             Code = "NOT_FOUND"
	NoAccessToken        Code = "NO_ACCESS_TOKEN"
	NoRefreshToken       Code = "NO_REFRESH_TOKEN"
	UnknownError         Code = "UNKNOWN_ERROR"
)

// Error is the normalized error shape persisted on StepInvocation and
// carried in StepResult. It satisfies the standard error interface and
// unwraps to the underlying cause when one was wrapped.
type Error struct {
	Message string         `json:"message"`
	Code    Code           `json:"code"`
	Stack   string         `json:"stack,omitempty"`
	Extra   map[string]any `json:"-"`

	cause error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// New builds an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error from an existing error, preserving it for Unwrap.
func Wrap(code Code, err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return &Error{Code: code, Message: err.Error(), cause: err}
}

// FromAny normalizes an arbitrary error/value into an *Error the way
// markStepFailed does: known *Error values pass through, known error values
// get UNKNOWN_ERROR, and any extra keys are preserved for debugging.
func FromAny(v any) *Error {
	switch t := v.(type) {
	case nil:
		return nil
	case *Error:
		return t
	case error:
		return &Error{Message: t.Error(), Code: UnknownError, cause: t}
	case string:
		return &Error{Message: t, Code: UnknownError}
	case map[string]any:
		fe := &Error{Code: UnknownError, Message: "Unknown error", Extra: map[string]any{}}
		if m, ok := t["message"].(string); ok {
			fe.Message = m
		}
		if c, ok := t["code"].(string); ok {
			fe.Code = Code(c)
		}
		if s, ok := t["stack"].(string); ok {
			fe.Stack = s
		}
		for k, val := range t {
			if k == "message" || k == "code" || k == "stack" {
				continue
			}
			fe.Extra[k] = val
		}
		return fe
	default:
		return &Error{Message: "Unknown error", Code: UnknownError}
	}
}

// Is implements errors.Is comparison by code.
func (e *Error) Is(target error) bool {
	var fe *Error
	if !errors.As(target, &fe) {
		return false
	}
	return e != nil && fe != nil && e.Code == fe.Code
}
