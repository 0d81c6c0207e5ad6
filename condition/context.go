// Package condition implements the guard-rule evaluator (executeIf): a pure
// function (rule, context) -> bool supporting three rule shapes — a
// JSON-logic-style operator tree, a simple {field,operator,value} comparison,
// and a small custom DSL for time windows, user roles, and step outputs.
//
// Evaluation never mutates its inputs and never touches process-wide state;
// every operator threads the Context explicitly, per the teacher's "no
// global mutable context" convention.
package condition

import "encoding/json"

// Meta carries identifying information available to custom operators.
type Meta struct {
	FlowID      string `json:"flowId,omitempty"`
	ExecutionID string `json:"executionId,omitempty"`
	StepID      string `json:"stepId,omitempty"`
}

// Context is the evaluation environment passed to every rule.
type Context struct {
	Inputs      map[string]any `json:"inputs,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
	StepOutputs map[string]any `json:"stepOutputs,omitempty"`
	CurrentStep string         `json:"currentStep,omitempty"`
	OrgID       string         `json:"orgId,omitempty"`
	UserID      string         `json:"userId,omitempty"`
	Meta        Meta           `json:"meta,omitempty"`
}

// Rule is the opaque guard rule as declared on a FlowStep. It is kept as
// raw JSON until Evaluate parses it into one of the three supported shapes.
type Rule = json.RawMessage

// Empty reports whether a rule is absent or empty, in which case a guarded
// step always runs.
func Empty(rule Rule) bool {
	if len(rule) == 0 {
		return true
	}
	trimmed := trimWhitespace(rule)
	return len(trimmed) == 0 || string(trimmed) == "null"
}

func trimWhitespace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
