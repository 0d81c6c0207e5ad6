package condition

import (
	"fmt"
	"time"
)

// customRule is the {type: "custom", operation: ..., ...} DSL shape.
type customRule struct {
	Type      string         `json:"type"`
	Operation string         `json:"operation"`
	StepID    string         `json:"stepId,omitempty"`
	Field     string         `json:"field,omitempty"`
	Operator  string         `json:"operator,omitempty"`
	Value     any            `json:"value,omitempty"`
	Roles     []string       `json:"roles,omitempty"`
	Start     string         `json:"start,omitempty"`
	End       string         `json:"end,omitempty"`
	Rule      map[string]any `json:"rule,omitempty"`
}

func evalCustom(r customRule, ctx Context) (bool, error) {
	switch r.Operation {
	case "timeWindow":
		return evalTimeWindow(r)
	case "userRole":
		return evalUserRole(r, ctx)
	case "stepOutput":
		return evalStepOutput(r, ctx)
	default:
		return false, fmt.Errorf("unsupported custom operation %q", r.Operation)
	}
}

func evalTimeWindow(r customRule) (bool, error) {
	now := time.Now().UTC()
	layout := "15:04"
	if r.Start == "" || r.End == "" {
		return false, fmt.Errorf("timeWindow requires start and end")
	}
	start, err := time.Parse(layout, r.Start)
	if err != nil {
		return false, fmt.Errorf("invalid timeWindow start %q: %w", r.Start, err)
	}
	end, err := time.Parse(layout, r.End)
	if err != nil {
		return false, fmt.Errorf("invalid timeWindow end %q: %w", r.End, err)
	}
	nowMinutes := now.Hour()*60 + now.Minute()
	startMinutes := start.Hour()*60 + start.Minute()
	endMinutes := end.Hour()*60 + end.Minute()
	if startMinutes <= endMinutes {
		return nowMinutes >= startMinutes && nowMinutes <= endMinutes, nil
	}
	// Window wraps past midnight.
	return nowMinutes >= startMinutes || nowMinutes <= endMinutes, nil
}

func evalUserRole(r customRule, ctx Context) (bool, error) {
	role, _ := resolveVar("inputs.userRole", ctx)
	roleStr := toString(role)
	for _, allowed := range r.Roles {
		if allowed == roleStr {
			return true, nil
		}
	}
	return false, nil
}

// evalStepOutput recurses into the inner rule with the fields of
// ctx.StepOutputs[stepId] merged over the inputs bucket,
// per spec: "recurses with stepOutputs[stepId] substituted into context.inputs".
func evalStepOutput(r customRule, ctx Context) (bool, error) {
	if r.StepID == "" {
		return false, fmt.Errorf("stepOutput requires stepId")
	}
	output, _ := ctx.StepOutputs[r.StepID].(map[string]any)
	inner := ctx
	merged := map[string]any{}
	for k, v := range ctx.Inputs {
		merged[k] = v
	}
	for k, v := range output {
		merged[k] = v
	}
	inner.Inputs = merged

	if r.Rule != nil {
		return evalBool(r.Rule, inner)
	}
	sr := simpleRule{Field: r.Field, Operator: r.Operator, Value: r.Value}
	return evalSimple(sr, inner)
}

func evalBool(m map[string]any, ctx Context) (bool, error) {
	v, err := evalNode(m, ctx)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}
