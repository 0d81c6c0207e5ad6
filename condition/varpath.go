package condition

import "strings"

// resolveVar resolves a dotted path like "variables.skip" or "stepOutputs.s1.status"
// against the evaluation context. The first path segment selects the
// top-level bucket (inputs, variables, stepOutputs, currentStep, orgId,
// userId, meta); anything else is looked up directly in Inputs for
// backwards compatibility with bare field references.
func resolveVar(path string, ctx Context) (any, bool) {
	if path == "" {
		return ctxAsMap(ctx), true
	}
	segments := strings.Split(path, ".")
	root, rest := segments[0], segments[1:]

	var cur any
	switch root {
	case "inputs":
		cur = ctx.Inputs
	case "variables":
		cur = ctx.Variables
	case "stepOutputs":
		cur = ctx.StepOutputs
	case "currentStep":
		return ctx.CurrentStep, ctx.CurrentStep != ""
	case "orgId":
		return ctx.OrgID, ctx.OrgID != ""
	case "userId":
		return ctx.UserID, ctx.UserID != ""
	case "meta":
		cur = map[string]any{
			"flowId":      ctx.Meta.FlowID,
			"executionId": ctx.Meta.ExecutionID,
			"stepId":      ctx.Meta.StepID,
		}
	default:
		// Fall back to treating the whole path as an inputs lookup.
		cur = ctx.Inputs
		rest = segments
	}

	for _, seg := range rest {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func ctxAsMap(ctx Context) map[string]any {
	return map[string]any{
		"inputs":      ctx.Inputs,
		"variables":   ctx.Variables,
		"stepOutputs": ctx.StepOutputs,
		"currentStep": ctx.CurrentStep,
		"orgId":       ctx.OrgID,
		"userId":      ctx.UserID,
	}
}
