package condition

import (
	"encoding/json"
	"fmt"

	"github.com/c360studio/flowengine/flowerr"
)

// ValidationResult is returned by ValidateRule.
type ValidationResult struct {
	Valid bool
	Error string
}

// Evaluate runs rule against ctx and reports the boolean result. An absent
// or empty rule always evaluates true (steps with no guard always run).
// A syntactically ill-formed rule returns an INVALID_CONDITION_RULE error;
// callers at the orchestrator level treat any evaluation error as fail-open
// (log and proceed with the step) per spec.
func Evaluate(rule Rule, ctx Context) (bool, error) {
	if Empty(rule) {
		return true, nil
	}

	var generic map[string]any
	if err := json.Unmarshal(rule, &generic); err != nil {
		return false, flowerr.New(flowerr.InvalidConditionRule, fmt.Sprintf("rule is not a JSON object: %v", err))
	}

	switch shapeOf(generic) {
	case shapeCustom:
		var cr customRule
		if err := json.Unmarshal(rule, &cr); err != nil {
			return false, flowerr.New(flowerr.InvalidConditionRule, err.Error())
		}
		ok, err := evalCustom(cr, ctx)
		if err != nil {
			return false, flowerr.Wrap(flowerr.InvalidConditionRule, err)
		}
		return ok, nil
	case shapeSimple:
		var sr simpleRule
		if err := json.Unmarshal(rule, &sr); err != nil {
			return false, flowerr.New(flowerr.InvalidConditionRule, err.Error())
		}
		ok, err := evalSimple(sr, ctx)
		if err != nil {
			return false, flowerr.Wrap(flowerr.InvalidConditionRule, err)
		}
		return ok, nil
	default:
		v, err := evalNode(generic, ctx)
		if err != nil {
			return false, flowerr.Wrap(flowerr.InvalidConditionRule, err)
		}
		return truthy(v), nil
	}
}

type shape int

const (
	shapeLogicTree shape = iota
	shapeSimple
	shapeCustom
)

func shapeOf(m map[string]any) shape {
	if t, ok := m["type"]; ok {
		if ts, ok := t.(string); ok && ts == "custom" {
			return shapeCustom
		}
	}
	_, hasField := m["field"]
	_, hasOperator := m["operator"]
	if hasField && hasOperator {
		return shapeSimple
	}
	return shapeLogicTree
}

// ValidateRule reports whether rule is syntactically well-formed without
// evaluating it against a context.
func ValidateRule(rule Rule) ValidationResult {
	if Empty(rule) {
		return ValidationResult{Valid: true}
	}
	var generic map[string]any
	if err := json.Unmarshal(rule, &generic); err != nil {
		return ValidationResult{Valid: false, Error: err.Error()}
	}
	switch shapeOf(generic) {
	case shapeCustom:
		var cr customRule
		if err := json.Unmarshal(rule, &cr); err != nil {
			return ValidationResult{Valid: false, Error: err.Error()}
		}
		switch cr.Operation {
		case "timeWindow", "userRole", "stepOutput":
			return ValidationResult{Valid: true}
		default:
			return ValidationResult{Valid: false, Error: fmt.Sprintf("unsupported custom operation %q", cr.Operation)}
		}
	case shapeSimple:
		var sr simpleRule
		if err := json.Unmarshal(rule, &sr); err != nil {
			return ValidationResult{Valid: false, Error: err.Error()}
		}
		if sr.Field == "" || sr.Operator == "" {
			return ValidationResult{Valid: false, Error: "simple comparison requires field and operator"}
		}
		return ValidationResult{Valid: true}
	default:
		if _, ok := generic["field"]; ok {
			return ValidationResult{Valid: false, Error: "simple comparison requires field and operator"}
		}
		if _, ok := generic["operator"]; ok {
			return ValidationResult{Valid: false, Error: "simple comparison requires field and operator"}
		}
		if len(generic) != 1 {
			return ValidationResult{Valid: false, Error: "logic tree node must have exactly one operator key"}
		}
		return ValidationResult{Valid: true}
	}
}
