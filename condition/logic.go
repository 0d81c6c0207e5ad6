package condition

import (
	"fmt"
	"regexp"
	"strings"
)

// evalNode recursively evaluates a parsed JSON-logic-style node: a
// map with exactly one key is an operator application over its operand(s);
// anything else (string, number, bool, nil, array-of-literals) is a literal.
func evalNode(node any, ctx Context) (any, error) {
	m, ok := node.(map[string]any)
	if !ok {
		if arr, ok := node.([]any); ok {
			out := make([]any, len(arr))
			for i, el := range arr {
				v, err := evalNode(el, ctx)
				if err != nil {
					return nil, err
				}
				out[i] = v
			}
			return out, nil
		}
		return node, nil
	}
	if len(m) != 1 {
		// Not a single-operator object; treat as a literal map (e.g. inside "merge").
		return node, nil
	}
	for op, operand := range m {
		return applyOp(op, operand, ctx)
	}
	return nil, nil
}

// args normalizes an operand into a slice of raw (unevaluated) arguments.
func args(operand any) []any {
	if arr, ok := operand.([]any); ok {
		return arr
	}
	return []any{operand}
}

func evalArgs(operand any, ctx Context) ([]any, error) {
	raw := args(operand)
	out := make([]any, len(raw))
	for i, a := range raw {
		v, err := evalNode(a, ctx)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func applyOp(op string, operand any, ctx Context) (any, error) {
	switch op {
	case "var":
		a, err := evalArgs(operand, ctx)
		if err != nil {
			return nil, err
		}
		path := ""
		if len(a) > 0 {
			path = toString(a[0])
		}
		v, ok := resolveVar(path, ctx)
		if !ok {
			if len(a) > 1 {
				return a[1], nil
			}
			return nil, nil
		}
		return v, nil

	case "missing":
		a, err := evalArgs(operand, ctx)
		if err != nil {
			return nil, err
		}
		var missing []any
		for _, p := range a {
			if _, ok := resolveVar(toString(p), ctx); !ok {
				missing = append(missing, p)
			}
		}
		return missing, nil

	case "missing_some":
		a, err := evalArgs(operand, ctx)
		if err != nil {
			return nil, err
		}
		if len(a) < 2 {
			return []any{}, nil
		}
		need, _ := toFloat(a[0])
		keys, _ := a[1].([]any)
		var missing []any
		found := 0
		for _, k := range keys {
			if _, ok := resolveVar(toString(k), ctx); ok {
				found++
			} else {
				missing = append(missing, k)
			}
		}
		if float64(found) >= need {
			return []any{}, nil
		}
		return missing, nil

	case "==":
		a, err := evalArgs(operand, ctx)
		if err != nil {
			return nil, err
		}
		return binaryBool(a, looseEqual), nil
	case "!=":
		a, err := evalArgs(operand, ctx)
		if err != nil {
			return nil, err
		}
		return binaryBool(a, func(x, y any) bool { return !looseEqual(x, y) }), nil
	case "===":
		a, err := evalArgs(operand, ctx)
		if err != nil {
			return nil, err
		}
		return binaryBool(a, strictEqual), nil
	case "!==":
		a, err := evalArgs(operand, ctx)
		if err != nil {
			return nil, err
		}
		return binaryBool(a, func(x, y any) bool { return !strictEqual(x, y) }), nil

	case "<", "<=", ">", ">=":
		a, err := evalArgs(operand, ctx)
		if err != nil {
			return nil, err
		}
		return chainCompare(op, a), nil

	case "and":
		raw := args(operand)
		var last any = true
		for _, r := range raw {
			v, err := evalNode(r, ctx)
			if err != nil {
				return nil, err
			}
			last = v
			if !truthy(v) {
				return v, nil
			}
		}
		return last, nil

	case "or":
		raw := args(operand)
		var last any
		for _, r := range raw {
			v, err := evalNode(r, ctx)
			if err != nil {
				return nil, err
			}
			last = v
			if truthy(v) {
				return v, nil
			}
		}
		return last, nil

	case "not", "!":
		a, err := evalArgs(operand, ctx)
		if err != nil {
			return nil, err
		}
		if len(a) == 0 {
			return true, nil
		}
		return !truthy(a[0]), nil

	case "!!":
		a, err := evalArgs(operand, ctx)
		if err != nil {
			return nil, err
		}
		if len(a) == 0 {
			return false, nil
		}
		return truthy(a[0]), nil

	case "if", "?:":
		raw := args(operand)
		i := 0
		for i+1 < len(raw) {
			cond, err := evalNode(raw[i], ctx)
			if err != nil {
				return nil, err
			}
			if truthy(cond) {
				return evalNode(raw[i+1], ctx)
			}
			i += 2
		}
		if i < len(raw) {
			return evalNode(raw[i], ctx)
		}
		return nil, nil

	case "in":
		a, err := evalArgs(operand, ctx)
		if err != nil {
			return nil, err
		}
		if len(a) < 2 {
			return false, nil
		}
		return contains(a[1], a[0]), nil

	case "cat":
		a, err := evalArgs(operand, ctx)
		if err != nil {
			return nil, err
		}
		var sb strings.Builder
		for _, v := range a {
			sb.WriteString(toString(v))
		}
		return sb.String(), nil

	case "substr":
		a, err := evalArgs(operand, ctx)
		if err != nil {
			return nil, err
		}
		if len(a) < 2 {
			return "", nil
		}
		return substr(toString(a[0]), a[1:]), nil

	case "merge":
		a, err := evalArgs(operand, ctx)
		if err != nil {
			return nil, err
		}
		var out []any
		for _, v := range a {
			if arr, ok := v.([]any); ok {
				out = append(out, arr...)
			} else {
				out = append(out, v)
			}
		}
		return out, nil

	case "+", "-", "*", "/", "%":
		a, err := evalArgs(operand, ctx)
		if err != nil {
			return nil, err
		}
		return arith(op, a)

	case "min":
		a, err := evalArgs(operand, ctx)
		if err != nil {
			return nil, err
		}
		return extremum(a, true)
	case "max":
		a, err := evalArgs(operand, ctx)
		if err != nil {
			return nil, err
		}
		return extremum(a, false)

	case "map", "filter", "all", "none", "some", "reduce":
		return applyArrayOp(op, operand, ctx)

	case "exists":
		a, err := evalArgs(operand, ctx)
		if err != nil {
			return nil, err
		}
		if len(a) == 0 {
			return false, nil
		}
		_, ok := resolveVar(toString(a[0]), ctx)
		return ok, nil

	case "isEmpty":
		a, err := evalArgs(operand, ctx)
		if err != nil {
			return nil, err
		}
		if len(a) == 0 {
			return true, nil
		}
		return !truthy(a[0]), nil

	case "regex":
		a, err := evalArgs(operand, ctx)
		if err != nil {
			return nil, err
		}
		if len(a) < 2 {
			return false, nil
		}
		re, err := regexp.Compile(toString(a[1]))
		if err != nil {
			return false, fmt.Errorf("invalid regex %q: %w", toString(a[1]), err)
		}
		return re.MatchString(toString(a[0])), nil

	default:
		return nil, fmt.Errorf("unsupported operator %q", op)
	}
}

func binaryBool(a []any, cmp func(x, y any) bool) bool {
	if len(a) < 2 {
		return false
	}
	return cmp(a[0], a[1])
}

func chainCompare(op string, a []any) bool {
	for i := 0; i+1 < len(a); i++ {
		c, ok := compare(a[i], a[i+1])
		if !ok {
			return false
		}
		switch op {
		case "<":
			if !(c < 0) {
				return false
			}
		case "<=":
			if !(c <= 0) {
				return false
			}
		case ">":
			if !(c > 0) {
				return false
			}
		case ">=":
			if !(c >= 0) {
				return false
			}
		}
	}
	return len(a) >= 2
}

func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, toString(needle))
	case []any:
		for _, v := range h {
			if looseEqual(v, needle) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func substr(s string, rest []any) string {
	r := []rune(s)
	start, _ := toFloat(rest[0])
	si := int(start)
	if si < 0 {
		si = len(r) + si
	}
	if si < 0 {
		si = 0
	}
	if si > len(r) {
		si = len(r)
	}
	if len(rest) == 1 {
		return string(r[si:])
	}
	length, _ := toFloat(rest[1])
	li := int(length)
	var ei int
	if li < 0 {
		ei = len(r) + li
	} else {
		ei = si + li
	}
	if ei > len(r) {
		ei = len(r)
	}
	if ei < si {
		ei = si
	}
	return string(r[si:ei])
}

func arith(op string, a []any) (any, error) {
	if op == "-" && len(a) == 1 {
		f, _ := toFloat(a[0])
		return -f, nil
	}
	if op == "+" && len(a) == 1 {
		f, _ := toFloat(a[0])
		return f, nil
	}
	if len(a) == 0 {
		if op == "+" {
			return 0.0, nil
		}
		return nil, fmt.Errorf("operator %q needs at least one argument", op)
	}
	result, ok := toFloat(a[0])
	if !ok {
		return nil, fmt.Errorf("operator %q: non-numeric operand", op)
	}
	for _, v := range a[1:] {
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("operator %q: non-numeric operand", op)
		}
		switch op {
		case "+":
			result += f
		case "-":
			result -= f
		case "*":
			result *= f
		case "/":
			if f == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			result /= f
		case "%":
			if f == 0 {
				return nil, fmt.Errorf("modulo by zero")
			}
			result = float64(int(result) % int(f))
		}
	}
	return result, nil
}

func extremum(a []any, wantMin bool) (any, error) {
	if len(a) == 0 {
		return nil, nil
	}
	best, ok := toFloat(a[0])
	if !ok {
		return nil, fmt.Errorf("non-numeric operand")
	}
	for _, v := range a[1:] {
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("non-numeric operand")
		}
		if (wantMin && f < best) || (!wantMin && f > best) {
			best = f
		}
	}
	return best, nil
}

// applyArrayOp implements map/filter/all/none/some/reduce. The second
// argument is a sub-rule evaluated once per element with the element as
// the "inputs" bucket so "var" resolves against the element.
func applyArrayOp(op string, operand any, ctx Context) (any, error) {
	raw := args(operand)
	if len(raw) < 2 {
		return nil, fmt.Errorf("operator %q needs an array and a sub-rule", op)
	}
	arrVal, err := evalNode(raw[0], ctx)
	if err != nil {
		return nil, err
	}
	arr, _ := arrVal.([]any)

	elemCtx := func(elem any) Context {
		c := ctx
		if em, ok := elem.(map[string]any); ok {
			c.Inputs = em
		} else {
			c.Inputs = map[string]any{"": elem}
		}
		return c
	}
	evalElem := func(elem any, rule any) (any, error) {
		c := elemCtx(elem)
		// "var" with empty path returns the element itself; with a path it
		// looks up a field on the element.
		return evalNodeWithElement(rule, c, elem)
	}

	switch op {
	case "map":
		out := make([]any, 0, len(arr))
		for _, e := range arr {
			v, err := evalElem(e, raw[1])
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case "filter":
		out := make([]any, 0, len(arr))
		for _, e := range arr {
			v, err := evalElem(e, raw[1])
			if err != nil {
				return nil, err
			}
			if truthy(v) {
				out = append(out, e)
			}
		}
		return out, nil
	case "all":
		if len(arr) == 0 {
			return false, nil
		}
		for _, e := range arr {
			v, err := evalElem(e, raw[1])
			if err != nil {
				return nil, err
			}
			if !truthy(v) {
				return false, nil
			}
		}
		return true, nil
	case "none":
		for _, e := range arr {
			v, err := evalElem(e, raw[1])
			if err != nil {
				return nil, err
			}
			if truthy(v) {
				return false, nil
			}
		}
		return true, nil
	case "some":
		for _, e := range arr {
			v, err := evalElem(e, raw[1])
			if err != nil {
				return nil, err
			}
			if truthy(v) {
				return true, nil
			}
		}
		return false, nil
	case "reduce":
		var acc any
		if len(raw) > 2 {
			v, err := evalNode(raw[2], ctx)
			if err != nil {
				return nil, err
			}
			acc = v
		}
		for _, e := range arr {
			c := ctx
			c.Inputs = map[string]any{"current": e, "accumulator": acc}
			v, err := evalNode(raw[1], c)
			if err != nil {
				return nil, err
			}
			acc = v
		}
		return acc, nil
	}
	return nil, fmt.Errorf("unsupported array operator %q", op)
}

// evalNodeWithElement evaluates a sub-rule where a bare {"var": ""} refers
// to the current element and {"var": "field"} refers to a field on it when
// it is a map.
func evalNodeWithElement(node any, ctx Context, elem any) (any, error) {
	m, ok := node.(map[string]any)
	if ok && len(m) == 1 {
		if operand, isVar := m["var"]; isVar {
			path := ""
			if arr, ok := operand.([]any); ok && len(arr) > 0 {
				path = toString(arr[0])
			} else if s, ok := operand.(string); ok {
				path = s
			}
			if path == "" {
				return elem, nil
			}
			if em, ok := elem.(map[string]any); ok {
				if v, ok := resolveDotted(em, path); ok {
					return v, nil
				}
				return nil, nil
			}
		}
	}
	return evalNode(node, ctx)
}

func resolveDotted(m map[string]any, path string) (any, bool) {
	cur := any(m)
	for _, seg := range strings.Split(path, ".") {
		cm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := cm[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}
