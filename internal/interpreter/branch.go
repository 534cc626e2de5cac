package interpreter

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/jonathan/a11y-auditor/internal/types"
)

// doNext evaluates a branch against the most recent non-branch act and returns
// the next program counter. A counter outside the act list stops the job
// without aborting it.
func (in *Interpreter) doNext(s *Session, pc int, a *types.NextAct) int {
	stop := len(s.Report.Acts)

	var subject map[string]any
	if act := s.lastSubject(); act != nil {
		if m, err := types.AsMap(act); err == nil {
			subject = m
		}
	}

	path := ""
	if len(a.If) > 0 {
		path, _ = a.If[0].(string)
	}
	actual, _ := lookupPath(subject, path)
	relation := ""
	var criterion any
	if len(a.If) >= 2 {
		relation, _ = a.If[1].(string)
	}
	if len(a.If) >= 3 {
		criterion = a.If[2]
	}
	satisfied := evaluateCondition(actual, relation, criterion)

	target := pc + 1
	if satisfied {
		switch {
		case a.Jump != nil && *a.Jump == 0:
			target = stop
		case a.Jump != nil:
			target = pc + *a.Jump
		case a.Next != "":
			target = stop
			for i, act := range s.Report.Acts {
				if act.Base().Name == a.Next {
					target = i
					break
				}
			}
		}
	}
	if target < 0 || target >= stop {
		target = stop
	}

	result := map[string]any{"satisfied": satisfied, "actual": actual}
	if target == stop {
		result["next"] = "stop"
	} else {
		result["next"] = target
	}
	a.Result = result
	return target
}

// lookupPath resolves a dotted property path such as "result.items.0.id".
func lookupPath(doc map[string]any, path string) (any, bool) {
	if doc == nil || path == "" {
		return nil, false
	}
	var current any = doc
	for _, key := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[key]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(v) {
				return nil, false
			}
			current = v[i]
		default:
			return nil, false
		}
	}
	return current, true
}

// evaluateCondition applies a branch relation. Without a relation the value's
// truthiness decides.
func evaluateCondition(actual any, relation string, criterion any) bool {
	switch relation {
	case "":
		return truthy(actual)
	case types.RelEquals:
		return looseEqual(actual, criterion)
	case types.RelNotEquals:
		return !looseEqual(actual, criterion)
	case types.RelLess, types.RelGreater:
		a, aok := toFloat(actual)
		c, cok := toFloat(criterion)
		if aok && cok {
			if relation == types.RelLess {
				return a < c
			}
			return a > c
		}
		as, aok := actual.(string)
		cs, cok := criterion.(string)
		if aok && cok {
			if relation == types.RelLess {
				return as < cs
			}
			return as > cs
		}
		return false
	case types.RelIncludes:
		return includes(actual, criterion)
	case types.RelNotIncludes:
		return !includes(actual, criterion)
	case types.RelDeepEquals:
		return reflect.DeepEqual(normalize(actual), normalize(criterion))
	}
	return false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}

func looseEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// includes reports whether a string contains the criterion's text, or an
// array holds an element equal to it.
func includes(actual, criterion any) bool {
	switch v := actual.(type) {
	case string:
		if criterion == nil {
			return false
		}
		return strings.Contains(v, fmt.Sprint(criterion))
	case []any:
		for _, item := range v {
			if looseEqual(item, criterion) {
				return true
			}
		}
	}
	return false
}

// normalize gives a value the shape JSON decoding would.
func normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
