package validation

import (
	"math"
	"net/url"
	"slices"

	"github.com/jonathan/a11y-auditor/internal/browser"
	"github.com/jonathan/a11y-auditor/internal/types"
)

// Predicate is a named subtype check applied after the kind check passed.
type Predicate func(v any) bool

var predicates = map[string]Predicate{
	"hasLength":            hasLength,
	"isURL":                isURL,
	"isBrowserID":          isBrowserID,
	"isDeviceID":           isDeviceID,
	"isState":              isState,
	"isWaitable":           isWaitable,
	"isKey":                isKey,
	"areKeys":              areKeys,
	"areStrings":           areStrings,
	"isCondition":          isCondition,
	"isNonNegativeInteger": isNonNegativeInteger,
	"isInteger":            isInteger,
	"isTool":               isTool,
	"isPositive":           isPositive,
	"isDetailLevel":        isDetailLevel,
	"isReportType":         isReportType,
}

// waitables are the page properties a wait act can watch.
var waitables = []string{"url", "title", "body"}

func hasLength(v any) bool {
	switch x := v.(type) {
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	}
	return false
}

func isURL(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https":
		return u.Host != ""
	case "file":
		return u.Path != ""
	}
	return false
}

func isBrowserID(v any) bool {
	s, ok := v.(string)
	return ok && slices.Contains(types.BrowserIDs, s)
}

func isDeviceID(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, known := browser.LookupDevice(s)
	return known
}

func isState(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, known := browser.StateNames[s]
	return known
}

func isWaitable(v any) bool {
	s, ok := v.(string)
	return ok && slices.Contains(waitables, s)
}

func isKey(v any) bool {
	s, ok := v.(string)
	return ok && browser.KnownKey(s)
}

func areKeys(v any) bool {
	items, ok := v.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if !isKey(item) {
			return false
		}
	}
	return true
}

func areStrings(v any) bool {
	items, ok := v.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if _, ok := item.(string); !ok {
			return false
		}
	}
	return true
}

// isCondition accepts [propertyPath, relation?, criterion?]. A missing
// criterion compares against null.
func isCondition(v any) bool {
	items, ok := v.([]any)
	if !ok || len(items) == 0 || len(items) > 3 {
		return false
	}
	if !hasLength(items[0]) {
		return false
	}
	if _, ok := items[0].(string); !ok {
		return false
	}
	if len(items) >= 2 {
		rel, ok := items[1].(string)
		return ok && slices.Contains(types.Relations, rel)
	}
	return true
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

// maxSafeInteger is the largest integer a JSON number holds exactly.
const maxSafeInteger = 1<<53 - 1

func isInteger(v any) bool {
	n, ok := number(v)
	return ok && n == math.Trunc(n) && math.Abs(n) <= maxSafeInteger
}

func isNonNegativeInteger(v any) bool {
	n, _ := number(v)
	return isInteger(v) && n >= 0
}

func isPositive(v any) bool {
	n, ok := number(v)
	return ok && n > 0
}

func isTool(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, known := toolSchemas[s]
	return known
}

func isDetailLevel(v any) bool {
	n, _ := number(v)
	return isInteger(v) && n >= 0 && n <= 4
}

func isReportType(v any) bool {
	n, _ := number(v)
	return isInteger(v) && n >= 1 && n <= 4
}
