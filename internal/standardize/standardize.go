// Package standardize converts native tool results into standard instances.
package standardize

import (
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/jonathan/a11y-auditor/internal/excerpt"
	"github.com/jonathan/a11y-auditor/internal/types"
)

// converter turns one tool's native result into instances.
type converter func(result map[string]any) ([]types.StandardInstance, error)

var converters = map[string]converter{
	"alfa":    convertAlfa,
	"aslint":  convertASLint,
	"axe":     convertAxe,
	"ed11y":   convertEd11y,
	"htmlcs":  convertHTMLCS,
	"ibm":     convertIBM,
	"nuVal":   convertNuVal,
	"qualWeb": convertQualWeb,
	"testaro": convertTestaro,
	"wave":    convertWAVE,
	"wax":     convertWAX,
}

// Supports reports whether a tool has a converter.
func Supports(tool string) bool {
	_, ok := converters[tool]
	return ok
}

// Tools returns the names of the tools with converters, sorted.
func Tools() []string {
	names := make([]string, 0, len(converters))
	for name := range converters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Act builds the standard result for a test act from its native result. It
// never fails: unknown tools and malformed results yield an empty instance
// list and are logged.
func Act(act *types.TestAct, log *zap.Logger) *types.StandardResult {
	if log == nil {
		log = zap.NewNop()
	}
	std := &types.StandardResult{Instances: []types.StandardInstance{}}
	if prevented, _ := act.Data["prevented"].(bool); prevented {
		std.Prevented = true
		return std
	}
	if len(act.Result) == 0 {
		return std
	}

	convert, ok := converters[act.Which]
	if !ok {
		log.Warn("no standardizer for tool", zap.String("tool", act.Which))
		return std
	}
	instances, err := convert(act.Result)
	if err != nil {
		log.Warn("native result has an unexpected shape",
			zap.String("tool", act.Which), zap.Error(err))
		return std
	}

	for i := range instances {
		completeFromExcerpt(&instances[i])
	}
	std.Instances = append(std.Instances, instances...)
	std.Totals = Totals(std.Instances)
	return std
}

// Totals counts instances per ordinal severity. Out-of-range severities are clamped.
func Totals(instances []types.StandardInstance) [4]int {
	var totals [4]int
	for _, inst := range instances {
		totals[clamp(inst.OrdinalSeverity)]++
	}
	return totals
}

func clamp(severity int) int {
	switch {
	case severity < types.SeverityInfo:
		return types.SeverityInfo
	case severity > types.SeverityViolation:
		return types.SeverityViolation
	}
	return severity
}

// completeFromExcerpt fills a missing tag name or id from the excerpt's start tag.
func completeFromExcerpt(inst *types.StandardInstance) {
	inst.OrdinalSeverity = clamp(inst.OrdinalSeverity)
	if inst.Excerpt == "" || (inst.TagName != "" && inst.ID != "") {
		return
	}
	tag, id := excerpt.StartTag(inst.Excerpt)
	if inst.TagName == "" {
		inst.TagName = tag
	}
	if inst.ID == "" {
		inst.ID = id
	}
}

// decode re-reads a generic result map into a typed native shape.
func decode(result map[string]any, native any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode native result: %w", err)
	}
	if err := json.Unmarshal(raw, native); err != nil {
		return fmt.Errorf("failed to decode native result: %w", err)
	}
	return nil
}

func selectorLocation(selector string) types.Location {
	if selector == "" {
		return types.Location{Doc: types.DocDOM}
	}
	return types.Location{Doc: types.DocDOM, Type: types.LocationSelector, Spec: selector}
}

func xpathLocation(path string) types.Location {
	if path == "" {
		return types.Location{Doc: types.DocDOM}
	}
	return types.Location{Doc: types.DocDOM, Type: types.LocationXPath, Spec: path}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
