package validation

import (
	"sort"

	"github.com/jonathan/a11y-auditor/internal/types"
)

// Kind is the JSON type a field must have.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
)

// FieldSpec declares one act field. Check names a predicate; empty means none.
type FieldSpec struct {
	Name     string
	Required bool
	Kind     Kind
	Check    string
}

// commonFields apply to every act.
var commonFields = []FieldSpec{
	{Name: "name", Kind: KindString},
	{Name: "what", Kind: KindString},
}

func moveFields(valueRequired bool) []FieldSpec {
	return []FieldSpec{
		{Name: "which", Required: true, Kind: KindString, Check: "hasLength"},
		{Name: "index", Kind: KindNumber, Check: "isNonNegativeInteger"},
		{Name: "value", Required: valueRequired, Kind: KindString, Check: valueCheck(valueRequired)},
	}
}

func valueCheck(required bool) string {
	if required {
		return "hasLength"
	}
	return ""
}

// actSchemas holds the fields of each act type, in validation order.
var actSchemas = map[types.ActType][]FieldSpec{
	types.ActLaunch: {
		{Name: "browserID", Kind: KindString, Check: "isBrowserID"},
		{Name: "deviceID", Kind: KindString, Check: "isDeviceID"},
		{Name: "url", Kind: KindString, Check: "isURL"},
	},
	types.ActURL: {
		{Name: "which", Required: true, Kind: KindString, Check: "isURL"},
	},
	types.ActWait: {
		{Name: "which", Required: true, Kind: KindString, Check: "hasLength"},
		{Name: "in", Required: true, Kind: KindString, Check: "isWaitable"},
		{Name: "fatal", Kind: KindBoolean},
		{Name: "timeout", Kind: KindNumber, Check: "isPositive"},
	},
	types.ActState: {
		{Name: "which", Required: true, Kind: KindString, Check: "isState"},
	},
	types.ActPage: {
		{Name: "which", Kind: KindString, Check: "hasLength"},
	},
	types.ActReveal:   {},
	types.ActButton:   moveFields(false),
	types.ActCheckbox: moveFields(false),
	types.ActRadio:    moveFields(false),
	types.ActLink:     moveFields(false),
	types.ActFocus:    moveFields(false),
	types.ActSelect:   moveFields(true),
	types.ActText:     moveFields(true),
	types.ActSearch:   moveFields(true),
	types.ActPress: {
		{Name: "which", Required: true, Kind: KindString, Check: "isKey"},
		{Name: "again", Kind: KindNumber, Check: "isNonNegativeInteger"},
	},
	types.ActPresses: {
		{Name: "which", Required: true, Kind: KindArray, Check: "areKeys"},
	},
	types.ActNext: {
		{Name: "if", Required: true, Kind: KindArray, Check: "isCondition"},
		{Name: "jump", Kind: KindNumber, Check: "isInteger"},
		{Name: "next", Kind: KindString, Check: "hasLength"},
	},
	types.ActTest: {
		{Name: "which", Required: true, Kind: KindString, Check: "isTool"},
		{Name: "rules", Kind: KindArray, Check: "areStrings"},
		{Name: "args", Kind: KindObject},
		{Name: "timeLimit", Kind: KindNumber, Check: "isPositive"},
	},
}

// toolSchemas holds the extra fields of test acts, keyed by tool name. Every
// supported tool has an entry, possibly empty.
var toolSchemas = map[string][]FieldSpec{
	"alfa":   {},
	"aslint": {},
	"axe": {
		{Name: "detailLevel", Kind: KindNumber, Check: "isDetailLevel"},
	},
	"ed11y": {},
	"htmlcs": {
		{Name: "standard", Kind: KindString, Check: "hasLength"},
	},
	"ibm": {
		{Name: "withItems", Kind: KindBoolean},
	},
	"nuVal": {},
	"qualWeb": {
		{Name: "modules", Kind: KindArray, Check: "areStrings"},
	},
	"testaro": {
		{Name: "withItems", Kind: KindBoolean},
		{Name: "stopOnFail", Kind: KindBoolean},
	},
	"wave": {
		{Name: "reportType", Kind: KindNumber, Check: "isReportType"},
	},
	"wax": {},
}

// ToolNames returns the tool names a test act may name, sorted.
func ToolNames() []string {
	names := make([]string, 0, len(toolSchemas))
	for name := range toolSchemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FieldsFor returns the full field list for an act document of the given type.
// For test acts the tool's fields are appended when which names a known tool.
func FieldsFor(t types.ActType, which string) []FieldSpec {
	fields := append([]FieldSpec{}, actSchemas[t]...)
	if t == types.ActTest {
		fields = append(fields, toolSchemas[which]...)
	}
	return append(fields, commonFields...)
}
