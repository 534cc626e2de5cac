package standardize

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jonathan/a11y-auditor/internal/types"
)

// fixtures holds a representative native result per tool.
var fixtures = map[string]string{
	"axe": `{"totals": {}, "details": {
		"violations": [
			{"id": "image-alt", "impact": "critical", "help": "Images must have alternate text",
			 "nodes": [{"target": ["#logo"], "html": "<img id=\"logo\" src=\"l.png\">", "impact": "critical"},
			           {"target": ["main > img"], "html": "<img src=\"x.png\">"}]},
			{"id": "region", "impact": "moderate", "help": "All content should be in landmarks",
			 "nodes": [{"target": ["body > div"], "html": "<div class=\"x\">", "impact": "moderate"}]}
		],
		"incomplete": [
			{"id": "color-contrast", "impact": "serious", "help": "Contrast",
			 "nodes": [{"target": ["p"], "html": "<p>low</p>", "impact": "serious"}]}
		]}}`,
	"alfa": `{"items": [
		{"verdict": "failed", "rule": {"ruleID": "r2", "ruleSummary": "Page has a title"},
		 "target": {"tagName": "html", "path": "/html", "codeLines": ["<html>", "..."]}},
		{"verdict": "cantTell", "rule": {"ruleID": "r69", "ruleSummary": "Contrast"},
		 "target": {"tagName": "span", "path": "/html/body/span[2]", "codeLines": ["<span id=\"s\">"]}},
		{"verdict": "passed", "rule": {"ruleID": "r1"}, "target": {}}
	]}`,
	"aslint": `{"rules": {
		"img-alt": {"issueType": "error", "description": "Missing alt",
			"results": [{"selector": "img.a", "html": "<img class=\"a\">", "message": "Image lacks alt"}]},
		"headings": {"issueType": "manual", "description": "Check headings",
			"results": [{"selector": "h3", "html": "<h3 id=\"h\">x</h3>"}]},
		"passing": {"issueType": "passed", "results": [{"selector": "p"}]}
	}}`,
	"ed11y": `{"results": [
		{"test": "altMissing", "type": "error", "content": "Image has no alt", "tagName": "img", "box": {"x": 1, "y": 2, "width": 3, "height": 4}, "excerpt": "<img src=\"a\">"},
		{"test": "headingEmpty", "type": "warning", "content": "Empty heading", "excerpt": "<h2 id=\"e\"></h2>"}
	]}`,
	"htmlcs": `{"messages": [
		"Error|WCAG2AA.H37|img|logo|Img element missing an alt attribute.|<img id=\"logo\">",
		"Warning|WCAG2AA.G18|p||Check contrast|<p class=\"c\">text | with bar</p>",
		"Notice|WCAG2AA.H25|title||Check title|<title>T</title>"
	]}`,
	"ibm": `{"items": [
		{"ruleId": "img_alt_valid", "level": "violation", "message": "Missing alt", "path": {"dom": "/html[1]/body[1]/img[1]"}, "snippet": "<img src=\"a.png\">"},
		{"ruleId": "text_contrast", "level": "potentialviolation", "message": "Contrast", "path": {"dom": "/html[1]/body[1]/p[1]"}, "snippet": "<p>"},
		{"ruleId": "aria_hint", "level": "recommendation", "message": "Hint", "path": {"dom": ""}, "snippet": ""},
		{"ruleId": "manual_check", "level": "manual", "message": "Check", "path": {"dom": "/html[1]"}, "snippet": "<html lang=\"en\">"},
		{"ruleId": "pass", "level": "pass", "message": "ok"}
	]}`,
	"nuVal": `{"messages": [
		{"type": "error", "message": "Attribute “foo” not allowed on element “div” at this point.", "extract": "<div foo=\"1\">", "lastLine": 12},
		{"type": "error", "message": "Attribute “bar” not allowed on element “div” at this point.", "extract": "<div id=\"d\" bar>", "lastLine": 14},
		{"type": "info", "subType": "warning", "message": "Consider adding a “lang” attribute.", "extract": "<html>", "lastLine": 1},
		{"type": "info", "message": "Trailing slash on void elements has no effect.", "extract": "<br/>", "lastLine": 20},
		{"type": "non-document-error", "subType": "io", "message": "HTTP resource not retrievable."}
	]}`,
	"qualWeb": `{"modules": {
		"act-rules": {"assertions": {"QW-ACT-R1": {"code": "QW-ACT-R1", "name": "HTML Page has a title",
			"results": [{"verdict": "failed", "description": "No title", "elements": [{"pointer": "html", "htmlCode": "<html>"}]},
			            {"verdict": "passed", "description": "ok", "elements": [{"pointer": "p"}]}]}}},
		"wcag-techniques": {"assertions": {"QW-WCAG-T1": {"code": "QW-WCAG-T1", "name": "Captions",
			"results": [{"verdict": "warning", "description": "Check", "elements": [{"pointer": "table", "htmlCode": "<table id=\"t\">"}]}]}}},
		"best-practices": {"assertions": {"QW-BP1": {"code": "QW-BP1", "name": "Headings",
			"results": [{"verdict": "failed", "description": "Bad headings", "elements": []}]}}},
		"counts": {"assertions": {}}
	}}`,
	"wave": `{"categories": {
		"error": {"items": {"alt_missing": {"id": "alt_missing", "description": "Missing alternative text", "count": 2, "selectors": ["img:nth-child(1)", "img:nth-child(2)"]}}},
		"contrast": {"items": {"contrast": {"id": "contrast", "description": "Very low contrast", "count": 3}}},
		"alert": {"items": {"redundant_link": {"id": "redundant_link", "description": "Redundant link", "count": 1, "selectors": ["a.more"]}}},
		"feature": {"items": {"alt": {"id": "alt", "count": 4}}}
	}}`,
	"wax": `{"violations": [
		{"rule": "image-alt", "message": "Images must have alt", "severity": "error", "element": "<img src=\"x\">"},
		{"message": "Links should be distinguishable", "severity": "warning", "element": "<a href=\"#\" id=\"l\">"},
		{"rule": "debug", "message": "note", "severity": "debug"}
	]}`,
	"testaro": `{
		"hr": {"what": "hr element", "totals": [1, 0, 0, 0], "standardInstances": [
			{"ruleID": "hr", "what": "Element instead of a list or heading", "ordinalSeverity": 0, "tagName": "HR", "id": "",
			 "location": {"doc": "dom", "type": "xpath", "spec": "/html/body/hr"}, "excerpt": "<hr>"}
		]},
		"linkExt": {"what": "external link", "prevented": true, "error": "timeout"},
		"titledEl": {"what": "titled element", "totals": [0, 2, 0, 0], "standardInstances": [
			{"ordinalSeverity": 1, "location": {"doc": "dom", "type": "", "spec": ""}, "excerpt": "<span title=\"t\">", "count": 2}
		]}
	}`,
}

func act(t *testing.T, tool, native string) *types.TestAct {
	t.Helper()
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(native), &result))
	return &types.TestAct{
		ActBase: types.ActBase{Type: types.ActTest, Result: result},
		Which:   tool,
	}
}

func TestEveryToolHasFixture(t *testing.T) {
	for _, tool := range Tools() {
		assert.Contains(t, fixtures, tool)
	}
	assert.Len(t, Tools(), 11)
}

func TestTotalsReconcile(t *testing.T) {
	for tool, native := range fixtures {
		t.Run(tool, func(t *testing.T) {
			std := Act(act(t, tool, native), zaptest.NewLogger(t))
			require.NotEmpty(t, std.Instances)

			sum := 0
			for _, n := range std.Totals {
				sum += n
			}
			assert.Equal(t, len(std.Instances), sum)
			for _, inst := range std.Instances {
				assert.GreaterOrEqual(t, inst.OrdinalSeverity, 0)
				assert.LessOrEqual(t, inst.OrdinalSeverity, 3)
				assert.NotEmpty(t, inst.RuleID)
			}
		})
	}
}

func TestAxe(t *testing.T) {
	std := Act(act(t, "axe", fixtures["axe"]), nil)

	want := []types.StandardInstance{
		{RuleID: "image-alt", What: "Images must have alternate text", OrdinalSeverity: 3, TagName: "IMG", ID: "logo",
			Location: types.Location{Doc: "dom", Type: "selector", Spec: "#logo"}, Excerpt: `<img id="logo" src="l.png">`},
		{RuleID: "image-alt", What: "Images must have alternate text", OrdinalSeverity: 3, TagName: "IMG",
			Location: types.Location{Doc: "dom", Type: "selector", Spec: "main > img"}, Excerpt: `<img src="x.png">`},
		{RuleID: "region", What: "All content should be in landmarks", OrdinalSeverity: 1, TagName: "DIV",
			Location: types.Location{Doc: "dom", Type: "selector", Spec: "body > div"}, Excerpt: `<div class="x">`},
		{RuleID: "color-contrast", What: "Contrast", OrdinalSeverity: 1, TagName: "P",
			Location: types.Location{Doc: "dom", Type: "selector", Spec: "p"}, Excerpt: "<p>low</p>"},
	}
	if diff := cmp.Diff(want, std.Instances); diff != "" {
		t.Errorf("axe instances mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, [4]int{0, 2, 0, 2}, std.Totals)
}

func TestAlfa(t *testing.T) {
	std := Act(act(t, "alfa", fixtures["alfa"]), nil)
	require.Len(t, std.Instances, 2)

	assert.Equal(t, 3, std.Instances[0].OrdinalSeverity)
	assert.Equal(t, "HTML", std.Instances[0].TagName)
	assert.Equal(t, types.LocationXPath, std.Instances[0].Location.Type)
	assert.Equal(t, 1, std.Instances[1].OrdinalSeverity)
	assert.Equal(t, "s", std.Instances[1].ID)
	assert.Equal(t, "/html/body/span[2]", std.Instances[1].Location.Spec)
}

func TestASLint(t *testing.T) {
	std := Act(act(t, "aslint", fixtures["aslint"]), nil)
	require.Len(t, std.Instances, 2)

	// rules in name order
	assert.Equal(t, "headings", std.Instances[0].RuleID)
	assert.Equal(t, 0, std.Instances[0].OrdinalSeverity)
	assert.Equal(t, "Check headings", std.Instances[0].What)
	assert.Equal(t, "h", std.Instances[0].ID)
	assert.Equal(t, "img-alt", std.Instances[1].RuleID)
	assert.Equal(t, 3, std.Instances[1].OrdinalSeverity)
	assert.Equal(t, "Image lacks alt", std.Instances[1].What)
}

func TestEd11y(t *testing.T) {
	std := Act(act(t, "ed11y", fixtures["ed11y"]), nil)
	require.Len(t, std.Instances, 2)

	assert.Equal(t, types.LocationBox, std.Instances[0].Location.Type)
	box, ok := std.Instances[0].Location.SpecBox()
	require.True(t, ok)
	assert.Equal(t, "1:2:3:4", box.ID())
	assert.Equal(t, "IMG", std.Instances[0].TagName)
	assert.Equal(t, 1, std.Instances[1].OrdinalSeverity)
	assert.Equal(t, "H2", std.Instances[1].TagName)
	assert.Equal(t, "e", std.Instances[1].ID)
}

func TestHTMLCS(t *testing.T) {
	std := Act(act(t, "htmlcs", fixtures["htmlcs"]), nil)
	require.Len(t, std.Instances, 3)

	assert.Equal(t, "WCAG2AA.H37", std.Instances[0].RuleID)
	assert.Equal(t, 3, std.Instances[0].OrdinalSeverity)
	assert.Equal(t, "logo", std.Instances[0].ID)
	// the excerpt keeps any further separators
	assert.Equal(t, `<p class="c">text | with bar</p>`, std.Instances[1].Excerpt)
	assert.Equal(t, 1, std.Instances[1].OrdinalSeverity)
	assert.Equal(t, 0, std.Instances[2].OrdinalSeverity)
	assert.Equal(t, [4]int{1, 1, 0, 1}, std.Totals)
}

func TestHTMLCS_Malformed(t *testing.T) {
	std := Act(act(t, "htmlcs", `{"messages": ["Error|only|three"]}`), zaptest.NewLogger(t))
	assert.Empty(t, std.Instances)
	assert.Equal(t, [4]int{}, std.Totals)
}

func TestIBM(t *testing.T) {
	std := Act(act(t, "ibm", fixtures["ibm"]), nil)
	require.Len(t, std.Instances, 4)

	assert.Equal(t, [4]int{1, 1, 1, 1}, std.Totals)
	assert.Equal(t, "/html[1]/body[1]/img[1]", std.Instances[0].Location.Spec)
	assert.Equal(t, types.LocationNone, std.Instances[2].Location.Type)
	assert.Equal(t, "HTML", std.Instances[3].TagName)
}

func TestNuVal(t *testing.T) {
	std := Act(act(t, "nuVal", fixtures["nuVal"]), nil)
	require.Len(t, std.Instances, 4)

	assert.Equal(t, std.Instances[0].RuleID, std.Instances[1].RuleID, "quoted specifics are generalized")
	assert.Equal(t, "Attribute “*” not allowed on element “*” at this point.", std.Instances[0].RuleID)
	assert.Equal(t, types.DocSource, std.Instances[0].Location.Doc)
	assert.Equal(t, types.LocationLine, std.Instances[0].Location.Type)
	assert.Equal(t, 12, std.Instances[0].Location.Spec)
	assert.Equal(t, "d", std.Instances[1].ID)
	assert.Equal(t, 1, std.Instances[2].OrdinalSeverity)
	assert.Equal(t, 0, std.Instances[3].OrdinalSeverity)
	assert.Equal(t, "BR", std.Instances[3].TagName)
}

func TestQualWeb(t *testing.T) {
	std := Act(act(t, "qualWeb", fixtures["qualWeb"]), nil)
	require.Len(t, std.Instances, 3)

	bySeverity := map[string]int{}
	for _, inst := range std.Instances {
		bySeverity[inst.RuleID] = inst.OrdinalSeverity
	}
	assert.Equal(t, map[string]int{"QW-ACT-R1": 3, "QW-WCAG-T1": 0, "QW-BP1": 1}, bySeverity)
}

func TestWAVE(t *testing.T) {
	std := Act(act(t, "wave", fixtures["wave"]), nil)
	require.Len(t, std.Instances, 4)

	// most severe category first
	assert.Equal(t, "alt_missing", std.Instances[0].RuleID)
	assert.Equal(t, 3, std.Instances[0].OrdinalSeverity)
	assert.Equal(t, "contrast", std.Instances[2].RuleID)
	assert.Equal(t, 3, std.Instances[2].Count)
	assert.Equal(t, "redundant_link", std.Instances[3].RuleID)
	assert.Equal(t, [4]int{1, 0, 1, 2}, std.Totals)
}

func TestWAX(t *testing.T) {
	std := Act(act(t, "wax", fixtures["wax"]), nil)
	require.Len(t, std.Instances, 2)

	assert.Equal(t, "image-alt", std.Instances[0].RuleID)
	assert.Equal(t, "Links should be distinguishable", std.Instances[1].RuleID)
	assert.Equal(t, "l", std.Instances[1].ID)
	assert.Equal(t, "A", std.Instances[1].TagName)
}

func TestTestaro(t *testing.T) {
	std := Act(act(t, "testaro", fixtures["testaro"]), nil)
	require.Len(t, std.Instances, 2)

	assert.Equal(t, "hr", std.Instances[0].RuleID)
	assert.Equal(t, "HR", std.Instances[0].TagName)
	assert.Equal(t, 0, std.Instances[0].OrdinalSeverity)
	assert.Equal(t, "titledEl", std.Instances[1].RuleID)
	assert.Equal(t, "titled element", std.Instances[1].What)
	assert.Equal(t, 2, std.Instances[1].Count)
	assert.Equal(t, "SPAN", std.Instances[1].TagName)
}

func TestAct_Prevented(t *testing.T) {
	a := act(t, "axe", fixtures["axe"])
	a.Data = map[string]any{"prevented": true, "error": "timeout"}

	std := Act(a, nil)
	assert.True(t, std.Prevented)
	assert.Empty(t, std.Instances)
	assert.NotNil(t, std.Instances)
}

func TestAct_UnknownToolAndEmptyResult(t *testing.T) {
	std := Act(act(t, "lighthouse", `{"x": 1}`), zaptest.NewLogger(t))
	assert.Empty(t, std.Instances)

	std = Act(&types.TestAct{Which: "axe"}, nil)
	assert.Empty(t, std.Instances)
	assert.Equal(t, [4]int{}, std.Totals)
}

func TestAct_WrongShape(t *testing.T) {
	std := Act(act(t, "axe", `{"details": {"violations": "many"}}`), zaptest.NewLogger(t))
	assert.Empty(t, std.Instances)
}

func TestTotals_ClampsSeverity(t *testing.T) {
	totals := Totals([]types.StandardInstance{
		{OrdinalSeverity: -2}, {OrdinalSeverity: 0}, {OrdinalSeverity: 7},
	})
	assert.Equal(t, [4]int{2, 0, 0, 1}, totals)
}

func TestSupports(t *testing.T) {
	assert.True(t, Supports("qualWeb"))
	assert.False(t, Supports("qualweb"))
}
