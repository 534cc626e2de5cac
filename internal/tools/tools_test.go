package tools

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jonathan/a11y-auditor/internal/browser/browsertest"
	"github.com/jonathan/a11y-auditor/internal/standardize"
	"github.com/jonathan/a11y-auditor/internal/types"
	"github.com/jonathan/a11y-auditor/internal/validation"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func pageWith(html string) *browsertest.Page {
	p := browsertest.NewPage(nil)
	p.SetHTML(html)
	p.CurrentURL = "https://example.com/"
	return p
}

func TestDefaultRegistry_CoversEveryTool(t *testing.T) {
	names := DefaultRegistry(Options{}).Names()
	assert.Equal(t, validation.ToolNames(), names)
	assert.Equal(t, standardize.Tools(), names)
}

func TestRegistry_GetAndReplace(t *testing.T) {
	r := NewRegistry(NewTestaro(nil))
	_, ok := r.Get("axe")
	assert.False(t, ok)

	tool, ok := r.Get("testaro")
	require.True(t, ok)
	assert.Equal(t, "testaro", tool.Name())

	replacement := NewTestaro(zaptest.NewLogger(t))
	r.Register(replacement)
	tool, _ = r.Get("testaro")
	assert.Same(t, replacement, tool)
	assert.Equal(t, []string{"testaro"}, r.Names())
}

func TestTimeLimit(t *testing.T) {
	tests := []struct {
		act  types.TestAct
		want time.Duration
	}{
		{types.TestAct{Which: "testaro"}, 150 * time.Second},
		{types.TestAct{Which: "qualWeb"}, 60 * time.Second},
		{types.TestAct{Which: "ibm"}, 45 * time.Second},
		{types.TestAct{Which: "wave"}, 45 * time.Second},
		{types.TestAct{Which: "aslint"}, 30 * time.Second},
		{types.TestAct{Which: "ed11y"}, 30 * time.Second},
		{types.TestAct{Which: "axe"}, 20 * time.Second},
		{types.TestAct{Which: "axe", TimeLimit: 2.5}, 2500 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.act.Which, func(t *testing.T) {
			assert.Equal(t, tt.want, TimeLimit(&tt.act))
		})
	}
}

func runTestaro(t *testing.T, html string, act *types.TestAct) (map[string]any, map[string]any) {
	t.Helper()
	act.Which = "testaro"
	data, result, err := NewTestaro(zaptest.NewLogger(t)).Run(context.Background(), pageWith(html), act, time.Minute)
	require.NoError(t, err)
	return data, result
}

func TestTestaro_HorizontalRule(t *testing.T) {
	act := &types.TestAct{Rules: []string{"hr"}}
	_, result := runTestaro(t, `<!DOCTYPE html><html><body><p>a</p><hr><p>b</p></body></html>`, act)
	act.Result = result

	std := standardize.Act(act, zaptest.NewLogger(t))
	require.Len(t, std.Instances, 1)
	inst := std.Instances[0]
	assert.Equal(t, "hr", inst.RuleID)
	assert.Equal(t, "HR", inst.TagName)
	assert.Equal(t, 0, inst.OrdinalSeverity)
	assert.Equal(t, types.LocationXPath, inst.Location.Type)
	assert.Equal(t, "/html/body/hr", inst.Location.Spec)
	assert.Equal(t, [4]int{1, 0, 0, 0}, std.Totals)
}

func TestTestaro_SummaryMode(t *testing.T) {
	act := &types.TestAct{Rules: []string{"linkExt"}, WithItems: boolPtr(false)}
	_, result := runTestaro(t, `<!DOCTYPE html><html><body>
		<a href="/a" target="_blank">a</a><a href="/b" target="_blank">b</a><a href="/c">c</a>
	</body></html>`, act)
	act.Result = result

	std := standardize.Act(act, nil)
	require.Len(t, std.Instances, 1)
	assert.Equal(t, 2, std.Instances[0].Count)
	assert.Equal(t, "A", std.Instances[0].TagName)
	assert.Equal(t, types.LocationNone, std.Instances[0].Location.Type)
}

func TestTestaro_StopOnFail(t *testing.T) {
	act := &types.TestAct{Rules: []string{"linkTitle", "hr", "linkExt"}, StopOnFail: true}
	data, result := runTestaro(t, `<!DOCTYPE html><html><body><hr><a href="/" target="_blank">x</a></body></html>`, act)

	assert.Equal(t, "hr", data["stoppedAt"])
	assert.Contains(t, result, "linkTitle")
	assert.Contains(t, result, "hr")
	assert.NotContains(t, result, "linkExt")
}

func TestTestaro_UnknownRule(t *testing.T) {
	act := &types.TestAct{Rules: []string{"hr", "noSuchRule"}}
	data, result := runTestaro(t, `<!DOCTYPE html><html><body></body></html>`, act)
	assert.Equal(t, []string{"noSuchRule"}, data["unknownRules"])
	assert.Len(t, result, 1)
}

func TestTestaro_AllRulesByDefault(t *testing.T) {
	_, result := runTestaro(t, `<!DOCTYPE html><html><body></body></html>`, &types.TestAct{})
	for _, id := range TestaroRuleIDs() {
		assert.Contains(t, result, id)
	}
}

func TestTestaro_Rules(t *testing.T) {
	tests := []struct {
		name string
		rule string
		html string
		want int
	}{
		{"doctype present", "docType", `<!DOCTYPE html><html><body></body></html>`, 0},
		{"doctype missing", "docType", `<html><body></body></html>`, 1},
		{"placeholder only", "phOnly", `<!DOCTYPE html><body><input placeholder="Name"></body>`, 1},
		{"placeholder with label", "phOnly", `<!DOCTYPE html><body><label for="n">Name</label><input id="n" placeholder="Name"></body>`, 0},
		{"placeholder wrapped", "phOnly", `<!DOCTYPE html><body><label>Name <input placeholder="Name"></label></body>`, 0},
		{"placeholder aria", "phOnly", `<!DOCTYPE html><body><input aria-label="Name" placeholder="Name"></body>`, 0},
		{"describedby missing", "adbID", `<!DOCTYPE html><body><input aria-describedby="help"></body>`, 1},
		{"describedby duplicate", "adbID", `<!DOCTYPE html><body><input aria-describedby="h"><p id="h"></p><p id="h"></p></body>`, 1},
		{"describedby ok", "adbID", `<!DOCTYPE html><body><input aria-describedby="h"><p id="h"></p></body>`, 0},
		{"embedded button", "embAc", `<!DOCTYPE html><body><a href="/"><button>x</button></a></body>`, 1},
		{"titled div", "titledEl", `<!DOCTYPE html><body><div title="x"></div><abbr title="y">y</abbr></body>`, 1},
		{"titled link", "linkTitle", `<!DOCTYPE html><body><a href="/" title="home">home</a></body>`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act := &types.TestAct{Rules: []string{tt.rule}}
			_, result := runTestaro(t, tt.html, act)
			act.Result = result
			std := standardize.Act(act, nil)
			assert.Len(t, std.Instances, tt.want)
		})
	}
}

func TestTestaro_ContentError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewTestaro(nil).Run(ctx, pageWith(`<html></html>`), &types.TestAct{Which: "testaro", Rules: []string{"hr"}}, time.Second)
	var toolErr *Error
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "testaro", toolErr.Tool)
}

func TestMarkup_Truncates(t *testing.T) {
	page := pageWith(`<html><body><p>` + strings.Repeat("é", 500) + `</p></body></html>`)
	out := markup(page.Doc.Find("p"))
	assert.True(t, strings.HasSuffix(out, "…"))
	assert.LessOrEqual(t, len(out), maxExcerpt+len("…"))
}

func scriptToolFor(t *testing.T, name string) *ScriptTool {
	t.Helper()
	dir := t.TempDir()
	tool, ok := DefaultRegistry(Options{ScriptDir: dir}).Get(name)
	require.True(t, ok)
	st := tool.(*ScriptTool)
	require.NoError(t, os.WriteFile(filepath.Join(dir, filepath.Base(st.BundlePath())), []byte("window.axe = {};"), 0o600))
	return st
}

func TestScriptTool_InjectsAndRuns(t *testing.T) {
	tool := scriptToolFor(t, "axe")
	page := pageWith(`<html><body><img src="a.png"></body></html>`)
	var scripts []string
	page.EvaluateFunc = func(_ context.Context, expr string) (any, error) {
		scripts = append(scripts, expr)
		switch {
		case strings.HasPrefix(expr, "typeof window"):
			return false, nil
		case strings.Contains(expr, "createElement('script')"):
			return true, nil
		}
		return map[string]any{
			"details": map[string]any{
				"violations": []any{map[string]any{
					"id": "image-alt", "impact": "critical", "help": "Images must have alternate text",
					"nodes": []any{map[string]any{"target": []any{"img"}, "html": `<img src="a.png">`}},
				}},
				"incomplete": []any{},
			},
		}, nil
	}

	act := &types.TestAct{ActBase: types.ActBase{Type: types.ActTest}, Which: "axe", Rules: []string{"image-alt"}, DetailLevel: intPtr(1)}
	data, result, err := tool.Run(context.Background(), page, act, time.Second)
	require.NoError(t, err)
	require.Len(t, scripts, 3)
	assert.Contains(t, scripts[1], "window.axe = {};")
	assert.Contains(t, scripts[2], `"values":["image-alt"]`)
	assert.Contains(t, scripts[2], "1 >= 2")
	assert.Equal(t, true, data["injected"])

	act.Result = result
	std := standardize.Act(act, nil)
	require.Len(t, std.Instances, 1)
	assert.Equal(t, 3, std.Instances[0].OrdinalSeverity)
	assert.Equal(t, "IMG", std.Instances[0].TagName)
}

func TestScriptTool_AlreadyLoaded(t *testing.T) {
	tool := scriptToolFor(t, "htmlcs")
	page := pageWith(`<html></html>`)
	calls := 0
	page.EvaluateFunc = func(_ context.Context, expr string) (any, error) {
		calls++
		if strings.HasPrefix(expr, "typeof window") {
			return true, nil
		}
		assert.Contains(t, expr, `"WCAG2AA"`)
		return map[string]any{"messages": []any{}}, nil
	}
	data, _, err := tool.Run(context.Background(), page, &types.TestAct{Which: "htmlcs"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, false, data["injected"])
}

func TestScriptTool_MissingBundle(t *testing.T) {
	tool, _ := DefaultRegistry(Options{ScriptDir: t.TempDir()}).Get("wax")
	page := pageWith(`<html></html>`)
	page.EvaluateFunc = func(context.Context, string) (any, error) { return false, nil }

	_, _, err := tool.Run(context.Background(), page, &types.TestAct{Which: "wax"}, time.Second)
	var toolErr *Error
	require.ErrorAs(t, err, &toolErr)
	assert.Contains(t, err.Error(), "bundle unavailable")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNuVal_PostsContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.Header.Get("Content-Type"), "text/html")
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<title>T</title>")
		_, _ = w.Write([]byte(`{"messages":[{"type":"error","message":"Stray end tag “div”.","extract":"</div>","lastLine":3}]}`))
	}))
	defer server.Close()

	tool := NewNuVal(server.URL, nil)
	act := &types.TestAct{Which: "nuVal"}
	_, result, err := tool.Run(context.Background(), pageWith(`<html><head><title>T</title></head><body></body></html>`), act, time.Second)
	require.NoError(t, err)

	act.Result = result
	std := standardize.Act(act, nil)
	require.Len(t, std.Instances, 1)
	assert.Equal(t, "Stray end tag “*”.", std.Instances[0].RuleID)
	assert.Equal(t, types.DocSource, std.Instances[0].Location.Doc)
}

func TestNuVal_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, _, err := NewNuVal(server.URL, nil).Run(context.Background(), pageWith(`<html></html>`), &types.TestAct{Which: "nuVal"}, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestWAVE_QueriesAPI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "k1", q.Get("key"))
		assert.Equal(t, "https://example.com/", q.Get("url"))
		assert.Equal(t, "3", q.Get("reporttype"))
		_, _ = w.Write([]byte(`{"status":{"success":true},"statistics":{"creditsremaining":99},
			"categories":{"error":{"items":{"alt_missing":{"id":"alt_missing","description":"Missing alternative text","count":1,"selectors":["img"]}}}}}`))
	}))
	defer server.Close()

	act := &types.TestAct{Which: "wave", ReportType: intPtr(3)}
	data, result, err := NewWAVE(server.URL, "k1", nil).Run(context.Background(), pageWith(`<html></html>`), act, time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 99, data["creditsRemaining"])

	act.Result = result
	std := standardize.Act(act, nil)
	require.Len(t, std.Instances, 1)
	assert.Equal(t, 3, std.Instances[0].OrdinalSeverity)
}

func TestWAVE_Failures(t *testing.T) {
	_, _, err := NewWAVE("", "", nil).Run(context.Background(), pageWith(`<html></html>`), &types.TestAct{Which: "wave"}, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no WAVE API key")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":{"success":false,"error":"invalid key"}}`))
	}))
	defer server.Close()
	_, _, err = NewWAVE(server.URL, "bad", nil).Run(context.Background(), pageWith(`<html></html>`), &types.TestAct{Which: "wave"}, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid key")
}
