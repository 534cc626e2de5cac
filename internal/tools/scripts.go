package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonathan/a11y-auditor/internal/browser"
	"github.com/jonathan/a11y-auditor/internal/types"
)

// scriptEngine is a tool shipped as a browser bundle. The bundle is injected
// into the page, then the adapter expression runs the engine and resolves to
// the engine's native result shape.
type scriptEngine struct {
	name   string
	bundle string
	global string
	script func(act *types.TestAct) string
}

// jsValue renders v as a JavaScript literal.
func jsValue(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(raw)
}

// rulesOrNull renders the act's rule list, or null when it names none.
func rulesOrNull(act *types.TestAct) string {
	if len(act.Rules) == 0 {
		return "null"
	}
	return jsValue(act.Rules)
}

var scriptEngines = []scriptEngine{
	{
		name:   "alfa",
		bundle: "alfa.js",
		global: "alfaAudit",
		script: func(act *types.TestAct) string {
			return fmt.Sprintf(`window.alfaAudit(document, %s).then(items => ({
  items: items.map(i => ({
    verdict: i.verdict,
    rule: {ruleID: i.rule.id, ruleSummary: i.rule.summary},
    target: {tagName: i.target.tagName || '', path: i.target.path || '', codeLines: i.target.codeLines || []}
  }))
}))`, rulesOrNull(act))
		},
	},
	{
		name:   "aslint",
		bundle: "aslint.bundle.js",
		global: "aslint",
		script: func(act *types.TestAct) string {
			return fmt.Sprintf(`aslint.config({rules: %s}).run().then(report => ({
  rules: Object.fromEntries(Object.entries(report.rules).map(([id, r]) => [id, {
    issueType: r.issueType,
    description: r.description || '',
    results: (r.results || []).map(x => ({
      selector: (x.element && x.element.selector) || '',
      html: (x.element && x.element.html) || '',
      message: x.message || ''
    }))
  }]))
}))`, rulesOrNull(act))
		},
	},
	{
		name:   "axe",
		bundle: "axe.min.js",
		global: "axe",
		script: func(act *types.TestAct) string {
			options := map[string]any{"resultTypes": []string{"violations", "incomplete"}}
			if len(act.Rules) > 0 {
				options["runOnly"] = map[string]any{"type": "rule", "values": act.Rules}
			}
			detail := 2
			if act.DetailLevel != nil {
				detail = *act.DetailLevel
			}
			return fmt.Sprintf(`axe.run(document, %s).then(r => {
  const pick = v => ({
    id: v.id, impact: v.impact || '', help: v.help || '', description: v.description || '',
    nodes: v.nodes.map(n => ({target: n.target.map(String), html: n.html, impact: n.impact || ''}))
  });
  return {details: {
    violations: r.violations.map(pick),
    incomplete: %d >= 2 ? r.incomplete.map(pick) : []
  }};
})`, jsValue(options), detail)
		},
	},
	{
		name:   "ed11y",
		bundle: "editoria11y.min.js",
		global: "Ed11y",
		script: func(*types.TestAct) string {
			return `new Promise(resolve => {
  document.addEventListener('ed11yResults', () => resolve({
    results: Ed11y.results.map(r => {
      const el = r.element;
      const b = el.getBoundingClientRect();
      return {
        test: r.test, type: r.dismissalKey ? 'warning' : 'error', content: r.content || '',
        tagName: el.tagName, id: el.id || '',
        box: {x: Math.round(b.x), y: Math.round(b.y), width: Math.round(b.width), height: Math.round(b.height)},
        excerpt: el.outerHTML.slice(0, 400)
      };
    })
  }), {once: true});
  new Ed11y({alertMode: 'headless'});
})`
		},
	},
	{
		name:   "htmlcs",
		bundle: "HTMLCS.js",
		global: "HTMLCS",
		script: func(act *types.TestAct) string {
			standard := act.Standard
			if standard == "" {
				standard = "WCAG2AA"
			}
			return fmt.Sprintf(`new Promise(resolve => HTMLCS.process(%s, document, () => resolve({
  messages: HTMLCS.getMessages().map(m => [
    ['', 'error', 'warning', 'notice'][m.type],
    m.code,
    m.element.tagName ? m.element.tagName.toLowerCase() : '',
    m.element.id || '',
    m.msg.replace(/\|/g, '/'),
    (m.element.outerHTML || '').slice(0, 400)
  ].join('|'))
})))`, jsValue(standard))
		},
	},
	{
		name:   "ibm",
		bundle: "ace.js",
		global: "ace",
		script: func(act *types.TestAct) string {
			return fmt.Sprintf(`new ace.Checker().check(document, ['IBM_Accessibility']).then(report => {
  const level = v => v[1] === 'MANUAL' ? 'manual' : (v[1] === 'POTENTIAL' ? 'potential' : '') + v[0].toLowerCase();
  const withItems = %t;
  return {items: report.results.filter(r => r.value[1] !== 'PASS').map(r => ({
    ruleId: r.ruleId, level: level(r.value), message: r.message,
    path: withItems ? {dom: r.path.dom} : {dom: ''},
    snippet: withItems ? r.snippet : ''
  }))};
})`, act.Items())
		},
	},
	{
		name:   "qualWeb",
		bundle: "qw-page.js",
		global: "qwEvaluate",
		script: func(act *types.TestAct) string {
			modules := act.Modules
			if len(modules) == 0 {
				modules = []string{"act-rules", "wcag-techniques", "best-practices"}
			}
			return fmt.Sprintf(`window.qwEvaluate({modules: %s, rules: %s}).then(report => ({modules: report.modules}))`,
				jsValue(modules), rulesOrNull(act))
		},
	},
	{
		name:   "wax",
		bundle: "wax.js",
		global: "runWax",
		script: func(act *types.TestAct) string {
			return fmt.Sprintf(`window.runWax(document.documentElement.outerHTML, %s).then(violations => ({violations}))`,
				rulesOrNull(act))
		},
	},
}

// injectExpr adds source to the page as an inline script element.
func injectExpr(source string) string {
	return fmt.Sprintf(`(() => {
  const s = document.createElement('script');
  s.textContent = %s;
  (document.head || document.documentElement).appendChild(s);
  return true;
})()`, jsValue(source))
}

// ScriptTool runs an injected browser engine.
type ScriptTool struct {
	engine scriptEngine
	dir    string
}

func (t *ScriptTool) Name() string { return t.engine.name }

// BundlePath returns where the engine's bundle is read from.
func (t *ScriptTool) BundlePath() string {
	return filepath.Join(t.dir, t.engine.bundle)
}

func (t *ScriptTool) Run(ctx context.Context, page browser.Page, act *types.TestAct, timeLimit time.Duration) (map[string]any, map[string]any, error) {
	if timeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeLimit)
		defer cancel()
	}

	var loaded bool
	check := fmt.Sprintf("typeof window[%s] !== 'undefined'", jsValue(t.engine.global))
	if err := page.Evaluate(ctx, check, &loaded); err != nil {
		return nil, nil, &Error{Tool: t.Name(), Message: "failed to inspect page", Cause: err}
	}
	injected := false
	if !loaded {
		source, err := os.ReadFile(t.BundlePath())
		if err != nil {
			return nil, nil, &Error{Tool: t.Name(), Message: "engine bundle unavailable", Cause: err}
		}
		if err := page.Evaluate(ctx, injectExpr(string(source)), nil); err != nil {
			return nil, nil, &Error{Tool: t.Name(), Message: "failed to inject engine", Cause: err}
		}
		injected = true
	}

	start := time.Now()
	var result map[string]any
	if err := page.Evaluate(ctx, t.engine.script(act), &result); err != nil {
		return nil, nil, &Error{Tool: t.Name(), Message: "engine run failed", Cause: err}
	}
	data := map[string]any{
		"bundle":    t.engine.bundle,
		"injected":  injected,
		"elapsedMs": time.Since(start).Milliseconds(),
	}
	return data, result, nil
}
