// Package tools provides the accessibility tool adapters invoked by test acts.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/a11y-auditor/internal/browser"
	"github.com/jonathan/a11y-auditor/internal/fetch"
	"github.com/jonathan/a11y-auditor/internal/types"
)

// Tool runs one accessibility tool against a page. data carries facts about the
// run itself; result carries the tool's native findings.
type Tool interface {
	Name() string
	Run(ctx context.Context, page browser.Page, act *types.TestAct, timeLimit time.Duration) (data, result map[string]any, err error)
}

// DefaultTimeLimit applies to tools without their own entry.
const DefaultTimeLimit = 20 * time.Second

// timeLimits holds the per-tool defaults for the slower tools.
var timeLimits = map[string]time.Duration{
	"testaro": 150 * time.Second,
	"qualWeb": 60 * time.Second,
	"ibm":     45 * time.Second,
	"wave":    45 * time.Second,
	"aslint":  30 * time.Second,
	"ed11y":   30 * time.Second,
}

// TimeLimit returns the time budget for a test act: the act's own timeLimit
// when set, else the tool default.
func TimeLimit(act *types.TestAct) time.Duration {
	if act.TimeLimit > 0 {
		return time.Duration(act.TimeLimit * float64(time.Second))
	}
	if limit, ok := timeLimits[act.Which]; ok {
		return limit
	}
	return DefaultTimeLimit
}

// Options configures the default tool set.
type Options struct {
	// ScriptDir holds the browser bundles of the injected engines.
	ScriptDir string
	// NuValURL is the validator endpoint; empty uses the public service.
	NuValURL string
	// WAVEURL is the WAVE API endpoint; empty uses the public service.
	WAVEURL string
	// WAVEKey is the WAVE API key.
	WAVEKey string
	// HTTP configures requests to the remote services.
	HTTP *fetch.Options
	Log  *zap.Logger
}

// Registry maps tool names to adapters.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// DefaultRegistry returns every supported tool.
func DefaultRegistry(opts Options) *Registry {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := NewRegistry(
		NewTestaro(log),
		NewNuVal(opts.NuValURL, opts.HTTP),
		NewWAVE(opts.WAVEURL, opts.WAVEKey, opts.HTTP),
	)
	for _, engine := range scriptEngines {
		r.Register(&ScriptTool{engine: engine, dir: opts.ScriptDir})
	}
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// toMap converts a typed native result into its generic JSON object form.
func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return m, nil
}
