// Package browser defines the browser capability the engine drives and the drivers that provide it.
package browser

import (
	"context"
	"time"
)

// LoadState is a page lifecycle milestone.
type LoadState string

const (
	// LoadStateLoaded is reached when the DOM is parsed (DOMContentLoaded)
	LoadStateLoaded LoadState = "domcontentloaded"
	// LoadStateComplete is reached when the load event fired
	LoadStateComplete LoadState = "load"
	// LoadStateIdle is reached when the page is complete and resource loading went quiet
	LoadStateIdle LoadState = "networkidle"
)

// StateNames maps the state names used in acts to load states.
var StateNames = map[string]LoadState{
	"loaded": LoadStateLoaded,
	"idle":   LoadStateIdle,
}

// LaunchOptions configures a new browser session.
type LaunchOptions struct {
	Engine      string
	Device      Device
	Headless    bool
	UserDataDir string
}

// Launcher starts browser sessions.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Session, error)
}

// Session is one running browser owned by a single job.
type Session interface {
	// Page returns the current page.
	Page() Page
	// NewestPage waits for a page opened after the current one (optionally whose URL
	// contains urlPart), makes it current and returns it.
	NewestPage(ctx context.Context, urlPart string) (Page, error)
	// ConsoleStats returns the console telemetry collected so far.
	ConsoleStats() ConsoleStats
	// Close terminates the browser and its processes.
	Close() error
}

// Response is the main-frame response of a navigation.
type Response struct {
	// Status is 0 when the driver cannot observe it.
	Status int
	URL    string
}

// Page is a browser tab.
type Page interface {
	Navigate(ctx context.Context, url string) (*Response, error)
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Content(ctx context.Context) (string, error)
	// Evaluate runs a JavaScript expression (promises are awaited) and decodes
	// its JSON value into out. out may be nil.
	Evaluate(ctx context.Context, expression string, out any) error
	Locate(ctx context.Context, selector string) ([]Element, error)
	LocateXPath(ctx context.Context, xpath string) ([]Element, error)
	Press(ctx context.Context, key string) error
	InsertText(ctx context.Context, text string) error
	WaitForLoadState(ctx context.Context, state LoadState) error
	Reload(ctx context.Context) error
}

// Element is a live DOM element handle.
type Element interface {
	// Call invokes a JavaScript function declaration with this bound to the
	// element and decodes its JSON result into out (which may be nil).
	Call(ctx context.Context, function string, out any, args ...any) error
}

// ConsoleStats counts browser console output.
type ConsoleStats struct {
	LogCount      int `json:"logCount"`
	LogSize       int `json:"logSize"`
	ErrorLogCount int `json:"errorLogCount"`
	ErrorLogSize  int `json:"errorLogSize"`
}

const (
	readyPollInterval = 100 * time.Millisecond
	idleQuietPeriod   = 500 * time.Millisecond
)

// contentExpr serializes the document including its doctype.
const contentExpr = `(document.doctype ? new XMLSerializer().serializeToString(document.doctype) : '') + document.documentElement.outerHTML`

// readyStateExpr reports document.readyState and the number of loaded resources.
const readyStateExpr = `({state: document.readyState, resources: performance.getEntriesByType('resource').length})`

// WaitForReadyState polls a page until it reaches state. Drivers use it to implement
// Page.WaitForLoadState.
func WaitForReadyState(ctx context.Context, page Page, state LoadState) error {
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	lastResources := -1
	var quietSince time.Time
	for {
		var ready struct {
			State     string `json:"state"`
			Resources int    `json:"resources"`
		}
		if err := page.Evaluate(ctx, readyStateExpr, &ready); err != nil {
			return err
		}

		switch state {
		case LoadStateLoaded:
			if ready.State == "interactive" || ready.State == "complete" {
				return nil
			}
		case LoadStateComplete:
			if ready.State == "complete" {
				return nil
			}
		case LoadStateIdle:
			if ready.State == "complete" {
				if ready.Resources != lastResources {
					lastResources = ready.Resources
					quietSince = time.Now()
				} else if time.Since(quietSince) >= idleQuietPeriod {
					return nil
				}
			}
		default:
			return &Error{Message: "unknown load state " + string(state)}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
