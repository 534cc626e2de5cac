package tools

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/jonathan/a11y-auditor/internal/browser"
	"github.com/jonathan/a11y-auditor/internal/fetch"
	"github.com/jonathan/a11y-auditor/internal/types"
)

// Public service endpoints.
const (
	DefaultNuValURL = "https://validator.w3.org/nu/?out=json"
	DefaultWAVEURL  = "https://wave.webaim.org/api/request"
)

// NuVal posts the page markup to a Nu HTML Checker instance.
type NuVal struct {
	endpoint string
	http     *fetch.Options
}

// NewNuVal creates a validator client. An empty endpoint uses the public service.
func NewNuVal(endpoint string, opts *fetch.Options) *NuVal {
	if endpoint == "" {
		endpoint = DefaultNuValURL
	}
	return &NuVal{endpoint: endpoint, http: opts}
}

func (t *NuVal) Name() string { return "nuVal" }

func (t *NuVal) Run(ctx context.Context, page browser.Page, act *types.TestAct, timeLimit time.Duration) (map[string]any, map[string]any, error) {
	if timeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeLimit)
		defer cancel()
	}
	content, err := page.Content(ctx)
	if err != nil {
		return nil, nil, &Error{Tool: t.Name(), Message: "failed to read page content", Cause: err}
	}
	res, err := fetch.Post(ctx, t.endpoint, "text/html; charset=utf-8", []byte(content), t.http)
	if err != nil {
		return nil, nil, &Error{Tool: t.Name(), Message: "validator request failed", Cause: err}
	}
	var result map[string]any
	if err := fetch.DecodeJSON(res, &result); err != nil {
		return nil, nil, &Error{Tool: t.Name(), Message: "validator response unreadable", Cause: err}
	}
	data := map[string]any{"endpoint": t.endpoint, "bytes": len(content)}
	return data, result, nil
}

// WAVE queries the WAVE API for the page's current URL.
type WAVE struct {
	endpoint string
	key      string
	http     *fetch.Options
}

// NewWAVE creates a WAVE API client. An empty endpoint uses the public service.
func NewWAVE(endpoint, key string, opts *fetch.Options) *WAVE {
	if endpoint == "" {
		endpoint = DefaultWAVEURL
	}
	return &WAVE{endpoint: endpoint, key: key, http: opts}
}

func (t *WAVE) Name() string { return "wave" }

func (t *WAVE) Run(ctx context.Context, page browser.Page, act *types.TestAct, timeLimit time.Duration) (map[string]any, map[string]any, error) {
	if t.key == "" {
		return nil, nil, &Error{Tool: t.Name(), Message: "no WAVE API key configured"}
	}
	if timeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeLimit)
		defer cancel()
	}
	pageURL, err := page.URL(ctx)
	if err != nil {
		return nil, nil, &Error{Tool: t.Name(), Message: "failed to read page URL", Cause: err}
	}
	reportType := 1
	if act.ReportType != nil {
		reportType = *act.ReportType
	}

	endpoint, err := url.Parse(t.endpoint)
	if err != nil {
		return nil, nil, &Error{Tool: t.Name(), Message: "invalid endpoint", Cause: err}
	}
	q := endpoint.Query()
	q.Set("key", t.key)
	q.Set("url", pageURL)
	q.Set("reporttype", strconv.Itoa(reportType))
	endpoint.RawQuery = q.Encode()

	res, err := fetch.URL(ctx, endpoint.String(), t.http)
	if err != nil {
		return nil, nil, &Error{Tool: t.Name(), Message: "API request failed", Cause: err}
	}
	var result map[string]any
	if err := fetch.DecodeJSON(res, &result); err != nil {
		return nil, nil, &Error{Tool: t.Name(), Message: "API response unreadable", Cause: err}
	}
	if status, ok := result["status"].(map[string]any); ok {
		if success, _ := status["success"].(bool); !success {
			msg, _ := status["error"].(string)
			return nil, nil, &Error{Tool: t.Name(), Message: "API refused the request: " + msg}
		}
	}
	data := map[string]any{"reportType": reportType, "url": pageURL}
	if stats, ok := result["statistics"].(map[string]any); ok {
		data["creditsRemaining"] = stats["creditsremaining"]
	}
	return data, result, nil
}
