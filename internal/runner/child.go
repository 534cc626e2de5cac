package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/jonathan/a11y-auditor/internal/browser"
	"github.com/jonathan/a11y-auditor/internal/tools"
)

// Child is the sub-execution side. It rebuilds a browser session of its own,
// reaches the parent's page and runs the tool there.
type Child struct {
	Launcher browser.Launcher
	Tools    *tools.Registry
	Log      *zap.Logger
}

// Serve reads one Request from r, executes it and writes the Response to w.
func (c *Child) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return &Error{Message: "failed to read request", Cause: err}
	}
	resp := c.Execute(ctx, req)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		return &Error{Message: "failed to write response", Cause: err}
	}
	return nil
}

// Execute runs the requested tool and never fails; failures are reported in
// the Response.
func (c *Child) Execute(ctx context.Context, req Request) Response {
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}
	if req.Act == nil {
		return Response{Error: "request has no act"}
	}
	tool, ok := c.Tools.Get(req.Act.Which)
	if !ok {
		return Response{Error: fmt.Sprintf("unknown tool %q", req.Act.Which)}
	}
	if req.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.TimeLimit)
		defer cancel()
	}

	page := req.Page
	if page == nil {
		device, ok := browser.LookupDevice(req.DeviceID)
		if !ok {
			device, _ = browser.LookupDevice(browser.DefaultDeviceID)
		}
		session, err := c.Launcher.Launch(ctx, browser.LaunchOptions{
			Engine:      req.BrowserID,
			Device:      device,
			Headless:    true,
			UserDataDir: req.TempDir,
		})
		if err != nil {
			return Response{Error: fmt.Sprintf("browser launch failed: %v", err)}
		}
		defer func() {
			if err := session.Close(); err != nil {
				log.Warn("failed to close sub-execution browser", zap.Error(err))
			}
		}()
		page = session.Page()
		if req.URL != "" {
			if _, err := page.Navigate(ctx, req.URL); err != nil {
				log.Warn("sub-execution navigation failed", zap.String("url", req.URL), zap.Error(err))
				return Response{NavigationError: err.Error()}
			}
		}
	}

	data, result, err := tool.Run(ctx, page, req.Act, req.TimeLimit)
	if err != nil {
		log.Warn("tool failed", zap.String("tool", req.Act.Which), zap.Error(err))
		var navErr *browser.NavigationError
		if errors.As(err, &navErr) {
			return Response{Data: data, NavigationError: err.Error()}
		}
		return Response{Data: data, Error: err.Error()}
	}
	if data == nil {
		data = map[string]any{}
	}
	if result == nil {
		result = map[string]any{}
	}
	return Response{Data: data, Result: result}
}
