package interpreter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/jonathan/a11y-auditor/internal/browser"
	"github.com/jonathan/a11y-auditor/internal/types"
)

// revealExpr unhides every element hidden by display or visibility and
// returns how many it changed.
const revealExpr = `(() => {
  let count = 0;
  for (const el of document.body ? document.body.querySelectorAll('*') : []) {
    const style = window.getComputedStyle(el);
    if (style.display === 'none') { el.style.display = 'initial'; count++; }
    if (style.visibility === 'hidden') { el.style.visibility = 'inherit'; count++; }
  }
  return count;
})()`

func requirePage(s *Session, act types.Act) error {
	if s.Page == nil {
		act.Base().Result = map[string]any{"success": false, "error": "no browser page"}
		return abortf(nil, "%s act needs a launched browser", act.Base().Type)
	}
	return nil
}

func (in *Interpreter) doLaunch(ctx context.Context, s *Session, a *types.LaunchAct) error {
	s.closeBrowser()

	engine := firstNonEmpty(a.BrowserID, s.Job.BrowserID, types.BrowserChromium)
	deviceID := firstNonEmpty(a.DeviceID, s.Job.Device.ID, browser.DefaultDeviceID)
	result := map[string]any{"browserID": engine, "deviceID": deviceID}
	a.Result = result

	device, ok := browser.LookupDevice(deviceID)
	if !ok {
		result["success"] = false
		return abortf(nil, "unknown device %q", deviceID)
	}

	launchCtx, cancel := context.WithTimeout(ctx, launchTimeout)
	session, err := in.cfg.Launcher.Launch(launchCtx, browser.LaunchOptions{
		Engine:   engine,
		Device:   device,
		Headless: in.cfg.Headless,
	})
	cancel()
	if err != nil {
		result["success"] = false
		result["error"] = err.Error()
		return abortf(err, "failed to launch %s", engine)
	}
	s.Browser = session
	s.Page = session.Page()
	s.BrowserID = engine
	s.DeviceID = deviceID
	s.Log.Debug("browser launched", zap.String("engine", engine), zap.String("device", deviceID))

	target := firstNonEmpty(a.URL, s.Job.Target.URL)
	if target == "" {
		result["success"] = true
		return nil
	}
	return in.visit(ctx, s, target, result)
}

func (in *Interpreter) doURL(ctx context.Context, s *Session, a *types.URLAct) error {
	if err := requirePage(s, a); err != nil {
		return err
	}
	a.Result = map[string]any{}
	return in.visit(ctx, s, a.Which, a.Result)
}

// visit navigates the current page and applies the visit policy: failed
// navigations, error statuses and, under strict jobs, redirects abort.
func (in *Interpreter) visit(ctx context.Context, s *Session, target string, result map[string]any) error {
	navCtx, cancel := context.WithTimeout(ctx, navigationTimeout)
	defer cancel()

	result["requested"] = target
	resp, err := s.Page.Navigate(navCtx, target)
	if err != nil {
		result["success"] = false
		result["error"] = err.Error()
		return abortf(err, "failed to visit %s", target)
	}

	final := resp.URL
	if final == "" {
		if final, err = s.Page.URL(navCtx); err != nil {
			final = target
		}
	}
	result["final"] = final
	if resp.Status != 0 {
		result["status"] = resp.Status
	}

	if resp.Status == 429 || resp.Status == 403 {
		s.Report.JobData.VisitRejectionCount++
	}
	if resp.Status >= 400 {
		result["success"] = false
		return abortf(nil, "visit to %s returned status %d", target, resp.Status)
	}
	if s.Job.Strict && deSlash(final) != deSlash(target) {
		result["success"] = false
		return abortf(nil, "visit to %s redirected to %s", target, final)
	}
	result["success"] = true
	return nil
}

func deSlash(u string) string {
	return strings.TrimSuffix(u, "/")
}

func (in *Interpreter) doWait(ctx context.Context, s *Session, a *types.WaitAct) error {
	if err := requirePage(s, a); err != nil {
		return err
	}
	timeout := defaultWaitTimeout
	if a.Timeout > 0 {
		timeout = time.Duration(a.Timeout * float64(time.Second))
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	found := false
	for {
		text, err := waitTarget(waitCtx, s.Page, a.In)
		if err == nil && strings.Contains(text, a.Which) {
			found = true
			break
		}
		if sleep(waitCtx, pollInterval) != nil {
			break
		}
	}
	a.Result = map[string]any{"found": found, "in": a.In, "which": a.Which}
	if !found && a.Fatal {
		return abortf(nil, "text %q did not appear in the page %s within %s", a.Which, a.In, timeout)
	}
	return nil
}

// waitTarget reads the part of the page a wait act watches.
func waitTarget(ctx context.Context, page browser.Page, in string) (string, error) {
	switch in {
	case "url":
		return page.URL(ctx)
	case "title":
		return page.Title(ctx)
	case "body":
		content, err := page.Content(ctx)
		if err != nil {
			return "", err
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
		if err != nil {
			return "", err
		}
		return doc.Find("body").Text(), nil
	}
	return "", fmt.Errorf("cannot wait in %q", in)
}

func (in *Interpreter) doState(ctx context.Context, s *Session, a *types.StateAct) error {
	if err := requirePage(s, a); err != nil {
		return err
	}
	state, ok := browser.StateNames[a.Which]
	if !ok {
		a.Result = map[string]any{"success": false}
		return abortf(nil, "unknown load state %q", a.Which)
	}
	stateCtx, cancel := context.WithTimeout(ctx, stateTimeout)
	defer cancel()
	if err := s.Page.WaitForLoadState(stateCtx, state); err != nil {
		a.Result = map[string]any{"success": false, "error": err.Error()}
		return abortf(err, "page did not reach state %q", a.Which)
	}
	a.Result = map[string]any{"success": true, "state": a.Which}
	return nil
}

func (in *Interpreter) doPage(ctx context.Context, s *Session, a *types.PageAct) error {
	if s.Browser == nil {
		return requirePage(s, a)
	}
	pageCtx, cancel := context.WithTimeout(ctx, pageTimeout)
	defer cancel()
	page, err := s.Browser.NewestPage(pageCtx, a.Which)
	if err != nil {
		a.Result = map[string]any{"success": false, "error": err.Error()}
		return abortf(err, "no new page appeared")
	}
	s.Page = page
	url, _ := page.URL(ctx)
	a.Result = map[string]any{"success": true, "url": url}
	return nil
}

// doReveal is best effort; a page that refuses the script keeps running.
func (in *Interpreter) doReveal(ctx context.Context, s *Session, a *types.RevealAct) error {
	if err := requirePage(s, a); err != nil {
		return err
	}
	var count int
	if err := s.Page.Evaluate(ctx, revealExpr, &count); err != nil {
		s.Log.Warn("reveal failed", zap.Error(err))
		a.Result = map[string]any{"success": false, "error": err.Error()}
		return nil
	}
	a.Result = map[string]any{"success": true, "revealed": count}
	return nil
}

func (in *Interpreter) doPress(ctx context.Context, s *Session, a *types.PressAct) error {
	if err := requirePage(s, a); err != nil {
		return err
	}
	times := 1 + a.Again
	for i := 0; i < times; i++ {
		if err := s.Page.Press(ctx, a.Which); err != nil {
			a.Result = map[string]any{"success": false, "presses": i, "error": err.Error()}
			return abortf(err, "failed to press %s", a.Which)
		}
	}
	a.Result = map[string]any{"success": true, "presses": times}
	return nil
}

func (in *Interpreter) doPresses(ctx context.Context, s *Session, a *types.PressesAct) error {
	if err := requirePage(s, a); err != nil {
		return err
	}
	for i, key := range a.Which {
		if err := s.Page.Press(ctx, key); err != nil {
			a.Result = map[string]any{"success": false, "presses": i, "error": err.Error()}
			return abortf(err, "failed to press %s", key)
		}
	}
	a.Result = map[string]any{"success": true, "presses": len(a.Which)}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
