package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/jonathan/a11y-auditor/internal/types"
)

var rodKeys = map[string]input.Key{
	KeyEnter:      input.Enter,
	KeyTab:        input.Tab,
	KeyEscape:     input.Escape,
	KeySpace:      input.Space,
	KeyBackspace:  input.Backspace,
	KeyDelete:     input.Delete,
	KeyArrowUp:    input.ArrowUp,
	KeyArrowDown:  input.ArrowDown,
	KeyArrowLeft:  input.ArrowLeft,
	KeyArrowRight: input.ArrowRight,
	KeyHome:       input.Home,
	KeyEnd:        input.End,
	KeyPageUp:     input.PageUp,
	KeyPageDown:   input.PageDown,
}

// navigationStatusExpr reads the main document's HTTP status from the Navigation Timing API.
const navigationStatusExpr = `() => {
	const nav = performance.getEntriesByType('navigation')[0];
	return nav && nav.responseStatus ? nav.responseStatus : 0;
}`

// RodLauncher starts Chromium through go-rod.
type RodLauncher struct {
	// Bin overrides the browser binary; empty lets rod find or download one.
	Bin string
}

// NewRodLauncher creates a rod launcher.
func NewRodLauncher(bin string) *RodLauncher {
	return &RodLauncher{Bin: bin}
}

// Launch starts a browser and opens a page with the device emulated.
func (l *RodLauncher) Launch(ctx context.Context, opts LaunchOptions) (Session, error) {
	if opts.Engine != "" && opts.Engine != types.BrowserChromium {
		return nil, &LaunchError{Engine: opts.Engine, Message: "engine not supported by the rod driver"}
	}

	// Not bound to ctx: the launcher kills the browser when its context ends.
	lch := launcher.New().
		Headless(opts.Headless).
		NoSandbox(true).
		Set(flags.Flag("disable-gpu")).
		Set(flags.Flag("disable-dev-shm-usage"))
	if l.Bin != "" {
		lch = lch.Bin(l.Bin)
	}
	if opts.UserDataDir != "" {
		lch = lch.UserDataDir(opts.UserDataDir)
	}

	type launched struct {
		url string
		err error
	}
	started := make(chan launched, 1)
	go func() {
		u, err := lch.Launch()
		started <- launched{u, err}
	}()
	var controlURL string
	select {
	case res := <-started:
		if res.err != nil {
			return nil, &LaunchError{Engine: types.BrowserChromium, Message: "failed to start browser", Cause: res.err}
		}
		controlURL = res.url
	case <-ctx.Done():
		lch.Kill()
		return nil, &LaunchError{Engine: types.BrowserChromium, Message: "launch timed out", Cause: ctx.Err()}
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		lch.Kill()
		return nil, &LaunchError{Engine: types.BrowserChromium, Message: "failed to connect", Cause: err}
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		lch.Kill()
		return nil, &LaunchError{Engine: types.BrowserChromium, Message: "failed to open page", Cause: err}
	}

	s := &rodSession{
		launcher: lch,
		browser:  b,
		device:   opts.Device,
		known:    map[proto.TargetTargetID]bool{page.TargetID: true},
	}
	if err := s.emulate(page); err != nil {
		s.Close()
		return nil, &LaunchError{Engine: types.BrowserChromium, Message: "failed to emulate device", Cause: err}
	}
	s.page = s.attach(page)
	return s, nil
}

type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	device   Device

	mu      sync.Mutex
	page    *rodPage
	known   map[proto.TargetTargetID]bool
	console consoleCounter
}

func (s *rodSession) emulate(page *rod.Page) error {
	if s.device.Width > 0 {
		scale := s.device.Scale
		if scale == 0 {
			scale = 1
		}
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             s.device.Width,
			Height:            s.device.Height,
			DeviceScaleFactor: scale,
			Mobile:            s.device.Mobile,
		})
		if err != nil {
			return err
		}
	}
	if s.device.UserAgent != "" {
		return page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: s.device.UserAgent})
	}
	return nil
}

func (s *rodSession) attach(page *rod.Page) *rodPage {
	go page.EachEvent(
		func(e *proto.RuntimeConsoleAPICalled) {
			size := 0
			for _, arg := range e.Args {
				size += len(arg.Description) + len(fmt.Sprint(arg.Value.Val()))
			}
			s.console.add(size, e.Type == proto.RuntimeConsoleAPICalledTypeError)
		},
		func(e *proto.RuntimeExceptionThrown) {
			size := 0
			if e.ExceptionDetails != nil {
				size = len(e.ExceptionDetails.Text)
			}
			s.console.add(size, true)
		},
	)()
	return &rodPage{page: page}
}

func (s *rodSession) Page() Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

func (s *rodSession) NewestPage(ctx context.Context, urlPart string) (Page, error) {
	ticker := time.NewTicker(newPagePollInterval)
	defer ticker.Stop()

	for {
		pages, err := s.browser.Pages()
		if err != nil {
			return nil, &Error{Message: "failed to list pages", Cause: err}
		}
		for i := len(pages) - 1; i >= 0; i-- {
			candidate := pages[i]
			s.mu.Lock()
			seen := s.known[candidate.TargetID]
			s.mu.Unlock()
			if seen {
				continue
			}
			if urlPart != "" {
				info, err := candidate.Info()
				if err != nil || !strings.Contains(info.URL, urlPart) {
					continue
				}
			}
			if err := s.emulate(candidate); err != nil {
				return nil, &Error{Message: "failed to emulate device on new page", Cause: err}
			}
			page := s.attach(candidate)
			s.mu.Lock()
			s.known[candidate.TargetID] = true
			s.page = page
			s.mu.Unlock()
			return page, nil
		}

		select {
		case <-ctx.Done():
			return nil, &Error{Message: "no new page appeared", Cause: ctx.Err()}
		case <-ticker.C:
		}
	}
}

func (s *rodSession) ConsoleStats() ConsoleStats {
	return s.console.stats()
}

func (s *rodSession) Close() error {
	err := s.browser.Close()
	s.launcher.Kill()
	s.launcher.Cleanup()
	if err != nil {
		return &Error{Message: "failed to close browser", Cause: err}
	}
	return nil
}

type rodPage struct {
	page *rod.Page
}

func (p *rodPage) Navigate(ctx context.Context, url string) (*Response, error) {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return nil, &NavigationError{URL: url, Message: "navigation failed", Cause: err}
	}
	if err := page.WaitLoad(); err != nil {
		return nil, &NavigationError{URL: url, Message: "page did not load", Cause: err}
	}
	info, err := page.Info()
	if err != nil {
		return nil, &NavigationError{URL: url, Message: "failed to read page info", Cause: err}
	}
	status := 0
	if res, err := page.Eval(navigationStatusExpr); err == nil {
		status = res.Value.Int()
	}
	return &Response{Status: status, URL: info.URL}, nil
}

func (p *rodPage) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *rodPage) Title(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (p *rodPage) Content(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval("() => (" + contentExpr + ")")
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (p *rodPage) Evaluate(ctx context.Context, expression string, out any) error {
	res, err := p.page.Context(ctx).Eval(fmt.Sprintf("() => (%s)", expression))
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func wrapRodElements(els rod.Elements) []Element {
	elements := make([]Element, 0, len(els))
	for _, el := range els {
		elements = append(elements, &rodElement{el: el})
	}
	return elements
}

func (p *rodPage) Locate(ctx context.Context, selector string) ([]Element, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapRodElements(els), nil
}

func (p *rodPage) LocateXPath(ctx context.Context, xpath string) ([]Element, error) {
	els, err := p.page.Context(ctx).ElementsX(xpath)
	if err != nil {
		return nil, err
	}
	return wrapRodElements(els), nil
}

func (p *rodPage) Press(ctx context.Context, key string) error {
	k, ok := rodKeys[key]
	if !ok {
		r := []rune(key)
		if len(r) != 1 {
			return &Error{Message: fmt.Sprintf("unknown key %q", key)}
		}
		k = input.Key(r[0])
	}
	return p.page.Context(ctx).Keyboard.Press(k)
}

func (p *rodPage) InsertText(ctx context.Context, text string) error {
	return p.page.Context(ctx).InsertText(text)
}

func (p *rodPage) WaitForLoadState(ctx context.Context, state LoadState) error {
	return WaitForReadyState(ctx, p, state)
}

func (p *rodPage) Reload(ctx context.Context) error {
	return p.page.Context(ctx).Reload()
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Call(ctx context.Context, function string, out any, args ...any) error {
	declaration, err := WrapFunction(function, args...)
	if err != nil {
		return err
	}
	res, err := e.el.Context(ctx).Eval(declaration)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
