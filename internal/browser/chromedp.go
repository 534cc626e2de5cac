package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/device"
	"github.com/chromedp/chromedp/kb"

	"github.com/jonathan/a11y-auditor/internal/types"
)

const newPagePollInterval = 200 * time.Millisecond

var chromedpKeys = map[string]string{
	KeyEnter:      kb.Enter,
	KeyTab:        kb.Tab,
	KeyEscape:     kb.Escape,
	KeySpace:      " ",
	KeyBackspace:  kb.Backspace,
	KeyDelete:     kb.Delete,
	KeyArrowUp:    kb.ArrowUp,
	KeyArrowDown:  kb.ArrowDown,
	KeyArrowLeft:  kb.ArrowLeft,
	KeyArrowRight: kb.ArrowRight,
	KeyHome:       kb.Home,
	KeyEnd:        kb.End,
	KeyPageUp:     kb.PageUp,
	KeyPageDown:   kb.PageDown,
}

// ChromedpLauncher starts Chromium through the DevTools protocol using chromedp.
type ChromedpLauncher struct {
	// ExecPath overrides the Chrome binary; empty means auto-detect.
	ExecPath string
}

// NewChromedpLauncher creates a chromedp launcher.
func NewChromedpLauncher(execPath string) *ChromedpLauncher {
	return &ChromedpLauncher{ExecPath: execPath}
}

// Launch starts a browser and opens its first page with the device emulated.
func (l *ChromedpLauncher) Launch(ctx context.Context, opts LaunchOptions) (Session, error) {
	if opts.Engine != "" && opts.Engine != types.BrowserChromium {
		return nil, &LaunchError{Engine: opts.Engine, Message: "engine not supported by the chromedp driver"}
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.UserDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.UserDataDir))
	}
	if l.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.ExecPath))
	}

	// The browser outlives the launch context, so it hangs off Background.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &chromedpSession{
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		cancels:     []context.CancelFunc{browserCancel},
		known:       make(map[target.ID]bool),
	}
	s.page = s.attach(browserCtx)

	started := make(chan error, 1)
	go func() {
		started <- chromedp.Run(browserCtx, chromedp.Emulate(chromedpDevice{opts.Device}))
	}()
	select {
	case err := <-started:
		if err != nil {
			s.Close()
			return nil, &LaunchError{Engine: types.BrowserChromium, Message: "failed to start browser", Cause: err}
		}
	case <-ctx.Done():
		s.Close()
		return nil, &LaunchError{Engine: types.BrowserChromium, Message: "launch timed out", Cause: ctx.Err()}
	}

	if err := s.rememberTargets(); err != nil {
		s.Close()
		return nil, &LaunchError{Engine: types.BrowserChromium, Message: "failed to list targets", Cause: err}
	}
	return s, nil
}

type chromedpDevice struct {
	d Device
}

func (c chromedpDevice) Device() device.Info {
	scale := c.d.Scale
	if scale == 0 {
		scale = 1
	}
	return device.Info{
		Name:      c.d.ID,
		UserAgent: c.d.UserAgent,
		Width:     int64(c.d.Width),
		Height:    int64(c.d.Height),
		Scale:     scale,
		Mobile:    c.d.Mobile,
		Touch:     c.d.Touch,
	}
}

type chromedpSession struct {
	allocCancel context.CancelFunc
	browserCtx  context.Context

	mu      sync.Mutex
	cancels []context.CancelFunc
	page    *chromedpPage
	known   map[target.ID]bool
	console consoleCounter
}

func (s *chromedpSession) attach(tabCtx context.Context) *chromedpPage {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			size := 0
			for _, arg := range e.Args {
				size += len(arg.Value) + len(arg.Description)
			}
			s.console.add(size, e.Type == runtime.APITypeError)
		case *runtime.EventExceptionThrown:
			size := 0
			if e.ExceptionDetails != nil {
				size = len(e.ExceptionDetails.Text)
			}
			s.console.add(size, true)
		}
	})
	return &chromedpPage{ctx: tabCtx}
}

func (s *chromedpSession) rememberTargets() error {
	infos, err := chromedp.Targets(s.browserCtx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, info := range infos {
		s.known[info.TargetID] = true
	}
	return nil
}

func (s *chromedpSession) Page() Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

func (s *chromedpSession) NewestPage(ctx context.Context, urlPart string) (Page, error) {
	ticker := time.NewTicker(newPagePollInterval)
	defer ticker.Stop()

	for {
		infos, err := chromedp.Targets(s.browserCtx)
		if err != nil {
			return nil, &Error{Message: "failed to list pages", Cause: err}
		}
		if info := s.pickNewTarget(infos, urlPart); info != nil {
			tabCtx, cancel := chromedp.NewContext(s.browserCtx, chromedp.WithTargetID(info.TargetID))
			if err := chromedp.Run(tabCtx); err != nil {
				cancel()
				return nil, &Error{Message: "failed to attach to new page", Cause: err}
			}
			page := s.attach(tabCtx)
			s.mu.Lock()
			s.cancels = append(s.cancels, cancel)
			s.known[info.TargetID] = true
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

func (s *chromedpSession) pickNewTarget(infos []*target.Info, urlPart string) *target.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(infos) - 1; i >= 0; i-- {
		info := infos[i]
		if info.Type != "page" || s.known[info.TargetID] {
			continue
		}
		if urlPart == "" || strings.Contains(info.URL, urlPart) {
			return info
		}
	}
	return nil
}

func (s *chromedpSession) ConsoleStats() ConsoleStats {
	return s.console.stats()
}

func (s *chromedpSession) Close() error {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	var err error
	if len(cancels) > 0 {
		err = chromedp.Cancel(s.browserCtx)
	}
	for i := len(cancels) - 1; i >= 0; i-- {
		cancels[i]()
	}
	s.allocCancel()
	if err != nil && err != context.Canceled {
		return &Error{Message: "failed to close browser", Cause: err}
	}
	return nil
}

type chromedpPage struct {
	ctx context.Context
}

// runContext derives a context on the tab that is also cancelled by ctx.
func (p *chromedpPage) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(p.ctx)
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		stop := context.AfterFunc(ctx, cancel)
		return runCtx, func() {
			stop()
			cancelDeadline()
			cancel()
		}
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := p.runContext(ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) (*Response, error) {
	runCtx, cancel := p.runContext(ctx)
	defer cancel()

	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(url))
	if err != nil {
		return nil, &NavigationError{URL: url, Message: "navigation failed", Cause: err}
	}
	if resp == nil {
		current, _ := p.URL(ctx)
		return &Response{URL: current}, nil
	}
	return &Response{Status: int(resp.Status), URL: resp.URL}, nil
}

func (p *chromedpPage) URL(ctx context.Context) (string, error) {
	var url string
	err := p.run(ctx, chromedp.Location(&url))
	return url, err
}

func (p *chromedpPage) Title(ctx context.Context) (string, error) {
	var title string
	err := p.run(ctx, chromedp.Title(&title))
	return title, err
}

func (p *chromedpPage) Content(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.Evaluate(contentExpr, &html))
	return html, err
}

func (p *chromedpPage) Evaluate(ctx context.Context, expression string, out any) error {
	awaitPromise := func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
		return params.WithAwaitPromise(true)
	}
	if out == nil {
		var done bool
		expression = fmt.Sprintf("Promise.resolve(%s).then(() => true)", expression)
		return p.run(ctx, chromedp.Evaluate(expression, &done, awaitPromise))
	}
	return p.run(ctx, chromedp.Evaluate(expression, out, awaitPromise))
}

func (p *chromedpPage) locate(ctx context.Context, query string, by chromedp.QueryOption) ([]Element, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, chromedp.Nodes(query, &nodes, by, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	elements := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		if n.NodeType != cdp.NodeTypeElement {
			continue
		}
		elements = append(elements, &chromedpElement{page: p, node: n})
	}
	return elements, nil
}

func (p *chromedpPage) Locate(ctx context.Context, selector string) ([]Element, error) {
	return p.locate(ctx, selector, chromedp.ByQueryAll)
}

func (p *chromedpPage) LocateXPath(ctx context.Context, xpath string) ([]Element, error) {
	return p.locate(ctx, xpath, chromedp.BySearch)
}

func (p *chromedpPage) Press(ctx context.Context, key string) error {
	code, ok := chromedpKeys[key]
	if !ok {
		code = key
	}
	return p.run(ctx, chromedp.KeyEvent(code))
}

func (p *chromedpPage) InsertText(ctx context.Context, text string) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.InsertText(text).Do(ctx)
	}))
}

func (p *chromedpPage) WaitForLoadState(ctx context.Context, state LoadState) error {
	return WaitForReadyState(ctx, p, state)
}

func (p *chromedpPage) Reload(ctx context.Context) error {
	return p.run(ctx, chromedp.Reload())
}

type chromedpElement struct {
	page *chromedpPage
	node *cdp.Node
}

func (e *chromedpElement) Call(ctx context.Context, function string, out any, args ...any) error {
	declaration, err := WrapFunction(function, args...)
	if err != nil {
		return err
	}
	return e.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(e.node.NodeID).Do(ctx)
		if err != nil {
			return &Error{Message: "failed to resolve element", Cause: err}
		}
		res, exc, err := runtime.CallFunctionOn(declaration).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			WithAwaitPromise(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			msg := exc.Text
			if exc.Exception != nil && exc.Exception.Description != "" {
				msg = exc.Exception.Description
			}
			return &ScriptError{Message: msg}
		}
		if out == nil || res == nil || len(res.Value) == 0 {
			return nil
		}
		return json.Unmarshal([]byte(res.Value), out)
	}))
}

type consoleCounter struct {
	mu sync.Mutex
	s  ConsoleStats
}

func (c *consoleCounter) add(size int, isError bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.LogCount++
	c.s.LogSize += size
	if isError {
		c.s.ErrorLogCount++
		c.s.ErrorLogSize += size
	}
}

func (c *consoleCounter) stats() ConsoleStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
