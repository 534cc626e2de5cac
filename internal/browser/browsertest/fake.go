// Package browsertest provides an in-memory browser backed by goquery for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/jonathan/a11y-auditor/internal/browser"
	"github.com/jonathan/a11y-auditor/internal/excerpt"
	"github.com/jonathan/a11y-auditor/internal/types"
)

// Route is a canned response for a navigation.
type Route struct {
	Status   int
	FinalURL string
	HTML     string
	Err      error
}

// Launcher hands out sessions over a shared Page.
type Launcher struct {
	mu       sync.Mutex
	Page     *Page
	Err      error
	Launches []browser.LaunchOptions
	Sessions []*Session
}

// NewLauncher creates a launcher whose sessions serve routes.
func NewLauncher(routes map[string]Route) *Launcher {
	return &Launcher{Page: NewPage(routes)}
}

func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Launches = append(l.Launches, opts)
	if l.Err != nil {
		return nil, l.Err
	}
	if opts.Engine != "" && opts.Engine != types.BrowserChromium {
		return nil, &browser.LaunchError{Engine: opts.Engine, Message: "engine not supported"}
	}
	s := &Session{page: l.Page}
	l.Sessions = append(l.Sessions, s)
	return s, nil
}

// Session is a fake browser session.
type Session struct {
	mu       sync.Mutex
	page     *Page
	Pending  []*Page
	Console  browser.ConsoleStats
	Closed   bool
	CloseErr error
}

func (s *Session) Page() browser.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

func (s *Session) NewestPage(ctx context.Context, urlPart string) (browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.Pending) - 1; i >= 0; i-- {
		p := s.Pending[i]
		if urlPart == "" || strings.Contains(p.CurrentURL, urlPart) {
			s.Pending = append(s.Pending[:i], s.Pending[i+1:]...)
			s.page = p
			return p, nil
		}
	}
	return nil, &browser.Error{Message: "no new page appeared", Cause: context.DeadlineExceeded}
}

func (s *Session) ConsoleStats() browser.ConsoleStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Console
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return s.CloseErr
}

// Page is a fake tab whose DOM is a goquery document.
type Page struct {
	mu          sync.Mutex
	Routes      map[string]Route
	CurrentURL  string
	Doc         *goquery.Document
	Boxes       map[string]types.Box
	Navigations []string
	Pressed     []string
	Inserted    []string
	Clicked     []string
	Focused     []string
	Reloads     int
	Locates     int
	LoadErr     error

	// EvaluateFunc answers Evaluate; nil makes Evaluate fail.
	EvaluateFunc func(ctx context.Context, expression string) (any, error)
	// OnClick runs after an element is clicked.
	OnClick func(p *Page, xpath string)
}

// NewPage creates a blank page serving routes.
func NewPage(routes map[string]Route) *Page {
	p := &Page{Routes: routes, Boxes: make(map[string]types.Box)}
	p.SetHTML("<html><head></head><body></body></html>")
	return p
}

// SetHTML replaces the page DOM.
func (p *Page) SetHTML(src string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		panic(fmt.Sprintf("browsertest: bad html: %v", err))
	}
	p.Doc = doc
}

func (p *Page) Navigate(ctx context.Context, url string) (*browser.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Navigations = append(p.Navigations, url)
	route, ok := p.Routes[url]
	if !ok {
		return nil, &browser.NavigationError{URL: url, Message: "net::ERR_NAME_NOT_RESOLVED"}
	}
	if route.Err != nil {
		return nil, route.Err
	}
	final := route.FinalURL
	if final == "" {
		final = url
	}
	p.CurrentURL = final
	p.SetHTML(route.HTML)
	status := route.Status
	if status == 0 {
		status = 200
	}
	return &browser.Response{Status: status, URL: final}, nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CurrentURL, nil
}

func (p *Page) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.TrimSpace(p.Doc.Find("title").First().Text()), nil
}

func (p *Page) Content(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Doc.Html()
}

func (p *Page) Evaluate(ctx context.Context, expression string, out any) error {
	if p.EvaluateFunc == nil {
		return &browser.ScriptError{Message: "evaluation not supported"}
	}
	v, err := p.EvaluateFunc(ctx, expression)
	if err != nil {
		return err
	}
	return decode(v, out)
}

func (p *Page) wrap(sel *goquery.Selection) []browser.Element {
	elements := make([]browser.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		elements = append(elements, &Element{page: p, sel: s})
	})
	return elements
}

func (p *Page) Locate(ctx context.Context, selector string) ([]browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Locates++
	// goquery matches nothing on a bad selector where a browser throws
	if _, err := cascadia.Compile(selector); err != nil {
		return nil, &browser.ScriptError{Message: fmt.Sprintf("invalid selector %q: %v", selector, err)}
	}
	return p.wrap(p.Doc.Find(selector)), nil
}

func (p *Page) LocateXPath(ctx context.Context, xpath string) ([]browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Locates++
	return p.wrap(excerpt.ResolveXPath(p.Doc, xpath)), nil
}

func (p *Page) Press(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Pressed = append(p.Pressed, key)
	return nil
}

func (p *Page) InsertText(ctx context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Inserted = append(p.Inserted, text)
	return nil
}

func (p *Page) WaitForLoadState(ctx context.Context, state browser.LoadState) error {
	return p.LoadErr
}

func (p *Page) Reload(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Reloads++
	return nil
}

// Element is a fake element that understands the browser package's element functions.
type Element struct {
	page *Page
	sel  *goquery.Selection
}

func (e *Element) Call(ctx context.Context, function string, out any, args ...any) error {
	path := excerpt.XPath(e.sel)
	var result any
	switch function {
	case browser.TagNameFunc:
		result = strings.ToUpper(goquery.NodeName(e.sel))
	case browser.XPathFunc:
		result = path
	case browser.BoxFunc:
		e.page.mu.Lock()
		result = e.page.Boxes[path]
		e.page.mu.Unlock()
	case browser.TextFunc:
		parts := []string{e.sel.Text()}
		for _, attr := range []string{"aria-label", "title", "placeholder", "alt", "value"} {
			if v, ok := e.sel.Attr(attr); ok {
				parts = append(parts, v)
			}
		}
		result = strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
	case browser.ClickFunc:
		e.page.mu.Lock()
		e.page.Clicked = append(e.page.Clicked, path)
		onClick := e.page.OnClick
		e.page.mu.Unlock()
		if onClick != nil {
			onClick(e.page, path)
		}
		result = true
	case browser.FocusFunc:
		e.page.mu.Lock()
		e.page.Focused = append(e.page.Focused, path)
		e.page.mu.Unlock()
		result = true
	case browser.SelectFunc:
		want := ""
		if len(args) > 0 {
			want, _ = args[0].(string)
		}
		var chosen any
		e.sel.Find("option").EachWithBreak(func(_ int, o *goquery.Selection) bool {
			text := strings.TrimSpace(o.Text())
			if strings.Contains(strings.ToLower(text), strings.ToLower(want)) {
				chosen = text
				return false
			}
			return true
		})
		result = chosen
	default:
		return &browser.ScriptError{Message: "function not supported by fake element"}
	}
	return decode(result, out)
}

func decode(v any, out any) error {
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
