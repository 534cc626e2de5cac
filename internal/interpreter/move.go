package interpreter

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/a11y-auditor/internal/browser"
	"github.com/jonathan/a11y-auditor/internal/types"
)

// elementFamilies are the selectors of the elements each movement act may target.
var elementFamilies = map[types.ActType]string{
	types.ActButton:   `button, input[type="button"], input[type="submit"], input[type="reset"], [role="button"]`,
	types.ActCheckbox: `input[type="checkbox"], [role="checkbox"]`,
	types.ActRadio:    `input[type="radio"], [role="radio"]`,
	types.ActLink:     `a[href], [role="link"]`,
	types.ActFocus:    `a[href], button, input, select, textarea, [tabindex]`,
	types.ActSelect:   `select`,
	types.ActText:     `input:not([type]), input[type="text"], input[type="email"], input[type="password"], input[type="tel"], input[type="url"], input[type="number"], textarea, [role="textbox"]`,
	types.ActSearch:   `input[type="search"], [role="searchbox"]`,
}

// maxFoundText bounds the matched text kept in act results.
const maxFoundText = 100

func (in *Interpreter) doMove(ctx context.Context, s *Session, a *types.MoveAct) error {
	if err := requirePage(s, a); err != nil {
		return err
	}
	el, text, err := in.locate(ctx, s, a)
	if err != nil {
		a.Result = map[string]any{"success": false, "found": false}
		return err
	}
	if runes := []rune(text); len(runes) > maxFoundText {
		text = string(runes[:maxFoundText])
	}
	result := map[string]any{"success": true, "found": text}
	if tag, err := browser.TagName(ctx, el); err == nil {
		result["tagName"] = tag
	}
	a.Result = result

	switch a.Type {
	case types.ActButton, types.ActCheckbox, types.ActRadio:
		err = browser.Click(ctx, el)
	case types.ActLink:
		err = browser.Click(ctx, el)
		if err == nil {
			loadCtx, cancel := context.WithTimeout(ctx, stateTimeout)
			if waitErr := s.Page.WaitForLoadState(loadCtx, browser.LoadStateLoaded); waitErr != nil {
				s.Log.Debug("no load after link click", zap.Error(waitErr))
			}
			cancel()
		}
	case types.ActFocus:
		err = browser.Focus(ctx, el)
	case types.ActSelect:
		var option string
		if option, err = browser.SelectOption(ctx, el, a.Value); err == nil {
			result["option"] = option
		}
	case types.ActText, types.ActSearch:
		if err = browser.Focus(ctx, el); err == nil {
			err = s.Page.InsertText(ctx, a.Value)
		}
		if err == nil && a.Type == types.ActSearch {
			err = s.Page.Press(ctx, browser.KeyEnter)
		}
	}
	if err != nil {
		result["success"] = false
		result["error"] = err.Error()
		return abortf(err, "failed to operate %s %q", a.Type, a.Which)
	}
	return nil
}

// locate finds the index-th element of the act's family whose text contains
// the act's text, case-insensitively, retrying while the page settles.
func (in *Interpreter) locate(ctx context.Context, s *Session, a *types.MoveAct) (browser.Element, string, error) {
	selector := elementFamilies[a.Type]
	want := strings.ToLower(a.Which)
	var lastErr error
	for attempt := 1; attempt <= locateAttempts; attempt++ {
		elements, err := s.Page.Locate(ctx, selector)
		if err != nil {
			lastErr = err
		}
		matches := 0
		for _, el := range elements {
			text, err := browser.Text(ctx, el)
			if err != nil {
				lastErr = err
				continue
			}
			if !strings.Contains(strings.ToLower(text), want) {
				continue
			}
			if matches == a.Index {
				return el, text, nil
			}
			matches++
		}
		if attempt == locateAttempts {
			break
		}
		s.Log.Debug("element not found, retrying",
			zap.String("type", string(a.Type)),
			zap.String("which", a.Which),
			zap.Int("attempt", attempt))
		if err := in.cfg.Sleep(ctx, locateBackoff); err != nil {
			return nil, "", abortf(err, "gave up looking for %s %q", a.Type, a.Which)
		}
	}
	return nil, "", abortf(lastErr, "no %s with text %q at index %d", a.Type, a.Which, a.Index)
}
