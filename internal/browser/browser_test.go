package browser_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/a11y-auditor/internal/browser"
	"github.com/jonathan/a11y-auditor/internal/browser/browsertest"
	"github.com/jonathan/a11y-auditor/internal/types"
)

func TestKnownKey(t *testing.T) {
	assert.True(t, browser.KnownKey("Enter"))
	assert.True(t, browser.KnownKey("ArrowDown"))
	assert.True(t, browser.KnownKey("a"))
	assert.True(t, browser.KnownKey("é"))
	assert.False(t, browser.KnownKey(""))
	assert.False(t, browser.KnownKey("Return"))
	assert.False(t, browser.KnownKey("ab"))
}

func TestLookupDevice(t *testing.T) {
	d, ok := browser.LookupDevice(browser.DefaultDeviceID)
	require.True(t, ok)
	assert.Equal(t, 1280, d.Width)

	d, ok = browser.LookupDevice("iPhone 12")
	require.True(t, ok)
	assert.True(t, d.Mobile)
	assert.NotEmpty(t, d.UserAgent)

	_, ok = browser.LookupDevice("Nokia 3310")
	assert.False(t, ok)

	ids := browser.DeviceIDs()
	assert.Contains(t, ids, "Pixel 5")
	assert.IsIncreasing(t, ids)
}

func TestWrapFunction(t *testing.T) {
	fn, err := browser.WrapFunction("function() { return 1; }")
	require.NoError(t, err)
	assert.Equal(t, "function() { return 1; }", fn)

	fn, err = browser.WrapFunction("function(a, b) { return a + b; }", "x", 2)
	require.NoError(t, err)
	assert.Equal(t, `function() { return (function(a, b) { return a + b; }).apply(this, ["x",2]); }`, fn)

	_, err = browser.WrapFunction("function(a) {}", make(chan int))
	assert.Error(t, err)
}

func TestElementHelpers(t *testing.T) {
	ctx := context.Background()
	page := browsertest.NewPage(nil)
	page.SetHTML(`<html><body><main>
		<p>first</p>
		<p aria-label="Second label">second   text</p>
		<select id="pick"><option value="a">Apples</option><option value="b">Bananas</option></select>
	</main></body></html>`)
	page.Boxes["/html/body/main/p[2]"] = types.Box{X: 1, Y: 2, Width: 30, Height: 40}

	els, err := page.Locate(ctx, "p")
	require.NoError(t, err)
	require.Len(t, els, 2)

	tag, err := browser.TagName(ctx, els[1])
	require.NoError(t, err)
	assert.Equal(t, "P", tag)

	path, err := browser.XPath(ctx, els[1])
	require.NoError(t, err)
	assert.Equal(t, "/html/body/main/p[2]", path)

	box, err := browser.BoundingBox(ctx, els[1])
	require.NoError(t, err)
	assert.Equal(t, types.Box{X: 1, Y: 2, Width: 30, Height: 40}, box)

	text, err := browser.Text(ctx, els[1])
	require.NoError(t, err)
	assert.Equal(t, "second text Second label", text)

	require.NoError(t, browser.Click(ctx, els[0]))
	assert.Equal(t, []string{"/html/body/main/p[1]"}, page.Clicked)

	selects, err := page.Locate(ctx, "#pick")
	require.NoError(t, err)
	chosen, err := browser.SelectOption(ctx, selects[0], "banana")
	require.NoError(t, err)
	assert.Equal(t, "Bananas", chosen)

	_, err = browser.SelectOption(ctx, selects[0], "cherry")
	var browserErr *browser.Error
	assert.ErrorAs(t, err, &browserErr)
}

func TestWaitForReadyState(t *testing.T) {
	ctx := context.Background()
	page := browsertest.NewPage(nil)

	calls := 0
	page.EvaluateFunc = func(ctx context.Context, expr string) (any, error) {
		calls++
		state := "loading"
		if calls >= 3 {
			state = "interactive"
		}
		return map[string]any{"state": state, "resources": 0}, nil
	}
	require.NoError(t, browser.WaitForReadyState(ctx, page, browser.LoadStateLoaded))
	assert.Equal(t, 3, calls)
}

func TestWaitForReadyState_Idle(t *testing.T) {
	page := browsertest.NewPage(nil)
	page.EvaluateFunc = func(ctx context.Context, expr string) (any, error) {
		return map[string]any{"state": "complete", "resources": 4}, nil
	}
	start := time.Now()
	require.NoError(t, browser.WaitForReadyState(context.Background(), page, browser.LoadStateIdle))
	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
}

func TestWaitForReadyState_Timeout(t *testing.T) {
	page := browsertest.NewPage(nil)
	page.EvaluateFunc = func(ctx context.Context, expr string) (any, error) {
		return map[string]any{"state": "loading"}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	err := browser.WaitForReadyState(ctx, page, browser.LoadStateComplete)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestWaitForReadyState_UnknownState(t *testing.T) {
	page := browsertest.NewPage(nil)
	page.EvaluateFunc = func(ctx context.Context, expr string) (any, error) {
		return map[string]any{"state": "complete"}, nil
	}
	err := browser.WaitForReadyState(context.Background(), page, browser.LoadState("bogus"))
	assert.Error(t, err)
}

func TestUnsupportedEngines(t *testing.T) {
	ctx := context.Background()
	for _, l := range []browser.Launcher{browser.NewChromedpLauncher(""), browser.NewRodLauncher("")} {
		for _, engine := range []string{types.BrowserFirefox, types.BrowserWebkit} {
			_, err := l.Launch(ctx, browser.LaunchOptions{Engine: engine})
			var launchErr *browser.LaunchError
			require.ErrorAs(t, err, &launchErr)
			assert.Equal(t, engine, launchErr.Engine)
		}
	}
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")
	assert.ErrorIs(t, &browser.Error{Message: "m", Cause: cause}, cause)
	assert.ErrorIs(t, &browser.LaunchError{Engine: "chromium", Message: "m", Cause: cause}, cause)
	assert.ErrorIs(t, &browser.NavigationError{URL: "u", Message: "m", Cause: cause}, cause)
	assert.Contains(t, (&browser.NavigationError{URL: "https://x", Message: "m"}).Error(), "https://x")
}
