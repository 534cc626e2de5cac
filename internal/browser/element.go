package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/a11y-auditor/internal/types"
)

// Element functions. Each is a JavaScript function declaration invoked with this
// bound to the element.
const (
	TagNameFunc = `function() { return this.tagName; }`

	BoxFunc = `function() {
	const r = this.getBoundingClientRect();
	return {x: r.x, y: r.y, width: r.width, height: r.height};
}`

	// XPathFunc builds an index-qualified path such as /html/body/main/p[2]; the
	// index is omitted when the element has no same-tag siblings.
	XPathFunc = `function() {
	const parts = [];
	let el = this;
	while (el && el.nodeType === Node.ELEMENT_NODE) {
		const tag = el.tagName.toLowerCase();
		const parent = el.parentElement;
		if (!parent) {
			parts.unshift(tag);
			break;
		}
		const same = Array.from(parent.children).filter(c => c.tagName === el.tagName);
		parts.unshift(same.length > 1 ? tag + '[' + (same.indexOf(el) + 1) + ']' : tag);
		el = parent;
	}
	return '/' + parts.join('/');
}`

	// TextFunc returns the text a user would associate with the element.
	TextFunc = `function() {
	const labels = this.labels ? Array.from(this.labels).map(l => l.textContent).join(' ') : '';
	const parts = [
		this.innerText || this.textContent || '',
		this.getAttribute('aria-label') || '',
		this.getAttribute('title') || '',
		this.getAttribute('placeholder') || '',
		this.getAttribute('alt') || '',
		labels,
		typeof this.value === 'string' && this.tagName !== 'SELECT' ? this.value : ''
	];
	return parts.join(' ').replace(/\s+/g, ' ').trim();
}`

	ClickFunc = `function() {
	this.scrollIntoView({block: 'center'});
	this.click();
	return true;
}`

	FocusFunc = `function() {
	this.scrollIntoView({block: 'center'});
	this.focus();
	if (typeof this.select === 'function') {
		this.select();
	}
	return true;
}`

	// SelectFunc chooses the first option whose text contains the argument and
	// returns the option text, or null when none matches.
	SelectFunc = `function(want) {
	const needle = want.toLowerCase();
	const options = Array.from(this.options || []);
	const match = options.find(o => o.textContent.toLowerCase().includes(needle));
	if (!match) {
		return null;
	}
	this.value = match.value;
	this.dispatchEvent(new Event('input', {bubbles: true}));
	this.dispatchEvent(new Event('change', {bubbles: true}));
	return match.textContent.trim();
}`
)

// WrapFunction binds call arguments into a function declaration so drivers can
// pass them without protocol-specific argument encoding.
func WrapFunction(function string, args ...any) (string, error) {
	if len(args) == 0 {
		return function, nil
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", &Error{Message: "failed to encode function arguments", Cause: err}
	}
	return fmt.Sprintf("function() { return (%s).apply(this, %s); }", function, encoded), nil
}

// TagName returns the upper-case tag name of an element.
func TagName(ctx context.Context, el Element) (string, error) {
	var tag string
	if err := el.Call(ctx, TagNameFunc, &tag); err != nil {
		return "", err
	}
	return strings.ToUpper(tag), nil
}

// BoundingBox returns the element's viewport box.
func BoundingBox(ctx context.Context, el Element) (types.Box, error) {
	var box types.Box
	err := el.Call(ctx, BoxFunc, &box)
	return box, err
}

// XPath returns the element's index-qualified path.
func XPath(ctx context.Context, el Element) (string, error) {
	var path string
	err := el.Call(ctx, XPathFunc, &path)
	return path, err
}

// Text returns whitespace-normalized text associated with the element.
func Text(ctx context.Context, el Element) (string, error) {
	var text string
	err := el.Call(ctx, TextFunc, &text)
	return text, err
}

// Click scrolls the element into view and clicks it.
func Click(ctx context.Context, el Element) error {
	return el.Call(ctx, ClickFunc, nil)
}

// Focus scrolls the element into view and focuses it, selecting any existing text.
func Focus(ctx context.Context, el Element) error {
	return el.Call(ctx, FocusFunc, nil)
}

// SelectOption chooses the option whose text contains want and returns its text.
func SelectOption(ctx context.Context, el Element, want string) (string, error) {
	var chosen *string
	if err := el.Call(ctx, SelectFunc, &chosen, want); err != nil {
		return "", err
	}
	if chosen == nil {
		return "", &Error{Message: fmt.Sprintf("no option matching %q", want)}
	}
	return *chosen, nil
}
