// Package fetch provides the HTTP client used by remote tool services and the
// network dispatcher.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent is the user agent string for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; A11yAuditor/1.0)"

// maxBodySize caps how much of a response body is read.
const maxBodySize = 32 << 20

// Result holds the raw content of an HTTP exchange.
type Result struct {
	URL         string
	Body        []byte
	ContentType string
	StatusCode  int
}

// Text returns the body as a string.
func (r *Result) Text() string {
	return string(r.Body)
}

// Error represents an error during an HTTP exchange.
type Error struct {
	URL        string
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures the fetch behavior.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// DefaultOptions returns sensible defaults for fetching.
func DefaultOptions() *Options {
	return &Options{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
	}
}

// URL retrieves a URL with GET.
func URL(ctx context.Context, urlStr string, opts *Options) (*Result, error) {
	return Do(ctx, http.MethodGet, urlStr, "", nil, opts)
}

// Post sends body to a URL with the given content type.
func Post(ctx context.Context, urlStr, contentType string, body []byte, opts *Options) (*Result, error) {
	return Do(ctx, http.MethodPost, urlStr, contentType, body, opts)
}

// PostJSON encodes payload as JSON and posts it.
func PostJSON(ctx context.Context, urlStr string, payload any, opts *Options) (*Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "failed to encode request body", Cause: err}
	}
	return Post(ctx, urlStr, "application/json", body, opts)
}

// DecodeJSON decodes a successful result's body into out.
func DecodeJSON(result *Result, out any) error {
	if err := json.Unmarshal(result.Body, out); err != nil {
		return &Error{URL: result.URL, Message: "response is not valid JSON", Cause: err}
	}
	return nil
}

// Do performs one request. A non-2xx status returns the result together with
// an *Error carrying the status code.
func Do(ctx context.Context, method, urlStr, contentType string, body []byte, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, &Error{
			URL:     urlStr,
			Message: "invalid URL",
			Cause:   err,
		}
	}

	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
	if err != nil {
		return nil, &Error{
			URL:     urlStr,
			Message: "failed to create request",
			Cause:   err,
		}
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{
			URL:     urlStr,
			Message: "HTTP request failed",
			Cause:   err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &Error{
			URL:     urlStr,
			Message: "failed to read response body",
			Cause:   err,
		}
	}

	result := &Result{
		URL:         urlStr,
		Body:        bodyBytes,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, &Error{
			URL:        urlStr,
			Message:    fmt.Sprintf("HTTP status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	return result, nil
}
