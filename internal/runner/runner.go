// Package runner executes tool invocations in time-bounded sub-executions.
package runner

import (
	"context"
	"time"

	"github.com/jonathan/a11y-auditor/internal/browser"
	"github.com/jonathan/a11y-auditor/internal/types"
)

// Request describes one tool invocation.
type Request struct {
	JobID     string         `json:"jobID"`
	BrowserID string         `json:"browserID"`
	DeviceID  string         `json:"deviceID"`
	URL       string         `json:"url"`
	Act       *types.TestAct `json:"act"`
	// TimeLimit bounds the whole sub-execution.
	TimeLimit time.Duration `json:"timeLimit"`
	// TempDir is the sub-execution's private scratch directory.
	TempDir string `json:"tempDir,omitempty"`

	// Page is the parent's live page, used only by in-process runners.
	Page browser.Page `json:"-"`
}

func (r Request) tool() string {
	if r.Act == nil {
		return ""
	}
	return r.Act.Which
}

// Response is what a sub-execution reports back.
type Response struct {
	Data            map[string]any `json:"data,omitempty"`
	Result          map[string]any `json:"result,omitempty"`
	Error           string         `json:"error,omitempty"`
	NavigationError string         `json:"navigationError,omitempty"`
}

// Status classifies how a sub-execution ended.
type Status string

const (
	// StatusOK means the tool produced a result.
	StatusOK Status = "ok"
	// StatusTimeout means the deadline fired first.
	StatusTimeout Status = "timeout"
	// StatusCrash means the sub-execution died without a usable response.
	StatusCrash Status = "crash"
	// StatusToolError means the tool reported a failure.
	StatusToolError Status = "toolError"
	// StatusNavigationError means the sub-execution could not reach the page.
	StatusNavigationError Status = "navigationError"
)

// Outcome is the parent's view of a finished sub-execution.
type Outcome struct {
	Status  Status
	Data    map[string]any
	Result  map[string]any
	Message string
	Elapsed time.Duration
}

// Prevented reports whether the tool produced no result.
func (o Outcome) Prevented() bool {
	return o.Status != StatusOK
}

// Runner executes tool invocations.
type Runner interface {
	Run(ctx context.Context, req Request) Outcome
	// Cleanup removes any temporary state left by earlier runs.
	Cleanup() error
}

// fromResponse classifies a decoded response.
func fromResponse(resp Response, elapsed time.Duration) Outcome {
	switch {
	case resp.NavigationError != "":
		return Outcome{Status: StatusNavigationError, Data: resp.Data, Message: resp.NavigationError, Elapsed: elapsed}
	case resp.Error != "":
		return Outcome{Status: StatusToolError, Data: resp.Data, Message: resp.Error, Elapsed: elapsed}
	}
	return Outcome{Status: StatusOK, Data: resp.Data, Result: resp.Result, Elapsed: elapsed}
}
