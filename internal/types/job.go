// Package types provides type definitions for the jobs, acts and reports exchanged by the audit engine.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// StandardMode controls whether tool results are standardized.
type StandardMode string

const (
	// StandardAlso keeps native results and adds standard results
	StandardAlso StandardMode = "also"
	// StandardOnly replaces native results with standard results
	StandardOnly StandardMode = "only"
	// StandardNo keeps native results only
	StandardNo StandardMode = "no"
)

// Valid reports whether m is one of the known standardization modes.
func (m StandardMode) Valid() bool {
	switch m {
	case StandardAlso, StandardOnly, StandardNo:
		return true
	}
	return false
}

// Browser engine identifiers accepted in jobs and launch acts.
const (
	BrowserChromium = "chromium"
	BrowserFirefox  = "firefox"
	BrowserWebkit   = "webkit"
)

// BrowserIDs lists the recognized browser engine identifiers.
var BrowserIDs = []string{BrowserChromium, BrowserFirefox, BrowserWebkit}

// compactTimeStamp is the short timestamp layout used by job producers (yymmddThhmm).
const compactTimeStamp = "060102T1504"

// Device identifies the emulated device for a job.
type Device struct {
	ID string `json:"id"`
}

// Target describes the page a job audits.
type Target struct {
	URL  string `json:"url,omitempty"`
	What string `json:"what,omitempty"`
}

// Job is a validated, ordered list of acts plus run metadata.
type Job struct {
	ID                 string         `json:"id"`
	What               string         `json:"what,omitempty"`
	Strict             bool           `json:"strict"`
	Standard           StandardMode   `json:"standard"`
	Observe            bool           `json:"observe"`
	Device             Device         `json:"device"`
	BrowserID          string         `json:"browserID"`
	TimeLimit          float64        `json:"timeLimit"`
	CreationTimeStamp  string         `json:"creationTimeStamp"`
	ExecutionTimeStamp string         `json:"executionTimeStamp"`
	SendReportTo       string         `json:"sendReportTo"`
	Target             Target         `json:"target"`
	Sources            map[string]any `json:"sources,omitempty"`
	Acts               Acts           `json:"acts"`
}

// Deadline returns the whole-job time budget.
func (j *Job) Deadline() time.Duration {
	return time.Duration(j.TimeLimit * float64(time.Second))
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() (*Job, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	var clone Job
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job copy: %w", err)
	}
	return &clone, nil
}

// ParseTimeStamp parses a job timestamp in RFC 3339 or compact yymmddThhmm form.
func ParseTimeStamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(compactTimeStamp, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return t, nil
}
