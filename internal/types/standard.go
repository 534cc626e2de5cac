package types

import (
	"fmt"
	"math"
	"strconv"
)

// Ordinal severities of a standard instance.
const (
	SeverityInfo      = 0
	SeverityMinor     = 1
	SeverityMajor     = 2
	SeverityViolation = 3
)

// Location documents.
const (
	DocDOM    = "dom"
	DocSource = "source"
)

// LocationType says how Location.Spec locates the element.
type LocationType string

const (
	LocationNone     LocationType = ""
	LocationSelector LocationType = "selector"
	LocationXPath    LocationType = "xpath"
	LocationBox      LocationType = "box"
	LocationLine     LocationType = "line"
)

// Box is a viewport rectangle.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ID returns the canonical "x:y:width:height" form with rounded components.
func (b Box) ID() string {
	return fmt.Sprintf("%d:%d:%d:%d",
		int(math.Round(b.X)), int(math.Round(b.Y)),
		int(math.Round(b.Width)), int(math.Round(b.Height)))
}

// Location says where a finding is.
type Location struct {
	Doc  string       `json:"doc"`
	Type LocationType `json:"type"`
	Spec any          `json:"spec"`
}

// SpecString returns the spec when it is a string (selector or xpath).
func (l Location) SpecString() string {
	switch v := l.Spec.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

// SpecBox returns the spec as a box when it is one.
func (l Location) SpecBox() (Box, bool) {
	switch v := l.Spec.(type) {
	case Box:
		return v, true
	case *Box:
		if v != nil {
			return *v, true
		}
	case map[string]any:
		var b Box
		var ok bool
		b.X, ok = v["x"].(float64)
		if !ok {
			return Box{}, false
		}
		b.Y, _ = v["y"].(float64)
		b.Width, _ = v["width"].(float64)
		b.Height, _ = v["height"].(float64)
		return b, true
	}
	return Box{}, false
}

// StandardInstance is one normalized finding.
type StandardInstance struct {
	RuleID          string   `json:"ruleID"`
	What            string   `json:"what"`
	OrdinalSeverity int      `json:"ordinalSeverity"`
	TagName         string   `json:"tagName"`
	ID              string   `json:"id"`
	Location        Location `json:"location"`
	Excerpt         string   `json:"excerpt"`
	Count           int      `json:"count,omitempty"`
	BoxID           string   `json:"boxID,omitempty"`
	PathID          string   `json:"pathID,omitempty"`
}

// Identified reports whether both stable identifiers are present.
func (s *StandardInstance) Identified() bool {
	return s.BoxID != "" && s.PathID != ""
}

// StandardResult is the canonical result of a test act.
type StandardResult struct {
	Prevented bool               `json:"prevented,omitempty"`
	Totals    [4]int             `json:"totals"`
	Instances []StandardInstance `json:"instances"`
}
