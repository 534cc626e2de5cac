package types

import (
	"encoding/json"
	"fmt"
)

// ActType is the discriminator of the act union.
type ActType string

const (
	ActLaunch   ActType = "launch"
	ActURL      ActType = "url"
	ActWait     ActType = "wait"
	ActState    ActType = "state"
	ActPage     ActType = "page"
	ActReveal   ActType = "reveal"
	ActButton   ActType = "button"
	ActCheckbox ActType = "checkbox"
	ActRadio    ActType = "radio"
	ActLink     ActType = "link"
	ActFocus    ActType = "focus"
	ActSelect   ActType = "select"
	ActText     ActType = "text"
	ActSearch   ActType = "search"
	ActPress    ActType = "press"
	ActPresses  ActType = "presses"
	ActNext     ActType = "next"
	ActTest     ActType = "test"
)

// ActTypes lists every recognized act type.
var ActTypes = []ActType{
	ActLaunch, ActURL, ActWait, ActState, ActPage, ActReveal,
	ActButton, ActCheckbox, ActRadio, ActLink, ActFocus, ActSelect, ActText, ActSearch,
	ActPress, ActPresses, ActNext, ActTest,
}

// Valid reports whether t is a recognized act type.
func (t ActType) Valid() bool {
	for _, known := range ActTypes {
		if t == known {
			return true
		}
	}
	return false
}

// TargetsElement reports whether acts of this type operate on a located element.
func (t ActType) TargetsElement() bool {
	switch t {
	case ActButton, ActCheckbox, ActRadio, ActLink, ActFocus, ActSelect, ActText, ActSearch:
		return true
	}
	return false
}

// Act is one step of a job. The set of implementations is closed.
type Act interface {
	Base() *ActBase
	isAct()
}

// ActBase holds the fields shared by every act, including what execution adds.
type ActBase struct {
	Type      ActType        `json:"type"`
	Name      string         `json:"name,omitempty"`
	What      string         `json:"what,omitempty"`
	StartTime int64          `json:"startTime,omitempty"`
	EndTime   int64          `json:"endTime,omitempty"`
	Result    map[string]any `json:"result,omitempty"`
}

// Base returns the shared fields.
func (b *ActBase) Base() *ActBase { return b }

func (*ActBase) isAct() {}

// LaunchAct (re)starts the browser.
type LaunchAct struct {
	ActBase
	BrowserID string `json:"browserID,omitempty"`
	DeviceID  string `json:"deviceID,omitempty"`
	URL       string `json:"url,omitempty"`
}

// URLAct navigates the current page.
type URLAct struct {
	ActBase
	Which string `json:"which"`
}

// WaitAct waits for text to appear in the URL, title or body.
type WaitAct struct {
	ActBase
	Which   string  `json:"which"`
	In      string  `json:"in"`
	Fatal   bool    `json:"fatal,omitempty"`
	Timeout float64 `json:"timeout,omitempty"`
}

// StateAct waits for a page load state.
type StateAct struct {
	ActBase
	Which string `json:"which"`
}

// PageAct switches to the newest page.
type PageAct struct {
	ActBase
	Which string `json:"which,omitempty"`
}

// RevealAct makes hidden elements visible.
type RevealAct struct {
	ActBase
}

// MoveAct locates an element by its text and operates on it.
type MoveAct struct {
	ActBase
	Which string `json:"which"`
	Index int    `json:"index,omitempty"`
	Value string `json:"value,omitempty"`
}

// PressAct presses one key, optionally repeated.
type PressAct struct {
	ActBase
	Which string `json:"which"`
	Again int    `json:"again,omitempty"`
}

// PressesAct presses a sequence of keys.
type PressesAct struct {
	ActBase
	Which []string `json:"which"`
}

// Branch condition relations: equals, less than, greater than, not equals,
// substring contains, substring does not contain, deep equals.
const (
	RelEquals      = "="
	RelLess        = "<"
	RelGreater     = ">"
	RelNotEquals   = "!"
	RelIncludes    = "i"
	RelNotIncludes = "!i"
	RelDeepEquals  = "e"
)

// Relations lists the recognized branch relations.
var Relations = []string{RelEquals, RelLess, RelGreater, RelNotEquals, RelIncludes, RelNotIncludes, RelDeepEquals}

// NextAct is a conditional branch.
type NextAct struct {
	ActBase
	If   []any  `json:"if"`
	Jump *int   `json:"jump,omitempty"`
	Next string `json:"next,omitempty"`
}

// TestAct delegates to a named accessibility tool.
type TestAct struct {
	ActBase
	Which     string         `json:"which"`
	Rules     []string       `json:"rules,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
	TimeLimit float64        `json:"timeLimit,omitempty"`

	// Tool-specific options
	WithItems   *bool    `json:"withItems,omitempty"`
	StopOnFail  bool     `json:"stopOnFail,omitempty"`
	DetailLevel *int     `json:"detailLevel,omitempty"`
	ReportType  *int     `json:"reportType,omitempty"`
	Modules     []string `json:"modules,omitempty"`
	Standard    string   `json:"standard,omitempty"`

	Data           map[string]any  `json:"data,omitempty"`
	StandardResult *StandardResult `json:"standardResult,omitempty"`
}

// Items reports whether per-element instances are wanted (default true).
func (a *TestAct) Items() bool {
	return a.WithItems == nil || *a.WithItems
}

// NewAct allocates an empty act of the given type, or nil if the type is unknown.
func NewAct(t ActType) Act {
	var act Act
	switch t {
	case ActLaunch:
		act = &LaunchAct{}
	case ActURL:
		act = &URLAct{}
	case ActWait:
		act = &WaitAct{}
	case ActState:
		act = &StateAct{}
	case ActPage:
		act = &PageAct{}
	case ActReveal:
		act = &RevealAct{}
	case ActButton, ActCheckbox, ActRadio, ActLink, ActFocus, ActSelect, ActText, ActSearch:
		act = &MoveAct{}
	case ActPress:
		act = &PressAct{}
	case ActPresses:
		act = &PressesAct{}
	case ActNext:
		act = &NextAct{}
	case ActTest:
		act = &TestAct{}
	default:
		return nil
	}
	act.Base().Type = t
	return act
}

// DecodeAct decodes one act document into its typed variant.
func DecodeAct(data []byte) (Act, error) {
	var head struct {
		Type ActType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to read act type: %w", err)
	}
	act := NewAct(head.Type)
	if act == nil {
		return nil, fmt.Errorf("unknown act type %q", head.Type)
	}
	if err := json.Unmarshal(data, act); err != nil {
		return nil, fmt.Errorf("failed to decode %s act: %w", head.Type, err)
	}
	return act, nil
}

// Acts is an ordered act list that decodes into typed variants.
type Acts []Act

// UnmarshalJSON decodes each element by its type discriminator.
func (a *Acts) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	acts := make(Acts, 0, len(raws))
	for i, raw := range raws {
		act, err := DecodeAct(raw)
		if err != nil {
			return fmt.Errorf("act %d: %w", i, err)
		}
		acts = append(acts, act)
	}
	*a = acts
	return nil
}

// AsMap returns the JSON object view of an act, used for property-path lookups.
func AsMap(act Act) (map[string]any, error) {
	data, err := json.Marshal(act)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// CloneAct returns a deep copy of an act.
func CloneAct(act Act) (Act, error) {
	data, err := json.Marshal(act)
	if err != nil {
		return nil, err
	}
	return DecodeAct(data)
}
