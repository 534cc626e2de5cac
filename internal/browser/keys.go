package browser

import "unicode/utf8"

// Named keys that acts may press. Drivers map each to their own key codes.
const (
	KeyEnter      = "Enter"
	KeyTab        = "Tab"
	KeyEscape     = "Escape"
	KeySpace      = "Space"
	KeyBackspace  = "Backspace"
	KeyDelete     = "Delete"
	KeyArrowUp    = "ArrowUp"
	KeyArrowDown  = "ArrowDown"
	KeyArrowLeft  = "ArrowLeft"
	KeyArrowRight = "ArrowRight"
	KeyHome       = "Home"
	KeyEnd        = "End"
	KeyPageUp     = "PageUp"
	KeyPageDown   = "PageDown"
)

var namedKeys = map[string]bool{
	KeyEnter: true, KeyTab: true, KeyEscape: true, KeySpace: true,
	KeyBackspace: true, KeyDelete: true,
	KeyArrowUp: true, KeyArrowDown: true, KeyArrowLeft: true, KeyArrowRight: true,
	KeyHome: true, KeyEnd: true, KeyPageUp: true, KeyPageDown: true,
}

// KnownKey reports whether name is a named key or a single character.
func KnownKey(name string) bool {
	return namedKeys[name] || utf8.RuneCountInString(name) == 1
}
