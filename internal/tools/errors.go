package tools

import "fmt"

// Error represents a failed tool invocation.
type Error struct {
	Tool    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("tool error: %s: %s: %v", e.Tool, e.Message, e.Cause)
	}
	return fmt.Sprintf("tool error: %s: %s", e.Tool, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
