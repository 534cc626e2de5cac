package runner

import "fmt"

// Error represents a failure to set up or talk to a sub-execution.
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("runner error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("runner error: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
