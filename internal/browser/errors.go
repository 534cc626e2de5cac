package browser

import "fmt"

// Error represents a general browser capability failure
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("browser error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("browser error: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// LaunchError represents a failure to start a browser
type LaunchError struct {
	Engine  string
	Message string
	Cause   error
}

func (e *LaunchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("launch error for %s: %s: %v", e.Engine, e.Message, e.Cause)
	}
	return fmt.Sprintf("launch error for %s: %s", e.Engine, e.Message)
}

func (e *LaunchError) Unwrap() error {
	return e.Cause
}

// NavigationError represents a failed page navigation
type NavigationError struct {
	URL     string
	Message string
	Cause   error
}

func (e *NavigationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("navigation error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("navigation error for %s: %s", e.URL, e.Message)
}

func (e *NavigationError) Unwrap() error {
	return e.Cause
}

// ScriptError represents an exception thrown by evaluated JavaScript
type ScriptError struct {
	Message string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script error: %s", e.Message)
}
