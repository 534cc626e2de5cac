package interpreter

import "fmt"

// AbortError is an environment failure that stops the job.
type AbortError struct {
	Message string
	Cause   error
}

func (e *AbortError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AbortError) Unwrap() error {
	return e.Cause
}

func abortf(cause error, format string, args ...any) *AbortError {
	return &AbortError{Message: fmt.Sprintf(format, args...), Cause: cause}
}
