package dispatch

import "fmt"

// Error represents a failure to accept, run or deliver a job.
type Error struct {
	JobID   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	prefix := "dispatch error"
	if e.JobID != "" {
		prefix += " for job " + e.JobID
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
