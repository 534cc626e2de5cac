package types

import "fmt"

// JobData holds job-level telemetry accumulated during execution.
type JobData struct {
	StartTime           string             `json:"startTime"`
	EndTime             string             `json:"endTime,omitempty"`
	ElapsedSeconds      int                `json:"elapsedSeconds"`
	ActCount            int                `json:"actCount"`
	Aborted             bool               `json:"aborted"`
	AbortedAct          *int               `json:"abortedAct,omitempty"`
	AbortError          string             `json:"abortError,omitempty"`
	LogCount            int                `json:"logCount"`
	LogSize             int                `json:"logSize"`
	ErrorLogCount       int                `json:"errorLogCount"`
	ErrorLogSize        int                `json:"errorLogSize"`
	VisitRejectionCount int                `json:"visitRejectionCount"`
	ToolTimes           map[string]float64 `json:"toolTimes"`
	Preventions         map[string]int     `json:"preventions"`
}

// Report is the execution record derived from a job.
type Report struct {
	Job
	JobData JobData `json:"jobData"`
}

// NewReport creates a report as a deep copy of the job.
func NewReport(job *Job) (*Report, error) {
	clone, err := job.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to copy job into report: %w", err)
	}
	return &Report{
		Job: *clone,
		JobData: JobData{
			ToolTimes:   map[string]float64{},
			Preventions: map[string]int{},
		},
	}, nil
}

// Abort records a job-level abort caused by the act at index.
func (r *Report) Abort(index int, message string) {
	r.JobData.Aborted = true
	r.JobData.AbortedAct = &index
	r.JobData.AbortError = message
}
