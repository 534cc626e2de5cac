// Package dispatch feeds jobs to the interpreter from a watched directory or a
// network job source and delivers the reports.
package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/a11y-auditor/internal/fetch"
	"github.com/jonathan/a11y-auditor/internal/types"
	"github.com/jonathan/a11y-auditor/internal/validation"
)

// Executor runs one validated job.
type Executor interface {
	DoJob(ctx context.Context, job *types.Job) *types.Report
}

// Dispatcher validates job documents, runs them one at a time and delivers
// their reports.
type Dispatcher struct {
	Exec Executor
	// Store receives reports of jobs without a sendReportTo destination. May be nil.
	Store Store
	// HTTP configures delivery to sendReportTo destinations.
	HTTP *fetch.Options
	Log  *zap.Logger
	Now  func() time.Time
}

// Outcome is the result of handling one job document.
type Outcome struct {
	Report *types.Report
	// Location is where the report was delivered, empty when it was not.
	Location string
}

// Handle validates raw, runs the job and delivers the report. A job without an
// executionTimeStamp is stamped with the current time. Invalid jobs
// return a *validation.Error inside a *Error and are not run. A delivery
// failure is returned together with the report.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) (Outcome, error) {
	log := d.log()
	job, err := validation.ParseDispatchedJob(raw, d.now().UTC().Format(time.RFC3339))
	if err != nil {
		return Outcome{}, &Error{Message: "invalid job", Cause: err}
	}

	log.Info("running job", zap.String("job", job.ID), zap.Int("acts", len(job.Acts)))
	report := d.Exec.DoJob(ctx, job)
	out := Outcome{Report: report}

	store := d.Store
	if job.SendReportTo != "" {
		store = &HTTPStore{URL: job.SendReportTo, Options: d.HTTP}
	}
	if store == nil {
		return out, nil
	}
	location, err := store.Save(ctx, report)
	if err != nil {
		return out, &Error{JobID: job.ID, Message: "failed to deliver report", Cause: err}
	}
	out.Location = location
	log.Info("report delivered", zap.String("job", job.ID), zap.String("location", location))
	return out, nil
}

func (d *Dispatcher) log() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

func (d *Dispatcher) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}
