package dispatch

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/a11y-auditor/internal/fetch"
)

const defaultPollInterval = 30 * time.Second

// NetPoller asks a job server for work and runs what it gets, one job at a time.
type NetPoller struct {
	// JobURL answers GET with a job document, or an empty body or {} when idle.
	JobURL string
	// Agent identifies this worker to the job server.
	Agent      string
	Interval   time.Duration
	Dispatcher *Dispatcher
	HTTP       *fetch.Options
	Log        *zap.Logger
	// Sleep waits between idle polls; nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (p *NetPoller) log() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}

func (p *NetPoller) requestURL() (string, error) {
	u, err := url.Parse(p.JobURL)
	if err != nil {
		return "", &Error{Message: "invalid job URL", Cause: err}
	}
	if p.Agent != "" {
		q := u.Query()
		q.Set("agent", p.Agent)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Poll makes one request and runs the job it returns. It reports whether a
// job was received.
func (p *NetPoller) Poll(ctx context.Context) (bool, error) {
	target, err := p.requestURL()
	if err != nil {
		return false, err
	}
	res, err := fetch.URL(ctx, target, p.HTTP)
	if err != nil {
		return false, &Error{Message: "job request failed", Cause: err}
	}
	body := bytes.TrimSpace(res.Body)
	if len(body) == 0 || bytes.Equal(body, []byte("{}")) {
		return false, nil
	}

	out, err := p.Dispatcher.Handle(ctx, body)
	if err != nil {
		return true, err
	}
	p.log().Info("job done",
		zap.String("job", out.Report.Job.ID),
		zap.Bool("aborted", out.Report.JobData.Aborted),
		zap.String("report", out.Location))
	return true, nil
}

// Run polls until ctx ends. After a job it polls again at once; when idle or
// after a failure it waits Interval.
func (p *NetPoller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	p.log().Info("polling for jobs", zap.String("url", p.JobURL), zap.Duration("interval", interval))

	for {
		got, err := p.Poll(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			p.log().Warn("poll failed", zap.Error(err))
		}
		if got && err == nil {
			continue
		}
		if err := sleep(ctx, interval); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
