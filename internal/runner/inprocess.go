package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// InProcessRunner runs tools on the parent's own page, without process
// isolation. The deadline race still applies and a panicking tool is
// reported as a crash.
type InProcessRunner struct {
	child *Child
	log   *zap.Logger
}

// NewInProcessRunner creates a runner around child.
func NewInProcessRunner(child *Child, log *zap.Logger) *InProcessRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return &InProcessRunner{child: child, log: log}
}

// execution is the result of one in-process tool run.
type execution struct {
	resp  Response
	panic any
}

func (r *InProcessRunner) Run(ctx context.Context, req Request) Outcome {
	start := time.Now()
	log := r.log.With(zap.String("tool", req.tool()), zap.String("job", req.JobID))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan execution, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- execution{panic: p}
			}
		}()
		done <- execution{resp: r.child.Execute(ctx, req)}
	}()

	var timeout <-chan time.Time
	if req.TimeLimit > 0 {
		timer := time.NewTimer(req.TimeLimit)
		defer timer.Stop()
		timeout = timer.C
	}

	// abandon cancels the tool and waits briefly so it stops touching the
	// page before the next act runs.
	abandon := func() {
		cancel()
		select {
		case <-done:
		case <-time.After(killGrace):
			log.Warn("tool ignored cancellation")
		}
	}

	select {
	case ex := <-done:
		if ex.panic != nil {
			log.Error("tool panicked", zap.Any("panic", ex.panic))
			return Outcome{Status: StatusCrash, Message: fmt.Sprintf("tool panicked: %v", ex.panic), Elapsed: time.Since(start)}
		}
		return fromResponse(ex.resp, time.Since(start))
	case <-timeout:
		abandon()
		log.Warn("tool exceeded its time limit", zap.Duration("limit", req.TimeLimit))
		return Outcome{Status: StatusTimeout, Message: "tool timed out", Elapsed: time.Since(start)}
	case <-ctx.Done():
		abandon()
		return Outcome{Status: StatusTimeout, Message: ctx.Err().Error(), Elapsed: time.Since(start)}
	}
}

// Cleanup is a no-op; in-process runs keep no temporary state.
func (r *InProcessRunner) Cleanup() error {
	return nil
}
