// Package interpreter runs validated jobs: it executes their acts in order
// against a browser session and builds the report.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/a11y-auditor/internal/browser"
	"github.com/jonathan/a11y-auditor/internal/runner"
	"github.com/jonathan/a11y-auditor/internal/types"
)

// Act time bounds.
const (
	navigationTimeout  = 15 * time.Second
	defaultWaitTimeout = 10 * time.Second
	stateTimeout       = 10 * time.Second
	pageTimeout        = 5 * time.Second
	launchTimeout      = 30 * time.Second
	pollInterval       = 100 * time.Millisecond

	// Element location retry budget for movement acts.
	locateAttempts = 5
	locateBackoff  = 2 * time.Second
)

// ActEvent reports one executed act.
type ActEvent struct {
	JobID   string         `json:"jobID"`
	Index   int            `json:"index"`
	Type    types.ActType  `json:"type"`
	Name    string         `json:"name,omitempty"`
	Result  map[string]any `json:"result,omitempty"`
	Aborted bool           `json:"aborted"`
	Error   string         `json:"error,omitempty"`
	Elapsed time.Duration  `json:"elapsed"`
}

// Config wires an Interpreter to its collaborators.
type Config struct {
	Launcher browser.Launcher
	Runner   runner.Runner
	Log      *zap.Logger
	// Metrics may be nil.
	Metrics *Metrics
	// OnProgress receives one event per executed act.
	OnProgress func(ActEvent)
	// Headless launches browsers without a window.
	Headless bool
	// Sleep waits between element location attempts; nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Now is the clock; nil uses time.Now.
	Now func() time.Time
}

// Interpreter executes jobs. It is safe to run one job at a time per Interpreter.
type Interpreter struct {
	cfg Config
	log *zap.Logger
}

// New creates an Interpreter.
func New(cfg Config) *Interpreter {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Interpreter{cfg: cfg, log: cfg.Log}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Session is the state of one running job. It is handed to every act handler.
type Session struct {
	Job    *types.Job
	Report *types.Report
	Log    *zap.Logger

	// Browser and Page are nil until a launch act succeeds.
	Browser   browser.Session
	Page      browser.Page
	BrowserID string
	DeviceID  string

	// History holds the indices of executed acts, in execution order.
	History []int

	console browser.ConsoleStats
}

// lastSubject returns the most recently executed act that is not a branch.
func (s *Session) lastSubject() types.Act {
	for i := len(s.History) - 1; i >= 0; i-- {
		act := s.Report.Acts[s.History[i]]
		if act.Base().Type != types.ActNext {
			return act
		}
	}
	return nil
}

// closeBrowser ends the current browser session, keeping its console telemetry.
func (s *Session) closeBrowser() {
	if s.Browser == nil {
		return
	}
	stats := s.Browser.ConsoleStats()
	s.console.LogCount += stats.LogCount
	s.console.LogSize += stats.LogSize
	s.console.ErrorLogCount += stats.ErrorLogCount
	s.console.ErrorLogSize += stats.ErrorLogSize
	if err := s.Browser.Close(); err != nil {
		s.Log.Warn("failed to close browser", zap.Error(err))
	}
	s.Browser = nil
	s.Page = nil
}

// DoJob executes a validated job and returns its report. It never fails: job
// level failures are recorded in the report's jobData.
func (in *Interpreter) DoJob(ctx context.Context, job *types.Job) *types.Report {
	log := in.log.With(zap.String("job", job.ID))
	start := in.cfg.Now()

	report, err := types.NewReport(job)
	if err != nil {
		report = &types.Report{Job: *job, JobData: types.JobData{
			ToolTimes:   map[string]float64{},
			Preventions: map[string]int{},
		}}
		report.JobData.StartTime = start.UTC().Format(time.RFC3339)
		report.Abort(0, err.Error())
		in.cfg.Metrics.recordJob("aborted")
		return report
	}
	report.JobData.StartTime = start.UTC().Format(time.RFC3339)

	s := &Session{
		Job:       job,
		Report:    report,
		Log:       log,
		BrowserID: job.BrowserID,
		DeviceID:  job.Device.ID,
	}

	if job.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, start.Add(job.Deadline()))
		defer cancel()
	}

	defer in.finalize(s, start)

	log.Info("job started", zap.Int("acts", len(report.Acts)), zap.Float64("timeLimit", job.TimeLimit))
	in.run(ctx, s)
	return report
}

// run is the act loop. The program counter leaves the act range to stop.
func (in *Interpreter) run(ctx context.Context, s *Session) {
	acts := s.Report.Acts
	pc := 0
	defer func() {
		if r := recover(); r != nil {
			s.Log.Error("act handler panicked", zap.Int("act", pc), zap.Any("panic", r))
			s.Report.Abort(pc, fmt.Sprintf("internal error: %v", r))
		}
	}()

	for pc >= 0 && pc < len(acts) {
		if ctx.Err() != nil {
			msg := "job time limit exceeded"
			if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				msg = "job canceled"
			}
			s.Report.Abort(pc, msg)
			s.Log.Warn("job stopped before act", zap.Int("act", pc), zap.String("reason", msg))
			return
		}

		act := acts[pc]
		base := act.Base()
		actStart := in.cfg.Now()
		base.StartTime = actStart.UnixMilli()
		next, err := in.doAct(ctx, s, pc, act)
		base.EndTime = in.cfg.Now().UnixMilli()
		s.History = append(s.History, pc)
		s.Report.JobData.ActCount++

		event := ActEvent{
			JobID:   s.Job.ID,
			Index:   pc,
			Type:    base.Type,
			Name:    base.Name,
			Result:  base.Result,
			Elapsed: in.cfg.Now().Sub(actStart),
		}
		if err != nil {
			message := err.Error()
			if errors.Is(err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				message = "job time limit exceeded"
			}
			s.Report.Abort(pc, message)
			event.Aborted = true
			event.Error = message
			in.cfg.Metrics.recordAct(string(base.Type), "aborted")
			s.Log.Warn("act aborted the job", zap.Int("act", pc), zap.String("type", string(base.Type)), zap.String("error", message))
			in.emit(s, event)
			return
		}
		in.cfg.Metrics.recordAct(string(base.Type), "ok")
		in.emit(s, event)
		pc = next
	}
}

func (in *Interpreter) emit(s *Session, event ActEvent) {
	if s.Job.Observe {
		s.Log.Info("act done", zap.Int("act", event.Index), zap.String("type", string(event.Type)), zap.Bool("aborted", event.Aborted))
	} else {
		s.Log.Debug("act done", zap.Int("act", event.Index), zap.String("type", string(event.Type)), zap.Bool("aborted", event.Aborted))
	}
	if in.cfg.OnProgress != nil {
		in.cfg.OnProgress(event)
	}
}

// finalize runs on every exit path of DoJob.
func (in *Interpreter) finalize(s *Session, start time.Time) {
	s.closeBrowser()
	if in.cfg.Runner != nil {
		if err := in.cfg.Runner.Cleanup(); err != nil {
			s.Log.Warn("failed to remove tool runner state", zap.Error(err))
		}
	}

	end := in.cfg.Now()
	data := &s.Report.JobData
	data.EndTime = end.UTC().Format(time.RFC3339)
	data.ElapsedSeconds = int(math.Round(end.Sub(start).Seconds()))
	data.LogCount = s.console.LogCount
	data.LogSize = s.console.LogSize
	data.ErrorLogCount = s.console.ErrorLogCount
	data.ErrorLogSize = s.console.ErrorLogSize

	outcome := "completed"
	if data.Aborted {
		outcome = "aborted"
	}
	in.cfg.Metrics.recordJob(outcome)
	s.Log.Info("job finished",
		zap.String("outcome", outcome),
		zap.Int("actCount", data.ActCount),
		zap.Int("elapsedSeconds", data.ElapsedSeconds))
}

// doAct dispatches one act and returns the next program counter.
func (in *Interpreter) doAct(ctx context.Context, s *Session, pc int, act types.Act) (int, error) {
	next := pc + 1
	var err error
	switch a := act.(type) {
	case *types.LaunchAct:
		err = in.doLaunch(ctx, s, a)
	case *types.URLAct:
		err = in.doURL(ctx, s, a)
	case *types.WaitAct:
		err = in.doWait(ctx, s, a)
	case *types.StateAct:
		err = in.doState(ctx, s, a)
	case *types.PageAct:
		err = in.doPage(ctx, s, a)
	case *types.RevealAct:
		err = in.doReveal(ctx, s, a)
	case *types.MoveAct:
		err = in.doMove(ctx, s, a)
	case *types.PressAct:
		err = in.doPress(ctx, s, a)
	case *types.PressesAct:
		err = in.doPresses(ctx, s, a)
	case *types.NextAct:
		next = in.doNext(s, pc, a)
	case *types.TestAct:
		err = in.doTest(ctx, s, a)
	default:
		err = abortf(nil, "unsupported act type %q", act.Base().Type)
	}
	return next, err
}
