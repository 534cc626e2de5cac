package interpreter

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/jonathan/a11y-auditor/internal/identify"
	"github.com/jonathan/a11y-auditor/internal/runner"
	"github.com/jonathan/a11y-auditor/internal/standardize"
	"github.com/jonathan/a11y-auditor/internal/tools"
	"github.com/jonathan/a11y-auditor/internal/types"
)

// doTest hands the act to the tool runner, then standardizes and identifies
// its findings as the job requests. Tool failures mark the act prevented;
// only a failed navigation inside the sub-execution aborts the job.
func (in *Interpreter) doTest(ctx context.Context, s *Session, a *types.TestAct) error {
	if err := requirePage(s, a); err != nil {
		return err
	}
	if in.cfg.Runner == nil {
		a.Data = map[string]any{"prevented": true, "error": "no tool runner configured"}
		return nil
	}

	url, err := s.Page.URL(ctx)
	if err != nil {
		s.Log.Debug("current URL unavailable", zap.Error(err))
	}
	out := in.cfg.Runner.Run(ctx, runner.Request{
		JobID:     s.Job.ID,
		BrowserID: s.BrowserID,
		DeviceID:  s.DeviceID,
		URL:       url,
		Act:       a,
		TimeLimit: tools.TimeLimit(a),
		Page:      s.Page,
	})

	seconds := math.Round(out.Elapsed.Seconds()*1000) / 1000
	s.Report.JobData.ToolTimes[a.Which] += seconds
	in.cfg.Metrics.recordTool(a.Which, out.Elapsed.Seconds())

	if out.Prevented() {
		data := make(map[string]any, len(out.Data)+3)
		for k, v := range out.Data {
			data[k] = v
		}
		data["prevented"] = true
		data["error"] = out.Message
		data["reason"] = string(out.Status)
		a.Data = data
		a.Result = nil
		s.Report.JobData.Preventions[a.Which]++
		in.cfg.Metrics.recordPrevention(a.Which, string(out.Status))
		s.Log.Warn("tool prevented",
			zap.String("tool", a.Which),
			zap.String("reason", string(out.Status)),
			zap.String("error", out.Message))
		if out.Status == runner.StatusNavigationError {
			return abortf(nil, "%s could not reach the page: %s", a.Which, out.Message)
		}
	} else {
		a.Data = out.Data
		a.Result = out.Result
	}

	if s.Job.Standard != types.StandardNo {
		std := standardize.Act(a, s.Log)
		identify.NewResolver(s.Page, s.Log).All(ctx, std)
		a.StandardResult = std
	}
	if s.Job.Standard == types.StandardOnly {
		a.Result = nil
	}
	return nil
}
