package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/a11y-auditor/internal/dispatch"
	"github.com/jonathan/a11y-auditor/internal/interpreter"
)

func newPollCmd(opts *rootOptions) *cobra.Command {
	var (
		jobURL    string
		reportURL string
		agent     string
		interval  int
		once      bool
	)
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Fetch jobs from a job server and run them",
		Long: `Asks the job server at --job-url for work, runs each job it returns and sends
the report to the job's sendReportTo, else to --report-url, else to the report directory.
An empty response or {} means there is no work; the next request waits --interval seconds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("job-url") {
				cfg.JobURL = jobURL
			}
			if cmd.Flags().Changed("report-url") {
				cfg.ReportURL = reportURL
			}
			if cmd.Flags().Changed("agent") {
				cfg.Agent = agent
			}
			if cmd.Flags().Changed("interval") {
				cfg.PollInterval = interval
			}
			if cfg.JobURL == "" {
				return fmt.Errorf("a job URL is required (--job-url, job_url or JOB_URL)")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			engine, err := opts.newEngine(cfg, log, nil)
			if err != nil {
				return err
			}
			var store dispatch.Store = reportStore(cfg)
			if cfg.ReportURL != "" {
				store = &dispatch.HTTPStore{URL: cfg.ReportURL, Options: httpOptions(cfg)}
			}

			poller := &dispatch.NetPoller{
				JobURL:   cfg.JobURL,
				Agent:    cfg.Agent,
				Interval: pollInterval(cfg),
				Dispatcher: &dispatch.Dispatcher{
					Exec:  interpreter.New(engine),
					Store: store,
					HTTP:  httpOptions(cfg),
					Log:   log,
				},
				HTTP: httpOptions(cfg),
				Log:  log,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if once {
				_, err := poller.Poll(ctx)
				return err
			}
			return poller.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&jobURL, "job-url", "", "Job server URL")
	cmd.Flags().StringVar(&reportURL, "report-url", "", "Default report destination")
	cmd.Flags().StringVar(&agent, "agent", "", "Agent name sent with job requests")
	cmd.Flags().IntVar(&interval, "interval", 0, "Seconds to wait after an idle or failed poll")
	cmd.Flags().BoolVar(&once, "once", false, "Make one request and exit")
	return cmd
}
