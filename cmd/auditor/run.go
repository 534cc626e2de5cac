package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/a11y-auditor/internal/dispatch"
	"github.com/jonathan/a11y-auditor/internal/interpreter"
	"github.com/jonathan/a11y-auditor/internal/observability"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		outPath string
		save    bool
	)
	cmd := &cobra.Command{
		Use:   "run JOB_FILE",
		Short: "Run one job file and write its report",
		Long: `Validates and runs a job file, then writes the report as JSON to --out or stdout.

A job with sendReportTo also posts its report there. --save additionally stores
the report in the report directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read job file: %w", err)
			}

			engine, err := opts.newEngine(cfg, log, nil)
			if err != nil {
				return err
			}

			// Human-readable output shares stdout only when the report goes to a file.
			var printer *observability.Printer
			if cfg.Verbose {
				var w io.Writer = cmd.ErrOrStderr()
				if outPath != "" {
					w = cmd.OutOrStdout()
				}
				printer = observability.NewPrinter(w)
				engine.OnProgress = func(e interpreter.ActEvent) {
					detail := e.Error
					if detail == "" {
						detail = e.Name
					}
					printer.PrintProgress(e.Index, e.Type, e.Aborted, detail)
				}
			}

			d := &dispatch.Dispatcher{Exec: interpreter.New(engine), HTTP: httpOptions(cfg), Log: log}
			if save {
				d.Store = reportStore(cfg)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			out, runErr := d.Handle(ctx, raw)
			if out.Report == nil {
				return runErr
			}
			if runErr != nil {
				log.Error("report delivery failed", zap.Error(runErr))
			}

			if printer != nil {
				printer.PrintJobSummary(out.Report)
				printer.PrintFindings(out.Report)
			}

			data, err := json.MarshalIndent(out.Report, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode report: %w", err)
			}
			data = append(data, '\n')
			if outPath == "" {
				_, err = cmd.OutOrStdout().Write(data)
			} else {
				err = os.WriteFile(outPath, data, 0o644)
			}
			if err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Report file (default stdout)")
	cmd.Flags().BoolVar(&save, "save", false, "Also store the report in the report directory")
	return cmd
}
