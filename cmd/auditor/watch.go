package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/a11y-auditor/internal/config"
	"github.com/jonathan/a11y-auditor/internal/db"
	"github.com/jonathan/a11y-auditor/internal/dispatch"
	"github.com/jonathan/a11y-auditor/internal/interpreter"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		jobDir    string
		reportDir string
		once      bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run job files as they appear in a directory",
		Long: `Runs every job file in <job-dir>/todo, then watches the directory for new ones.
Finished job files move to <job-dir>/done and invalid ones to <job-dir>/rejected.
Reports are written to the report directory, and to PostgreSQL when a database is configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("job-dir") {
				cfg.JobDir = jobDir
			}
			if cmd.Flags().Changed("report-dir") {
				cfg.ReportDir = reportDir
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w, closeFn, err := opts.newDirWatcher(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closeFn()

			if once {
				handled, err := w.Drain(ctx)
				log.Info("drained job directory", zap.Int("jobs", handled))
				return err
			}
			return w.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&jobDir, "job-dir", "", "Directory holding todo/, done/ and rejected/")
	cmd.Flags().StringVar(&reportDir, "report-dir", "", "Directory reports are written to")
	cmd.Flags().BoolVar(&once, "once", false, "Run the waiting jobs and exit")
	return cmd
}

// connectDB opens the report database when one is configured. The returned
// database is nil otherwise.
func connectDB(ctx context.Context, cfg config.Config, log *zap.Logger) (*db.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, err
	}
	log.Info("connected to report database")
	return database, nil
}

// newDirWatcher wires a directory watcher to a fresh engine. The returned
// function releases the database connection.
func (o *rootOptions) newDirWatcher(ctx context.Context, cfg config.Config, log *zap.Logger) (*dispatch.DirWatcher, func(), error) {
	engine, err := o.newEngine(cfg, log, nil)
	if err != nil {
		return nil, nil, err
	}
	database, err := connectDB(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {}
	var extra []dispatch.Store
	if database != nil {
		extra = append(extra, &dispatch.DBStore{DB: database})
		closeFn = database.Close
	}

	return &dispatch.DirWatcher{
		Root: cfg.JobDir,
		Dispatcher: &dispatch.Dispatcher{
			Exec:  interpreter.New(engine),
			Store: reportStore(cfg, extra...),
			HTTP:  httpOptions(cfg),
			Log:   log,
			Now:   time.Now,
		},
		Log: log,
	}, closeFn, nil
}
