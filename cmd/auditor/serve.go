package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/a11y-auditor/internal/config"
	"github.com/jonathan/a11y-auditor/internal/server"
	"github.com/jonathan/a11y-auditor/internal/server/ratelimit"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		port          int
		watch         bool
		maxConcurrent int
		noAuth        bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Starts an HTTP server that runs submitted jobs (POST /jobs, POST /jobs/stream),
serves stored reports (/reports) and exposes /health and /metrics.

Job and report routes require a bearer token signed with JWT_SECRET unless --no-auth is set.
With --watch the job directory is watched as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			var jwtService *server.JWTService
			if !noAuth {
				jwtConfig, err := config.NewJWTConfig()
				if err != nil {
					return fmt.Errorf("failed to create JWT config: %w", err)
				}
				jwtService = server.NewJWTService(jwtConfig)
			} else {
				log.Warn("authentication disabled")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			engine, err := opts.newEngine(cfg, log, reg)
			if err != nil {
				return err
			}

			database, err := connectDB(ctx, cfg, log)
			if err != nil {
				return err
			}
			deps := server.Deps{
				Engine:    engine,
				JWT:       jwtService,
				RateLimit: ratelimit.LoadConfig(),
				Gatherer:  reg,
				Log:       log,
			}
			if database != nil {
				defer database.Close()
				deps.Reports = database
			}
			srv := server.New(server.Config{Port: cfg.Port, MaxConcurrentJobs: maxConcurrent}, deps)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Run(gctx) })
			if watch {
				w, closeFn, err := opts.newDirWatcher(gctx, cfg, log.With(zap.String("component", "watcher")))
				if err != nil {
					stop()
					_ = g.Wait()
					return err
				}
				defer closeFn()
				g.Go(func() error { return w.Run(gctx) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (default 8080)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Also run jobs from the job directory")
	cmd.Flags().IntVar(&maxConcurrent, "max-jobs", 2, "Jobs the API runs at once")
	cmd.Flags().BoolVar(&noAuth, "no-auth", false, "Serve without bearer authentication")
	return cmd
}
