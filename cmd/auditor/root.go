package main

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/a11y-auditor/internal/browser"
	"github.com/jonathan/a11y-auditor/internal/config"
	"github.com/jonathan/a11y-auditor/internal/dispatch"
	"github.com/jonathan/a11y-auditor/internal/fetch"
	"github.com/jonathan/a11y-auditor/internal/interpreter"
	"github.com/jonathan/a11y-auditor/internal/observability"
	"github.com/jonathan/a11y-auditor/internal/runner"
	"github.com/jonathan/a11y-auditor/internal/tools"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	flags      config.Config
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&rootOptions{})
}

func buildRootCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auditor",
		Short: "Accessibility audit job runner",
		Long: `auditor executes accessibility audit jobs: ordered lists of browser acts and
tool tests run against web pages, producing a report with standardized findings.

Configuration can be loaded from a JSON or YAML file using --config. Command-line
flags override config file values.`,
		SilenceUsage: true,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "Path to a config file (.json, .yaml or .yml)")
	f.StringVar(&opts.flags.Driver, "driver", "", "Browser driver: chromedp or rod")
	f.BoolVar(&opts.flags.Headed, "headed", false, "Show browser windows")
	f.BoolVar(&opts.flags.InProcess, "in-process", false, "Run tools inside this process instead of an isolated sub-process")
	f.StringVar(&opts.flags.ScriptDir, "script-dir", "", "Directory of injected tool bundles")
	f.StringVar(&opts.flags.NuValURL, "nuval-url", "", "Nu Html Checker endpoint")
	f.StringVar(&opts.flags.WAVEURL, "wave-url", "", "WAVE API endpoint")
	f.StringVar(&opts.flags.DatabaseURL, "db-url", "", "PostgreSQL connection URL (defaults to DATABASE_URL)")
	f.StringVar(&opts.flags.LogLevel, "log-level", "", "Log level: debug, info, warn or error")
	f.StringVar(&opts.flags.LogFormat, "log-format", "", "Log encoding: json or console")
	f.BoolVarP(&opts.flags.Verbose, "verbose", "v", false, "Print progress and summaries")

	cmd.AddCommand(
		newRunCmd(opts),
		newValidateCmd(),
		newWatchCmd(opts),
		newPollCmd(opts),
		newServeCmd(opts),
		newTokenCmd(),
		newToolExecCmd(opts),
	)
	return cmd
}

// loadConfig merges the config file, explicitly set flags, the environment and
// the defaults, in that order of precedence after flags.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if o.configPath != "" {
		loaded, err := config.LoadConfig(o.configPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}

	// Only override if the flag was explicitly set
	changed := func(name string) bool { return cmd.Flags().Changed(name) }
	if changed("driver") {
		cfg.Driver = o.flags.Driver
	}
	if changed("headed") {
		cfg.Headed = o.flags.Headed
	}
	if changed("in-process") {
		cfg.InProcess = o.flags.InProcess
	}
	if changed("script-dir") {
		cfg.ScriptDir = o.flags.ScriptDir
	}
	if changed("nuval-url") {
		cfg.NuValURL = o.flags.NuValURL
	}
	if changed("wave-url") {
		cfg.WAVEURL = o.flags.WAVEURL
	}
	if changed("db-url") {
		cfg.DatabaseURL = o.flags.DatabaseURL
	}
	if changed("log-level") {
		cfg.LogLevel = o.flags.LogLevel
	}
	if changed("log-format") {
		cfg.LogFormat = o.flags.LogFormat
	}
	if changed("verbose") {
		cfg.Verbose = o.flags.Verbose
	}

	cfg.ApplyEnv()
	cfg = cfg.MergeWithDefaults(config.Defaults())
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level := cfg.LogLevel
	if cfg.Verbose {
		level = "debug"
	}
	return observability.NewLogger(level, cfg.LogFormat)
}

func newLauncher(cfg config.Config) browser.Launcher {
	if cfg.Driver == config.DriverRod {
		return browser.NewRodLauncher("")
	}
	return browser.NewChromedpLauncher("")
}

func httpOptions(cfg config.Config) *fetch.Options {
	opts := fetch.DefaultOptions()
	opts.UserAgent = "a11y-auditor (" + cfg.Agent + ")"
	return opts
}

func newRegistry(cfg config.Config, log *zap.Logger) *tools.Registry {
	return tools.DefaultRegistry(tools.Options{
		ScriptDir: cfg.ScriptDir,
		NuValURL:  cfg.NuValURL,
		WAVEURL:   cfg.WAVEURL,
		WAVEKey:   cfg.WAVEKey,
		HTTP:      httpOptions(cfg),
		Log:       log,
	})
}

// childArgs are the arguments a tool-exec child needs to rebuild the parent's setup.
func (o *rootOptions) childArgs(cfg config.Config) []string {
	args := []string{
		runner.DefaultSubcommand,
		"--driver", cfg.Driver,
		"--script-dir", cfg.ScriptDir,
		"--nuval-url", cfg.NuValURL,
		"--wave-url", cfg.WAVEURL,
		"--log-level", cfg.LogLevel,
		"--log-format", observability.FormatJSON,
	}
	if o.configPath != "" {
		args = append(args, "--config", o.configPath)
	}
	return args
}

// newEngine builds the interpreter configuration for cfg. reg may be nil.
func (o *rootOptions) newEngine(cfg config.Config, log *zap.Logger, reg prometheus.Registerer) (interpreter.Config, error) {
	launcher := newLauncher(cfg)
	engine := interpreter.Config{
		Launcher: launcher,
		Log:      log,
		Headless: !cfg.Headed,
	}
	if reg != nil {
		engine.Metrics = interpreter.NewMetrics(reg)
	}

	if cfg.InProcess {
		child := &runner.Child{Launcher: launcher, Tools: newRegistry(cfg, log), Log: log}
		engine.Runner = runner.NewInProcessRunner(child, log)
		return engine, nil
	}

	var env []string
	if cfg.WAVEKey != "" {
		env = append(env, "WAVE_KEY="+cfg.WAVEKey)
	}
	procRunner, err := runner.NewProcessRunner(runner.ProcessConfig{
		Args: o.childArgs(cfg),
		Env:  env,
		Log:  log,
	})
	if err != nil {
		return interpreter.Config{}, err
	}
	engine.Runner = procRunner
	return engine, nil
}

// reportStore is where reports go when a job names no destination.
func reportStore(cfg config.Config, extra ...dispatch.Store) dispatch.Store {
	stores := dispatch.MultiStore{&dispatch.FileStore{Dir: cfg.ReportDir}}
	stores = append(stores, extra...)
	if len(stores) == 1 {
		return stores[0]
	}
	return stores
}

func pollInterval(cfg config.Config) time.Duration {
	return time.Duration(cfg.PollInterval) * time.Second
}
