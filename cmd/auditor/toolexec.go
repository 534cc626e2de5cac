package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/a11y-auditor/internal/runner"
)

// newToolExecCmd serves one tool request on stdin/stdout for a parent process
// runner.
func newToolExecCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:    runner.DefaultSubcommand,
		Short:  "Run one tool request from stdin (internal)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			child := &runner.Child{Launcher: newLauncher(cfg), Tools: newRegistry(cfg, log), Log: log}
			return child.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
