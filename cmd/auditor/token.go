package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/a11y-auditor/internal/config"
	"github.com/jonathan/a11y-auditor/internal/server"
)

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token CLIENT",
		Short: "Mint an API bearer token for a client",
		Long:  "Prints a token signed with JWT_SECRET that names CLIENT and expires after JWT_EXPIRATION_HOURS.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jwtConfig, err := config.NewJWTConfig()
			if err != nil {
				return fmt.Errorf("failed to create JWT config: %w", err)
			}
			token, err := server.NewJWTService(jwtConfig).GenerateToken(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
}
