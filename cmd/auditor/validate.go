package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	internalschemas "github.com/jonathan/a11y-auditor/internal/schemas"
	"github.com/jonathan/a11y-auditor/internal/validation"
	"github.com/jonathan/a11y-auditor/schemas"
)

func newValidateCmd() *cobra.Command {
	var reports bool
	cmd := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check job files, or report files with --report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				err := validateFile(path, reports)
				if err != nil {
					failed++
					fmt.Fprintf(out, "✗ %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(out, "✓ %s\n", path)
			}
			if failed > 0 {
				return fmt.Errorf("validation failed for %d of %d files", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&reports, "report", false, "Validate report files against the report schema")
	return cmd
}

func validateFile(path string, report bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if report {
		return internalschemas.ValidateJSONString(schemas.Report, string(data))
	}
	_, err = validation.ParseJob(data)
	return err
}
