package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"medialib/internal/library"
	"medialib/internal/preflight"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check directories, free disk space, and the database file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *library.Store) error {
				results := preflight.RunAll(ctx.operationContext(cmd, "health"), cfg, store)

				failed := 0
				for _, result := range results {
					if !result.Passed {
						failed++
					}
				}

				if ctx.jsonOutput() {
					if err := writeJSON(cmd, results); err != nil {
						return err
					}
				} else {
					out := cmd.OutOrStdout()
					colorize := shouldColorize(out)
					for _, line := range renderSectionHeader("Library health", colorize) {
						fmt.Fprintln(out, line)
					}
					for _, result := range results {
						kind := statusOK
						if !result.Passed {
							kind = statusError
						}
						fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d health check(s) failed", failed)
				}
				return nil
			})
		},
	}
}
