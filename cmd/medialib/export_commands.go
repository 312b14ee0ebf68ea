package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"medialib/internal/library"
	"medialib/internal/migration"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a JSON backup of the whole library",
		Long: "Export every script, asset, prompt, and mapping as a versioned JSON document.\n" +
			"Without --output the backup lands in the configured backup directory; use -o - for stdout.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *library.Store) error {
				opCtx := ctx.operationContext(cmd, "export")
				repairer := ctx.repairer(store)

				if strings.TrimSpace(outputPath) == "-" {
					snap, err := repairer.ExportDatabase(opCtx)
					if err != nil {
						return err
					}
					return snap.Encode(cmd.OutOrStdout())
				}

				result, err := repairer.WriteBackup(opCtx, outputPath)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				printBackup(out, &result)
				fmt.Fprintln(out, renderCounts(result.Counts))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Destination file, or - for stdout")
	return cmd
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import PATH",
		Short: "Restore a JSON backup into an empty library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := migration.ReadSnapshotFile(args[0])
			if err != nil {
				return err
			}
			return ctx.withLock(func(store *library.Store) error {
				opCtx := ctx.operationContext(cmd, "import")
				counts, err := ctx.repairer(store).ImportDatabase(opCtx, snap)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, counts)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Imported backup exported %s\n", snap.ExportedAt.Format("2006-01-02 15:04:05 MST"))
				fmt.Fprintln(out, renderCounts(counts))
				return nil
			})
		},
	}
}

func renderCounts(counts library.Counts) string {
	rows := [][]string{
		{"Scripts", strconv.Itoa(counts.Scripts)},
		{"Prompts", strconv.Itoa(counts.Prompts)},
	}
	for _, kind := range library.Kinds {
		rows = append(rows, []string{kind.Collection(), strconv.Itoa(counts.Assets[kind])})
	}
	rows = append(rows, []string{"Mappings", strconv.Itoa(counts.Mappings)})
	return renderTable([]string{"Table", "Rows"}, rows, []columnAlignment{alignLeft, alignRight})
}
