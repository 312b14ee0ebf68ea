package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"medialib/internal/library"
	"medialib/internal/migration"
)

type repairResult struct {
	Repair  string                  `json:"repair"`
	Changed int                     `json:"changed"`
	Backup  *migration.BackupResult `json:"backup,omitempty"`
}

type repairStep struct {
	use     string
	short   string
	message string
	run     func(*migration.Repairer, context.Context) (int, error)
}

var repairSteps = []repairStep{
	{
		use:     "metadata",
		short:   "Backfill upload source, MIME type, and upload time on assets missing them",
		message: "Filled missing metadata on %d asset(s)",
		run:     (*migration.Repairer).FixMissingMetadata,
	},
	{
		use:     "mappings",
		short:   "Create mappings from the asset pointers embedded in script scenes",
		message: "Created %d mapping(s) from scene pointers",
		run:     (*migration.Repairer).RebuildMappingsFromScenes,
	},
	{
		use:     "duplicates",
		short:   "Collapse duplicate mappings, keeping the earliest row per scene and kind",
		message: "Removed %d duplicate mapping(s)",
		run:     (*migration.Repairer).RemoveDuplicateMappings,
	},
}

func newRepairCommand(ctx *commandContext) *cobra.Command {
	var backupPath string

	repairCmd := &cobra.Command{
		Use:   "repair",
		Short: "Run idempotent repairs against the library",
	}
	repairCmd.PersistentFlags().StringVar(&backupPath, "backup", "", "Write an export to this path before repairing")

	for _, step := range repairSteps {
		repairCmd.AddCommand(newRepairStepCommand(ctx, step, &backupPath))
	}
	repairCmd.AddCommand(newRepairAllCommand(ctx, &backupPath))
	return repairCmd
}

func newRepairStepCommand(ctx *commandContext, step repairStep, backupPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   step.use,
		Short: step.short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLock(func(store *library.Store) error {
				opCtx := ctx.operationContext(cmd, "repair-"+step.use)
				repairer := ctx.repairer(store)
				result := repairResult{Repair: step.use}

				if path := strings.TrimSpace(*backupPath); path != "" {
					backup, err := repairer.WriteBackup(opCtx, path)
					if err != nil {
						return err
					}
					result.Backup = &backup
				}

				changed, err := step.run(repairer, opCtx)
				if err != nil {
					return err
				}
				result.Changed = changed

				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				printBackup(out, result.Backup)
				fmt.Fprintf(out, step.message+"\n", changed)
				return nil
			})
		},
	}
}

func newRepairAllCommand(ctx *commandContext, backupPath *string) *cobra.Command {
	var noBackup bool

	cmd := &cobra.Command{
		Use:   "all",
		Short: "Back up, run every repair in order, then verify",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := strings.TrimSpace(*backupPath)
			opts := migration.RunAllOptions{
				Backup:     (cfg.Migration.BackupBeforeRepair || path != "") && !noBackup,
				BackupPath: path,
			}
			return ctx.withLock(func(store *library.Store) error {
				opCtx := ctx.operationContext(cmd, "repair-all")
				summary, err := ctx.repairer(store).RunAll(opCtx, opts)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					if err := writeJSON(cmd, summary); err != nil {
						return err
					}
				} else {
					out := cmd.OutOrStdout()
					printBackup(out, summary.Backup)
					fmt.Fprintf(out, repairSteps[0].message+"\n", summary.MetadataFixed)
					fmt.Fprintf(out, repairSteps[1].message+"\n", summary.MappingsRebuilt)
					fmt.Fprintf(out, repairSteps[2].message+"\n", summary.DuplicatesRemoved)
					fmt.Fprintln(out)
					printReport(out, summary.Report, shouldColorize(out))
				}
				if !summary.Report.OK {
					return fmt.Errorf("verification after repair failed with %d error(s)", len(summary.Report.Errors))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "Skip the backup even when backup_before_repair is set")
	return cmd
}

func printBackup(out io.Writer, backup *migration.BackupResult) {
	if backup == nil {
		return
	}
	fmt.Fprintf(out, "Backup written to %s (%s, sha256 %s)\n", backup.Path, formatSize(backup.Size), backup.SHA256)
}
