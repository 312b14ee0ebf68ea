package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"medialib/internal/logs"
)

const shortRunIDLength = 8

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var runID string
	var operation string
	var level string
	var listRuns bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recorded log output, optionally for a single run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.LogPath()
			out := cmd.OutOrStdout()

			if listRuns {
				runs, err := logs.Runs(path)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, runs)
				}
				printRuns(out, runs)
				return nil
			}

			filter := logs.Filter{RunID: strings.TrimSpace(runID), Operation: strings.TrimSpace(operation)}
			if strings.TrimSpace(level) != "" {
				if err := filter.MinLevel.UnmarshalText([]byte(level)); err != nil {
					return fmt.Errorf("invalid --level %q: %w", level, err)
				}
			}

			runCtx := cmd.Context()
			if runCtx == nil {
				runCtx = context.Background()
			}
			result, err := logs.Tail(runCtx, path, logs.TailOptions{Offset: -1, Limit: lines, Filter: filter})
			if err != nil {
				return err
			}
			printRecords(out, result.Records)
			if !follow {
				return nil
			}

			offset := result.Offset
			for {
				result, err := logs.Tail(runCtx, path, logs.TailOptions{Offset: offset, Follow: true, Wait: time.Minute, Filter: filter})
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
				printRecords(out, result.Records)
				offset = result.Offset
			}
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of records to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new records until interrupted")
	cmd.Flags().StringVar(&runID, "run", "", "Only show records of this run id (prefix accepted)")
	cmd.Flags().StringVar(&operation, "operation", "", "Only show records of this operation, e.g. repair-all")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level: debug, info, warn, error")
	cmd.Flags().BoolVar(&listRuns, "runs", false, "List the runs recorded in the log instead of records")
	return cmd
}

func printRecords(out io.Writer, records []logs.Record) {
	for _, rec := range records {
		fmt.Fprintln(out, rec.Format())
	}
}

func printRuns(out io.Writer, runs []logs.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return
	}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		id := run.RunID
		if len(id) > shortRunIDLength {
			id = id[:shortRunIDLength]
		}
		rows = append(rows, []string{
			id,
			orDash(run.Operation),
			humanize.Time(run.Started),
			run.Finished.Sub(run.Started).Round(time.Millisecond).String(),
			strconv.Itoa(run.Records),
			strconv.Itoa(run.Warnings),
			strconv.Itoa(run.Errors),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Run", "Operation", "Started", "Took", "Records", "Warnings", "Errors"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
	))
}
