package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"medialib/internal/library"
	"medialib/internal/migration"
)

const maxFindingRows = 50

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check migration state and data quality without changing anything",
		Long: "Scan every asset collection, the mapping table, and all scripts.\n" +
			"Warnings describe data quality; the command fails only on errors such as a missing collection.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *library.Store) error {
				opCtx := ctx.operationContext(cmd, "verify")
				report, err := ctx.repairer(store).Verifier().Verify(opCtx)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					if err := writeJSON(cmd, report); err != nil {
						return err
					}
				} else {
					printReport(cmd.OutOrStdout(), report, shouldColorize(cmd.OutOrStdout()))
				}
				if !report.OK {
					return fmt.Errorf("verification failed with %d error(s)", len(report.Errors))
				}
				return nil
			})
		},
	}
}

func printReport(out io.Writer, report migration.Report, colorize bool) {
	for _, line := range renderSectionHeader("Library verification", colorize) {
		fmt.Fprintln(out, line)
	}
	stats := report.Stats

	overall := statusOK
	summary := "no errors"
	if !report.OK {
		overall = statusError
		summary = fmt.Sprintf("%d error(s)", len(report.Errors))
	} else if len(report.Warnings) > 0 {
		overall = statusWarn
		summary = fmt.Sprintf("%d warning(s)", len(report.Warnings))
	}
	fmt.Fprintln(out, renderStatusLine("Result", overall, summary, colorize))

	missingMeta := stats.TotalAssets - stats.AssetsWithMetadata
	fmt.Fprintln(out, renderStatusLine("Metadata", countStatus(missingMeta, statusWarn),
		fmt.Sprintf("%d of %d assets complete", stats.AssetsWithMetadata, stats.TotalAssets), colorize))
	fmt.Fprintln(out, renderStatusLine("Unmigrated scripts", countStatus(stats.UnmigratedScripts, statusWarn),
		fmt.Sprintf("%d of %d (%d legacy pointers)", stats.UnmigratedScripts, stats.TotalScripts, stats.LegacyPointers), colorize))
	fmt.Fprintln(out, renderStatusLine("Duplicate mappings", countStatus(stats.DuplicateMappings, statusWarn),
		strconv.Itoa(stats.DuplicateMappings), colorize))
	fmt.Fprintln(out, renderStatusLine("Dangling mappings", countStatus(stats.DanglingMappings, statusWarn),
		strconv.Itoa(stats.DanglingMappings), colorize))
	fmt.Fprintln(out, renderStatusLine("Orphaned assets", countStatus(stats.OrphanedAssets, statusInfo),
		strconv.Itoa(stats.OrphanedAssets), colorize))
	fmt.Fprintln(out)

	rows := make([][]string, 0, len(library.Kinds)+1)
	for _, kind := range library.Kinds {
		rows = append(rows, []string{kindLabel(kind), strconv.Itoa(stats.AssetsByKind[kind])})
	}
	rows = append(rows, []string{"Mappings", strconv.Itoa(stats.TotalMappings)})
	fmt.Fprintln(out, renderTable([]string{"Collection", "Rows"}, rows, []columnAlignment{alignLeft, alignRight}))

	findings := make([]migration.Finding, 0, len(report.Errors)+len(report.Warnings))
	findings = append(findings, report.Errors...)
	findings = append(findings, report.Warnings...)
	if len(findings) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderFindings(findings, len(report.Errors)))

	byCode := report.WarningsByCode()
	codes := make([]string, 0, len(byCode))
	for code := range byCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	parts := make([]string, 0, len(codes))
	for _, code := range codes {
		parts = append(parts, fmt.Sprintf("%s=%d", code, byCode[code]))
	}
	if len(parts) > 0 {
		fmt.Fprintf(out, "Warnings by code: %s\n", strings.Join(parts, ", "))
	}
}

func renderFindings(findings []migration.Finding, errorCount int) string {
	shown := findings
	if len(shown) > maxFindingRows {
		shown = shown[:maxFindingRows]
	}
	rows := make([][]string, 0, len(shown)+1)
	for i, f := range shown {
		severity := "warning"
		if i < errorCount {
			severity = "error"
		}
		rows = append(rows, []string{severity, f.Code, findingTarget(f), f.Message})
	}
	if hidden := len(findings) - len(shown); hidden > 0 {
		rows = append(rows, []string{"", "", "", fmt.Sprintf("... and %d more (use --json for the full list)", hidden)})
	}
	return renderTable([]string{"Severity", "Code", "Target", "Message"}, rows, nil)
}

func findingTarget(f migration.Finding) string {
	var parts []string
	if f.ScriptID > 0 {
		parts = append(parts, fmt.Sprintf("script %d", f.ScriptID))
	}
	if f.SceneID != "" {
		parts = append(parts, f.SceneID)
	}
	if f.MappingID > 0 {
		parts = append(parts, fmt.Sprintf("mapping %d", f.MappingID))
	}
	if f.Kind != "" && f.AssetID > 0 {
		parts = append(parts, library.AssetRef{Kind: f.Kind, ID: f.AssetID}.String())
	} else if f.Kind != "" {
		parts = append(parts, string(f.Kind))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}
