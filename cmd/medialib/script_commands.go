package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"medialib/internal/library"
)

// scriptFile is the on-disk shape accepted by `script add`.
type scriptFile struct {
	Title string        `json:"title"`
	Acts  []library.Act `json:"acts"`
}

type scriptRow struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Scenes         int       `json:"scenes"`
	LegacyPointers int       `json:"legacyPointers"`
	Mappings       int       `json:"mappings"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func newScriptCommand(ctx *commandContext) *cobra.Command {
	scriptCmd := &cobra.Command{
		Use:   "script",
		Short: "Add and list scripts",
	}
	scriptCmd.AddCommand(newScriptAddCommand(ctx))
	scriptCmd.AddCommand(newScriptListCommand(ctx))
	scriptCmd.AddCommand(newScriptShowCommand(ctx))
	scriptCmd.AddCommand(newScriptUpdateCommand(ctx))
	return scriptCmd
}

func newScriptAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add FILE.json",
		Short: `Store a script from a JSON file of the form {"title": ..., "acts": [...]}`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read script file: %w", err)
			}
			var file scriptFile
			if err := json.Unmarshal(raw, &file); err != nil {
				return fmt.Errorf("decode script file: %w", err)
			}
			return ctx.withStore(func(store *library.Store) error {
				script, err := store.CreateScript(ctx.operationContext(cmd, "script-add"), file.Title, file.Acts)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, script)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added script %d %q with %d scene(s)\n",
					script.ID, script.Title, len(script.Scenes()))
				return nil
			})
		},
	}
}

func newScriptListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scripts with their scene, legacy pointer, and mapping counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pageSize := ctx.configValue().Migration.ScanPageSize
			return ctx.withStore(func(store *library.Store) error {
				opCtx := ctx.operationContext(cmd, "script-list")
				rows := make([]scriptRow, 0)
				var after int64
				for {
					page, err := store.ListScripts(opCtx, after, pageSize)
					if err != nil {
						return err
					}
					for _, script := range page {
						mappings, err := store.CountMappingsForScript(opCtx, script.ID)
						if err != nil {
							return err
						}
						rows = append(rows, newScriptRow(script, mappings))
					}
					if len(page) < pageSize || len(page) == 0 {
						break
					}
					after = page[len(page)-1].ID
				}

				if ctx.jsonOutput() {
					return writeJSON(cmd, rows)
				}
				out := cmd.OutOrStdout()
				if len(rows) == 0 {
					fmt.Fprintln(out, "No scripts stored")
					return nil
				}
				table := make([][]string, 0, len(rows))
				for _, row := range rows {
					table = append(table, []string{
						strconv.FormatInt(row.ID, 10),
						row.Title,
						strconv.Itoa(row.Scenes),
						strconv.Itoa(row.LegacyPointers),
						strconv.Itoa(row.Mappings),
						humanize.Time(row.UpdatedAt),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Title", "Scenes", "Legacy", "Mappings", "Updated"},
					table,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
}

func newScriptRow(script library.Script, mappings int) scriptRow {
	row := scriptRow{
		ID:        script.ID,
		Title:     script.Title,
		Mappings:  mappings,
		UpdatedAt: script.UpdatedAt,
	}
	for _, ref := range script.Scenes() {
		row.Scenes++
		for _, kind := range library.Kinds {
			if _, ok := ref.Scene.LegacyPointer(kind); ok {
				row.LegacyPointers++
			}
		}
	}
	return row
}

type sceneRow struct {
	SceneID     string           `json:"sceneId"`
	Title       string           `json:"title,omitempty"`
	LegacyImage int64            `json:"legacyImageId,omitempty"`
	LegacyVideo int64            `json:"legacyVideoId,omitempty"`
	Mapped      map[string]int64 `json:"mapped"`
}

func newScriptShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show SCRIPT",
		Short: "Show each scene with its legacy pointers and mapped assets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scriptID, err := parseID("script id", args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *library.Store) error {
				opCtx := ctx.operationContext(cmd, "script-show")
				script, err := store.GetScript(opCtx, scriptID)
				if err != nil {
					return err
				}
				if script == nil {
					return fmt.Errorf("script %d not found", scriptID)
				}
				mappings, err := store.MappingsForScript(opCtx, scriptID)
				if err != nil {
					return err
				}
				rows := sceneRows(*script, mappings)

				if ctx.jsonOutput() {
					return writeJSON(cmd, rows)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Script %d %q, updated %s\n", script.ID, script.Title, humanize.Time(script.UpdatedAt))
				table := make([][]string, 0, len(rows))
				for _, row := range rows {
					cells := []string{row.SceneID, orDash(row.Title), optionalID(row.LegacyImage), optionalID(row.LegacyVideo)}
					for _, kind := range library.Kinds {
						cells = append(cells, optionalID(row.Mapped[string(kind)]))
					}
					table = append(table, cells)
				}
				headers := []string{"Scene", "Title", "Legacy image", "Legacy video"}
				for _, kind := range library.Kinds {
					headers = append(headers, "Mapped "+strings.ToLower(kindLabel(kind)))
				}
				fmt.Fprintln(out, renderTable(headers, table,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight}))
				return nil
			})
		},
	}
}

// sceneRows lists the scenes of script in order, then any mapped keys the
// script content does not mention, such as script-level assets. Only the
// canonical (lowest id) mapping of each key is shown.
func sceneRows(script library.Script, mappings []library.Mapping) []sceneRow {
	var rows []sceneRow
	index := make(map[string]int)
	for _, ref := range script.Scenes() {
		row := sceneRow{SceneID: ref.SceneID, Title: ref.Scene.Title, Mapped: map[string]int64{}}
		row.LegacyImage, _ = ref.Scene.LegacyPointer(library.KindImage)
		row.LegacyVideo, _ = ref.Scene.LegacyPointer(library.KindVideo)
		index[ref.SceneID] = len(rows)
		rows = append(rows, row)
	}
	for _, m := range mappings {
		sceneID := m.SceneID
		if sceneID == "" {
			sceneID = "-"
		}
		i, ok := index[sceneID]
		if !ok {
			i = len(rows)
			index[sceneID] = i
			rows = append(rows, sceneRow{SceneID: sceneID, Mapped: map[string]int64{}})
		}
		if _, seen := rows[i].Mapped[string(m.AssetType)]; !seen {
			rows[i].Mapped[string(m.AssetType)] = m.AssetID
		}
	}
	return rows
}

func optionalID(id int64) string {
	if id <= 0 {
		return "-"
	}
	return strconv.FormatInt(id, 10)
}

func newScriptUpdateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "update SCRIPT FILE.json",
		Short: "Replace the acts and scenes of a script; mappings are left untouched",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			scriptID, err := parseID("script id", args[0])
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read script file: %w", err)
			}
			var file scriptFile
			if err := json.Unmarshal(raw, &file); err != nil {
				return fmt.Errorf("decode script file: %w", err)
			}
			return ctx.withStore(func(store *library.Store) error {
				if err := store.UpdateScriptActs(ctx.operationContext(cmd, "script-update"), scriptID, file.Acts); err != nil {
					if errors.Is(err, sql.ErrNoRows) {
						return fmt.Errorf("script %d not found", scriptID)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated script %d\n", scriptID)
				return nil
			})
		},
	}
}
