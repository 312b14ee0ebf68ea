package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"medialib/internal/fileutil"
	"medialib/internal/handles"
	"medialib/internal/library"
	"medialib/internal/mapping"
	"medialib/internal/resolver"
)

type slotRow struct {
	Kind      library.Kind    `json:"kind"`
	Present   bool            `json:"present"`
	AssetID   int64           `json:"assetId,omitempty"`
	Source    resolver.Source `json:"source,omitempty"`
	MappingID int64           `json:"mappingId,omitempty"`
	Size      int             `json:"size,omitempty"`
	Handle    string          `json:"handle,omitempty"`
	SavedTo   string          `json:"savedTo,omitempty"`
}

type sceneView struct {
	ScriptID int64     `json:"scriptId"`
	SceneID  string    `json:"sceneId"`
	InScript bool      `json:"inScript"`
	Slots    []slotRow `json:"slots"`
}

func newSceneCommand(ctx *commandContext) *cobra.Command {
	sceneCmd := &cobra.Command{
		Use:   "scene",
		Short: "Resolve and edit the assets attached to a scene",
		Long: "SCENE is a scene identifier such as act0-scene1. Use - for assets attached to the script itself.\n" +
			"KIND is image, video, or audio.",
	}
	sceneCmd.AddCommand(newSceneShowCommand(ctx))
	sceneCmd.AddCommand(newSceneLinkCommand(ctx))
	sceneCmd.AddCommand(newSceneUnlinkCommand(ctx))
	sceneCmd.AddCommand(newSceneReplaceCommand(ctx))
	return sceneCmd
}

func newSceneShowCommand(ctx *commandContext) *cobra.Command {
	var saveDir string

	cmd := &cobra.Command{
		Use:   "show SCRIPT SCENE",
		Short: "Show which asset each kind resolves to, and from where",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			scriptID, err := parseID("script id", args[0])
			if err != nil {
				return err
			}
			sceneID := sceneArg(args[1])

			return ctx.withStore(func(store *library.Store) error {
				opCtx := ctx.operationContext(cmd, "scene-show")
				script, err := store.GetScript(opCtx, scriptID)
				if err != nil {
					return err
				}
				if script == nil {
					return fmt.Errorf("script %d not found", scriptID)
				}

				view := sceneView{ScriptID: scriptID, SceneID: sceneID}
				var legacy resolver.LegacyPointers
				if ref, ok := script.FindScene(sceneID); ok {
					view.InScript = true
					legacy = resolver.LegacyFromScene(ref.Scene)
				}

				registry := handles.NewRegistry()
				res := resolver.New(store, registry, ctx.loggerValue())
				sceneHandle := res.NewView(scriptID, sceneID)
				defer sceneHandle.Close()

				resolution, err := sceneHandle.Refresh(opCtx, legacy)
				if err != nil {
					return err
				}
				for _, kind := range library.Kinds {
					row := slotRow{Kind: kind}
					if slot := resolution.Slot(kind); slot != nil {
						row.Present = true
						row.AssetID = slot.AssetID
						row.Source = slot.Source
						row.MappingID = slot.MappingID
						row.Size = slot.Handle.Size
						row.Handle = slot.Handle.URL
						if saveDir != "" {
							path, err := saveSlot(registry, saveDir, resolution, slot)
							if err != nil {
								return err
							}
							row.SavedTo = path
						}
					}
					view.Slots = append(view.Slots, row)
				}

				if ctx.jsonOutput() {
					return writeJSON(cmd, view)
				}
				printSceneView(cmd.OutOrStdout(), view)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&saveDir, "save", "", "Write each resolved payload into this directory")
	return cmd
}

// saveSlot reads the payload through its handle, so only assets the
// resolution still holds can be written.
func saveSlot(registry *handles.Registry, dir string, res resolver.Resolution, slot *resolver.Slot) (string, error) {
	data, err := registry.Open(slot.Handle.URL)
	if err != nil {
		return "", err
	}
	scene := res.SceneID
	if scene == "" {
		scene = "script"
	}
	name := fileutil.SanitizeFileName(fmt.Sprintf("script%d-%s-%s-%d", res.ScriptID, scene, slot.Kind, slot.AssetID))
	written, err := fileutil.WriteAtomic(filepath.Join(dir, name), 0o644, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("save %s: %w", library.AssetRef{Kind: slot.Kind, ID: slot.AssetID}, err)
	}
	return written.Path, nil
}

func printSceneView(out io.Writer, view sceneView) {
	scene := view.SceneID
	if scene == "" {
		scene = "(script level)"
	}
	fmt.Fprintf(out, "Script %d, scene %s\n", view.ScriptID, scene)
	if !view.InScript && view.SceneID != "" {
		fmt.Fprintln(out, "Scene not found in script content; showing mappings only")
	}
	rows := make([][]string, 0, len(view.Slots))
	for _, slot := range view.Slots {
		if !slot.Present {
			rows = append(rows, []string{kindLabel(slot.Kind), "-", "absent", "-", "-"})
			continue
		}
		mappingCell := "-"
		if slot.MappingID > 0 {
			mappingCell = strconv.FormatInt(slot.MappingID, 10)
		}
		rows = append(rows, []string{
			kindLabel(slot.Kind),
			strconv.FormatInt(slot.AssetID, 10),
			string(slot.Source),
			mappingCell,
			formatSize(int64(slot.Size)),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Kind", "Asset", "Source", "Mapping", "Size"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignRight},
	))
	for _, slot := range view.Slots {
		if slot.SavedTo != "" {
			fmt.Fprintf(out, "Saved %s to %s\n", strings.ToLower(kindLabel(slot.Kind)), slot.SavedTo)
		}
	}
}

// sceneKeyArgs parses SCRIPT SCENE KIND.
func sceneKeyArgs(args []string) (library.MappingKey, error) {
	scriptID, err := parseID("script id", args[0])
	if err != nil {
		return library.MappingKey{}, err
	}
	kind, err := library.ParseKind(args[2])
	if err != nil {
		return library.MappingKey{}, err
	}
	return library.MappingKey{ScriptID: scriptID, SceneID: sceneArg(args[1]), Kind: kind}, nil
}

func requireAsset(ctx context.Context, store *library.Store, kind library.Kind, id int64) error {
	ok, err := store.AssetExists(ctx, kind, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s not found", library.AssetRef{Kind: kind, ID: id})
	}
	return nil
}

func (c *commandContext) mutator(store *library.Store) *mapping.Mutator {
	return mapping.New(store, c.loggerValue())
}

func newSceneLinkCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "link SCRIPT SCENE KIND ASSET",
		Short: "Attach an asset to a scene, replacing whatever the scene had for that kind",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := sceneKeyArgs(args)
			if err != nil {
				return err
			}
			assetID, err := parseID("asset id", args[3])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *library.Store) error {
				opCtx := ctx.operationContext(cmd, "scene-link")
				if err := requireAsset(opCtx, store, key.Kind, assetID); err != nil {
					return err
				}
				row, err := ctx.mutator(store).LinkAsset(opCtx, key, assetID)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, row)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Linked %s to %s (mapping %d)\n", row.AssetRef(), key, row.ID)
				return nil
			})
		},
	}
}

func newSceneUnlinkCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unlink SCRIPT SCENE KIND ASSET",
		Short: "Detach an asset from a scene",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := sceneKeyArgs(args)
			if err != nil {
				return err
			}
			assetID, err := parseID("asset id", args[3])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *library.Store) error {
				opCtx := ctx.operationContext(cmd, "scene-unlink")
				removed, err := ctx.mutator(store).UnlinkAsset(opCtx, key, assetID)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]int64{"removed": removed})
				}
				if removed == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s was not linked to %s\n",
						library.AssetRef{Kind: key.Kind, ID: assetID}, key)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d mapping(s) for %s\n", removed, key)
				return nil
			})
		},
	}
}

func newSceneReplaceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "replace SCRIPT SCENE KIND OLD NEW",
		Short: "Swap the asset of a scene in place, keeping its mapping row",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := sceneKeyArgs(args)
			if err != nil {
				return err
			}
			oldID, err := parseID("old asset id", args[3])
			if err != nil {
				return err
			}
			newID, err := parseID("new asset id", args[4])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *library.Store) error {
				opCtx := ctx.operationContext(cmd, "scene-replace")
				if err := requireAsset(opCtx, store, key.Kind, newID); err != nil {
					return err
				}
				row, err := ctx.mutator(store).ReplaceAsset(opCtx, key, oldID, newID)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, row)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Replaced %d with %d for %s (mapping %d)\n", oldID, newID, key, row.ID)
				return nil
			})
		},
	}
}
