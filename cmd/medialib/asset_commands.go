package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"medialib/internal/library"
	"medialib/internal/migration"
)

// assetRow is the listing shape of an asset; payloads are never printed.
type assetRow struct {
	Kind             library.Kind         `json:"kind"`
	ID               int64                `json:"id"`
	Size             int64                `json:"size"`
	UploadSource     library.UploadSource `json:"uploadSource,omitempty"`
	OriginalFilename string               `json:"originalFilename,omitempty"`
	MimeType         string               `json:"mimeType,omitempty"`
	UploadedAt       *time.Time           `json:"uploadedAt,omitempty"`
}

func newAssetRow(info library.AssetInfo) assetRow {
	return assetRow{
		Kind:             info.Kind,
		ID:               info.ID,
		Size:             info.Size,
		UploadSource:     info.UploadSource,
		OriginalFilename: info.OriginalFilename,
		MimeType:         info.MimeType,
		UploadedAt:       info.UploadedAt,
	}
}

func newAssetCommand(ctx *commandContext) *cobra.Command {
	assetCmd := &cobra.Command{
		Use:   "asset",
		Short: "Add, list, and remove stored media assets",
	}
	assetCmd.AddCommand(newAssetAddCommand(ctx))
	assetCmd.AddCommand(newAssetListCommand(ctx))
	assetCmd.AddCommand(newAssetRemoveCommand(ctx))
	return assetCmd
}

func newAssetAddCommand(ctx *commandContext) *cobra.Command {
	var kindFlag string
	var sourceFlag string

	cmd := &cobra.Command{
		Use:   "add FILE",
		Short: "Store a file as a new asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := library.ParseKind(kindFlag)
			if err != nil {
				return err
			}
			source, err := library.ParseUploadSource(sourceFlag)
			if err != nil {
				return err
			}
			if source == "" {
				source = library.SourceManualUpload
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read asset file: %w", err)
			}

			fallback := migration.OptionsFromConfig(ctx.configValue()).MimeDefaults[kind]
			now := time.Now().UTC()
			asset := library.Asset{
				Kind:             kind,
				Data:             data,
				UploadSource:     source,
				OriginalFilename: filepath.Base(args[0]),
				MimeType:         migration.SniffMime(kind, data, fallback),
				UploadedAt:       &now,
			}

			return ctx.withStore(func(store *library.Store) error {
				id, err := store.InsertAsset(ctx.operationContext(cmd, "asset-add"), asset)
				if err != nil {
					return err
				}
				asset.ID = id
				if ctx.jsonOutput() {
					return writeJSON(cmd, newAssetRow(asset.Info()))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s, %s)\n",
					asset.Info().Ref(), formatSize(int64(len(data))), orDash(asset.MimeType))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&kindFlag, "kind", "k", "", "Asset kind: image, video, or audio")
	cmd.Flags().StringVar(&sourceFlag, "source", "", "Upload source: ai-generated, manual-upload, or imported")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func newAssetListCommand(ctx *commandContext) *cobra.Command {
	var kindFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored assets without their payloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := library.Kinds
			if strings.TrimSpace(kindFlag) != "" {
				kind, err := library.ParseKind(kindFlag)
				if err != nil {
					return err
				}
				kinds = []library.Kind{kind}
			}
			pageSize := ctx.configValue().Migration.ScanPageSize

			return ctx.withStore(func(store *library.Store) error {
				opCtx := ctx.operationContext(cmd, "asset-list")
				rows := make([]assetRow, 0)
				for _, kind := range kinds {
					var after int64
					for {
						page, err := store.ListAssetInfos(opCtx, kind, after, pageSize)
						if err != nil {
							return err
						}
						for _, info := range page {
							rows = append(rows, newAssetRow(info))
						}
						if len(page) < pageSize || len(page) == 0 {
							break
						}
						after = page[len(page)-1].ID
					}
				}

				if ctx.jsonOutput() {
					return writeJSON(cmd, rows)
				}
				out := cmd.OutOrStdout()
				if len(rows) == 0 {
					fmt.Fprintln(out, "No assets stored")
					return nil
				}
				table := make([][]string, 0, len(rows))
				for _, row := range rows {
					table = append(table, []string{
						kindLabel(row.Kind),
						strconv.FormatInt(row.ID, 10),
						formatSize(row.Size),
						orDash(string(row.UploadSource)),
						orDash(row.MimeType),
						orDash(row.OriginalFilename),
						formatOptionalTime(row.UploadedAt),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Kind", "ID", "Size", "Source", "MIME", "Filename", "Uploaded"},
					table,
					[]columnAlignment{alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&kindFlag, "kind", "k", "", "Only list assets of this kind")
	return cmd
}

func newAssetRemoveCommand(ctx *commandContext) *cobra.Command {
	var kindFlag string

	cmd := &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"remove"},
		Short:   "Delete an asset; mappings pointing at it become dangling",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := library.ParseKind(kindFlag)
			if err != nil {
				return err
			}
			id, err := parseID("asset id", args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *library.Store) error {
				deleted, err := store.DeleteAsset(ctx.operationContext(cmd, "asset-rm"), kind, id)
				if err != nil {
					return err
				}
				ref := library.AssetRef{Kind: kind, ID: id}
				if !deleted {
					return fmt.Errorf("%s not found", ref)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", ref)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&kindFlag, "kind", "k", "", "Asset kind: image, video, or audio")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}
