package migration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"medialib/internal/library"
	"medialib/internal/logging"
)

// Verifier audits a library without modifying it.
type Verifier struct {
	store    *library.Store
	pageSize int
	logger   *slog.Logger
}

// NewVerifier constructs a verifier. A non-positive pageSize uses the default.
func NewVerifier(store *library.Store, pageSize int, logger *slog.Logger) *Verifier {
	if pageSize <= 0 {
		pageSize = Options{}.withDefaults().PageSize
	}
	return &Verifier{
		store:    store,
		pageSize: pageSize,
		logger:   logging.NewComponentLogger(logger, "verifier"),
	}
}

type assetScan struct {
	kind         library.Kind
	total        int
	withMetadata int
	ids          []int64
	incomplete   []library.AssetInfo
}

type mappingRef struct {
	id  int64
	key library.MappingKey
	ref library.AssetRef
}

type mappingScan struct {
	total      int
	rows       []mappingRef
	referenced map[library.AssetRef]struct{}
	canonical  map[library.MappingKey]int64
	duplicates []mappingRef
	perScript  map[int64]int
}

// Verify checks the library and returns a report. A missing required table
// is an error and skips every other check. Storage failures are returned as
// errors; data problems are reported as warnings.
func (v *Verifier) Verify(ctx context.Context) (Report, error) {
	started := time.Now()
	logger := logging.WithContext(ctx, v.logger)
	report := Report{CheckedAt: started.UTC(), Stats: Stats{AssetsByKind: make(map[library.Kind]int)}}

	missing, err := v.store.MissingTables(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("verify: %w", err)
	}
	if len(missing) > 0 {
		for _, name := range missing {
			report.addError(Finding{
				Code:    CodeMissingCollection,
				Message: fmt.Sprintf("required collection %q is missing", name),
			})
		}
		report.finish()
		logging.ErrorWithContext(logger, "verification stopped", "missing_collection",
			logging.String("missing", strings.Join(missing, ",")),
			logging.String(logging.FieldErrorHint, "restore from a backup with medialib import"),
		)
		return report, nil
	}

	scans := make([]assetScan, len(library.Kinds))
	var mappings mappingScan
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range library.Kinds {
		g.Go(func() error {
			scan, err := v.scanAssets(gctx, kind)
			if err != nil {
				return err
			}
			scans[i] = scan
			return nil
		})
	}
	g.Go(func() error {
		scan, err := v.scanMappings(gctx)
		if err != nil {
			return err
		}
		mappings = scan
		return nil
	})
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("verify: %w", err)
	}

	existing := make(map[library.AssetRef]struct{})
	for _, scan := range scans {
		report.Stats.AssetsByKind[scan.kind] = scan.total
		report.Stats.TotalAssets += scan.total
		report.Stats.AssetsWithMetadata += scan.withMetadata
		for _, info := range scan.incomplete {
			report.addWarning(Finding{
				Code:    CodeMissingMetadata,
				Message: fmt.Sprintf("%s is missing metadata: %s", info.Ref(), strings.Join(missingFields(info), ", ")),
				Kind:    info.Kind,
				AssetID: info.ID,
			})
		}
		for _, id := range scan.ids {
			ref := library.AssetRef{Kind: scan.kind, ID: id}
			existing[ref] = struct{}{}
			if _, ok := mappings.referenced[ref]; !ok {
				report.Stats.OrphanedAssets++
				report.addWarning(Finding{
					Code:    CodeOrphanedAsset,
					Message: fmt.Sprintf("%s is not referenced by any mapping", ref),
					Kind:    scan.kind,
					AssetID: id,
				})
			}
		}
	}

	report.Stats.TotalMappings = mappings.total
	for _, dup := range mappings.duplicates {
		report.Stats.DuplicateMappings++
		report.addWarning(Finding{
			Code: CodeDuplicateMapping,
			Message: fmt.Sprintf("mapping #%d duplicates #%d for %s",
				dup.id, mappings.canonical[dup.key], dup.key),
			Kind:      dup.key.Kind,
			AssetID:   dup.ref.ID,
			MappingID: dup.id,
			ScriptID:  dup.key.ScriptID,
			SceneID:   dup.key.SceneID,
		})
	}
	for _, row := range mappings.rows {
		if _, ok := existing[row.ref]; ok {
			continue
		}
		report.Stats.DanglingMappings++
		report.addWarning(Finding{
			Code:      CodeDanglingMapping,
			Message:   fmt.Sprintf("mapping #%d for %s points at missing %s", row.id, row.key, row.ref),
			Kind:      row.key.Kind,
			AssetID:   row.ref.ID,
			MappingID: row.id,
			ScriptID:  row.key.ScriptID,
			SceneID:   row.key.SceneID,
		})
	}

	if err := v.scanScripts(ctx, &report, mappings.perScript); err != nil {
		return Report{}, fmt.Errorf("verify: %w", err)
	}

	report.finish()
	logger.Info("verification complete",
		logging.Bool("ok", report.OK),
		logging.Int("warnings", len(report.Warnings)),
		logging.Int("total_assets", report.Stats.TotalAssets),
		logging.Int("total_mappings", report.Stats.TotalMappings),
		logging.Int("duplicate_mappings", report.Stats.DuplicateMappings),
		logging.Duration("elapsed", time.Since(started)),
	)
	return report, nil
}

func (v *Verifier) scanAssets(ctx context.Context, kind library.Kind) (assetScan, error) {
	scan := assetScan{kind: kind}
	var after int64
	for {
		if err := ctx.Err(); err != nil {
			return scan, err
		}
		page, err := v.store.ListAssetInfos(ctx, kind, after, v.pageSize)
		if err != nil {
			return scan, err
		}
		for _, info := range page {
			scan.total++
			scan.ids = append(scan.ids, info.ID)
			if info.HasMetadata() {
				scan.withMetadata++
			} else {
				scan.incomplete = append(scan.incomplete, info)
			}
		}
		if len(page) < v.pageSize {
			return scan, nil
		}
		after = page[len(page)-1].ID
	}
}

func (v *Verifier) scanMappings(ctx context.Context) (mappingScan, error) {
	scan := mappingScan{
		referenced: make(map[library.AssetRef]struct{}),
		canonical:  make(map[library.MappingKey]int64),
		perScript:  make(map[int64]int),
	}
	var after int64
	for {
		if err := ctx.Err(); err != nil {
			return scan, err
		}
		page, err := v.store.ListMappings(ctx, after, v.pageSize)
		if err != nil {
			return scan, err
		}
		for _, m := range page {
			row := mappingRef{id: m.ID, key: m.Key(), ref: m.AssetRef()}
			scan.total++
			scan.rows = append(scan.rows, row)
			scan.referenced[row.ref] = struct{}{}
			scan.perScript[m.ScriptID]++
			if _, seen := scan.canonical[row.key]; seen {
				scan.duplicates = append(scan.duplicates, row)
				continue
			}
			scan.canonical[row.key] = m.ID
		}
		if len(page) < v.pageSize {
			return scan, nil
		}
		after = page[len(page)-1].ID
	}
}

func (v *Verifier) scanScripts(ctx context.Context, report *Report, perScript map[int64]int) error {
	var after int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := v.store.ListScripts(ctx, after, v.pageSize)
		if err != nil {
			return err
		}
		for _, script := range page {
			report.Stats.TotalScripts++
			legacy := countLegacyPointers(script)
			report.Stats.LegacyPointers += legacy
			if perScript[script.ID] > 0 {
				continue
			}
			report.Stats.UnmigratedScripts++
			report.addWarning(Finding{
				Code:     CodeUnmigratedScript,
				Message:  fmt.Sprintf("script #%d %q has no asset mappings (%d legacy pointers)", script.ID, script.Title, legacy),
				ScriptID: script.ID,
			})
		}
		if len(page) < v.pageSize {
			return nil
		}
		after = page[len(page)-1].ID
	}
}

func countLegacyPointers(script library.Script) int {
	count := 0
	for _, ref := range script.Scenes() {
		for _, kind := range library.Kinds {
			if !kind.HasLegacyPointer() {
				continue
			}
			if _, ok := ref.Scene.LegacyPointer(kind); ok {
				count++
			}
		}
	}
	return count
}

func missingFields(info library.AssetInfo) []string {
	var fields []string
	if info.UploadSource == "" {
		fields = append(fields, "upload source")
	}
	if info.UploadedAt == nil {
		fields = append(fields, "uploaded at")
	}
	if info.MimeType == "" {
		fields = append(fields, "mime type")
	}
	return fields
}
