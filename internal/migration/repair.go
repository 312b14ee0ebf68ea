package migration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"medialib/internal/fileutil"
	"medialib/internal/library"
	"medialib/internal/logging"
	"medialib/internal/mapping"
	"medialib/internal/preflight"
)

// sniffLength is how many leading payload bytes content sniffing considers.
const sniffLength = 512

// Repairer applies the repair operations.
type Repairer struct {
	store    *library.Store
	mutator  *mapping.Mutator
	verifier *Verifier
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// NewRepairer constructs a repairer. Mappings are written through the
// mapping package so repairs honor the single-row-per-key rule.
func NewRepairer(store *library.Store, opts Options, logger *slog.Logger) *Repairer {
	opts = opts.withDefaults()
	return &Repairer{
		store:    store,
		mutator:  mapping.New(store, logger),
		verifier: NewVerifier(store, opts.PageSize, logger),
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "repair"),
		now:      time.Now,
	}
}

// Verifier returns the verifier used for post-repair checks.
func (r *Repairer) Verifier() *Verifier {
	return r.verifier
}

func (r *Repairer) runLogger(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, r.logger)
}

// FixMissingMetadata fills absent upload source, upload time, and MIME type
// on every asset. Present fields are never changed. It returns the number of
// assets updated.
func (r *Repairer) FixMissingMetadata(ctx context.Context) (int, error) {
	logger := r.runLogger(ctx)
	fixed := 0
	for _, kind := range library.Kinds {
		var after int64
		for {
			if err := ctx.Err(); err != nil {
				return fixed, err
			}
			page, err := r.store.ListAssetInfos(ctx, kind, after, r.opts.PageSize)
			if err != nil {
				return fixed, fmt.Errorf("fix metadata: %w", err)
			}
			for _, info := range page {
				if info.HasMetadata() {
					continue
				}
				patch := library.MetadataPatch{
					UploadSource: r.opts.UploadSource,
					UploadedAt:   r.now().UTC(),
				}
				if info.MimeType == "" {
					patch.MimeType = r.detectMime(ctx, info)
				}
				updated, err := r.store.BackfillMetadata(ctx, kind, info.ID, patch)
				if err != nil {
					logging.WarnWithContext(logger, "metadata backfill failed; skipping asset", "metadata_backfill_failed",
						logging.String(logging.FieldAssetKind, string(kind)),
						logging.Int64(logging.FieldAssetID, info.ID),
						logging.Error(err),
						logging.String(logging.FieldImpact, "asset keeps incomplete metadata"),
					)
					continue
				}
				if updated {
					fixed++
					logger.Debug("metadata backfilled",
						logging.String(logging.FieldAssetKind, string(kind)),
						logging.Int64(logging.FieldAssetID, info.ID),
						logging.String("mime_type", patch.MimeType),
					)
				}
			}
			if len(page) < r.opts.PageSize {
				break
			}
			after = page[len(page)-1].ID
		}
	}
	logger.Info("metadata repair complete", logging.Int("fixed", fixed))
	return fixed, nil
}

// detectMime sniffs the stored payload of info, falling back to the
// configured default for its kind.
func (r *Repairer) detectMime(ctx context.Context, info library.AssetInfo) string {
	fallback := r.opts.MimeDefaults[info.Kind]
	head, err := r.store.ReadAssetHead(ctx, info.Kind, info.ID, sniffLength)
	if err != nil {
		return fallback
	}
	return SniffMime(info.Kind, head, fallback)
}

// SniffMime detects the MIME type of payload and keeps the result only when
// it belongs to kind; otherwise fallback is returned.
func SniffMime(kind library.Kind, payload []byte, fallback string) string {
	if len(payload) == 0 {
		return fallback
	}
	if len(payload) > sniffLength {
		payload = payload[:sniffLength]
	}
	sniffed, _, _ := strings.Cut(http.DetectContentType(payload), ";")
	sniffed = strings.TrimSpace(sniffed)
	if strings.HasPrefix(sniffed, string(kind)+"/") {
		return sniffed
	}
	return fallback
}

// RebuildMappingsFromScenes creates a mapping for every legacy scene pointer
// whose asset exists and whose key has no mapping yet. Existing mappings win
// over legacy pointers. It returns the number of mappings created.
func (r *Repairer) RebuildMappingsFromScenes(ctx context.Context) (int, error) {
	logger := r.runLogger(ctx)
	created := 0
	var after int64
	for {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		page, err := r.store.ListScripts(ctx, after, r.opts.PageSize)
		if err != nil {
			return created, fmt.Errorf("rebuild mappings: %w", err)
		}
		for _, script := range page {
			for _, ref := range script.Scenes() {
				for _, kind := range library.Kinds {
					if !kind.HasLegacyPointer() {
						continue
					}
					assetID, ok := ref.Scene.LegacyPointer(kind)
					if !ok {
						continue
					}
					if r.rebuildOne(ctx, logger, library.MappingKey{ScriptID: script.ID, SceneID: ref.SceneID, Kind: kind}, assetID) {
						created++
					}
				}
			}
		}
		if len(page) < r.opts.PageSize {
			break
		}
		after = page[len(page)-1].ID
	}
	logger.Info("mapping rebuild complete", logging.Int("created", created))
	return created, nil
}

func (r *Repairer) rebuildOne(ctx context.Context, logger *slog.Logger, key library.MappingKey, assetID int64) bool {
	attrs := []logging.Attr{
		logging.Int64(logging.FieldScriptID, key.ScriptID),
		logging.String(logging.FieldSceneID, key.SceneID),
		logging.String(logging.FieldAssetKind, string(key.Kind)),
		logging.Int64(logging.FieldAssetID, assetID),
	}
	exists, err := r.store.AssetExists(ctx, key.Kind, assetID)
	if err != nil {
		logging.WarnWithContext(logger, "legacy pointer check failed; skipping scene", "mapping_rebuild_failed",
			append(attrs, logging.Error(err))...)
		return false
	}
	if !exists {
		logger.Debug("legacy pointer references missing asset; skipping", logging.Args(attrs...)...)
		return false
	}
	linked, err := r.mutator.LinkIfAbsent(ctx, key, assetID, "scene-"+string(key.Kind))
	if err != nil {
		logging.WarnWithContext(logger, "mapping rebuild failed; skipping scene", "mapping_rebuild_failed",
			append(attrs, logging.Error(err), logging.String(logging.FieldImpact, "scene still relies on its legacy pointer"))...)
		return false
	}
	return linked
}

// RemoveDuplicateMappings leaves one row per key and deletes the rest. The
// lowest-id row whose asset still exists is kept; when no row of the key
// points at a live asset, the lowest-id row is kept. It returns the number of
// rows deleted.
func (r *Repairer) RemoveDuplicateMappings(ctx context.Context) (int, error) {
	logger := r.runLogger(ctx)
	kept := make(map[library.MappingKey]*keptMapping)
	removed := 0
	var after int64
	for {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		page, err := r.store.ListMappings(ctx, after, r.opts.PageSize)
		if err != nil {
			return removed, fmt.Errorf("remove duplicates: %w", err)
		}
		for _, m := range page {
			key := m.Key()
			keep, dup := kept[key]
			if !dup {
				kept[key] = &keptMapping{row: m}
				continue
			}
			victim, err := r.pickDuplicate(ctx, keep, m)
			if err != nil {
				logging.WarnWithContext(logger, "asset check failed; skipping duplicate row", "duplicate_removal_failed",
					logging.Int64(logging.FieldMappingID, m.ID),
					logging.String(logging.FieldAssetKind, string(m.AssetType)),
					logging.Error(err),
				)
				continue
			}
			if r.deleteDuplicate(ctx, logger, victim, keep.row.ID) {
				removed++
			}
		}
		if len(page) < r.opts.PageSize {
			break
		}
		after = page[len(page)-1].ID
	}
	logger.Info("duplicate removal complete", logging.Int("removed", removed))
	return removed, nil
}

type keptMapping struct {
	row     library.Mapping
	checked bool
	live    bool
}

// pickDuplicate returns the row to delete between the row kept so far and a
// later row of the same key. A later row replaces a kept row whose asset is gone.
func (r *Repairer) pickDuplicate(ctx context.Context, keep *keptMapping, candidate library.Mapping) (library.Mapping, error) {
	if !keep.checked {
		live, err := r.store.AssetExists(ctx, keep.row.AssetType, keep.row.AssetID)
		if err != nil {
			return library.Mapping{}, err
		}
		keep.checked, keep.live = true, live
	}
	if keep.live {
		return candidate, nil
	}
	live, err := r.store.AssetExists(ctx, candidate.AssetType, candidate.AssetID)
	if err != nil {
		return library.Mapping{}, err
	}
	if !live {
		return candidate, nil
	}
	victim := keep.row
	keep.row, keep.live = candidate, true
	return victim, nil
}

func (r *Repairer) deleteDuplicate(ctx context.Context, logger *slog.Logger, victim library.Mapping, keptID int64) bool {
	deleted, err := r.store.DeleteMapping(ctx, victim.ID)
	if err != nil {
		logging.WarnWithContext(logger, "duplicate mapping removal failed; skipping row", "duplicate_removal_failed",
			logging.Int64(logging.FieldMappingID, victim.ID),
			logging.Int64(logging.FieldScriptID, victim.ScriptID),
			logging.String(logging.FieldSceneID, victim.SceneID),
			logging.String(logging.FieldAssetKind, string(victim.AssetType)),
			logging.Error(err),
		)
		return false
	}
	if deleted {
		logger.Debug("duplicate mapping removed",
			logging.Int64(logging.FieldMappingID, victim.ID),
			logging.Int64("kept_mapping_id", keptID),
		)
	}
	return deleted
}

// BackupResult describes a written backup file.
type BackupResult struct {
	Path   string         `json:"path"`
	Size   int64          `json:"size"`
	SHA256 string         `json:"sha256"`
	Counts library.Counts `json:"counts"`
}

// WriteBackup exports the library to path, or to a timestamped file in the
// backup directory when path is empty. The file appears atomically.
func (r *Repairer) WriteBackup(ctx context.Context, path string) (BackupResult, error) {
	if strings.TrimSpace(path) == "" {
		path = filepath.Join(r.opts.BackupDir,
			fmt.Sprintf("%s-%s.json", r.opts.BackupPrefix, r.now().UTC().Format("20060102T150405Z")))
	}
	if r.opts.MinFreeBytes > 0 {
		free, err := preflight.FreeBytes(filepath.Dir(path))
		if err != nil {
			return BackupResult{}, fmt.Errorf("backup: %w", err)
		}
		if free < r.opts.MinFreeBytes {
			return BackupResult{}, fmt.Errorf("backup: only %s free in %s, need %s",
				humanize.IBytes(free), filepath.Dir(path), humanize.IBytes(r.opts.MinFreeBytes))
		}
	}

	snap, err := r.ExportDatabase(ctx)
	if err != nil {
		return BackupResult{}, err
	}
	written, err := fileutil.WriteAtomic(path, 0o600, func(w io.Writer) error {
		return snap.Encode(w)
	})
	if err != nil {
		return BackupResult{}, fmt.Errorf("backup: %w", err)
	}

	result := BackupResult{Path: written.Path, Size: written.Size, SHA256: written.SHA256, Counts: snap.Counts()}
	r.runLogger(ctx).Info("backup written",
		logging.String("path", result.Path),
		logging.String("size", humanize.IBytes(uint64(result.Size))),
		logging.String("sha256", result.SHA256),
	)
	return result, nil
}

// Summary is the outcome of RunAll.
type Summary struct {
	Backup            *BackupResult `json:"backup,omitempty"`
	MetadataFixed     int           `json:"metadataFixed"`
	MappingsRebuilt   int           `json:"mappingsRebuilt"`
	DuplicatesRemoved int           `json:"duplicatesRemoved"`
	Report            Report        `json:"report"`
}

// RunAllOptions selects the optional steps of RunAll.
type RunAllOptions struct {
	Backup     bool
	BackupPath string
}

// RunAll optionally writes a backup, runs every repair in order (metadata,
// mappings, duplicates), then verifies the result. A failed backup stops the
// run before anything is changed.
func (r *Repairer) RunAll(ctx context.Context, opts RunAllOptions) (Summary, error) {
	var summary Summary
	if opts.Backup {
		backup, err := r.WriteBackup(ctx, opts.BackupPath)
		if err != nil {
			return summary, err
		}
		summary.Backup = &backup
	}

	var err error
	if summary.MetadataFixed, err = r.FixMissingMetadata(ctx); err != nil {
		return summary, err
	}
	if summary.MappingsRebuilt, err = r.RebuildMappingsFromScenes(ctx); err != nil {
		return summary, err
	}
	if summary.DuplicatesRemoved, err = r.RemoveDuplicateMappings(ctx); err != nil {
		return summary, err
	}
	if summary.Report, err = r.verifier.Verify(ctx); err != nil {
		return summary, err
	}
	return summary, nil
}
