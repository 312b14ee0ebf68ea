package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"medialib/internal/library"
	"medialib/internal/logging"
)

// SnapshotVersion is the backup format version written by ExportDatabase.
const SnapshotVersion = 7

var (
	// ErrUnsupportedVersion reports a snapshot written in another format version.
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
	// ErrNotEmpty reports an import into a database that already holds rows.
	ErrNotEmpty = errors.New("database is not empty")
)

// Snapshot is a whole-library backup. Asset payloads are base64 in JSON.
type Snapshot struct {
	Version    int          `json:"version"`
	ExportedAt time.Time    `json:"exportedAt"`
	Data       SnapshotData `json:"data"`
}

// SnapshotData holds every collection of the library.
type SnapshotData struct {
	Scripts             []library.Script  `json:"scripts"`
	Images              []library.Asset   `json:"images"`
	Videos              []library.Asset   `json:"videos"`
	Audios              []library.Asset   `json:"audios"`
	Prompts             []library.Prompt  `json:"prompts"`
	ScriptAssetMappings []library.Mapping `json:"scriptAssetMappings"`
}

// Assets returns the collection for kind.
func (d *SnapshotData) Assets(kind library.Kind) []library.Asset {
	switch kind {
	case library.KindImage:
		return d.Images
	case library.KindVideo:
		return d.Videos
	case library.KindAudio:
		return d.Audios
	}
	return nil
}

func (d *SnapshotData) setAssets(kind library.Kind, assets []library.Asset) {
	switch kind {
	case library.KindImage:
		d.Images = assets
	case library.KindVideo:
		d.Videos = assets
	case library.KindAudio:
		d.Audios = assets
	}
}

// Counts summarizes the snapshot contents.
func (s *Snapshot) Counts() library.Counts {
	counts := library.Counts{
		Scripts:  len(s.Data.Scripts),
		Prompts:  len(s.Data.Prompts),
		Mappings: len(s.Data.ScriptAssetMappings),
		Assets:   make(map[library.Kind]int, len(library.Kinds)),
	}
	for _, kind := range library.Kinds {
		counts.Assets[kind] = len(s.Data.Assets(kind))
	}
	return counts
}

// Encode writes the snapshot as indented JSON.
func (s *Snapshot) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// DecodeSnapshot reads a snapshot and rejects unknown versions.
func DecodeSnapshot(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, snap.Version, SnapshotVersion)
	}
	for _, kind := range library.Kinds {
		assets := snap.Data.Assets(kind)
		for i := range assets {
			assets[i].Kind = kind
		}
	}
	return &snap, nil
}

// ReadSnapshotFile decodes the snapshot stored at path.
func ReadSnapshotFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	return DecodeSnapshot(f)
}

// ExportDatabase reads every collection into a snapshot.
func (r *Repairer) ExportDatabase(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: r.now().UTC(),
		Data: SnapshotData{
			Scripts:             []library.Script{},
			Prompts:             []library.Prompt{},
			ScriptAssetMappings: []library.Mapping{},
		},
	}

	scripts, err := collectPages(ctx, func(after int64) ([]library.Script, error) {
		return r.store.ListScripts(ctx, after, r.opts.PageSize)
	}, func(s library.Script) int64 { return s.ID })
	if err != nil {
		return nil, fmt.Errorf("export scripts: %w", err)
	}
	snap.Data.Scripts = append(snap.Data.Scripts, scripts...)

	for _, kind := range library.Kinds {
		assets, err := collectPages(ctx, func(after int64) ([]library.Asset, error) {
			return r.store.ListAssets(ctx, kind, after, r.opts.PageSize)
		}, func(a library.Asset) int64 { return a.ID })
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", kind.Collection(), err)
		}
		if assets == nil {
			assets = []library.Asset{}
		}
		snap.Data.setAssets(kind, assets)
	}

	prompts, err := collectPages(ctx, func(after int64) ([]library.Prompt, error) {
		return r.store.ListPrompts(ctx, after, r.opts.PageSize)
	}, func(p library.Prompt) int64 { return p.ID })
	if err != nil {
		return nil, fmt.Errorf("export prompts: %w", err)
	}
	snap.Data.Prompts = append(snap.Data.Prompts, prompts...)

	mappings, err := collectPages(ctx, func(after int64) ([]library.Mapping, error) {
		return r.store.ListMappings(ctx, after, r.opts.PageSize)
	}, func(m library.Mapping) int64 { return m.ID })
	if err != nil {
		return nil, fmt.Errorf("export mappings: %w", err)
	}
	snap.Data.ScriptAssetMappings = append(snap.Data.ScriptAssetMappings, mappings...)

	return snap, nil
}

// ImportDatabase restores snap into an empty database, preserving ids.
func (r *Repairer) ImportDatabase(ctx context.Context, snap *Snapshot) (library.Counts, error) {
	if snap == nil {
		return library.Counts{}, errors.New("import: nil snapshot")
	}
	if snap.Version != SnapshotVersion {
		return library.Counts{}, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, snap.Version, SnapshotVersion)
	}
	empty, err := r.store.IsEmpty(ctx)
	if err != nil {
		return library.Counts{}, fmt.Errorf("import: %w", err)
	}
	if !empty {
		return library.Counts{}, fmt.Errorf("import: %w", ErrNotEmpty)
	}

	data := library.Dataset{
		Scripts:  snap.Data.Scripts,
		Assets:   make(map[library.Kind][]library.Asset, len(library.Kinds)),
		Prompts:  snap.Data.Prompts,
		Mappings: snap.Data.ScriptAssetMappings,
	}
	for _, kind := range library.Kinds {
		data.Assets[kind] = snap.Data.Assets(kind)
	}
	if err := r.store.Restore(ctx, data); err != nil {
		return library.Counts{}, fmt.Errorf("import: %w", err)
	}

	counts := snap.Counts()
	r.runLogger(ctx).Info("snapshot imported",
		logging.Int("scripts", counts.Scripts),
		logging.Int("assets", counts.TotalAssets()),
		logging.Int("mappings", counts.Mappings),
		logging.Int("prompts", counts.Prompts),
	)
	return counts, nil
}

func collectPages[T any](ctx context.Context, fetch func(after int64) ([]T, error), idOf func(T) int64) ([]T, error) {
	var (
		all   []T
		after int64
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := fetch(after)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return all, nil
		}
		all = append(all, page...)
		after = idOf(page[len(page)-1])
	}
}
