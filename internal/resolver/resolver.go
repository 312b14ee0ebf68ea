package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"medialib/internal/handles"
	"medialib/internal/library"
	"medialib/internal/logging"
)

// Store is the read side of the library the resolver needs.
type Store interface {
	FindMapping(ctx context.Context, key library.MappingKey) (*library.Mapping, error)
	GetAsset(ctx context.Context, kind library.Kind, id int64) (*library.Asset, error)
}

// Source names the fallback step that produced a slot.
type Source string

const (
	SourceMapping Source = "mapping"
	SourceLegacy  Source = "legacy"
)

// LegacyPointers carries the ids embedded in a scene. Zero means no pointer.
type LegacyPointers struct {
	ImageID int64
	VideoID int64
}

// LegacyFromScene extracts the embedded pointers of a scene.
func LegacyFromScene(scene library.Scene) LegacyPointers {
	var lp LegacyPointers
	if id, ok := scene.LegacyPointer(library.KindImage); ok {
		lp.ImageID = id
	}
	if id, ok := scene.LegacyPointer(library.KindVideo); ok {
		lp.VideoID = id
	}
	return lp
}

func (lp LegacyPointers) forKind(kind library.Kind) int64 {
	switch kind {
	case library.KindImage:
		return lp.ImageID
	case library.KindVideo:
		return lp.VideoID
	}
	return 0
}

// Slot is one resolved asset.
type Slot struct {
	Kind      library.Kind
	AssetID   int64
	Handle    handles.Handle
	Source    Source
	MappingID int64
}

// Resolution holds the resolved slots of one scene; nil slots are absent.
type Resolution struct {
	ScriptID int64
	SceneID  string
	Image    *Slot
	Video    *Slot
	Audio    *Slot
}

// Slot returns the slot for kind, or nil when absent.
func (r Resolution) Slot(kind library.Kind) *Slot {
	switch kind {
	case library.KindImage:
		return r.Image
	case library.KindVideo:
		return r.Video
	case library.KindAudio:
		return r.Audio
	}
	return nil
}

// Slots returns the present slots in kind order.
func (r Resolution) Slots() []*Slot {
	var slots []*Slot
	for _, kind := range library.Kinds {
		if slot := r.Slot(kind); slot != nil {
			slots = append(slots, slot)
		}
	}
	return slots
}

func (r *Resolution) set(kind library.Kind, slot *Slot) {
	switch kind {
	case library.KindImage:
		r.Image = slot
	case library.KindVideo:
		r.Video = slot
	case library.KindAudio:
		r.Audio = slot
	}
}

// Resolver resolves scenes against a Store and issues handles from a Registry.
type Resolver struct {
	store    Store
	registry *handles.Registry
	logger   *slog.Logger
}

// New constructs a resolver.
func New(store Store, registry *handles.Registry, logger *slog.Logger) *Resolver {
	if registry == nil {
		registry = handles.NewRegistry()
	}
	return &Resolver{
		store:    store,
		registry: registry,
		logger:   logging.NewComponentLogger(logger, "resolver"),
	}
}

// Registry returns the registry handles are issued from.
func (r *Resolver) Registry() *handles.Registry {
	return r.registry
}

// Resolve returns the current image, video, and audio for a scene. Missing
// rows and missing assets yield absent slots, never errors. Storage errors
// are returned after releasing any handles issued during the call.
func (r *Resolver) Resolve(ctx context.Context, scriptID int64, sceneID string, legacy LegacyPointers) (Resolution, error) {
	res := Resolution{ScriptID: scriptID, SceneID: sceneID}
	for _, kind := range library.Kinds {
		slot, err := r.resolveKind(ctx, library.MappingKey{ScriptID: scriptID, SceneID: sceneID, Kind: kind}, legacy.forKind(kind))
		if err != nil {
			r.Release(res)
			return Resolution{}, err
		}
		res.set(kind, slot)
	}
	return res, nil
}

// Release releases every handle of res. Already released handles are skipped.
func (r *Resolver) Release(res Resolution) {
	for _, slot := range res.Slots() {
		r.registry.Release(slot.Handle.URL)
	}
}

func (r *Resolver) resolveKind(ctx context.Context, key library.MappingKey, legacyID int64) (*Slot, error) {
	logger := r.logger.With(
		logging.Int64(logging.FieldScriptID, key.ScriptID),
		logging.String(logging.FieldSceneID, key.SceneID),
		logging.String(logging.FieldAssetKind, string(key.Kind)),
	)

	mapping, err := r.store.FindMapping(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", key, err)
	}
	if mapping != nil {
		asset, err := r.store.GetAsset(ctx, key.Kind, mapping.AssetID)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", key, err)
		}
		if asset == nil {
			logger.Debug("mapping points at missing asset",
				logging.Int64(logging.FieldAssetID, mapping.AssetID),
				logging.Int64(logging.FieldMappingID, mapping.ID),
			)
			return nil, nil
		}
		return r.slot(key.Kind, asset, SourceMapping, mapping.ID), nil
	}

	if !key.Kind.HasLegacyPointer() || legacyID <= 0 {
		return nil, nil
	}
	asset, err := r.store.GetAsset(ctx, key.Kind, legacyID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s legacy: %w", key, err)
	}
	if asset == nil {
		logger.Debug("legacy pointer references missing asset", logging.Int64(logging.FieldAssetID, legacyID))
		return nil, nil
	}
	logger.Debug("resolved from legacy pointer", logging.Int64(logging.FieldAssetID, legacyID))
	return r.slot(key.Kind, asset, SourceLegacy, 0), nil
}

func (r *Resolver) slot(kind library.Kind, asset *library.Asset, source Source, mappingID int64) *Slot {
	return &Slot{
		Kind:      kind,
		AssetID:   asset.ID,
		Handle:    r.registry.Create(string(kind), asset.ID, asset.Data),
		Source:    source,
		MappingID: mappingID,
	}
}
