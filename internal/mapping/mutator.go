// Package mapping is the only write path for script/scene to asset links.
//
// Every operation runs in one write transaction, so after it returns the key
// holds at most one row. Rows beyond the canonical (lowest id) one are removed
// whenever a key is written, which also heals duplicates left by older data.
package mapping

import (
	"context"
	"log/slog"
	"time"

	"medialib/internal/library"
	"medialib/internal/logging"
)

// Store opens mapping write transactions.
type Store interface {
	WithMappingTx(ctx context.Context, fn func(tx library.MappingTx) error) error
}

// Mutator links, unlinks, and replaces scene assets.
type Mutator struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a mutator.
func New(store Store, logger *slog.Logger) *Mutator {
	return &Mutator{
		store:  store,
		logger: logging.NewComponentLogger(logger, "mapping"),
		now:    time.Now,
	}
}

// LinkAsset makes assetID the asset for key. An existing canonical row is
// repointed and any further rows for the key are deleted; otherwise a row is
// inserted. Exactly one row exists for key afterwards.
func (m *Mutator) LinkAsset(ctx context.Context, key library.MappingKey, assetID int64) (library.Mapping, error) {
	key, err := normalize(key, assetID)
	if err != nil {
		return library.Mapping{}, err
	}

	var (
		result    library.Mapping
		collapsed int
	)
	err = m.store.WithMappingTx(ctx, func(tx library.MappingTx) error {
		rows, err := tx.MappingsForKey(ctx, key)
		if err != nil {
			return err
		}
		result, collapsed, err = m.link(ctx, tx, key, rows, 0, assetID, "")
		return err
	})
	if err != nil {
		return library.Mapping{}, err
	}
	m.logWrite(ctx, "asset linked", result, collapsed)
	return result, nil
}

// UnlinkAsset deletes every row for key that points at assetID and returns
// how many were removed. Rows of the key pointing elsewhere are untouched.
func (m *Mutator) UnlinkAsset(ctx context.Context, key library.MappingKey, assetID int64) (int64, error) {
	key, err := normalize(key, assetID)
	if err != nil {
		return 0, err
	}

	var removed int64
	err = m.store.WithMappingTx(ctx, func(tx library.MappingTx) error {
		var err error
		removed, err = tx.DeleteMappingsExact(ctx, key, assetID)
		return err
	})
	if err != nil {
		return 0, err
	}
	logging.WithContext(ctx, m.logger).Info("asset unlinked",
		logging.Int64(logging.FieldScriptID, key.ScriptID),
		logging.String(logging.FieldSceneID, key.SceneID),
		logging.String(logging.FieldAssetKind, string(key.Kind)),
		logging.Int64(logging.FieldAssetID, assetID),
		logging.Int64("removed", removed),
	)
	return removed, nil
}

// ReplaceAsset swaps oldAssetID for newAssetID under key. The row holding
// oldAssetID is repointed and every other row for the key is deleted. When no
// row holds oldAssetID it behaves exactly like LinkAsset(newAssetID).
func (m *Mutator) ReplaceAsset(ctx context.Context, key library.MappingKey, oldAssetID, newAssetID int64) (library.Mapping, error) {
	key, err := normalize(key, newAssetID)
	if err != nil {
		return library.Mapping{}, err
	}

	var (
		result    library.Mapping
		collapsed int
	)
	err = m.store.WithMappingTx(ctx, func(tx library.MappingTx) error {
		rows, err := tx.MappingsForKey(ctx, key)
		if err != nil {
			return err
		}
		var keepID int64
		for _, row := range rows {
			if row.AssetID == oldAssetID {
				keepID = row.ID
				break
			}
		}
		result, collapsed, err = m.link(ctx, tx, key, rows, keepID, newAssetID, "")
		return err
	})
	if err != nil {
		return library.Mapping{}, err
	}
	m.logWrite(ctx, "asset replaced", result, collapsed, logging.Int64("old_asset_id", oldAssetID))
	return result, nil
}

// LinkIfAbsent inserts a row for key only when the key has none. It reports
// whether a row was created.
func (m *Mutator) LinkIfAbsent(ctx context.Context, key library.MappingKey, assetID int64, role string) (bool, error) {
	key, err := normalize(key, assetID)
	if err != nil {
		return false, err
	}

	var (
		created bool
		result  library.Mapping
	)
	err = m.store.WithMappingTx(ctx, func(tx library.MappingTx) error {
		created = false
		rows, err := tx.MappingsForKey(ctx, key)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			return nil
		}
		result, _, err = m.link(ctx, tx, key, nil, 0, assetID, role)
		created = err == nil
		return err
	})
	if err != nil {
		return false, err
	}
	if created {
		m.logWrite(ctx, "asset linked", result, 0, logging.String("role", role))
	}
	return created, nil
}

// link writes assetID under key given the key's current rows. The row with
// keepID (or the canonical row when keepID is zero or absent) is repointed and
// the rest deleted; with no rows a new one is inserted.
func (m *Mutator) link(ctx context.Context, tx library.MappingTx, key library.MappingKey, rows []library.Mapping, keepID, assetID int64, role string) (library.Mapping, int, error) {
	now := m.now().UTC()
	if len(rows) == 0 {
		row := library.Mapping{
			ScriptID:  key.ScriptID,
			SceneID:   key.SceneID,
			AssetType: key.Kind,
			AssetID:   assetID,
			LinkedAt:  now,
			Role:      role,
		}
		id, err := tx.InsertMapping(ctx, row)
		if err != nil {
			return library.Mapping{}, 0, err
		}
		row.ID = id
		return row, 0, nil
	}

	keep := rows[0]
	for _, row := range rows {
		if keepID != 0 && row.ID == keepID {
			keep = row
			break
		}
	}
	if err := tx.RepointMapping(ctx, keep.ID, assetID, now); err != nil {
		return library.Mapping{}, 0, err
	}
	collapsed := 0
	for _, row := range rows {
		if row.ID == keep.ID {
			continue
		}
		if _, err := tx.DeleteMapping(ctx, row.ID); err != nil {
			return library.Mapping{}, 0, err
		}
		collapsed++
	}
	keep.AssetID = assetID
	keep.LinkedAt = now
	return keep, collapsed, nil
}

func (m *Mutator) logWrite(ctx context.Context, msg string, row library.Mapping, collapsed int, extra ...logging.Attr) {
	attrs := []logging.Attr{
		logging.Int64(logging.FieldScriptID, row.ScriptID),
		logging.String(logging.FieldSceneID, row.SceneID),
		logging.String(logging.FieldAssetKind, string(row.AssetType)),
		logging.Int64(logging.FieldAssetID, row.AssetID),
		logging.Int64(logging.FieldMappingID, row.ID),
	}
	attrs = append(attrs, extra...)
	logger := logging.WithContext(ctx, m.logger)
	if collapsed > 0 {
		logging.WarnWithContext(logger, msg+" and duplicate rows removed", "duplicate_mappings_collapsed",
			append(attrs,
				logging.Int("collapsed", collapsed),
				logging.String(logging.FieldErrorHint, "run medialib verify to check for other duplicates"),
				logging.String(logging.FieldImpact, "none; the key now has a single mapping"),
			)...,
		)
		return
	}
	logger.Info(msg, logging.Args(attrs...)...)
}

func normalize(key library.MappingKey, assetID int64) (library.MappingKey, error) {
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return key, err
	}
	if assetID <= 0 {
		return key, &library.ValidationError{Field: "asset id", Reason: "must be positive"}
	}
	return key, nil
}
