package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FindMapping returns the canonical (lowest id) mapping for key, or nil when
// none exists. Duplicates beyond the canonical row are ignored by readers.
func (s *Store) FindMapping(ctx context.Context, key MappingKey) (*Mapping, error) {
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+mappingColumns+` FROM script_asset_mappings
		 WHERE script_id = ? AND scene_id IS ? AND asset_type = ?
		 ORDER BY id LIMIT 1`,
		key.ScriptID, nullableString(key.SceneID), string(key.Kind),
	)
	m, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find mapping %s: %w", key, err)
	}
	return &m, nil
}

// MappingsForKey returns every row stored under key, ordered by id.
func (s *Store) MappingsForKey(ctx context.Context, key MappingKey) ([]Mapping, error) {
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return mappingsForKey(ctx, s.db, key)
}

// MappingsForScript returns every mapping of a script, ordered by id.
func (s *Store) MappingsForScript(ctx context.Context, scriptID int64) ([]Mapping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+mappingColumns+` FROM script_asset_mappings WHERE script_id = ? ORDER BY id`, scriptID)
	if err != nil {
		return nil, fmt.Errorf("list mappings for script %d: %w", scriptID, err)
	}
	return collectMappings(rows)
}

// ListMappings returns up to limit mappings with id greater than afterID, ordered by id.
func (s *Store) ListMappings(ctx context.Context, afterID int64, limit int) ([]Mapping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+mappingColumns+` FROM script_asset_mappings WHERE id > ? ORDER BY id LIMIT ?`,
		afterID, pageLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	return collectMappings(rows)
}

// CountMappings returns the number of mapping rows.
func (s *Store) CountMappings(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM script_asset_mappings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count mappings: %w", err)
	}
	return count, nil
}

// CountMappingsForScript returns the number of mapping rows of one script.
func (s *Store) CountMappingsForScript(ctx context.Context, scriptID int64) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM script_asset_mappings WHERE script_id = ?`, scriptID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count mappings for script %d: %w", scriptID, err)
	}
	return count, nil
}

// CountDistinctMappingKeys returns the number of distinct (script, scene, kind) keys.
func (s *Store) CountDistinctMappingKeys(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM (SELECT 1 FROM script_asset_mappings GROUP BY script_id, scene_id, asset_type)`,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count mapping keys: %w", err)
	}
	return count, nil
}

// DeleteMapping removes one mapping row by id.
func (s *Store) DeleteMapping(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := retryOnBusy(ensureContext(ctx), func() error {
		var err error
		deleted, err = deleteMapping(ctx, s.db, id)
		return err
	})
	return deleted, err
}

// InsertMappingRow appends a mapping without consulting existing rows. It
// exists for fixtures and restores that must reproduce duplicate data; the
// mapping package is the path that keeps keys unique.
func (s *Store) InsertMappingRow(ctx context.Context, m Mapping) (int64, error) {
	m.SceneID = m.Key().Normalize().SceneID
	if err := m.Key().Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := retryOnBusy(ensureContext(ctx), func() error {
		var err error
		id, err = insertMapping(ctx, s.db, m)
		return err
	})
	return id, err
}

func mappingsForKey(ctx context.Context, q querier, key MappingKey) ([]Mapping, error) {
	key = key.Normalize()
	rows, err := q.QueryContext(ctx,
		`SELECT `+mappingColumns+` FROM script_asset_mappings
		 WHERE script_id = ? AND scene_id IS ? AND asset_type = ?
		 ORDER BY id`,
		key.ScriptID, nullableString(key.SceneID), string(key.Kind),
	)
	if err != nil {
		return nil, fmt.Errorf("mappings for %s: %w", key, err)
	}
	return collectMappings(rows)
}

func collectMappings(rows *sql.Rows) ([]Mapping, error) {
	defer rows.Close()
	var mappings []Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

func insertMapping(ctx context.Context, q querier, m Mapping) (int64, error) {
	m.SceneID = m.Key().Normalize().SceneID
	linkedAt := m.LinkedAt
	if linkedAt.IsZero() {
		linkedAt = time.Now()
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO script_asset_mappings (script_id, scene_id, asset_type, asset_id, linked_at, role)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ScriptID,
		nullableString(m.SceneID),
		string(m.AssetType),
		m.AssetID,
		formatTime(linkedAt),
		nullableString(m.Role),
	)
	if err != nil {
		return 0, fmt.Errorf("insert mapping %s: %w", m.Key(), err)
	}
	return res.LastInsertId()
}

func repointMapping(ctx context.Context, q querier, id, assetID int64, linkedAt time.Time) error {
	if linkedAt.IsZero() {
		linkedAt = time.Now()
	}
	res, err := q.ExecContext(ctx,
		`UPDATE script_asset_mappings SET asset_id = ?, linked_at = ? WHERE id = ?`,
		assetID, formatTime(linkedAt), id,
	)
	if err != nil {
		return fmt.Errorf("repoint mapping %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repoint mapping %d rows: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("repoint mapping %d: %w", id, sql.ErrNoRows)
	}
	return nil
}

func deleteMapping(ctx context.Context, q querier, id int64) (bool, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM script_asset_mappings WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete mapping %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete mapping %d rows: %w", id, err)
	}
	return affected > 0, nil
}

func deleteMappingsExact(ctx context.Context, q querier, key MappingKey, assetID int64) (int64, error) {
	key = key.Normalize()
	res, err := q.ExecContext(ctx,
		`DELETE FROM script_asset_mappings
		 WHERE script_id = ? AND scene_id IS ? AND asset_type = ? AND asset_id = ?`,
		key.ScriptID, nullableString(key.SceneID), string(key.Kind), assetID,
	)
	if err != nil {
		return 0, fmt.Errorf("delete mappings %s asset %d: %w", key, assetID, err)
	}
	return res.RowsAffected()
}
