package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertAsset stores a new asset of a.Kind and returns its id. Metadata
// fields left empty are stored as absent.
func (s *Store) InsertAsset(ctx context.Context, a Asset) (int64, error) {
	table, err := assetTable(a.Kind)
	if err != nil {
		return 0, err
	}
	if _, err := ParseUploadSource(string(a.UploadSource)); err != nil {
		return 0, err
	}
	data := a.Data
	if data == nil {
		data = []byte{}
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO `+table+` (data, upload_source, original_filename, mime_type, uploaded_at) VALUES (?, ?, ?, ?, ?)`,
		data,
		nullableString(string(a.UploadSource)),
		nullableString(a.OriginalFilename),
		nullableString(a.MimeType),
		nullableTime(a.UploadedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", a.Kind, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert %s id: %w", a.Kind, err)
	}
	return id, nil
}

// GetAsset returns the asset with its payload, or nil when it does not exist.
func (s *Store) GetAsset(ctx context.Context, kind Kind, id int64) (*Asset, error) {
	table, err := assetTable(kind)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, data, upload_source, original_filename, mime_type, uploaded_at FROM `+table+` WHERE id = ?`, id)
	asset, err := scanAsset(row, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %d: %w", kind, id, err)
	}
	return asset, nil
}

// GetAssetInfo returns the asset without its payload, or nil when it does not exist.
func (s *Store) GetAssetInfo(ctx context.Context, kind Kind, id int64) (*AssetInfo, error) {
	table, err := assetTable(kind)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+assetInfoColumns+` FROM `+table+` WHERE id = ?`, id)
	info, err := scanAssetInfo(row, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %d info: %w", kind, id, err)
	}
	return &info, nil
}

// AssetExists reports whether an asset of kind with id is stored.
func (s *Store) AssetExists(ctx context.Context, kind Kind, id int64) (bool, error) {
	table, err := assetTable(kind)
	if err != nil {
		return false, err
	}
	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = ?)`, id,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check %s %d: %w", kind, id, err)
	}
	return exists == 1, nil
}

// ReadAssetHead returns up to n leading bytes of the payload, enough for
// content sniffing without loading large videos. Missing assets yield nil.
func (s *Store) ReadAssetHead(ctx context.Context, kind Kind, id int64, n int) ([]byte, error) {
	table, err := assetTable(kind)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = 512
	}
	var head []byte
	err = s.db.QueryRowContext(ctx,
		`SELECT substr(data, 1, ?) FROM `+table+` WHERE id = ?`, n, id,
	).Scan(&head)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s %d head: %w", kind, id, err)
	}
	return head, nil
}

// ListAssetInfos returns up to limit assets with id greater than afterID,
// ordered by id, without payloads.
func (s *Store) ListAssetInfos(ctx context.Context, kind Kind, afterID int64, limit int) ([]AssetInfo, error) {
	table, err := assetTable(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assetInfoColumns+` FROM `+table+` WHERE id > ? ORDER BY id LIMIT ?`,
		afterID, pageLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind.Collection(), err)
	}
	defer rows.Close()

	var infos []AssetInfo
	for rows.Next() {
		info, err := scanAssetInfo(rows, kind)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// ListAssets is ListAssetInfos with payloads, used by export.
func (s *Store) ListAssets(ctx context.Context, kind Kind, afterID int64, limit int) ([]Asset, error) {
	table, err := assetTable(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data, upload_source, original_filename, mime_type, uploaded_at FROM `+table+` WHERE id > ? ORDER BY id LIMIT ?`,
		afterID, pageLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind.Collection(), err)
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		asset, err := scanAsset(rows, kind)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *asset)
	}
	return assets, rows.Err()
}

// CountAssets returns the number of stored assets of kind.
func (s *Store) CountAssets(ctx context.Context, kind Kind) (int, error) {
	table, err := assetTable(kind)
	if err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM `+table).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind.Collection(), err)
	}
	return count, nil
}

// BackfillMetadata writes the patch fields that are currently absent on the
// asset. Existing values are never overwritten, except an upload time that
// cannot be parsed, which readers already treat as absent. It reports whether
// a row was updated.
func (s *Store) BackfillMetadata(ctx context.Context, kind Kind, id int64, patch MetadataPatch) (bool, error) {
	table, err := assetTable(kind)
	if err != nil {
		return false, err
	}
	if _, err := ParseUploadSource(string(patch.UploadSource)); err != nil {
		return false, err
	}
	uploadedAt := patch.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now()
	}
	unreadable, err := s.uploadedAtUnreadable(ctx, table, id)
	if err != nil {
		return false, fmt.Errorf("backfill %s %d: %w", kind, id, err)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE `+table+` SET
			upload_source = COALESCE(NULLIF(upload_source, ''), ?),
			mime_type = COALESCE(NULLIF(mime_type, ''), ?),
			uploaded_at = CASE WHEN ? THEN ? ELSE COALESCE(NULLIF(uploaded_at, ''), ?) END
		WHERE id = ?
		  AND (? OR upload_source IS NULL OR upload_source = ''
		    OR mime_type IS NULL OR mime_type = ''
		    OR uploaded_at IS NULL OR uploaded_at = '')`,
		nullableString(string(patch.UploadSource)),
		nullableString(patch.MimeType),
		unreadable,
		formatTime(uploadedAt),
		formatTime(uploadedAt),
		id,
		unreadable,
	)
	if err != nil {
		return false, fmt.Errorf("backfill %s %d: %w", kind, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("backfill %s %d rows: %w", kind, id, err)
	}
	return affected > 0, nil
}

// uploadedAtUnreadable reports whether the stored upload time is set but
// does not parse, such as epoch milliseconds written by older clients.
func (s *Store) uploadedAtUnreadable(ctx context.Context, table string, id int64) (bool, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT uploaded_at FROM `+table+` WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return raw.Valid && raw.String != "" && parseOptionalTime(raw) == nil, nil
}

// DeleteAsset removes the asset. Mappings that point at it are left in place
// and become dangling; the verifier reports them.
func (s *Store) DeleteAsset(ctx context.Context, kind Kind, id int64) (bool, error) {
	table, err := assetTable(kind)
	if err != nil {
		return false, err
	}
	res, err := s.execWithRetry(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete %s %d: %w", kind, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s %d rows: %w", kind, id, err)
	}
	return affected > 0, nil
}

const defaultPageLimit = 500

func pageLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	return limit
}
