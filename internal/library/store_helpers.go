package library

import (
	"database/sql"
	"errors"
	"time"
)

const assetInfoColumns = "id, length(data), upload_source, original_filename, mime_type, uploaded_at"

const mappingColumns = "id, script_id, scene_id, asset_type, asset_id, linked_at, role"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssetInfo(scanner rowScanner, kind Kind) (AssetInfo, error) {
	var (
		info       AssetInfo
		size       sql.NullInt64
		source     sql.NullString
		filename   sql.NullString
		mime       sql.NullString
		uploadedAt sql.NullString
	)
	if err := scanner.Scan(&info.ID, &size, &source, &filename, &mime, &uploadedAt); err != nil {
		return AssetInfo{}, err
	}
	info.Kind = kind
	info.Size = size.Int64
	info.UploadSource = UploadSource(source.String)
	info.OriginalFilename = filename.String
	info.MimeType = mime.String
	info.UploadedAt = parseOptionalTime(uploadedAt)
	return info, nil
}

func scanAsset(scanner rowScanner, kind Kind) (*Asset, error) {
	var (
		asset      Asset
		source     sql.NullString
		filename   sql.NullString
		mime       sql.NullString
		uploadedAt sql.NullString
	)
	if err := scanner.Scan(&asset.ID, &asset.Data, &source, &filename, &mime, &uploadedAt); err != nil {
		return nil, err
	}
	asset.Kind = kind
	asset.UploadSource = UploadSource(source.String)
	asset.OriginalFilename = filename.String
	asset.MimeType = mime.String
	asset.UploadedAt = parseOptionalTime(uploadedAt)
	if asset.Data == nil {
		asset.Data = []byte{}
	}
	return &asset, nil
}

func scanMapping(scanner rowScanner) (Mapping, error) {
	var (
		m        Mapping
		sceneID  sql.NullString
		kind     string
		linkedAt sql.NullString
		role     sql.NullString
	)
	if err := scanner.Scan(&m.ID, &m.ScriptID, &sceneID, &kind, &m.AssetID, &linkedAt, &role); err != nil {
		return Mapping{}, err
	}
	m.SceneID = sceneID.String
	m.AssetType = Kind(kind)
	m.Role = role.String
	if ts, err := parseTimeString(linkedAt.String); err == nil {
		m.LinkedAt = ts
	}
	return m, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return formatTime(*value)
}

func nullableInt(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func parseOptionalTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	ts, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &ts
}
