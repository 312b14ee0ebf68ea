package library

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Dataset is the full content of a library, used to restore a backup.
type Dataset struct {
	Scripts  []Script
	Assets   map[Kind][]Asset
	Prompts  []Prompt
	Mappings []Mapping
}

// IsEmpty reports whether every data table is empty.
func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	for _, table := range requiredTables {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM `+table+`)`).Scan(&exists); err != nil {
			return false, fmt.Errorf("check %s: %w", table, err)
		}
		if exists == 1 {
			return false, nil
		}
	}
	return true, nil
}

// Restore writes the dataset in a single transaction, preserving every id.
// Rows are written as-is, including duplicate or dangling mappings. Callers
// are expected to check IsEmpty first; id collisions fail the whole restore.
func (s *Store) Restore(ctx context.Context, data Dataset) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin restore tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, script := range data.Scripts {
			content, err := json.Marshal(scriptContent{Acts: script.Acts})
			if err != nil {
				return fmt.Errorf("encode script %d content: %w", script.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO scripts (id, title, content_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
				script.ID, script.Title, string(content),
				formatTime(orNow(script.CreatedAt)), formatTime(orNow(script.UpdatedAt)),
			); err != nil {
				return fmt.Errorf("restore script %d: %w", script.ID, err)
			}
		}

		for _, kind := range Kinds {
			table, _ := assetTable(kind)
			for _, asset := range data.Assets[kind] {
				payload := asset.Data
				if payload == nil {
					payload = []byte{}
				}
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO `+table+` (id, data, upload_source, original_filename, mime_type, uploaded_at) VALUES (?, ?, ?, ?, ?, ?)`,
					asset.ID, payload,
					nullableString(string(asset.UploadSource)),
					nullableString(asset.OriginalFilename),
					nullableString(asset.MimeType),
					nullableTime(asset.UploadedAt),
				); err != nil {
					return fmt.Errorf("restore %s %d: %w", kind, asset.ID, err)
				}
			}
		}

		for _, prompt := range data.Prompts {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO prompts (id, script_id, text, created_at) VALUES (?, ?, ?, ?)`,
				prompt.ID, nullableInt(prompt.ScriptID), prompt.Text, formatTime(orNow(prompt.CreatedAt)),
			); err != nil {
				return fmt.Errorf("restore prompt %d: %w", prompt.ID, err)
			}
		}

		for _, m := range data.Mappings {
			if !m.AssetType.Valid() {
				return invalid("mapping asset type", "mapping %d has %q", m.ID, string(m.AssetType))
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO script_asset_mappings (id, script_id, scene_id, asset_type, asset_id, linked_at, role)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				m.ID, m.ScriptID, nullableString(m.Key().Normalize().SceneID), string(m.AssetType), m.AssetID,
				formatTime(orNow(m.LinkedAt)), nullableString(m.Role),
			); err != nil {
				return fmt.Errorf("restore mapping %d: %w", m.ID, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit restore: %w", err)
		}
		return nil
	})
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
