package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// scriptContent is the persisted shape of content_json.
type scriptContent struct {
	Acts []Act `json:"acts"`
}

// CreateScript stores a script and returns it with id and timestamps set.
func (s *Store) CreateScript(ctx context.Context, title string, acts []Act) (*Script, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, invalid("script title", "must not be empty")
	}
	content, err := json.Marshal(scriptContent{Acts: acts})
	if err != nil {
		return nil, fmt.Errorf("encode script content: %w", err)
	}
	now := time.Now().UTC()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO scripts (title, content_json, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		title, string(content), formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert script: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert script id: %w", err)
	}
	return &Script{ID: id, Title: title, Acts: acts, CreatedAt: now, UpdatedAt: now}, nil
}

// UpdateScriptActs replaces the scene tree of a script.
func (s *Store) UpdateScriptActs(ctx context.Context, id int64, acts []Act) error {
	content, err := json.Marshal(scriptContent{Acts: acts})
	if err != nil {
		return fmt.Errorf("encode script content: %w", err)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE scripts SET content_json = ?, updated_at = ? WHERE id = ?`,
		string(content), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("update script %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update script %d rows: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("update script %d: %w", id, sql.ErrNoRows)
	}
	return nil
}

// GetScript returns the script, or nil when it does not exist.
func (s *Store) GetScript(ctx context.Context, id int64) (*Script, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, content_json, created_at, updated_at FROM scripts WHERE id = ?`, id)
	script, err := scanScript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get script %d: %w", id, err)
	}
	return script, nil
}

// ListScripts returns up to limit scripts with id greater than afterID, ordered by id.
func (s *Store) ListScripts(ctx context.Context, afterID int64, limit int) ([]Script, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content_json, created_at, updated_at FROM scripts WHERE id > ? ORDER BY id LIMIT ?`,
		afterID, pageLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	defer rows.Close()

	var scripts []Script
	for rows.Next() {
		script, err := scanScript(rows)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, *script)
	}
	return scripts, rows.Err()
}

// CountScripts returns the number of stored scripts.
func (s *Store) CountScripts(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM scripts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count scripts: %w", err)
	}
	return count, nil
}

func scanScript(scanner rowScanner) (*Script, error) {
	var (
		script     Script
		content    sql.NullString
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(&script.ID, &script.Title, &content, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	if content.Valid && strings.TrimSpace(content.String) != "" {
		var decoded scriptContent
		if err := json.Unmarshal([]byte(content.String), &decoded); err != nil {
			return nil, fmt.Errorf("decode script %d content: %w", script.ID, err)
		}
		script.Acts = decoded.Acts
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		script.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		script.UpdatedAt = updated
	}
	return &script, nil
}

// CreatePrompt stores a prompt, optionally attached to a script.
func (s *Store) CreatePrompt(ctx context.Context, scriptID *int64, text string) (*Prompt, error) {
	if strings.TrimSpace(text) == "" {
		return nil, invalid("prompt text", "must not be empty")
	}
	now := time.Now().UTC()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO prompts (script_id, text, created_at) VALUES (?, ?, ?)`,
		nullableInt(scriptID), text, formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert prompt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert prompt id: %w", err)
	}
	return &Prompt{ID: id, ScriptID: scriptID, Text: text, CreatedAt: now}, nil
}

// ListPrompts returns up to limit prompts with id greater than afterID, ordered by id.
func (s *Store) ListPrompts(ctx context.Context, afterID int64, limit int) ([]Prompt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, script_id, text, created_at FROM prompts WHERE id > ? ORDER BY id LIMIT ?`,
		afterID, pageLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	var prompts []Prompt
	for rows.Next() {
		var (
			p          Prompt
			scriptID   sql.NullInt64
			createdRaw sql.NullString
		)
		if err := rows.Scan(&p.ID, &scriptID, &p.Text, &createdRaw); err != nil {
			return nil, err
		}
		if scriptID.Valid {
			id := scriptID.Int64
			p.ScriptID = &id
		}
		if created, err := parseTimeString(createdRaw.String); err == nil {
			p.CreatedAt = created
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

// CountPrompts returns the number of stored prompts.
func (s *Store) CountPrompts(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM prompts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count prompts: %w", err)
	}
	return count, nil
}
