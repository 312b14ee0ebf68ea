package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// Counts returns row counts for every data table.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	counts := Counts{Assets: make(map[Kind]int, len(Kinds))}
	var err error
	if counts.Scripts, err = s.CountScripts(ctx); err != nil {
		return Counts{}, err
	}
	if counts.Prompts, err = s.CountPrompts(ctx); err != nil {
		return Counts{}, err
	}
	if counts.Mappings, err = s.CountMappings(ctx); err != nil {
		return Counts{}, err
	}
	for _, kind := range Kinds {
		n, err := s.CountAssets(ctx, kind)
		if err != nil {
			return Counts{}, err
		}
		counts.Assets[kind] = n
	}
	return counts, nil
}

// ListTables returns the user tables present in the database, sorted.
func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// MissingTables returns the required tables absent from the database.
func (s *Store) MissingTables(ctx context.Context) ([]string, error) {
	present, err := s.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	have := make(map[string]struct{}, len(present))
	for _, name := range present {
		have[name] = struct{}{}
	}
	var missing []string
	for _, name := range requiredTables {
		if _, ok := have[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

// CheckHealth returns diagnostic information about the library database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("library database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat library database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("library database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("library database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping library database: %w", err)
	}
	health.DatabaseReadable = true

	if err := s.db.QueryRowContext(connCtx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("read schema version: %w", err)
	}

	tables, err := s.ListTables(connCtx)
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	health.TablesPresent = tables
	missing, err := s.MissingTables(connCtx)
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	sort.Strings(missing)
	health.MissingTables = missing

	var integrity string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")
	if !health.IntegrityCheck {
		health.Error = integrity
	}

	if len(missing) == 0 {
		counts, err := s.Counts(connCtx)
		if err != nil {
			health.Error = err.Error()
			return health, err
		}
		health.Counts = counts
	}
	return health, nil
}
