package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"medialib/internal/config"
)

// Store manages library persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	sqliteLockedCode        = 6
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		// Extended result codes keep the primary code in the low byte.
		switch coder.Code() & 0xff {
		case sqliteBusyCode, sqliteLockedCode:
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Open initializes or connects to the library database described by cfg.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.DatabasePath(), cfg.Database.BusyTimeoutMillis)
}

// OpenPath opens the database at path, creating the schema on first use.
func OpenPath(path string, busyTimeoutMillis int) (*Store, error) {
	if busyTimeoutMillis <= 0 {
		busyTimeoutMillis = 5000
	}
	// Pragmas in the DSN apply to every pooled connection, not just the first.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate",
		path, busyTimeoutMillis,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// MappingTx is the set of mapping operations available inside a write
// transaction. Reads observe the transaction's own writes.
type MappingTx interface {
	MappingsForKey(ctx context.Context, key MappingKey) ([]Mapping, error)
	InsertMapping(ctx context.Context, m Mapping) (int64, error)
	RepointMapping(ctx context.Context, id, assetID int64, linkedAt time.Time) error
	DeleteMapping(ctx context.Context, id int64) (bool, error)
	DeleteMappingsExact(ctx context.Context, key MappingKey, assetID int64) (int64, error)
}

type mappingTx struct {
	q querier
}

// WithMappingTx runs fn inside one write transaction. The transaction takes
// the database write lock at BEGIN, so a lookup and the write that depends on
// it cannot interleave with another writer. The whole of fn is retried when
// SQLite reports the database busy, so fn must not have side effects outside
// the transaction.
func (s *Store) WithMappingTx(ctx context.Context, fn func(tx MappingTx) error) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin mapping tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := fn(&mappingTx{q: tx}); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit mapping tx: %w", err)
		}
		return nil
	})
}

func (t *mappingTx) MappingsForKey(ctx context.Context, key MappingKey) ([]Mapping, error) {
	return mappingsForKey(ctx, t.q, key)
}

func (t *mappingTx) InsertMapping(ctx context.Context, m Mapping) (int64, error) {
	return insertMapping(ctx, t.q, m)
}

func (t *mappingTx) RepointMapping(ctx context.Context, id, assetID int64, linkedAt time.Time) error {
	return repointMapping(ctx, t.q, id, assetID, linkedAt)
}

func (t *mappingTx) DeleteMapping(ctx context.Context, id int64) (bool, error) {
	return deleteMapping(ctx, t.q, id)
}

func (t *mappingTx) DeleteMappingsExact(ctx context.Context, key MappingKey, assetID int64) (int64, error) {
	return deleteMappingsExact(ctx, t.q, key, assetID)
}
