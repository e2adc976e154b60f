// Package store provides the embedded SQLite database that owns all durable
// stockpile state: products, the mutation queue, the identity map, and the
// notification/sync audit log.
//
// The database runs in embedded mode using the ncruces/go-sqlite3 driver
// with WAL enabled for concurrent reads. All state lives here; the sync
// orchestrator and janitor hold nothing beyond in-memory counters, which
// makes the system crash-safe by construction: after a restart the pending
// queue is rebuilt from durable rows alone.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// schemaVersion is written to PRAGMA user_version on Init. A database file
// carrying a higher version was produced by a newer build and is refused
// rather than silently misread.
const schemaVersion = 1

// ErrSchemaVersion is returned by Open when the database file was written
// by a newer schema than this build understands. The owner must upgrade or
// re-open against a fresh path.
var ErrSchemaVersion = errors.New("database schema is newer than this build")

// ErrNotFound is returned by single-record getters when no visible row
// matches. Tombstoned records are not visible.
var ErrNotFound = errors.New("record not found")

// StorageError wraps a failure of the underlying SQLite store. Callers
// treat it as fatal for the current operation: it is surfaced synchronously
// and never retried by the sync engine.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorage reports whether err is (or wraps) a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// Store wraps the SQLite connection. All collections are accessed through
// its methods; no other component persists state.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at the given path and initializes the
// schema. The parent directory is created if missing. The caller must Close
// when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, storageErr("open", fmt.Errorf("failed to create database directory: %w", err))
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, storageErr("open", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, storageErr("open", fmt.Errorf("failed to ping database: %w", err))
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, storageErr("open", fmt.Errorf("failed to apply %q: %w", pragma, err))
		}
	}

	var version int
	if err := s.conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		_ = s.Close()
		return nil, storageErr("open", err)
	}
	if version > schemaVersion {
		_ = s.Close()
		return nil, fmt.Errorf("%w (file version %d, supported %d)", ErrSchemaVersion, version, schemaVersion)
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return storageErr("close", err)
	}

	s.conn = nil
	return nil
}

// initSchema creates all tables and indexes. Idempotent.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		sku TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL DEFAULT 0,
		price_cents INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		sync_status TEXT NOT NULL DEFAULT 'pending',
		deleted INTEGER NOT NULL DEFAULT 0,
		cached_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_type TEXT NOT NULL,
		action TEXT NOT NULL,
		product_id TEXT NOT NULL,
		data TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		idempotency_key TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS id_map (
		temp_id TEXT PRIMARY KEY,
		real_id TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		message TEXT NOT NULL,
		read INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,
		status TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_products_status ON products(sync_status);
	CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);
	CREATE INDEX IF NOT EXISTS idx_products_deleted ON products(deleted);

	CREATE INDEX IF NOT EXISTS idx_queue_status ON sync_queue(status);
	CREATE INDEX IF NOT EXISTS idx_queue_created ON sync_queue(created_at);
	CREATE INDEX IF NOT EXISTS idx_queue_product ON sync_queue(product_id);

	CREATE INDEX IF NOT EXISTS idx_notifications_read ON notifications(read);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return storageErr("init", err)
	}

	if _, err := s.conn.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d", schemaVersion)); err != nil {
		return storageErr("init", err)
	}

	return nil
}

// parseTime parses an RFC3339 timestamp column, tolerating the plain
// second-precision form.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
