// Package sqlitestore is a file-backed session.KV implementation: a single
// WAL-mode SQLite database holding opaque session blobs keyed by session
// id, with a versioned migration table for schema changes.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed session.KV. A non-zero ttl expires rows lazily
// on read; there is no background reaper.
type Store struct {
	db  *sql.DB
	ttl time.Duration
}

// Open creates or opens a SQLite database at dbPath and applies schema
// migrations. A zero ttl disables session expiry.
func Open(dbPath string, ttl time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	store := &Store{db: db, ttl: ttl}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []func(*sql.DB) error{migrateV1}
	for i := version; i < len(migrations); i++ {
		slog.Info("applying session store migration", "version", i+1)
		if err := migrations[i](s.db); err != nil {
			return fmt.Errorf("migration v%d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("record migration v%d: %w", i+1, err)
		}
	}
	return nil
}

func migrateV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	return err
}

// Get implements session.KV. Expired rows are deleted on the read that
// finds them.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var updatedAt string
	err := s.db.QueryRowContext(ctx, "SELECT value, updated_at FROM sessions WHERE key = ?", key).Scan(&value, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get session: %w", err)
	}

	if s.ttl > 0 {
		ts, err := time.Parse(time.RFC3339Nano, updatedAt)
		if err != nil || time.Since(ts) > s.ttl {
			if err := s.Delete(ctx, key); err != nil {
				return nil, false, err
			}
			return nil, false, nil
		}
	}
	return value, true, nil
}

// Set implements session.KV.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at",
		key, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

// Delete implements session.KV.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
