// Package statestore persists document-scoped script state in SQLite.
package statestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS script_state (
	scope      TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (scope, key)
)`

// Store is a SQLite-backed key/value store partitioned by scope.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	path   string
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("state database path is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating state schema: %w", err)
	}

	logger.Debug("state store opened", "path", path)
	return &Store{db: db, logger: logger, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the decoded value of key in scope, or def when absent.
func (s *Store) Get(ctx context.Context, scope, key string, def any) (any, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM script_state WHERE scope = ? AND key = ?`, scope, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", scope, key, err)
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", scope, key, err)
	}
	return v, nil
}

// Set stores value as JSON under key in scope.
func (s *Store) Set(ctx context.Context, scope, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", scope, key, err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO script_state (scope, key, value, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (scope, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		scope, key, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", scope, key, err)
	}
	return nil
}

// Delete removes key from scope. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, scope, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM script_state WHERE scope = ? AND key = ?`, scope, key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", scope, key, err)
	}
	return nil
}

// Keys lists the keys stored in scope, sorted.
func (s *Store) Keys(ctx context.Context, scope string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM script_state WHERE scope = ? ORDER BY key`, scope)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", scope, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Scope returns an accessor bound to one scope, typically a document path.
// Its methods match sandbox.StateAccessor.
func (s *Store) Scope(ctx context.Context, scope string) *Scoped {
	return &Scoped{store: s, ctx: ctx, scope: scope}
}

// Scoped is a Store view limited to one scope.
type Scoped struct {
	store *Store
	ctx   context.Context
	scope string
}

func (sc *Scoped) Get(key string, def any) (any, error) {
	return sc.store.Get(sc.ctx, sc.scope, key, def)
}

func (sc *Scoped) Set(key string, value any) error {
	return sc.store.Set(sc.ctx, sc.scope, key, value)
}

func (sc *Scoped) Delete(key string) error {
	return sc.store.Delete(sc.ctx, sc.scope, key)
}
