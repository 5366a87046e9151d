// Package settings provides the operator-tunable runtime configuration for
// smsops, backed by a SQLite key/value table: the active SMS provider slug,
// the confirmation-mode default, the undo window, and per-provider
// configuration documents.
//
// Provider credentials (API keys, auth tokens) are intentionally NOT stored
// here; they are read from the environment only, keeping the security-audit
// boundary between secrets and plain config clear.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sierra-tahoe/smsops/internal/smsops/store"
)

// ErrNotFound is returned by Get when the requested key does not exist.
var ErrNotFound = errors.New("settings: key not found")

// KV is the read/write interface for the runtime configuration table.
// Implementations must be safe for concurrent use.
type KV interface {
	// Get returns the value associated with key.  Returns ErrNotFound when the
	// key has not been set.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, creating or overwriting the entry and
	// recording the current UTC timestamp in updated_at.
	Set(ctx context.Context, key string, value string) error

	// Delete removes key from the store.  It is a no-op (no error) when the
	// key does not exist.
	Delete(ctx context.Context, key string) error
}

// sqliteKV is the SQLite-backed implementation of KV.
type sqliteKV struct {
	db *store.Store
}

// NewKV creates a KV store backed by the application SQLite database.
// The migration that creates the config table must have been applied before
// NewKV is called (this is guaranteed by store.New running all migrations on
// startup).
func NewKV(db *store.Store) KV {
	return &sqliteKV{db: db}
}

// Get returns the value for key or ErrNotFound when absent.
func (s *sqliteKV) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.DB().QueryRowContext(ctx,
		`SELECT value FROM config WHERE key = ?`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("settings: get %q: %w", key, err)
	}
	return value, nil
}

// Set upserts the key/value pair, updating updated_at to the current UTC time.
func (s *sqliteKV) Set(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO config (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, now)
	if err != nil {
		return fmt.Errorf("settings: set %q: %w", key, err)
	}
	return nil
}

// Delete removes key. It is idempotent; deleting a non-existent key returns
// nil.
func (s *sqliteKV) Delete(ctx context.Context, key string) error {
	_, err := s.db.DB().ExecContext(ctx, `DELETE FROM config WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("settings: delete %q: %w", key, err)
	}
	return nil
}
