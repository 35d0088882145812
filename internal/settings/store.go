// Package settings persists user display preferences and notifies
// subscribers when they change. The core never writes here; only the
// options handlers do.
package settings

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Preference keys.
const (
	KeyFormat            = "format"             // "relative" or "absolute"
	KeyShowMessages      = "show_messages"      // "true" / "false"
	KeyShowConversations = "show_conversations" // "true" / "false"
)

// Defaults applied when a key has never been written.
var defaults = map[string]string{
	KeyFormat:            "absolute",
	KeyShowMessages:      "true",
	KeyShowConversations: "true",
}

// Store is a SQLite-backed key-value store with change notifications.
type Store struct {
	db *sql.DB

	mu   sync.RWMutex
	subs []func(key, value string)
}

// Open creates or opens the settings database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Get returns the stored value for key, or its default when unset.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return defaults[key], nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

// All returns every known preference, defaults filled in for unset keys.
func (s *Store) All(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}

	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Set upserts a preference and notifies subscribers.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now())
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}

	s.mu.RLock()
	subs := s.subs
	s.mu.RUnlock()
	for _, fn := range subs {
		fn(key, value)
	}
	return nil
}

// Subscribe registers a change listener. Listeners run synchronously on
// the writer's goroutine and should return quickly.
func (s *Store) Subscribe(fn func(key, value string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Store) Close() error {
	return s.db.Close()
}
