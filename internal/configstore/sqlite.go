package configstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sync"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store backed by a pure-Go SQLite database, migrated on
// open with goose. It is the reference persistence binding for cmd/harvest
// and cmd/harvestd; the core itself only ever sees the Store interface.
type SQLiteStore struct {
	conn *sql.DB

	mutex     sync.Mutex
	callbacks map[string][]func(string)
}

// OpenSQLiteStore opens (creating if necessary) the database at path and
// applies all pending migrations.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite config store: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite config store: %w", err)
	}

	migrationsSub, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations sub-fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, migrationsSub)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply config store migrations: %w", err)
	}

	return &SQLiteStore{conn: conn, callbacks: make(map[string][]func(string))}, nil
}

// Close closes the underlying connection.
func (store *SQLiteStore) Close() error {
	return store.conn.Close()
}

// Get returns the value stored under key, or "" if the key has never been set.
func (store *SQLiteStore) Get(key string) (string, error) {
	var value string
	err := store.conn.QueryRow(`SELECT value FROM config_entries WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get config key %q: %w", key, err)
	}
	return value, nil
}

// Set upserts value under key and notifies any registered OnChange callbacks.
func (store *SQLiteStore) Set(key, value, description string) error {
	_, err := store.conn.Exec(
		`INSERT INTO config_entries (key, value, description, updated_at)
		 VALUES (?, ?, ?, datetime('now'))
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, description = excluded.description, updated_at = excluded.updated_at`,
		key, value, description,
	)
	if err != nil {
		return fmt.Errorf("set config key %q: %w", key, err)
	}

	store.mutex.Lock()
	callbacks := append([]func(string){}, store.callbacks[key]...)
	store.mutex.Unlock()
	for _, callback := range callbacks {
		callback(value)
	}
	return nil
}

// OnChange registers callback to run whenever key is Set. The browser pool
// uses this on KeyProxyURL to invalidate its cached browser instance.
func (store *SQLiteStore) OnChange(key string, callback func(newValue string)) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.callbacks[key] = append(store.callbacks[key], callback)
}
