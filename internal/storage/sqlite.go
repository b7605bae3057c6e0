package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

type SQLiteBackend struct {
	path string

	mu sync.RWMutex
	db *sqlx.DB
}

func NewSQLiteBackend(path string) *SQLiteBackend {
	return &SQLiteBackend{path: path}
}

func (b *SQLiteBackend) Init(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.path == "" {
		return errors.New("sqlite path is required")
	}
	if b.db != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("create sqlite dir: %w", err)
	}

	db, err := sqlx.Open("sqlite", b.path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS records (
			key TEXT PRIMARY KEY,
			payload BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`); err != nil {
		_ = db.Close()
		return fmt.Errorf("create records table: %w", err)
	}

	b.db = db
	return nil
}

func (b *SQLiteBackend) Read(ctx context.Context, key string) ([]byte, error) {
	db, err := b.getDB()
	if err != nil {
		return nil, err
	}

	var payload []byte
	if err := db.GetContext(ctx, &payload, `SELECT payload FROM records WHERE key = ?`, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return payload, nil
}

func (b *SQLiteBackend) Write(ctx context.Context, key string, data []byte) error {
	db, err := b.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO records (key, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, key, data, time.Now().Unix())
	return err
}

func (b *SQLiteBackend) Delete(ctx context.Context, key string) error {
	db, err := b.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, key)
	return err
}

// Keys lists stored record keys in name order.
func (b *SQLiteBackend) Keys(ctx context.Context) ([]string, error) {
	db, err := b.getDB()
	if err != nil {
		return nil, err
	}
	var keys []string
	if err := db.SelectContext(ctx, &keys, `SELECT key FROM records ORDER BY key`); err != nil {
		return nil, err
	}
	return keys, nil
}

func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

func (b *SQLiteBackend) getDB() (*sqlx.DB, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return nil, errors.New("sqlite backend not initialized")
	}
	return b.db, nil
}
