// Package sqlitestore implements state.Store on a SQLite file. Lock
// exclusivity comes from a conditional upsert, so several API processes on one
// host can share the same database file.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cockpit/internal/apperrors"
	"cockpit/internal/state"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS locks (
	name       TEXT PRIMARY KEY,
	token      TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);`

// Store is a SQLite-backed state.Store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", state.ErrKeyNotFound
	}
	if err != nil {
		return "", apperrors.Internal("sqlite.get", err)
	}
	return value, nil
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return apperrors.Internal("sqlite.set", err)
	}
	return nil
}

// TryObtain inserts the lock row, or takes over a row whose lease has expired.
func (s *Store) TryObtain(ctx context.Context, name string, ttl time.Duration) (state.Lease, error) {
	now := s.now()
	token := uuid.NewString()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO locks (name, token, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET token = excluded.token, expires_at = excluded.expires_at
		 WHERE locks.expires_at <= ?`,
		name, token, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.Internal("sqlite.obtainLock", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, apperrors.Internal("sqlite.obtainLock", err)
	}
	if n != 1 {
		return nil, state.ErrNotObtained
	}
	return &lease{store: s, name: name, token: token}, nil
}

// Ping checks the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type lease struct {
	store *Store
	name  string
	token string
}

func (l *lease) Token() string { return l.token }

func (l *lease) Release(ctx context.Context) error {
	res, err := l.store.db.ExecContext(ctx,
		`DELETE FROM locks WHERE name = ? AND token = ? AND expires_at > ?`,
		l.name, l.token, l.store.now().UnixMilli())
	if err != nil {
		return apperrors.Internal("sqlite.releaseLock", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Internal("sqlite.releaseLock", err)
	}
	if n == 0 {
		return state.ErrLockNotHeld
	}
	return nil
}

var _ state.Store = (*Store)(nil)
