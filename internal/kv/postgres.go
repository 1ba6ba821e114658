package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"faucet/pkg/platform/sentinel"
	"faucet/pkg/requestcontext"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS faucet_kv (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	expires_at TIMESTAMPTZ NULL
);
CREATE INDEX IF NOT EXISTS faucet_kv_expires_at_idx ON faucet_kv (expires_at) WHERE expires_at IS NOT NULL;
`

const (
	getQuery = `SELECT value FROM faucet_kv
WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`

	upsertQuery = `INSERT INTO faucet_kv (key, value, expires_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`

	insertIfAbsentQuery = `INSERT INTO faucet_kv (key, value, expires_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
WHERE faucet_kv.expires_at IS NOT NULL AND faucet_kv.expires_at <= $4`

	swapQuery = `UPDATE faucet_kv SET value = $2, expires_at = $3
WHERE key = $1 AND value = $4 AND (expires_at IS NULL OR expires_at > $5)`

	compareDeleteQuery = `DELETE FROM faucet_kv
WHERE key = $1 AND value = $2 AND (expires_at IS NULL OR expires_at > $3)`

	deleteQuery = `DELETE FROM faucet_kv WHERE key = $1`

	deleteExpiredQuery = `DELETE FROM faucet_kv WHERE expires_at IS NOT NULL AND expires_at <= $1`
)

// PostgresStore implements Store on a single PostgreSQL table. Expired rows
// are invisible to reads and replaced by conditional inserts; RemoveExpiredAt
// reclaims them.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed store. Call EnsureSchema once
// before first use.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the backing table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create kv schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, getQuery, key, requestcontext.Now(ctx)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get kv %s: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, upsertQuery, key, nonNil(value), expiry(ctx, ttl))
	if err != nil {
		return fmt.Errorf("set kv %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	res, err := s.db.ExecContext(ctx, insertIfAbsentQuery,
		key, nonNil(value), expiry(ctx, ttl), requestcontext.Now(ctx),
	)
	if err != nil {
		return false, fmt.Errorf("set kv if absent %s: %w", key, err)
	}
	return affectedOne(res)
}

func (s *PostgresStore) CompareAndSwap(ctx context.Context, key string, prev, next []byte, ttl time.Duration) (bool, error) {
	if prev == nil {
		return s.SetIfAbsent(ctx, key, next, ttl)
	}
	res, err := s.db.ExecContext(ctx, swapQuery,
		key, nonNil(next), expiry(ctx, ttl), prev, requestcontext.Now(ctx),
	)
	if err != nil {
		return false, fmt.Errorf("compare-and-swap kv %s: %w", key, err)
	}
	return affectedOne(res)
}

func (s *PostgresStore) CompareAndDelete(ctx context.Context, key string, prev []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx, compareDeleteQuery, key, nonNil(prev), requestcontext.Now(ctx))
	if err != nil {
		return false, fmt.Errorf("compare-and-delete kv %s: %w", key, err)
	}
	return affectedOne(res)
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, deleteQuery, key); err != nil {
		return fmt.Errorf("delete kv %s: %w", key, err)
	}
	return nil
}

// StartCleanup runs periodic cleanup of expired rows until ctx is cancelled.
func (s *PostgresStore) StartCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RemoveExpiredAt(ctx, time.Now()); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RemoveExpiredAt deletes every row that has expired as of now and returns
// how many were removed.
func (s *PostgresStore) RemoveExpiredAt(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, deleteExpiredQuery, now)
	if err != nil {
		return 0, fmt.Errorf("cleanup kv rows: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup kv rows: %w", err)
	}
	return n, nil
}

func expiry(ctx context.Context, ttl time.Duration) sql.NullTime {
	if ttl <= 0 {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: requestcontext.Now(ctx).Add(ttl), Valid: true}
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
