package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mstgnz/gowompi/infra/logger"
	"github.com/mstgnz/gowompi/provider"
)

var (
	_ provider.TokenCache = (*PostgresTokenCache)(nil)
	_ provider.Purger     = (*PostgresTokenCache)(nil)
)

// DBTX is the subset of *pgxpool.Pool the cache needs
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresTokenCache stores tokens in a PostgreSQL table shared by every
// replica of the service
type PostgresTokenCache struct {
	db   DBTX
	pool *pgxpool.Pool
	now  func() time.Time
}

const createTokenCacheTable = `
CREATE TABLE IF NOT EXISTS wompi_token_cache (
	cache_key  TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// NewPostgresTokenCache connects to databaseURL and creates the cache table
func NewPostgresTokenCache(ctx context.Context, databaseURL string) (*PostgresTokenCache, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	poolCfg.MaxConns = 5
	poolCfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cache := NewPostgresTokenCacheWithDB(pool)
	cache.pool = pool

	if err := cache.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("PostgreSQL token cache initialized")
	return cache, nil
}

// NewPostgresTokenCacheWithDB wraps an existing connection or pool
func NewPostgresTokenCacheWithDB(db DBTX) *PostgresTokenCache {
	return &PostgresTokenCache{db: db, now: time.Now}
}

// Migrate creates the cache table if it does not exist
func (p *PostgresTokenCache) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, createTokenCacheTable); err != nil {
		return fmt.Errorf("failed to create token cache table: %w", err)
	}
	return nil
}

// Get returns the unexpired value stored under key
func (p *PostgresTokenCache) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := p.db.QueryRow(ctx,
		`SELECT value FROM wompi_token_cache WHERE cache_key = $1 AND expires_at > $2`,
		key, p.now().UTC(),
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to load token: %w", err)
	}
	return value, true, nil
}

// Set upserts value under key for ttl. A ttl <= 0 stores nothing.
func (p *PostgresTokenCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	_, err := p.db.Exec(ctx,
		`INSERT INTO wompi_token_cache (cache_key, value, expires_at, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (cache_key)
		 DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = now()`,
		key, value, p.now().Add(ttl).UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// PurgeExpired deletes every expired row and returns how many were removed
func (p *PostgresTokenCache) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM wompi_token_cache WHERE expires_at <= $1`, p.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks the pool, when the cache owns one
func (p *PostgresTokenCache) Ping(ctx context.Context) error {
	if p.pool == nil {
		return nil
	}
	return p.pool.Ping(ctx)
}

// Close releases the pool opened by NewPostgresTokenCache
func (p *PostgresTokenCache) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}
