// Package storage holds token caches that can be shared by several processes.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mstgnz/gowompi/infra/logger"
	"github.com/mstgnz/gowompi/provider"

	_ "github.com/mattn/go-sqlite3"
)

var (
	_ provider.TokenCache = (*SQLiteTokenCache)(nil)
	_ provider.Purger     = (*SQLiteTokenCache)(nil)
)

// SQLiteTokenCache stores tokens in a SQLite file so replicas on one host
// share a single access token
type SQLiteTokenCache struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewSQLiteTokenCache opens (or creates) the database at dbPath
func NewSQLiteTokenCache(dbPath string) (*SQLiteTokenCache, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	// WAL and a busy timeout let several processes read and write the file
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_timeout=20000&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)
	if dbPath == ":memory:" {
		// every connection would get its own in-memory database
		db.SetMaxOpenConns(1)
	}

	cache := &SQLiteTokenCache{
		db:   db,
		path: dbPath,
		now:  time.Now,
	}

	if err := cache.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite token cache initialized", logger.LogContext{
		Fields: map[string]any{"path": dbPath},
	})
	return cache, nil
}

func (s *SQLiteTokenCache) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS token_cache (
		cache_key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		expires_at INTEGER NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Get returns the value stored under key. Expired rows are removed and
// reported as a miss.
func (s *SQLiteTokenCache) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value     string
		expiresAt int64
	)

	err := s.retryOperation(func() error {
		return s.db.QueryRowContext(ctx,
			`SELECT value, expires_at FROM token_cache WHERE cache_key = ?`, key,
		).Scan(&value, &expiresAt)
	}, 3)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load token: %w", err)
	}

	if s.now().UnixNano() >= expiresAt {
		if err := s.Delete(ctx, key); err != nil {
			logger.Warn("Failed to remove expired token", logger.LogContext{
				Fields: map[string]any{"error": err.Error(), "cache_key": key},
			})
		}
		return "", false, nil
	}

	return value, true, nil
}

// Set upserts value under key for ttl. A ttl <= 0 stores nothing.
func (s *SQLiteTokenCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	expiresAt := s.now().Add(ttl).UnixNano()

	return s.retryOperation(func() error {
		query := `
		INSERT INTO token_cache (cache_key, value, expires_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(cache_key)
		DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP
		`
		if _, err := s.db.ExecContext(ctx, query, key, value, expiresAt); err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}
		return nil
	}, 3)
}

// Delete removes key. Deleting a missing key is not an error.
func (s *SQLiteTokenCache) Delete(ctx context.Context, key string) error {
	return s.retryOperation(func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM token_cache WHERE cache_key = ?`, key)
		return err
	}, 3)
}

// PurgeExpired deletes every expired row and returns how many were removed
func (s *SQLiteTokenCache) PurgeExpired(ctx context.Context) (int64, error) {
	var purged int64
	err := s.retryOperation(func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM token_cache WHERE expires_at <= ?`, s.now().UnixNano())
		if err != nil {
			return err
		}
		purged, err = res.RowsAffected()
		return err
	}, 3)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired tokens: %w", err)
	}
	return purged, nil
}

// Ping checks the database connection
func (s *SQLiteTokenCache) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteTokenCache) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// retryOperation retries operation on SQLITE_BUSY with exponential backoff
func (s *SQLiteTokenCache) retryOperation(operation func() error, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if !isBusy(err) {
			return err
		}

		lastErr = err
		if attempt < maxRetries {
			// 10ms, 20ms, 40ms
			backoff := time.Duration(10*(1<<attempt)) * time.Millisecond
			logger.Debug(fmt.Sprintf("SQLite busy, retrying in %v (attempt %d/%d)", backoff, attempt+1, maxRetries+1))
			time.Sleep(backoff)
		}
	}

	return fmt.Errorf("operation failed after %d retries, last error: %w", maxRetries+1, lastErr)
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
