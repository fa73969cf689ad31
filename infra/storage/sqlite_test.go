package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteCache(t *testing.T) *SQLiteTokenCache {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "data", "gowompi.db")
	cache, err := NewSQLiteTokenCache(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestNewSQLiteTokenCache(t *testing.T) {
	cache := newTestSQLiteCache(t)

	assert.NotNil(t, cache.db)
	_, err := os.Stat(cache.path)
	assert.NoError(t, err, "database file should be created")
	assert.NoError(t, cache.Ping(context.Background()))
}

func TestSQLiteTokenCache_SetGet(t *testing.T) {
	ctx := context.Background()
	cache := newTestSQLiteCache(t)

	_, found, err := cache.Get(ctx, "wompi_access_token")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, "wompi_access_token", "token-1", time.Hour))
	value, found, err := cache.Get(ctx, "wompi_access_token")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "token-1", value)

	// overwrite on renewal
	require.NoError(t, cache.Set(ctx, "wompi_access_token", "token-2", time.Hour))
	value, _, err = cache.Get(ctx, "wompi_access_token")
	require.NoError(t, err)
	assert.Equal(t, "token-2", value)
}

func TestSQLiteTokenCache_Expiry(t *testing.T) {
	ctx := context.Background()
	cache := newTestSQLiteCache(t)

	now := time.Now()
	cache.now = func() time.Time { return now }
	require.NoError(t, cache.Set(ctx, "key", "value", time.Minute))

	cache.now = func() time.Time { return now.Add(time.Minute) }
	_, found, err := cache.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, found, "token at its expiry instant is a miss")

	// expired row was removed
	cache.now = func() time.Time { return now }
	_, found, err = cache.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteTokenCache_NonPositiveTTL(t *testing.T) {
	ctx := context.Background()
	cache := newTestSQLiteCache(t)

	require.NoError(t, cache.Set(ctx, "key", "value", 0))
	_, found, err := cache.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteTokenCache_Delete(t *testing.T) {
	ctx := context.Background()
	cache := newTestSQLiteCache(t)

	require.NoError(t, cache.Set(ctx, "key", "value", time.Hour))
	require.NoError(t, cache.Delete(ctx, "key"))
	require.NoError(t, cache.Delete(ctx, "missing"))

	_, found, err := cache.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteTokenCache_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	cache := newTestSQLiteCache(t)

	now := time.Now()
	cache.now = func() time.Time { return now }
	require.NoError(t, cache.Set(ctx, "short", "1", time.Second))
	require.NoError(t, cache.Set(ctx, "long", "2", time.Hour))

	cache.now = func() time.Time { return now.Add(time.Minute) }
	purged, err := cache.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	value, found, err := cache.Get(ctx, "long")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2", value)
}

func TestSQLiteTokenCache_SharedFile(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "shared.db")

	first, err := NewSQLiteTokenCache(dbPath)
	require.NoError(t, err)
	defer first.Close()

	second, err := NewSQLiteTokenCache(dbPath)
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, first.Set(ctx, "wompi_access_token", "shared", time.Hour))
	value, found, err := second.Get(ctx, "wompi_access_token")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "shared", value)
}

func TestSQLiteTokenCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	cache := newTestSQLiteCache(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, cache.Set(ctx, "key", "value", time.Hour))
			_, _, err := cache.Get(ctx, "key")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestSQLiteTokenCache_ClosedDB(t *testing.T) {
	cache := newTestSQLiteCache(t)
	require.NoError(t, cache.Close())

	_, _, err := cache.Get(context.Background(), "key")
	assert.Error(t, err)
}
