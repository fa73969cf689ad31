package provider

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// TokenCache is the key-value store holding gateway access tokens. It is the
// only source of truth for a token: implementations may be shared between
// processes, and an entry disappears once its TTL has elapsed.
type TokenCache interface {
	// Get returns the cached value and whether it was found
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key for ttl
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Purger is implemented by caches that can drop their expired entries
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// tokenCacheEntry represents a cached token
type tokenCacheEntry struct {
	Key         string
	Value       string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	listElement *list.Element // For LRU tracking
}

// CacheStats represents cache performance metrics
type CacheStats struct {
	Size        int     `json:"size"`
	MaxSize     int     `json:"max_size"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Evictions   int64   `json:"evictions"`
	TTLExpiries int64   `json:"ttl_expiries"`
	HitRatio    float64 `json:"hit_ratio"`
}

// InMemoryTokenCache implements TokenCache for a single process
type InMemoryTokenCache struct {
	entries     map[string]*tokenCacheEntry
	accessOrder *list.List // most recent at front
	maxSize     int
	now         func() time.Time
	mu          sync.Mutex

	hits        int64
	misses      int64
	evictions   int64
	ttlExpiries int64
}

// NewInMemoryTokenCache creates a new in-memory token cache holding at most
// maxSize entries. A non-positive maxSize means unbounded.
func NewInMemoryTokenCache(maxSize int) *InMemoryTokenCache {
	return &InMemoryTokenCache{
		entries:     make(map[string]*tokenCacheEntry),
		accessOrder: list.New(),
		maxSize:     maxSize,
		now:         time.Now,
	}
}

// Get retrieves a token from cache
func (c *InMemoryTokenCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		c.misses++
		return "", false, nil
	}

	if !c.now().Before(entry.ExpiresAt) {
		c.deleteEntryUnsafe(entry)
		c.ttlExpiries++
		c.misses++
		return "", false, nil
	}

	c.accessOrder.MoveToFront(entry.listElement)
	c.hits++
	return entry.Value, true, nil
}

// Set stores a token in cache. A non-positive ttl is a no-op because the
// entry would already be expired.
func (c *InMemoryTokenCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if existing, exists := c.entries[key]; exists {
		existing.Value = value
		existing.CreatedAt = now
		existing.ExpiresAt = now.Add(ttl)
		c.accessOrder.MoveToFront(existing.listElement)
		return nil
	}

	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictLRUUnsafe()
	}

	entry := &tokenCacheEntry{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	entry.listElement = c.accessOrder.PushFront(entry)
	c.entries[key] = entry

	return nil
}

// Stats returns cache statistics
func (c *InMemoryTokenCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	totalRequests := c.hits + c.misses
	hitRatio := 0.0
	if totalRequests > 0 {
		hitRatio = float64(c.hits) / float64(totalRequests)
	}

	return CacheStats{
		Size:        len(c.entries),
		MaxSize:     c.maxSize,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		TTLExpiries: c.ttlExpiries,
		HitRatio:    hitRatio,
	}
}

// PurgeExpired removes expired entries and returns how many were removed
func (c *InMemoryTokenCache) PurgeExpired(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var purged int64
	now := c.now()
	for _, entry := range c.entries {
		if !now.Before(entry.ExpiresAt) {
			c.deleteEntryUnsafe(entry)
			c.ttlExpiries++
			purged++
		}
	}
	return purged, nil
}

// evictLRUUnsafe removes the least recently used entry (must be called with lock held)
func (c *InMemoryTokenCache) evictLRUUnsafe() {
	lruElement := c.accessOrder.Back()
	if lruElement == nil {
		return
	}

	c.deleteEntryUnsafe(lruElement.Value.(*tokenCacheEntry))
	c.evictions++
}

// deleteEntryUnsafe removes an entry from both map and list (must be called with lock held)
func (c *InMemoryTokenCache) deleteEntryUnsafe(entry *tokenCacheEntry) {
	delete(c.entries, entry.Key)
	if entry.listElement != nil {
		c.accessOrder.Remove(entry.listElement)
	}
}
