package optiq

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/glob"
)

// DefaultMaxEntries caps the default in-memory cache size.
const DefaultMaxEntries = 1000

// CacheEntry represents a cached result. Entries are immutable once stored;
// overwrites replace the entry wholesale.
type CacheEntry struct {
	Value     any
	StoredAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its TTL at the given instant.
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Cache is the interface for result caching.
type Cache interface {
	// Get returns the stored value only if unexpired. An expired entry is
	// treated as absent.
	Get(key string) (any, bool)

	// Set stores a value with the given TTL, overwriting unconditionally.
	Set(key string, value any, ttl time.Duration)

	// Delete removes a single entry. Idempotent.
	Delete(key string)

	// Invalidate removes every entry whose key matches pattern (exact string
	// or glob-style wildcard). Returns the number of entries removed.
	Invalidate(pattern string) int

	// Clear removes all entries.
	Clear()

	// Len reports the current number of entries, expired or not.
	Len() int
}

// staleReader is implemented by caches that retain expired entries for a
// grace period, enabling stale fallback when a refresh fails.
type staleReader interface {
	GetStale(key string) (any, bool)
}

// evictionCounter is implemented by caches that track capacity evictions.
type evictionCounter interface {
	Evictions() uint64
}

// InMemoryCache is a mutex-guarded TTL cache. Expired entries are evicted
// lazily on read, not by a background timer. When full, the oldest tenth of
// the entries is evicted to make room.
type InMemoryCache struct {
	mu          sync.RWMutex
	store       map[string]*CacheEntry
	maxEntries  int
	staleWindow time.Duration
	evictions   atomic.Uint64
}

// NewInMemoryCache creates an in-memory cache bounded at DefaultMaxEntries.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		store:      make(map[string]*CacheEntry),
		maxEntries: DefaultMaxEntries,
	}
}

// Get retrieves an unexpired value. Expired entries count as absent and are
// deleted on read once they are also past the stale window.
func (c *InMemoryCache) Get(key string) (any, bool) {
	c.mu.RLock()
	entry, exists := c.store[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}

	now := time.Now()
	if entry.Expired(now) {
		if c.staleWindow <= 0 || now.After(entry.ExpiresAt.Add(c.staleWindow)) {
			c.mu.Lock()
			if cur, ok := c.store[key]; ok && cur == entry {
				delete(c.store, key)
			}
			c.mu.Unlock()
		}
		return nil, false
	}

	return entry.Value, true
}

// GetStale returns the stored value even if expired, as long as the entry is
// still retained. Used for fallback when a refresh fails.
func (c *InMemoryCache) GetStale(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.store[key]
	if !exists {
		return nil, false
	}
	return entry.Value, true
}

// Set stores a value with storedAt = now. Any existing entry for the key is
// replaced wholesale.
func (c *InMemoryCache) Set(key string, value any, ttl time.Duration) {
	now := time.Now()
	entry := &CacheEntry{
		Value:     value,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && c.maxEntries > 0 && len(c.store) >= c.maxEntries {
		c.evictOldest()
	}
	c.store[key] = entry
}

// evictOldest removes the oldest ~10% of entries. Caller must hold c.mu.
func (c *InMemoryCache) evictOldest() {
	type aged struct {
		key      string
		storedAt time.Time
	}
	entries := make([]aged, 0, len(c.store))
	for key, entry := range c.store {
		entries = append(entries, aged{key, entry.StoredAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].storedAt.Before(entries[j].storedAt)
	})

	evictCount := len(entries) / 10
	if evictCount < 1 {
		evictCount = 1
	}
	for i := 0; i < evictCount; i++ {
		delete(c.store, entries[i].key)
		c.evictions.Add(1)
	}
}

// Delete removes a single entry.
func (c *InMemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.store, key)
}

// Invalidate removes every entry whose key matches the pattern. The pattern
// is interpreted as a glob ("foo*", "*/kpis?*"); a pattern that fails to
// compile is matched as a literal key. No error when nothing matches.
func (c *InMemoryCache) Invalidate(pattern string) int {
	matcher, err := glob.Compile(pattern)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.store {
		match := key == pattern
		if err == nil && !match {
			match = matcher.Match(key)
		}
		if match {
			delete(c.store, key)
			removed++
		}
	}
	return removed
}

// Clear removes all entries and zeroes the eviction counter.
func (c *InMemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store = make(map[string]*CacheEntry)
	c.evictions.Store(0)
}

// Len reports the number of retained entries.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.store)
}

// Evictions reports the number of capacity evictions since creation or Clear.
func (c *InMemoryCache) Evictions() uint64 {
	return c.evictions.Load()
}

// Ensure InMemoryCache satisfies the cache contracts.
var (
	_ Cache           = (*InMemoryCache)(nil)
	_ staleReader     = (*InMemoryCache)(nil)
	_ evictionCounter = (*InMemoryCache)(nil)
)
