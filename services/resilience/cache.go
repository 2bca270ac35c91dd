package resilience

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/offboardhq/llmbridge/services/providers"
)

// CacheConfig controls the response cache
type CacheConfig struct {
	// TTL after which an entry no longer serves hits
	TTL time.Duration

	// MaxEntries bounds the number of cached responses
	MaxEntries int
}

// DefaultCacheConfig returns a sensible default configuration
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:        5 * time.Minute,
		MaxEntries: 1000,
	}
}

// ComputeFunc produces the response for a key on a cache miss
type ComputeFunc func(ctx context.Context) (*providers.ChatResponse, error)

// cacheEntry represents a single cached response
type cacheEntry struct {
	key      string
	response *providers.ChatResponse
	storedAt time.Time
	element  *list.Element // position in insertion order
}

// isExpired checks if the entry has outlived the TTL
func (e *cacheEntry) isExpired(ttl time.Duration, now time.Time) bool {
	return now.Sub(e.storedAt) > ttl
}

// ResponseCache is an in-memory TTL cache with a hard size bound. When full
// it evicts by storage age, oldest first. Concurrent misses for the same key
// collapse into a single computation through per-key locks; the winning
// computation is detached from its caller's cancellation so waiters can
// still be served.
type ResponseCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	order   *list.List // front = newest, back = oldest
	config  CacheConfig
	logger  *zap.Logger
	locks   *lockTable

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64

	now func() time.Time
}

// NewResponseCache creates a new response cache
func NewResponseCache(config CacheConfig, logger *zap.Logger) *ResponseCache {
	if config.TTL <= 0 {
		config.TTL = DefaultCacheConfig().TTL
	}
	if config.MaxEntries < 1 {
		config.MaxEntries = DefaultCacheConfig().MaxEntries
	}

	return &ResponseCache{
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
		config:  config,
		logger:  logger,
		locks:   newLockTable(),
		now:     time.Now,
	}
}

// GetOrCompute returns the cached response for key, or runs compute to fill
// it. Concurrent callers with the same key wait for the first computation
// and then hit the cache; a failed computation stores nothing, so the next
// waiter in line re-attempts. A caller whose ctx ends while waiting gets its
// context error without disturbing the in-flight computation.
func (c *ResponseCache) GetOrCompute(ctx context.Context, key string, compute ComputeFunc) (*providers.ChatResponse, error) {
	if resp, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return resp, nil
	}

	lock := c.locks.acquire(key)
	if err := lock.lock(ctx); err != nil {
		c.locks.release(key, lock)
		return nil, err
	}

	// Double-check: the previous lock holder may have filled the entry
	// while this caller waited.
	if resp, ok := c.lookup(key); ok {
		lock.unlock()
		c.locks.release(key, lock)
		c.hits.Add(1)
		return resp, nil
	}
	c.misses.Add(1)

	type result struct {
		resp *providers.ChatResponse
		err  error
	}
	done := make(chan result, 1)

	// The computation owns the key lock until it settles. It runs on a
	// context that survives the caller, so a caller that stops waiting
	// cannot kill a response other goroutines are queued for; upstream
	// client timeouts still bound it.
	go func() {
		defer c.locks.release(key, lock)
		defer lock.unlock()

		resp, err := compute(context.WithoutCancel(ctx))
		if err == nil {
			c.store(key, resp)
		}
		done <- result{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns the cached response for key, if fresh
func (c *ResponseCache) Get(key string) (*providers.ChatResponse, bool) {
	resp, ok := c.lookup(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return resp, ok
}

// lookup is the uncounted fast-path read
func (c *ResponseCache) lookup(key string) (*providers.ChatResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || entry.isExpired(c.config.TTL, c.now()) {
		return nil, false
	}
	return entry.response, true
}

// store inserts a response, replacing any stale entry for the key and
// evicting the oldest entries when the cache is full
func (c *ResponseCache) store(key string, resp *providers.ChatResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, exists := c.entries[key]; exists {
		c.removeEntry(existing)
	}

	for len(c.entries) >= c.config.MaxEntries {
		c.evictOldest()
	}

	entry := &cacheEntry{
		key:      key,
		response: resp,
		storedAt: c.now(),
	}
	entry.element = c.order.PushFront(entry)
	c.entries[key] = entry
}

// Clear removes all entries from the cache
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := len(c.entries)
	c.entries = make(map[string]*cacheEntry)
	c.order.Init()

	c.logger.Info("response cache cleared", zap.Int("removed", removed))
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// Stats returns cache statistics
func (c *ResponseCache) Stats() CacheStats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Size:      size,
		MaxSize:   c.config.MaxEntries,
		Hits:      hits,
		Misses:    misses,
		Evictions: c.evictions.Load(),
		HitRate:   hitRate,
	}
}

// CleanupExpired removes all expired entries and reports how many went.
// Entries sit in insertion order with a shared TTL, so the scan walks from
// the oldest end and stops at the first fresh entry.
func (c *ResponseCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for {
		back := c.order.Back()
		if back == nil {
			break
		}
		entry := back.Value.(*cacheEntry)
		if !entry.isExpired(c.config.TTL, now) {
			break
		}
		c.removeEntry(entry)
		removed++
	}

	if removed > 0 {
		c.logger.Debug("expired cache entries removed", zap.Int("count", removed))
	}
	return removed
}

// StartCleanupWorker periodically removes expired entries until stopCh
// closes. Run it in its own goroutine.
func (c *ResponseCache) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-stopCh:
			return
		}
	}
}

// removeEntry removes an entry from the cache (must be called with lock held)
func (c *ResponseCache) removeEntry(entry *cacheEntry) {
	c.order.Remove(entry.element)
	delete(c.entries, entry.key)
}

// evictOldest drops the entry with the oldest storage time
// (must be called with lock held)
func (c *ResponseCache) evictOldest() {
	back := c.order.Back()
	if back == nil {
		return
	}

	entry := back.Value.(*cacheEntry)
	c.removeEntry(entry)
	c.evictions.Add(1)

	c.logger.Debug("evicted oldest cache entry",
		zap.String("key", entry.key),
		zap.Time("stored_at", entry.storedAt))
}
