package discovery

import (
	"strings"
	"sync"
	"time"

	"github.com/lumina-bi/lumina-engine/pkg/apperrors"
	"github.com/lumina-bi/lumina-engine/pkg/models"
)

// ResultCache holds completed discovery results keyed by normalized
// connection identity, for a bounded TTL. It is an injected service object
// with its own lifecycle, never package-level state, so tests can
// substitute a fresh instance. Entries are written only after a discovery
// run fully completes.
type ResultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	processes []*models.DiscoveredProcess
	storedAt  time.Time
}

// NewResultCache creates a cache with the given TTL.
func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// normalizeCacheKey folds connection identities to a canonical form.
func normalizeCacheKey(connectionID string) string {
	return strings.ToLower(strings.TrimSpace(connectionID))
}

// Get returns the cached process list for the connection. A miss returns
// apperrors.ErrNotFound; an entry past its TTL is evicted and returns
// apperrors.ErrCacheExpired.
func (c *ResultCache) Get(connectionID string) ([]*models.DiscoveredProcess, error) {
	key := normalizeCacheKey(connectionID)
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		delete(c.entries, key)
		return nil, apperrors.ErrCacheExpired
	}
	return entry.processes, nil
}

// Put stores a completed discovery result.
func (c *ResultCache) Put(connectionID string, processes []*models.DiscoveredProcess) {
	key := normalizeCacheKey(connectionID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{processes: processes, storedAt: c.now()}
}

// Invalidate drops the cached result for the connection, if any.
func (c *ResultCache) Invalidate(connectionID string) {
	key := normalizeCacheKey(connectionID)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
