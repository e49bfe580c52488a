// Package resolver determines which user accounts should receive a
// notification for a given tenant/project, trying the cache, then the primary
// directories, then a fallback lookup, deduplicating across admins and staff.
package resolver

import (
	"strings"
	"sync"
	"time"

	"sitefoundry.io/foreman/internal/domain"
)

// cacheEntry is one resolution result with its expiry window.
type cacheEntry struct {
	recipients []domain.Recipient
	dedupCount int
	cachedAt   time.Time
	ttl        time.Duration
}

func (e cacheEntry) expired(now time.Time) bool {
	return now.After(e.cachedAt.Add(e.ttl))
}

// Cache is the process-local resolution cache, keyed by clientId[:projectId].
// Entries are lazily evicted on the next lookup after expiry. Each server
// process has an independent cache; there is no cross-instance invalidation.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewCache creates an empty resolution cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func cacheKey(clientID, projectID string) string {
	if projectID == "" {
		return clientID
	}
	return clientID + ":" + projectID
}

// Get returns the cached recipients for the key, evicting an expired entry.
func (c *Cache) Get(clientID, projectID string) ([]domain.Recipient, int, bool) {
	key := cacheKey(clientID, projectID)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, 0, false
	}

	if entry.expired(c.now()) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if current, still := c.entries[key]; still && current.expired(c.now()) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, 0, false
	}

	return entry.recipients, entry.dedupCount, true
}

// Set stores a resolution result with the given TTL, overwriting any entry.
func (c *Cache) Set(clientID, projectID string, recipients []domain.Recipient, dedupCount int, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(clientID, projectID)] = cacheEntry{
		recipients: recipients,
		dedupCount: dedupCount,
		cachedAt:   c.now(),
		ttl:        ttl,
	}
}

// Clear removes entries. Empty clientID clears everything; otherwise entries
// for that tenant (including project-scoped keys) are removed.
func (c *Cache) Clear(clientID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if clientID == "" {
		n := len(c.entries)
		c.entries = make(map[string]cacheEntry)
		return n
	}

	n := 0
	for key := range c.entries {
		if key == clientID || strings.HasPrefix(key, clientID+":") {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

// Size reports the number of live entries, counting expired-but-unevicted ones.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
