package progress

import (
	"context"
	"sync"
	"time"
)

// StructureCache caches the number of units of each course.
type StructureCache interface {
	// Get returns the cached totals of the given courses. Courses not cached are absent from the map.
	Get(ctx context.Context, courseIDs []string) (map[string]int, error)
	Set(ctx context.Context, totals map[string]int) error
	Invalidate(ctx context.Context, courseIDs ...string) error
}

type cacheEntry struct {
	total     int
	expiresAt time.Time
}

// MemoryCache is an in-process StructureCache with a TTL.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

var _ StructureCache = (*MemoryCache)(nil) // interface compliance check

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *MemoryCache) Get(_ context.Context, courseIDs []string) (map[string]int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	found := make(map[string]int, len(courseIDs))
	for _, id := range courseIDs {
		if e, ok := c.entries[id]; ok && now.Before(e.expiresAt) {
			found[id] = e.total
		}
	}
	return found, nil
}

func (c *MemoryCache) Set(_ context.Context, totals map[string]int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	for id, total := range totals {
		c.entries[id] = cacheEntry{total: total, expiresAt: expiresAt}
	}
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, courseIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(courseIDs) == 0 {
		c.entries = make(map[string]cacheEntry)
		return nil
	}
	for _, id := range courseIDs {
		delete(c.entries, id)
	}
	return nil
}
