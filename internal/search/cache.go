package search

import (
	"sync"

	"exbuddy/internal/models"
)

// QueryCache holds earlier live results keyed by query.
type QueryCache interface {
	Get(query string) ([]models.Exercise, bool)
	Put(query string, entries []models.Exercise)
}

// MemoryCache is a QueryCache bounded to a number of queries; the oldest
// query is evicted first.
type MemoryCache struct {
	mu      sync.Mutex
	max     int
	entries map[string][]models.Exercise
	order   []string
}

func NewMemoryCache(max int) *MemoryCache {
	if max <= 0 {
		max = 100
	}
	return &MemoryCache{max: max, entries: make(map[string][]models.Exercise)}
}

func (c *MemoryCache) Get(query string) ([]models.Exercise, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[query]
	return e, ok
}

func (c *MemoryCache) Put(query string, entries []models.Exercise) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[query]; !ok {
		c.order = append(c.order, query)
		if len(c.order) > c.max {
			delete(c.entries, c.order[0])
			c.order = c.order[1:]
		}
	}
	c.entries[query] = entries
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// DirectoryCache holds the full exercise directory once loaded.
type DirectoryCache struct {
	mu      sync.RWMutex
	entries []models.Exercise
	loaded  bool
}

func (d *DirectoryCache) Set(entries []models.Exercise) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = entries
	d.loaded = true
}

// Get returns nil until Set has been called.
func (d *DirectoryCache) Get() []models.Exercise {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.entries
}

func (d *DirectoryCache) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}
