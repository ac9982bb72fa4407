package catalog

import (
	"sync"

	"github.com/serenityjs/plugin-registry/internal/models"
	"github.com/serenityjs/plugin-registry/internal/pkg/metrics"
)

// Cache holds the enriched, approved plugins served by the read API.
// Entries are replaced whole; All returns them in insertion order.
type Cache struct {
	mu      sync.RWMutex
	entries map[int64]models.Plugin
	order   []int64
}

func NewCache() *Cache {
	return &Cache{entries: make(map[int64]models.Plugin)}
}

// Put stores p, replacing any entry with the same id in place.
func (c *Cache) Put(p models.Plugin) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[p.ID]; !ok {
		c.order = append(c.order, p.ID)
	}
	c.entries[p.ID] = p
	metrics.CacheEntries.Set(float64(len(c.entries)))
}

func (c *Cache) Get(id int64) (models.Plugin, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.entries[id]
	return p, ok
}

func (c *Cache) Has(id int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[id]
	return ok
}

// All returns a snapshot of every entry; never nil.
func (c *Cache) All() []models.Plugin {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Plugin, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id])
	}
	return out
}

func (c *Cache) Delete(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; !ok {
		return
	}
	delete(c.entries, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	metrics.CacheEntries.Set(float64(len(c.entries)))
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int64]models.Plugin)
	c.order = nil
	metrics.CacheEntries.Set(0)
	metrics.CacheClearsTotal.Inc()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
