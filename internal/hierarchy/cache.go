package hierarchy

import (
	"context"
	"sync"
)

// Loader fetches the active role forest from persistence. A nil forest means
// no hierarchy has been configured yet.
type Loader func(ctx context.Context) ([]*Node, error)

// Cache holds the active forest in memory. The forest is replaced wholesale
// on edit, never patched, so readers always see a consistent tree.
type Cache struct {
	load Loader

	mu     sync.RWMutex
	forest []*Node
	loaded bool
}

func NewCache(load Loader) *Cache {
	return &Cache{load: load}
}

// Forest returns the active forest, loading it on first use. Errors from the
// loader are returned without caching so the next call retries.
func (c *Cache) Forest(ctx context.Context) ([]*Node, error) {
	c.mu.RLock()
	if c.loaded {
		forest := c.forest
		c.mu.RUnlock()
		return forest, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.forest, nil
	}
	forest, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	c.forest = forest
	c.loaded = true
	return forest, nil
}

// Replace installs a new forest, making it visible to subsequent readers.
func (c *Cache) Replace(forest []*Node) {
	c.mu.Lock()
	c.forest = forest
	c.loaded = true
	c.mu.Unlock()
}

// Invalidate drops the cached forest so the next read reloads it.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.forest = nil
	c.loaded = false
	c.mu.Unlock()
}
