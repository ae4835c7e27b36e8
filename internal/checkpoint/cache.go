package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Cache is a read/write-through cache in front of a Store, scoped to the
// life of one process. Reads hit the cache first; writes go to the backing
// store and then refresh the cache.
type Cache struct {
	backend Store

	mu    sync.RWMutex
	items map[string]*Checkpoint
}

var _ Store = (*Cache)(nil)

// NewCache wraps backend.
func NewCache(backend Store) *Cache {
	return &Cache{backend: backend, items: make(map[string]*Checkpoint)}
}

// Backend returns the wrapped store.
func (c *Cache) Backend() Store { return c.backend }

// Load implements Store.
func (c *Cache) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	c.mu.RLock()
	cp, ok := c.items[threadID]
	c.mu.RUnlock()
	if ok {
		return cp.Clone(), nil
	}

	cp, err := c.backend.Load(ctx, threadID)
	if err != nil {
		return nil, wrap(OpLoad, threadID, err)
	}
	if cp == nil {
		return nil, nil
	}
	c.mu.Lock()
	c.items[threadID] = cp.Clone()
	c.mu.Unlock()
	return cp, nil
}

// Save implements Store.
func (c *Cache) Save(ctx context.Context, cp *Checkpoint) error {
	if err := c.backend.Save(ctx, cp); err != nil {
		c.Invalidate(threadOf(cp))
		return wrap(OpSave, threadOf(cp), err)
	}
	c.mu.Lock()
	c.items[cp.ThreadID] = cp.Clone()
	c.mu.Unlock()
	return nil
}

// Delete implements Store.
func (c *Cache) Delete(ctx context.Context, threadID string) error {
	c.Invalidate(threadID)
	return wrap(OpDelete, threadID, c.backend.Delete(ctx, threadID))
}

// List implements Store.
func (c *Cache) List(ctx context.Context) ([]string, error) {
	ids, err := c.backend.List(ctx)
	return ids, wrap(OpList, "", err)
}

// Prune forwards to the backend when it is a Pruner and empties the cache,
// since the pruned ids are not reported.
func (c *Cache) Prune(ctx context.Context, cutoff time.Time, includePending bool) (int, error) {
	p, ok := c.backend.(Pruner)
	if !ok {
		return 0, fmt.Errorf("%w: %T cannot prune", ErrUnsupported, c.backend)
	}
	n, err := p.Prune(ctx, cutoff, includePending)
	c.mu.Lock()
	c.items = make(map[string]*Checkpoint)
	c.mu.Unlock()
	return n, err
}

// Invalidate drops a cached entry.
func (c *Cache) Invalidate(threadID string) {
	c.mu.Lock()
	delete(c.items, threadID)
	c.mu.Unlock()
}
