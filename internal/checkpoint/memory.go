package checkpoint

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps checkpoints in process memory. Values are deep-copied on
// the way in and out.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Checkpoint
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Pruner = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Checkpoint)}
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap(OpLoad, threadID, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items[threadID].Clone(), nil
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return wrap(OpSave, threadOf(cp), err)
	}
	if err := ctx.Err(); err != nil {
		return wrap(OpSave, cp.ThreadID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[cp.ThreadID] = cp.Clone()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[threadID]; !ok {
		return wrap(OpDelete, threadID, ErrNotFound)
	}
	delete(s.items, threadID)
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Prune implements Pruner.
func (s *MemoryStore) Prune(_ context.Context, cutoff time.Time, includePending bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, cp := range s.items {
		if !cp.UpdatedAt.Before(cutoff) || (cp.PendingInterrupt != nil && !includePending) {
			continue
		}
		delete(s.items, id)
		n++
	}
	return n, nil
}

func threadOf(cp *Checkpoint) string {
	if cp == nil {
		return ""
	}
	return cp.ThreadID
}
