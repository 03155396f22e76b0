package search

import (
	"context"
	"sync"
)

// IndexStore persists index entries keyed by (entity type, entity id).
//
// Implementations must make each Upsert atomic for its entry and keep at
// most one entry per key. There is no isolation across entries: a Scan that
// runs during a rebuild may observe a partially rebuilt index.
type IndexStore interface {
	// Upsert writes or replaces the entry for entry.Key(). An existing
	// entry keeps its CreatedAt.
	Upsert(ctx context.Context, entry *IndexEntry) error

	// Remove deletes the entry if present
	Remove(ctx context.Context, entityType EntityType, entityID string) error

	// Get returns ErrNotFound when the key has no entry
	Get(ctx context.Context, entityType EntityType, entityID string) (*IndexEntry, error)

	// Scan returns all entries passing the type filter in unspecified order
	Scan(ctx context.Context, filter EntityType) ([]*IndexEntry, error)

	// Count returns the number of entries in the store
	Count(ctx context.Context) (int, error)

	// Clear removes every entry
	Clear(ctx context.Context) error
}

// MemoryStore is an IndexStore for single-process deployments and tests.
// Scan returns entries in first-insertion order.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[EntryKey]*IndexEntry
	order   []EntryKey
}

var _ IndexStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory index
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[EntryKey]*IndexEntry),
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, entry *IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := cloneEntry(entry)
	key := stored.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[key]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		s.order = append(s.order, key)
	}
	s.entries[key] = stored
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, entityType EntityType, entityID string) error {
	key := EntryKey{Type: entityType, ID: entityID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return nil
	}
	delete(s.entries, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, entityType EntityType, entityID string) (*IndexEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[EntryKey{Type: entityType, ID: entityID}]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEntry(entry), nil
}

func (s *MemoryStore) Scan(ctx context.Context, filter EntityType) ([]*IndexEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*IndexEntry, 0, len(s.order))
	for _, key := range s.order {
		if !filter.Matches(key.Type) {
			continue
		}
		out = append(out, cloneEntry(s.entries[key]))
	}
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[EntryKey]*IndexEntry)
	s.order = nil
	return nil
}

// cloneEntry copies the slices so callers cannot mutate stored state
func cloneEntry(e *IndexEntry) *IndexEntry {
	c := *e
	c.Keywords = copyStrings(e.Keywords)
	c.Metadata.Tags = copyStrings(e.Metadata.Tags)
	return &c
}
