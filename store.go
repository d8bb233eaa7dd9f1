package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// EntityStore is the pluggable persistence contract for entity records.
// The engine is the only writer; implementations must return copies so that
// stored state can never be mutated through a returned record.
type EntityStore interface {
	// Get returns the entity with the given id, or an error wrapping
	// ErrNotFound.
	Get(ctx context.Context, id string) (Entity, error)
	// Upsert stores the entities keyed by their EntityID, as one atomic
	// batch: a concurrent reader observes either none or all of them.
	Upsert(ctx context.Context, entities ...Entity) error
	// List returns the entities accepted by the filter, sorted by id.
	// A nil filter accepts every entity.
	List(ctx context.Context, filter func(Entity) bool) ([]Entity, error)
}

// MemoryStore is the in-memory EntityStore used in tests and by the CLI.
type MemoryStore struct {
	mu       sync.RWMutex
	entities map[string]Entity
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entities: make(map[string]Entity)}
}

// Get implements EntityStore.
func (s *MemoryStore) Get(_ context.Context, id string) (Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: entity %q", ErrNotFound, id)
	}
	return e.cloneEntity(), nil
}

// Upsert implements EntityStore.
func (s *MemoryStore) Upsert(_ context.Context, entities ...Entity) error {
	for _, e := range entities {
		if e == nil || e.EntityID() == "" {
			return fmt.Errorf("%w: entity without id", ErrInvalidRequest)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entities {
		s.entities[e.EntityID()] = e.cloneEntity()
	}
	return nil
}

// List implements EntityStore.
func (s *MemoryStore) List(_ context.Context, filter func(Entity) bool) ([]Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entity
	for _, e := range s.entities {
		if filter == nil || filter(e) {
			out = append(out, e.cloneEntity())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID() < out[j].EntityID() })
	return out, nil
}
