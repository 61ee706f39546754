package conflict

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrEditNotFound is returned for an unknown or expired edit.
	ErrEditNotFound = errors.New("schedule edit not found")
	// ErrConflictNotFound is returned for an unknown conflict id.
	ErrConflictNotFound = errors.New("conflict not found")
)

// EditStore holds in-flight schedule edits. Edits are short-lived
// interactive sessions; the durable record of their outcome is the audit
// trail, not the store.
type EditStore interface {
	Save(ctx context.Context, e *Edit) error
	Get(ctx context.Context, id uuid.UUID) (*Edit, error)
	// GetByConflict returns the edit owning the conflict.
	GetByConflict(ctx context.Context, conflictID uuid.UUID) (*Edit, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// MemoryEditStore keeps edits in process memory.
type MemoryEditStore struct {
	mu         sync.RWMutex
	edits      map[uuid.UUID]*Edit
	byConflict map[uuid.UUID]uuid.UUID
}

func NewMemoryEditStore() *MemoryEditStore {
	return &MemoryEditStore{
		edits:      make(map[uuid.UUID]*Edit),
		byConflict: make(map[uuid.UUID]uuid.UUID),
	}
}

func (s *MemoryEditStore) Save(_ context.Context, e *Edit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edits[e.ID] = e
	for _, c := range e.Conflicts {
		s.byConflict[c.ID] = e.ID
	}
	return nil
}

func (s *MemoryEditStore) Get(_ context.Context, id uuid.UUID) (*Edit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edits[id]
	if !ok {
		return nil, ErrEditNotFound
	}
	return e, nil
}

func (s *MemoryEditStore) GetByConflict(_ context.Context, conflictID uuid.UUID) (*Edit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	editID, ok := s.byConflict[conflictID]
	if !ok {
		return nil, ErrConflictNotFound
	}
	e, ok := s.edits[editID]
	if !ok {
		return nil, ErrEditNotFound
	}
	return e, nil
}

func (s *MemoryEditStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edits[id]
	if !ok {
		return nil
	}
	for _, c := range e.Conflicts {
		delete(s.byConflict, c.ID)
	}
	delete(s.edits, id)
	return nil
}
