package emergency

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type ContactRepository interface {
	Create(ctx context.Context, c *Contact) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Contact, error)
}

type EventRepository interface {
	Append(ctx context.Context, e *Event) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Event, int, error)
}

// ---- in-memory implementations ----

type MemoryContactRepo struct {
	mu   sync.RWMutex
	data map[uuid.UUID]*Contact
}

func NewMemoryContactRepo() *MemoryContactRepo {
	return &MemoryContactRepo{data: make(map[uuid.UUID]*Contact)}
}

func (r *MemoryContactRepo) Create(_ context.Context, c *Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	cp := *c
	r.data[c.ID] = &cp
	return nil
}

func (r *MemoryContactRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return fmt.Errorf("contact not found")
	}
	delete(r.data, id)
	return nil
}

func (r *MemoryContactRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Contact
	for _, c := range r.data {
		if c.PatientID == patientID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

type MemoryEventRepo struct {
	mu     sync.RWMutex
	events []*Event
}

func NewMemoryEventRepo() *MemoryEventRepo {
	return &MemoryEventRepo{}
}

func (r *MemoryEventRepo) Append(_ context.Context, e *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	cp := *e
	r.events = append(r.events, &cp)
	return nil
}

func (r *MemoryEventRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Event, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []*Event
	for _, e := range r.events {
		if e.PatientID == patientID {
			matched = append(matched, e)
		}
	}
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}
