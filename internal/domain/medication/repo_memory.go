package medication

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory MedicationRepository, used in tests and in
// deployments without a database.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[uuid.UUID]*Medication
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[uuid.UUID]*Medication)}
}

func (r *MemoryRepo) Create(_ context.Context, m *Medication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	cp := *m
	r.data[m.ID] = &cp
	return nil
}

func (r *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Medication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *MemoryRepo) Update(_ context.Context, m *Medication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[m.ID]; !ok {
		return ErrNotFound
	}
	m.UpdatedAt = time.Now().UTC()
	cp := *m
	r.data[m.ID] = &cp
	return nil
}

func (r *MemoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return ErrNotFound
	}
	delete(r.data, id)
	return nil
}

func (r *MemoryRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Medication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Medication
	for _, m := range r.data {
		if m.PatientID == patientID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MemoryDoseLogRepo is an in-memory append-only DoseLogRepository.
type MemoryDoseLogRepo struct {
	mu      sync.RWMutex
	entries []*DoseLogEntry
}

func NewMemoryDoseLogRepo() *MemoryDoseLogRepo {
	return &MemoryDoseLogRepo{}
}

func (r *MemoryDoseLogRepo) Append(_ context.Context, e *DoseLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	cp := *e
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *MemoryDoseLogRepo) LastTaken(_ context.Context, medicationID uuid.UUID) (*DoseLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var last *DoseLogEntry
	for _, e := range r.entries {
		if e.MedicationID != medicationID || e.Status != DoseTaken {
			continue
		}
		if last == nil || e.TakenAt.After(last.TakenAt) {
			last = e
		}
	}
	if last == nil {
		return nil, nil
	}
	cp := *last
	return &cp, nil
}

func (r *MemoryDoseLogRepo) CountTakenBetween(_ context.Context, medicationID uuid.UUID, from, to time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, e := range r.entries {
		if e.MedicationID != medicationID || e.Status != DoseTaken {
			continue
		}
		if !e.TakenAt.Before(from) && e.TakenAt.Before(to) {
			count++
		}
	}
	return count, nil
}

func (r *MemoryDoseLogRepo) ListByMedication(_ context.Context, medicationID uuid.UUID, limit, offset int) ([]*DoseLogEntry, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []*DoseLogEntry
	for _, e := range r.entries {
		if e.MedicationID == medicationID {
			cp := *e
			matched = append(matched, &cp)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].TakenAt.After(matched[j].TakenAt) })
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
