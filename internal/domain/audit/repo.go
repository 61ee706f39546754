package audit

import (
	"context"
	"sort"
	"sync"
)

// EntryRepository is append-only: recorded entries are never updated or
// deleted.
type EntryRepository interface {
	Append(ctx context.Context, e *Entry) error
	// Search filters by action and/or subject id; empty strings match all.
	Search(ctx context.Context, action, subjectID string, limit, offset int) ([]*Entry, int, error)
}

// MemoryRepo is an in-memory EntryRepository for tests and standalone use.
type MemoryRepo struct {
	mu      sync.RWMutex
	entries []*Entry
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

func (r *MemoryRepo) Append(_ context.Context, e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *MemoryRepo) Search(_ context.Context, action, subjectID string, limit, offset int) ([]*Entry, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Entry
	for _, e := range r.entries {
		if action != "" && e.Action != action {
			continue
		}
		if subjectID != "" && !contains(e.SubjectIDs, subjectID) {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

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

func contains(ids []string, want string) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}
