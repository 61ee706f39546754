package interaction

import (
	"container/list"
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Fingerprint derives the canonical, order-independent cache key for a
// medication name set: names are lower-cased, sorted, and joined.
func Fingerprint(names []string) string {
	normalized := make([]string, 0, len(names))
	for _, n := range names {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(n)))
	}
	sort.Strings(normalized)
	return strings.Join(normalized, "|")
}

// ResultStore caches computed result sets by fingerprint. A hit must
// return exactly what a fresh computation produced at write time;
// staleness within the TTL is accepted, incorrectness is not. A miss must
// always fall through to recomputation; absence never means "no
// interaction".
type ResultStore interface {
	Get(ctx context.Context, fingerprint string) ([]Result, bool)
	Set(ctx context.Context, fingerprint string, results []Result)
}

// MemoryStore is a bounded in-memory ResultStore with TTL expiry and
// least-recently-used eviction. It is owned by the engine instance and
// injected, not a package-level singleton, so tests can supply a fresh
// store and a deterministic clock.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type memoryEntry struct {
	fingerprint string
	results     []Result
	expiresAt   time.Time
}

const (
	DefaultTTL        = 72 * time.Hour
	DefaultMaxEntries = 500
)

func NewMemoryStore(ttl time.Duration, maxEntries int) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryStore{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// WithClock overrides the store clock, for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Get returns a deep copy of the cached result set. Lazy expiry: an
// expired entry is dropped and reported as a miss.
func (s *MemoryStore) Get(_ context.Context, fingerprint string) ([]Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[fingerprint]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*memoryEntry)
	if s.now().After(entry.expiresAt) {
		s.order.Remove(el)
		delete(s.entries, fingerprint)
		return nil, false
	}
	s.order.MoveToFront(el)
	return copyResults(entry.results), true
}

// Set stores a deep copy of the result set, evicting the least-recently
// used entry once the store is full.
func (s *MemoryStore) Set(_ context.Context, fingerprint string, results []Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[fingerprint]; ok {
		entry := el.Value.(*memoryEntry)
		entry.results = copyResults(results)
		entry.expiresAt = s.now().Add(s.ttl)
		s.order.MoveToFront(el)
		return
	}

	if s.order.Len() >= s.maxEntries {
		oldest := s.order.Back()
		if oldest != nil {
			s.order.Remove(oldest)
			delete(s.entries, oldest.Value.(*memoryEntry).fingerprint)
		}
	}

	el := s.order.PushFront(&memoryEntry{
		fingerprint: fingerprint,
		results:     copyResults(results),
		expiresAt:   s.now().Add(s.ttl),
	})
	s.entries[fingerprint] = el
}

// Len reports the number of live entries, for tests.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// copyResults deep-copies a result set so cached values can never be
// mutated through a caller's slice.
func copyResults(in []Result) []Result {
	out := make([]Result, len(in))
	for i, r := range in {
		out[i] = r
		out[i].Recommendations = append([]string(nil), r.Recommendations...)
		out[i].Alternatives = append([]string(nil), r.Alternatives...)
		out[i].EmergencyContacts = append([]string(nil), r.EmergencyContacts...)
	}
	return out
}
