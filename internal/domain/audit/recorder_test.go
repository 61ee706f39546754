package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var testClock = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

func TestRecordAssignsIdentityAndTimestamp(t *testing.T) {
	repo := NewMemoryRepo()
	rec := NewTrailRecorder(repo, zerolog.Nop()).WithClock(testClock)

	err := rec.Record(context.Background(), Entry{
		Actor:      "caregiver",
		Action:     ActionDoseGuard,
		SubjectIDs: []string{"Warfarin"},
		Outcome:    OutcomeRejected,
		Evidence:   "interval not elapsed",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, total, err := repo.Search(context.Background(), "", "", 10, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 entry, got %d", total)
	}
	e := entries[0]
	if e.ID == uuid.Nil {
		t.Error("expected an assigned id")
	}
	if !e.Timestamp.Equal(testClock()) {
		t.Errorf("expected clock timestamp, got %s", e.Timestamp)
	}
	if e.Actor != "caregiver" || e.Outcome != OutcomeRejected {
		t.Errorf("entry fields lost: %+v", e)
	}
}

type failingRepo struct{}

func (failingRepo) Append(context.Context, *Entry) error {
	return errors.New("repository down")
}

func (failingRepo) Search(context.Context, string, string, int, int) ([]*Entry, int, error) {
	return nil, 0, errors.New("repository down")
}

func TestRecordSurfacesRepositoryFailure(t *testing.T) {
	rec := NewTrailRecorder(failingRepo{}, zerolog.Nop())
	err := rec.Record(context.Background(), Entry{Action: ActionEscalation})
	if err == nil {
		t.Fatal("expected the repository failure to surface")
	}
}

func TestSearchFilters(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	base := testClock()

	seed := []Entry{
		{Action: ActionInteractionCheck, SubjectIDs: []string{"Warfarin", "Aspirin"}, Outcome: OutcomeWarned, Timestamp: base},
		{Action: ActionDoseGuard, SubjectIDs: []string{"Warfarin"}, Outcome: OutcomeRejected, Timestamp: base.Add(time.Minute)},
		{Action: ActionDoseGuard, SubjectIDs: []string{"Lisinopril"}, Outcome: OutcomePass, Timestamp: base.Add(2 * time.Minute)},
	}
	for i := range seed {
		seed[i].ID = uuid.New()
		if err := repo.Append(ctx, &seed[i]); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	entries, total, err := repo.Search(ctx, ActionDoseGuard, "", 10, 0)
	if err != nil {
		t.Fatalf("Search by action: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 dose guard entries, got %d", total)
	}
	if !entries[0].Timestamp.After(entries[1].Timestamp) {
		t.Error("entries must be ordered newest first")
	}

	_, total, err = repo.Search(ctx, "", "Warfarin", 10, 0)
	if err != nil {
		t.Fatalf("Search by subject: %v", err)
	}
	if total != 2 {
		t.Errorf("expected 2 entries naming Warfarin, got %d", total)
	}

	_, total, err = repo.Search(ctx, ActionDoseGuard, "Warfarin", 10, 0)
	if err != nil {
		t.Fatalf("Search combined: %v", err)
	}
	if total != 1 {
		t.Errorf("expected 1 combined match, got %d", total)
	}
}

func TestSearchPaginates(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		err := repo.Append(ctx, &Entry{
			ID:        uuid.New(),
			Action:    ActionDoseLogged,
			Timestamp: testClock().Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	entries, total, err := repo.Search(ctx, "", "", 2, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 5 || len(entries) != 2 {
		t.Errorf("expected total 5 page 2, got total %d page %d", total, len(entries))
	}

	entries, total, err = repo.Search(ctx, "", "", 2, 10)
	if err != nil {
		t.Fatalf("Search past end: %v", err)
	}
	if total != 5 || len(entries) != 0 {
		t.Errorf("offset past end must return an empty page, got %d", len(entries))
	}
}
