package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Recorder is the side-channel injected into every engine component that
// reaches a terminal safety decision. Each component calls Record exactly
// once per terminal state transition.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// RecorderFunc is a function adapter for Recorder.
type RecorderFunc func(ctx context.Context, e Entry) error

func (f RecorderFunc) Record(ctx context.Context, e Entry) error {
	return f(ctx, e)
}

// Nop returns a Recorder that discards entries. Useful in tests that do
// not assert on the trail.
func Nop() Recorder {
	return RecorderFunc(func(context.Context, Entry) error { return nil })
}

// TrailRecorder persists entries through an EntryRepository and always
// emits a structured log line, so a repository outage cannot silently
// lose the decision.
type TrailRecorder struct {
	repo   EntryRepository
	logger zerolog.Logger
	now    func() time.Time
}

func NewTrailRecorder(repo EntryRepository, logger zerolog.Logger) *TrailRecorder {
	return &TrailRecorder{repo: repo, logger: logger, now: time.Now}
}

// WithClock overrides the recorder clock, for tests.
func (r *TrailRecorder) WithClock(now func() time.Time) *TrailRecorder {
	r.now = now
	return r
}

func (r *TrailRecorder) Record(ctx context.Context, e Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now().UTC()
	}

	evt := r.logger.Info()
	err := r.repo.Append(ctx, &e)
	if err != nil {
		evt = r.logger.Error().Err(err)
	}
	evt.
		Str("type", "safety_audit").
		Str("actor", e.Actor).
		Str("action", e.Action).
		Strs("subject_ids", e.SubjectIDs).
		Str("outcome", e.Outcome).
		Msg("audit entry")
	return err
}
