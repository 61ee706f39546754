package conflict

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meditrack/meditrack/internal/domain/audit"
	"github.com/meditrack/meditrack/internal/domain/emergency"
	"github.com/meditrack/meditrack/internal/domain/interaction"
	"github.com/meditrack/meditrack/internal/domain/medication"
	"github.com/meditrack/meditrack/internal/domain/timing"
)

var (
	// ErrUnresolved blocks finalizing an edit while any conflict is
	// still open.
	ErrUnresolved = errors.New("schedule edit has unresolved conflicts")
	// ErrInvalidResolution covers a suggestion not taken from the
	// conflict's own list, a missing override acknowledgement, or an
	// adjustment that produces an invalid schedule.
	ErrInvalidResolution = errors.New("invalid resolution")
	// ErrAlreadyResolved rejects re-resolving a terminal conflict,
	// except for the idempotent repeated cancel.
	ErrAlreadyResolved = errors.New("conflict already resolved")
	// ErrEditClosed rejects operations on a finalized or cancelled edit.
	ErrEditClosed = errors.New("schedule edit is closed")
)

// Escalator raises an emergency event. Satisfied by emergency.Service.
type Escalator interface {
	Escalate(ctx context.Context, patientID uuid.UUID, actor string, reason emergency.Reason, medications []string, detail string) (*emergency.Event, error)
}

// Resolver owns the schedule-edit conflict lifecycle: it detects
// conflicts a proposed schedule would introduce, generates suggestions,
// and drives every conflict to adjust, override, or cancel before the
// edit may touch stored state.
type Resolver struct {
	meds      *medication.Service
	checker   *interaction.Checker
	validator *timing.Validator
	store     EditStore
	recorder  audit.Recorder
	escalator Escalator
	logger    zerolog.Logger
	now       func() time.Time
}

func NewResolver(meds *medication.Service, checker *interaction.Checker, validator *timing.Validator, store EditStore, recorder audit.Recorder, escalator Escalator, logger zerolog.Logger) *Resolver {
	if recorder == nil {
		recorder = audit.Nop()
	}
	return &Resolver{
		meds:      meds,
		checker:   checker,
		validator: validator,
		store:     store,
		recorder:  recorder,
		escalator: escalator,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the resolver clock, for tests.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// OpenEdit stages a proposed schedule change for one medication and
// detects the conflicts it would introduce against the patient's full
// active list. The stored schedule is untouched until Finalize.
func (r *Resolver) OpenEdit(ctx context.Context, medicationID uuid.UUID, proposed medication.DoseSchedule) (*Edit, error) {
	if err := proposed.Validate(); err != nil {
		return nil, err
	}
	med, err := r.meds.Get(ctx, medicationID)
	if err != nil {
		return nil, fmt.Errorf("load medication: %w", err)
	}
	active, err := r.meds.ListByPatient(ctx, med.PatientID)
	if err != nil {
		return nil, fmt.Errorf("load active medications: %w", err)
	}

	// Hypothetical list: the edited medication carries the proposed
	// schedule, everything else is as stored.
	hypothetical := make([]*medication.Medication, 0, len(active))
	edited := *med
	edited.Schedule = proposed
	for _, m := range active {
		if m.ID == medicationID {
			hypothetical = append(hypothetical, &edited)
		} else {
			hypothetical = append(hypothetical, m)
		}
	}

	edit := &Edit{
		ID:           uuid.New(),
		PatientID:    med.PatientID,
		MedicationID: medicationID,
		Prior:        med.Schedule,
		Proposed:     proposed,
		Status:       EditOpen,
		CreatedAt:    r.now().UTC(),
	}

	timingConflicts, err := r.validator.Validate(hypothetical)
	if err != nil {
		return nil, fmt.Errorf("validate timing: %w", err)
	}
	for i := range timingConflicts {
		tc := timingConflicts[i]
		if tc.MedicationAID != medicationID && tc.MedicationBID != medicationID {
			continue
		}
		edit.Conflicts = append(edit.Conflicts, r.timingConflict(edit, &edited, tc))
	}

	if r.checker != nil {
		// The hypothetical list must bypass the interaction cache: its
		// fingerprint matches the stored set, and a proposal that never
		// gets applied must not answer later checks of the real
		// schedules.
		results, err := r.checker.Evaluate(ctx, hypothetical)
		if err != nil {
			return nil, fmt.Errorf("check interactions: %w", err)
		}
		for _, res := range results {
			if res.Type == interaction.TypeTiming || !res.RequiresAttention {
				continue
			}
			if !involves(res.Record, edited.Name) {
				continue
			}
			edit.Conflicts = append(edit.Conflicts, r.interactionConflict(edit, &edited, res))
		}
	}

	if err := r.store.Save(ctx, edit); err != nil {
		return nil, fmt.Errorf("save edit: %w", err)
	}
	return edit, nil
}

func involves(rec interaction.Record, name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	return strings.ToLower(strings.TrimSpace(rec.MedicationA)) == n ||
		strings.ToLower(strings.TrimSpace(rec.MedicationB)) == n
}

// timingConflict wraps one timing violation and generates its
// suggestion list against the edited medication's offending time.
func (r *Resolver) timingConflict(edit *Edit, med *medication.Medication, tc timing.Conflict) *Conflict {
	c := &Conflict{
		ID:          uuid.New(),
		EditID:      edit.ID,
		Kind:        KindTiming,
		State:       StateDetected,
		Description: tc.Recommendation,
		Timing:      &tc,
	}

	// The conflict may list the edited medication on either side; the
	// suggestions always move the edited medication's own time.
	ownTime := tc.TimeA
	if tc.MedicationBID == med.ID {
		ownTime = tc.TimeB
	}
	shift := tc.RequiredGap - tc.ActualGap
	c.Suggestions = r.suggestForTime(med, ownTime, shift, tc)
	return c
}

func (r *Resolver) interactionConflict(edit *Edit, med *medication.Medication, res interaction.Result) *Conflict {
	c := &Conflict{
		ID:          uuid.New(),
		EditID:      edit.ID,
		Kind:        KindInteraction,
		State:       StateDetected,
		Description: fmt.Sprintf("%s + %s: %s", res.MedicationA, res.MedicationB, res.Description),
		Severity:    string(res.Severity),
		Evidence:    string(res.Evidence),
	}
	if med.Schedule.Kind == medication.KindInterval && med.Schedule.Interval != nil {
		hours := med.Schedule.Interval.Hours
		c.Suggestions = append(c.Suggestions, Suggestion{
			ID:           uuid.New(),
			Kind:         SuggestInterval,
			MedicationID: med.ID,
			Rationale: fmt.Sprintf("widen %s dosing from every %gh to every %gh to separate administration from %s",
				med.Name, hours, hours*2, otherName(res.Record, med.Name)),
			Interval: &IntervalSuggestion{OriginalHours: hours, ProposedHours: hours * 2},
		})
	}
	return c
}

func otherName(rec interaction.Record, name string) string {
	if strings.EqualFold(strings.TrimSpace(rec.MedicationA), strings.TrimSpace(name)) {
		return rec.MedicationB
	}
	return rec.MedicationA
}

// Canonical meal anchor times, local to the schedule's own zone.
var mealTimes = map[string]string{
	"breakfast": "08:00",
	"lunch":     "12:30",
	"dinner":    "18:30",
}

func mealForMinutes(mins int) string {
	switch {
	case mins < 11*60:
		return "breakfast"
	case mins < 16*60:
		return "lunch"
	default:
		return "dinner"
	}
}

func (r *Resolver) suggestForTime(med *medication.Medication, own medication.TimeOfDay, shift time.Duration, tc timing.Conflict) []Suggestion {
	mins, err := own.Minutes()
	if err != nil {
		return nil
	}
	shiftMins := int(shift / time.Minute)
	proposedMins := (mins + shiftMins) % (24 * 60)
	proposed := medication.TimeOfDay{
		Clock: fmt.Sprintf("%02d:%02d", proposedMins/60, proposedMins%60),
		Zone:  own.Zone,
	}
	gapHours := tc.RequiredGap.Hours()

	suggestions := []Suggestion{{
		ID:           uuid.New(),
		Kind:         SuggestTimeShift,
		MedicationID: med.ID,
		Rationale: fmt.Sprintf("move %s from %s to %s to restore the %g hour gap with %s",
			med.Name, own.Clock, proposed.Clock, gapHours, tc.MedicationBName),
		TimeShift: &TimeShiftSuggestion{Original: own, Proposed: proposed},
	}}

	meal := mealForMinutes(mins)
	suggestions = append(suggestions, Suggestion{
		ID:           uuid.New(),
		Kind:         SuggestMealOffset,
		MedicationID: med.ID,
		Rationale: fmt.Sprintf("take %s %d minutes after %s instead of at %s",
			med.Name, shiftMins, meal, own.Clock),
		MealOffset: &MealOffsetSuggestion{Meal: meal, OriginalMinutes: 0, ProposedMinutes: shiftMins},
	})

	// Offer the nearest meal whose anchor time clears the gap.
	for _, m := range []string{"breakfast", "lunch", "dinner"} {
		if m == meal {
			continue
		}
		anchor := medication.TimeOfDay{Clock: mealTimes[m], Zone: own.Zone}
		anchorMins, _ := anchor.Minutes()
		if circularMinutes(anchorMins, mins) < shiftMins {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			ID:           uuid.New(),
			Kind:         SuggestMealChange,
			MedicationID: med.ID,
			Rationale: fmt.Sprintf("take %s with %s (%s) instead of %s",
				med.Name, m, anchor.Clock, meal),
			MealChange: &MealChangeSuggestion{OriginalMeal: meal, ProposedMeal: m, ProposedTime: anchor},
		})
		break
	}
	return suggestions
}

func circularMinutes(a, b int) int {
	const day = 24 * 60
	d := a - b
	if d < 0 {
		d = -d
	}
	if d > day/2 {
		d = day - d
	}
	return d
}

// Resolve applies the caller's choice for one conflict. Adjust must
// select a suggestion from the conflict's own list; override requires a
// non-empty acknowledgement; cancel aborts the whole edit and is
// idempotent. Each terminal transition is audited exactly once.
func (r *Resolver) Resolve(ctx context.Context, conflictID uuid.UUID, actor string, resolution Resolution, suggestionID uuid.UUID, acknowledgement string) (*Outcome, error) {
	edit, err := r.store.GetByConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if edit.Status == EditFinalized {
		return nil, ErrEditClosed
	}
	var c *Conflict
	for _, cand := range edit.Conflicts {
		if cand.ID == conflictID {
			c = cand
			break
		}
	}
	if c == nil {
		return nil, ErrConflictNotFound
	}

	if c.State.Terminal() {
		// Cancelling twice leaves everything unchanged both times.
		if resolution == ResolutionCancel && c.State == StateCancelled {
			return r.outcome(edit, c), nil
		}
		return nil, ErrAlreadyResolved
	}
	// Cancelling one conflict aborts the whole edit; its remaining
	// conflicts can no longer be adjusted or overridden.
	if edit.Status == EditCancelled {
		return nil, ErrEditClosed
	}
	c.State = StateResolving

	switch resolution {
	case ResolutionAdjust:
		if err := r.adjust(edit, c, suggestionID); err != nil {
			c.State = StateDetected
			return nil, err
		}
		r.finish(c, StateAdjusted)
		r.audit(ctx, actor, edit, c, audit.OutcomeAdjusted)

	case ResolutionOverride:
		if strings.TrimSpace(acknowledgement) == "" {
			c.State = StateDetected
			return nil, fmt.Errorf("%w: override requires an acknowledgement", ErrInvalidResolution)
		}
		c.Acknowledgement = acknowledgement
		r.finish(c, StateOverridden)
		r.audit(ctx, actor, edit, c, audit.OutcomeOverridden)
		r.escalateOverride(ctx, actor, edit, c)

	case ResolutionCancel:
		r.finish(c, StateCancelled)
		edit.Status = EditCancelled
		r.audit(ctx, actor, edit, c, audit.OutcomeCancelled)

	default:
		c.State = StateDetected
		return nil, fmt.Errorf("%w: unknown resolution %q", ErrInvalidResolution, resolution)
	}

	if err := r.store.Save(ctx, edit); err != nil {
		return nil, fmt.Errorf("save edit: %w", err)
	}
	return r.outcome(edit, c), nil
}

func (r *Resolver) finish(c *Conflict, s State) {
	c.State = s
	at := r.now().UTC()
	c.ResolvedAt = &at
}

func (r *Resolver) outcome(edit *Edit, c *Conflict) *Outcome {
	return &Outcome{
		Conflict:  c,
		EditID:    edit.ID,
		EditOpen:  edit.Open(),
		Cancelled: edit.Cancelled(),
	}
}

// adjust applies the selected suggestion to the edit's proposed
// schedule. The adjusted schedule must itself be valid.
func (r *Resolver) adjust(edit *Edit, c *Conflict, suggestionID uuid.UUID) error {
	var sel *Suggestion
	for i := range c.Suggestions {
		if c.Suggestions[i].ID == suggestionID {
			sel = &c.Suggestions[i]
			break
		}
	}
	if sel == nil {
		return fmt.Errorf("%w: suggestion must come from the conflict's own list", ErrInvalidResolution)
	}

	adjusted := edit.Proposed
	switch sel.Kind {
	case SuggestTimeShift:
		if err := replaceTime(&adjusted, sel.TimeShift.Original, sel.TimeShift.Proposed); err != nil {
			return err
		}
	case SuggestInterval:
		if adjusted.Kind != medication.KindInterval || adjusted.Interval == nil {
			return fmt.Errorf("%w: schedule no longer has an interval", ErrInvalidResolution)
		}
		iv := *adjusted.Interval
		iv.Hours = sel.Interval.ProposedHours
		adjusted.Interval = &iv
	case SuggestMealOffset:
		anchor := medication.TimeOfDay{Clock: mealTimes[sel.MealOffset.Meal], Zone: zoneOf(c)}
		anchorMins, err := anchor.Minutes()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResolution, err)
		}
		target := (anchorMins + sel.MealOffset.ProposedMinutes) % (24 * 60)
		proposed := medication.TimeOfDay{
			Clock: fmt.Sprintf("%02d:%02d", target/60, target%60),
			Zone:  anchor.Zone,
		}
		if err := replaceTime(&adjusted, ownTime(c), proposed); err != nil {
			return err
		}
	case SuggestMealChange:
		if err := replaceTime(&adjusted, ownTime(c), sel.MealChange.ProposedTime); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown suggestion kind %q", ErrInvalidResolution, sel.Kind)
	}

	if err := adjusted.Validate(); err != nil {
		return fmt.Errorf("%w: adjustment produces an invalid schedule: %v", ErrInvalidResolution, err)
	}
	edit.Proposed = adjusted
	id := sel.ID
	c.AppliedSuggestion = &id
	return nil
}

// ownTime returns the edited medication's time involved in the conflict.
func ownTime(c *Conflict) medication.TimeOfDay {
	if c.Timing == nil {
		return medication.TimeOfDay{}
	}
	for _, s := range c.Suggestions {
		if s.Kind == SuggestTimeShift && s.TimeShift != nil {
			return s.TimeShift.Original
		}
	}
	return c.Timing.TimeA
}

func zoneOf(c *Conflict) string {
	return ownTime(c).Zone
}

// replaceTime swaps one wall-clock time in a fixed-time or complex
// schedule. The proposed schedule is copied, never mutated in place.
func replaceTime(s *medication.DoseSchedule, from, to medication.TimeOfDay) error {
	switch s.Kind {
	case medication.KindFixedTime:
		if s.FixedTime == nil {
			return fmt.Errorf("%w: schedule has no fixed times", ErrInvalidResolution)
		}
		ft := *s.FixedTime
		ft.Times = append([]medication.TimeOfDay(nil), ft.Times...)
		for i, t := range ft.Times {
			if t.Clock == from.Clock && t.Zone == from.Zone {
				ft.Times[i] = to
				s.FixedTime = &ft
				return nil
			}
		}
	case medication.KindComplex:
		if s.Complex == nil {
			return fmt.Errorf("%w: schedule has no timed doses", ErrInvalidResolution)
		}
		cx := *s.Complex
		cx.Doses = append([]medication.TimedDose(nil), cx.Doses...)
		for i, d := range cx.Doses {
			if d.Time.Clock == from.Clock && d.Time.Zone == from.Zone {
				cx.Doses[i].Time = to
				s.Complex = &cx
				return nil
			}
		}
	default:
		return fmt.Errorf("%w: schedule kind %q has no adjustable times", ErrInvalidResolution, s.Kind)
	}
	return fmt.Errorf("%w: time %s is no longer in the schedule", ErrInvalidResolution, from.Clock)
}

func (r *Resolver) audit(ctx context.Context, actor string, edit *Edit, c *Conflict, outcome string) {
	evidence := fmt.Sprintf("conflict=%s kind=%s %s", c.ID, c.Kind, c.Description)
	if c.Acknowledgement != "" {
		evidence += " ack=" + c.Acknowledgement
	}
	if err := r.recorder.Record(ctx, audit.Entry{
		Actor:      actor,
		Action:     audit.ActionConflictResolved,
		SubjectIDs: []string{edit.PatientID.String(), edit.MedicationID.String()},
		Outcome:    outcome,
		Evidence:   evidence,
	}); err != nil {
		r.logger.Error().Err(err).Msg("record conflict resolution")
	}
}

// escalateOverride raises an emergency event when a severe interaction
// conflict is bypassed.
func (r *Resolver) escalateOverride(ctx context.Context, actor string, edit *Edit, c *Conflict) {
	if r.escalator == nil || c.Kind != KindInteraction {
		return
	}
	if !strings.EqualFold(c.Severity, string(interaction.SeveritySevere)) {
		return
	}
	if _, err := r.escalator.Escalate(ctx, edit.PatientID, actor, emergency.ReasonSevereInteraction,
		[]string{edit.MedicationID.String()}, c.Description); err != nil {
		r.logger.Error().Err(err).
			Str("conflict_id", c.ID.String()).
			Msg("escalate overridden interaction conflict")
	}
}

// Finalize closes the edit. A cancelled edit reverts to the prior
// schedule without mutating stored state; otherwise every conflict must
// be terminal before the proposed schedule is applied. Either way the
// edit session is removed from the store; the returned edit carries the
// final state.
func (r *Resolver) Finalize(ctx context.Context, editID uuid.UUID) (*Edit, error) {
	edit, err := r.store.Get(ctx, editID)
	if err != nil {
		return nil, err
	}
	if edit.Status == EditFinalized {
		return edit, nil
	}

	if edit.Cancelled() || edit.Status == EditCancelled {
		edit.Status = EditCancelled
		at := r.now().UTC()
		edit.FinalizedAt = &at
		r.close(ctx, edit)
		return edit, nil
	}
	if edit.Open() {
		return nil, ErrUnresolved
	}

	if err := r.meds.UpdateSchedule(ctx, edit.MedicationID, edit.Proposed); err != nil {
		return nil, fmt.Errorf("apply schedule: %w", err)
	}
	edit.Status = EditFinalized
	at := r.now().UTC()
	edit.FinalizedAt = &at
	r.close(ctx, edit)
	return edit, nil
}

// close drops a terminal edit session. The schedule change, if any, is
// already applied, so a failed delete only leaves a stale session behind.
func (r *Resolver) close(ctx context.Context, edit *Edit) {
	if err := r.store.Delete(ctx, edit.ID); err != nil {
		r.logger.Error().Err(err).Str("edit_id", edit.ID.String()).Msg("delete closed edit")
	}
}

// GetEdit returns the edit, optionally re-rendering every suggestion
// time in the viewer's zone so caregivers in different zones see the
// same instants as their own wall-clock times.
func (r *Resolver) GetEdit(ctx context.Context, editID uuid.UUID, viewerZone string) (*Edit, error) {
	edit, err := r.store.Get(ctx, editID)
	if err != nil {
		return nil, err
	}
	if viewerZone == "" {
		return edit, nil
	}
	return r.renderFor(edit, viewerZone)
}

func (r *Resolver) renderFor(edit *Edit, zone string) (*Edit, error) {
	ref := r.now()
	out := *edit
	out.Conflicts = make([]*Conflict, len(edit.Conflicts))
	for i, c := range edit.Conflicts {
		cc := *c
		cc.Suggestions = make([]Suggestion, len(c.Suggestions))
		copy(cc.Suggestions, c.Suggestions)
		for j := range cc.Suggestions {
			s := &cc.Suggestions[j]
			switch s.Kind {
			case SuggestTimeShift:
				ts := *s.TimeShift
				var err error
				if ts.Original, err = ts.Original.InZone(zone, ref); err != nil {
					return nil, err
				}
				if ts.Proposed, err = ts.Proposed.InZone(zone, ref); err != nil {
					return nil, err
				}
				s.TimeShift = &ts
			case SuggestMealChange:
				mc := *s.MealChange
				var err error
				if mc.ProposedTime, err = mc.ProposedTime.InZone(zone, ref); err != nil {
					return nil, err
				}
				s.MealChange = &mc
			}
		}
		out.Conflicts[i] = &cc
	}
	return &out, nil
}
