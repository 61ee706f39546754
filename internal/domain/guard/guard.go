// Package guard is the per-dose gate invoked when a patient logs a dose.
// It enforces the minimum re-dose interval and the daily dose ceiling as
// hard rails, rechecks interactions as an acknowledgeable warning, and
// triggers the emergency escalation path when a warning is overridden or
// a critical dose is missed.
package guard

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
)

// ErrGuardRejected is the sentinel wrapped by every hard rejection.
// There is no override path for the caller's own double-dose or
// daily-limit rule; the rejection clears only by waiting out the
// interval or the day rolling over.
var ErrGuardRejected = errors.New("dose rejected")

// Rules a rejection can name.
const (
	RuleDoubleDose = "double_dose"
	RuleDailyLimit = "daily_limit"
)

// Rejection is a hard guard failure. It always names the violated rule
// and when the caller becomes compliant again.
type Rejection struct {
	Rule        string    `json:"rule"`
	Medication  string    `json:"medication"`
	Message     string    `json:"message"`
	NextAllowed time.Time `json:"next_allowed"`
	// Remaining is how many taken doses the daily limit still admits;
	// zero for a double-dose rejection.
	Remaining int `json:"remaining"`
}

func (r *Rejection) Error() string { return r.Message }

func (r *Rejection) Unwrap() error { return ErrGuardRejected }

// Result is the guard's answer for one proposed dose.
type Result struct {
	Allowed bool                     `json:"allowed"`
	Entry   *medication.DoseLogEntry `json:"entry,omitempty"`
	// Warnings carries severe or high interactions implicating the
	// logged medication; they warn, they do not block by themselves.
	Warnings []interaction.Result `json:"warnings,omitempty"`
	// RequiresAcknowledgement is set when the caller must repeat the
	// request with an explicit acknowledgement to proceed.
	RequiresAcknowledgement bool `json:"requires_acknowledgement,omitempty"`
	// LookupFailed marks the interaction status as unknown rather than
	// clear; absence of data is never treated as absence of risk.
	LookupFailed bool `json:"lookup_failed,omitempty"`
	// Event is the escalation raised by an acknowledged override.
	Event *emergency.Event `json:"event,omitempty"`
}

// Escalator raises an emergency event. Satisfied by emergency.Service.
type Escalator interface {
	Escalate(ctx context.Context, patientID uuid.UUID, actor string, reason emergency.Reason, medications []string, detail string) (*emergency.Event, error)
}

// Guard gates dose logging. Checks run in order and short-circuit on the
// first failure: double dose, daily limit, then the interaction recheck.
type Guard struct {
	meds      medication.MedicationRepository
	doses     medication.DoseLogRepository
	checker   *interaction.Checker
	escalator Escalator
	recorder  audit.Recorder
	logger    zerolog.Logger
	now       func() time.Time
}

func New(meds medication.MedicationRepository, doses medication.DoseLogRepository, checker *interaction.Checker, escalator Escalator, recorder audit.Recorder, logger zerolog.Logger) *Guard {
	if recorder == nil {
		recorder = audit.Nop()
	}
	return &Guard{
		meds:      meds,
		doses:     doses,
		checker:   checker,
		escalator: escalator,
		recorder:  recorder,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the guard clock, for tests.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// GuardDose evaluates a proposed taken dose and persists it when every
// check passes. The checks are evaluated against the most recent
// persisted dose log; callers must serialize concurrent logging per
// medication at the persistence boundary.
//
// When acknowledged is false and a severe or high interaction implicates
// the medication, the result demands acknowledgement without persisting.
// Repeating the call with acknowledged true proceeds, raises exactly one
// guard_override emergency event, and records the override evidence.
func (g *Guard) GuardDose(ctx context.Context, medicationID uuid.UUID, proposedTime time.Time, actor string, acknowledged bool) (*Result, error) {
	med, err := g.meds.GetByID(ctx, medicationID)
	if err != nil {
		return nil, err
	}

	if rej := g.checkDoubleDose(ctx, med, proposedTime); rej != nil {
		g.record(ctx, actor, audit.ActionDoseGuard, med, audit.OutcomeRejected, rej.Message)
		return nil, rej
	}
	if rej, err := g.checkDailyLimit(ctx, med, proposedTime); err != nil {
		return nil, err
	} else if rej != nil {
		g.record(ctx, actor, audit.ActionDoseGuard, med, audit.OutcomeRejected, rej.Message)
		return nil, rej
	}

	warnings, lookupFailed := g.recheckInteractions(ctx, med)
	if (len(warnings) > 0 || lookupFailed) && !acknowledged {
		g.record(ctx, actor, audit.ActionDoseGuard, med, audit.OutcomeWarned, warningEvidence(warnings, lookupFailed))
		return &Result{
			Allowed:                 false,
			Warnings:                warnings,
			RequiresAcknowledgement: true,
			LookupFailed:            lookupFailed,
		}, nil
	}

	entry := &medication.DoseLogEntry{
		MedicationID: med.ID,
		PatientID:    med.PatientID,
		TakenAt:      proposedTime.UTC(),
		Status:       medication.DoseTaken,
	}
	if err := g.doses.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("persist dose entry: %w", err)
	}

	result := &Result{Allowed: true, Entry: entry, Warnings: warnings, LookupFailed: lookupFailed}
	if len(warnings) > 0 || lookupFailed {
		// Acknowledged override of an interaction warning.
		g.record(ctx, actor, audit.ActionGuardOverride, med, audit.OutcomeOverridden, warningEvidence(warnings, lookupFailed))
		result.Event = g.escalate(ctx, actor, med, emergency.ReasonGuardOverride, warningEvidence(warnings, lookupFailed))
	} else {
		g.record(ctx, actor, audit.ActionDoseLogged, med, audit.OutcomePass,
			fmt.Sprintf("taken at %s", entry.TakenAt.Format(time.RFC3339)))
	}
	return result, nil
}

// checkDoubleDose rejects a dose inside the medication's minimum safe
// interval. A dose exactly at the interval boundary is accepted.
func (g *Guard) checkDoubleDose(ctx context.Context, med *medication.Medication, proposed time.Time) *Rejection {
	last, err := g.doses.LastTaken(ctx, med.ID)
	if err != nil {
		// The check needs the most recent log; without it the strictest
		// default applies and the dose is denied.
		g.logger.Error().Err(err).Str("medication_id", med.ID.String()).Msg("load last taken dose")
		return &Rejection{
			Rule:       RuleDoubleDose,
			Medication: med.Name,
			Message:    "dose history unavailable, cannot verify minimum interval",
		}
	}
	if last == nil {
		return nil
	}
	interval := med.Schedule.MinRedoseInterval()
	elapsed := proposed.Sub(last.TakenAt)
	if elapsed >= interval {
		return nil
	}
	next := last.TakenAt.Add(interval)
	return &Rejection{
		Rule:        RuleDoubleDose,
		Medication:  med.Name,
		NextAllowed: next,
		Message: fmt.Sprintf("last %s dose was %s ago, minimum interval is %s; next dose allowed at %s",
			med.Name, elapsed.Round(time.Minute), interval, next.UTC().Format(time.RFC3339)),
	}
}

// checkDailyLimit rejects a dose once the calendar day, in the zone the
// schedule was entered in, already holds the maximum taken count.
func (g *Guard) checkDailyLimit(ctx context.Context, med *medication.Medication, proposed time.Time) (*Rejection, error) {
	limit, ok := med.Schedule.MaxDailyDoses()
	if !ok || limit <= 0 {
		return nil, nil
	}
	loc := scheduleZone(med)
	local := proposed.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.Add(24 * time.Hour)

	count, err := g.doses.CountTakenBetween(ctx, med.ID, dayStart.UTC(), dayEnd.UTC())
	if err != nil {
		return nil, fmt.Errorf("count doses for %s: %w", med.Name, err)
	}
	if count < limit {
		return nil, nil
	}
	return &Rejection{
		Rule:        RuleDailyLimit,
		Medication:  med.Name,
		NextAllowed: dayEnd,
		Remaining:   0,
		Message: fmt.Sprintf("%s already taken %d of %d times today; next dose allowed after %s",
			med.Name, count, limit, dayEnd.UTC().Format(time.RFC3339)),
	}, nil
}

// scheduleZone is the zone the schedule's dose times were entered in,
// falling back to UTC for schedules without fixed times.
func scheduleZone(med *medication.Medication) *time.Location {
	for _, t := range med.Schedule.DailyTimes() {
		if t.Zone == "" {
			continue
		}
		if loc, err := time.LoadLocation(t.Zone); err == nil {
			return loc
		}
	}
	return time.UTC
}

// recheckInteractions runs the full interaction check over the patient's
// active list and keeps the results that implicate this medication with
// immediate-attention severity. A gateway failure returns no warnings
// and lookupFailed true: unknown status, never "no interaction".
func (g *Guard) recheckInteractions(ctx context.Context, med *medication.Medication) (warnings []interaction.Result, lookupFailed bool) {
	if g.checker == nil {
		return nil, false
	}
	active, err := g.meds.ListByPatient(ctx, med.PatientID)
	if err != nil {
		g.logger.Error().Err(err).Str("patient_id", med.PatientID.String()).Msg("load active medications")
		return nil, true
	}
	results, err := g.checker.Check(ctx, active)
	if err != nil {
		g.logger.Warn().Err(err).Str("medication_id", med.ID.String()).Msg("interaction recheck failed")
		return nil, true
	}
	name := strings.ToLower(strings.TrimSpace(med.Name))
	for _, r := range results {
		if !r.RequiresAttention {
			continue
		}
		if strings.ToLower(strings.TrimSpace(r.MedicationA)) == name ||
			strings.ToLower(strings.TrimSpace(r.MedicationB)) == name {
			warnings = append(warnings, r)
		}
	}
	return warnings, false
}

func warningEvidence(warnings []interaction.Result, lookupFailed bool) string {
	if lookupFailed && len(warnings) == 0 {
		return "interaction status unknown: lookup unavailable"
	}
	parts := make([]string, 0, len(warnings))
	for _, w := range warnings {
		parts = append(parts, fmt.Sprintf("%s + %s (%s, evidence %s)", w.MedicationA, w.MedicationB, w.Severity, w.Evidence))
	}
	return strings.Join(parts, "; ")
}

// MarkMissed records a missed dose. Missing a critical medication raises
// a missed_critical_dose escalation to every registered contact.
func (g *Guard) MarkMissed(ctx context.Context, medicationID uuid.UUID, at time.Time, actor string) (*Result, error) {
	med, err := g.meds.GetByID(ctx, medicationID)
	if err != nil {
		return nil, err
	}
	entry := &medication.DoseLogEntry{
		MedicationID: med.ID,
		PatientID:    med.PatientID,
		TakenAt:      at.UTC(),
		Status:       medication.DoseMissed,
	}
	if err := g.doses.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("persist dose entry: %w", err)
	}
	g.record(ctx, actor, audit.ActionDoseLogged, med, audit.OutcomePass,
		fmt.Sprintf("missed at %s", entry.TakenAt.Format(time.RFC3339)))

	result := &Result{Allowed: true, Entry: entry}
	if med.Critical {
		result.Event = g.escalate(ctx, actor, med, emergency.ReasonMissedCritical,
			fmt.Sprintf("critical medication %s missed at %s", med.Name, entry.TakenAt.Format(time.RFC3339)))
	}
	return result, nil
}

// MarkSkipped records an intentionally skipped dose. No escalation.
func (g *Guard) MarkSkipped(ctx context.Context, medicationID uuid.UUID, at time.Time, actor string) (*Result, error) {
	med, err := g.meds.GetByID(ctx, medicationID)
	if err != nil {
		return nil, err
	}
	entry := &medication.DoseLogEntry{
		MedicationID: med.ID,
		PatientID:    med.PatientID,
		TakenAt:      at.UTC(),
		Status:       medication.DoseSkipped,
	}
	if err := g.doses.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("persist dose entry: %w", err)
	}
	g.record(ctx, actor, audit.ActionDoseLogged, med, audit.OutcomePass,
		fmt.Sprintf("skipped at %s", entry.TakenAt.Format(time.RFC3339)))
	return &Result{Allowed: true, Entry: entry}, nil
}

func (g *Guard) escalate(ctx context.Context, actor string, med *medication.Medication, reason emergency.Reason, detail string) *emergency.Event {
	if g.escalator == nil {
		return nil
	}
	event, err := g.escalator.Escalate(ctx, med.PatientID, actor, reason, []string{med.Name}, detail)
	if err != nil && !errors.Is(err, emergency.ErrPartialNotification) {
		g.logger.Error().Err(err).
			Str("medication_id", med.ID.String()).
			Str("reason", string(reason)).
			Msg("escalate")
	}
	return event
}

func (g *Guard) record(ctx context.Context, actor, action string, med *medication.Medication, outcome, evidence string) {
	if err := g.recorder.Record(ctx, audit.Entry{
		Actor:      actor,
		Action:     action,
		SubjectIDs: []string{med.PatientID.String(), med.ID.String()},
		Outcome:    outcome,
		Evidence:   evidence,
	}); err != nil {
		g.logger.Error().Err(err).Str("action", action).Msg("record guard decision")
	}
}
