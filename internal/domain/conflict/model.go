// Package conflict turns detected timing and interaction conflicts into
// ranked, human-actionable suggestions tied to one schedule-edit
// operation, and drives each conflict to a terminal resolution. A
// conflict is never silently dropped: the edit cannot be finalized while
// any of its conflicts is still open.
package conflict

import (
	"time"

	"github.com/google/uuid"

	"github.com/meditrack/meditrack/internal/domain/medication"
	"github.com/meditrack/meditrack/internal/domain/timing"
)

// State is the conflict lifecycle. Adjusted and Overridden are
// terminal-success states; Cancelled aborts the whole edit.
type State string

const (
	StateDetected   State = "detected"
	StateResolving  State = "resolving"
	StateAdjusted   State = "adjusted"
	StateOverridden State = "overridden"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether the state admits no further transition.
func (s State) Terminal() bool {
	switch s {
	case StateAdjusted, StateOverridden, StateCancelled:
		return true
	}
	return false
}

// Kind distinguishes where a conflict came from.
type Kind string

const (
	KindTiming      Kind = "timing"
	KindInteraction Kind = "interaction"
)

// SuggestionKind discriminates the Suggestion variants.
type SuggestionKind string

const (
	SuggestTimeShift  SuggestionKind = "time_shift"
	SuggestInterval   SuggestionKind = "interval_adjustment"
	SuggestMealOffset SuggestionKind = "meal_offset_adjustment"
	SuggestMealChange SuggestionKind = "meal_change"
)

// TimeShiftSuggestion moves one scheduled dose time.
type TimeShiftSuggestion struct {
	Original medication.TimeOfDay `json:"original"`
	Proposed medication.TimeOfDay `json:"proposed"`
}

// IntervalSuggestion widens the spacing of an interval schedule.
type IntervalSuggestion struct {
	OriginalHours float64 `json:"original_hours"`
	ProposedHours float64 `json:"proposed_hours"`
}

// MealOffsetSuggestion moves a dose relative to its anchoring meal.
type MealOffsetSuggestion struct {
	Meal            string `json:"meal"`
	OriginalMinutes int    `json:"original_minutes"`
	ProposedMinutes int    `json:"proposed_minutes"`
}

// MealChangeSuggestion anchors a dose to a different meal entirely.
type MealChangeSuggestion struct {
	OriginalMeal string               `json:"original_meal"`
	ProposedMeal string               `json:"proposed_meal"`
	ProposedTime medication.TimeOfDay `json:"proposed_time"`
}

// Suggestion is a tagged union over the four suggestion kinds. Exactly
// the variant named by Kind is set. Suggestions are presented with their
// rationale and never auto-applied; the caller selects at most one per
// conflict.
type Suggestion struct {
	ID           uuid.UUID             `json:"id"`
	Kind         SuggestionKind        `json:"kind"`
	MedicationID uuid.UUID             `json:"medication_id"`
	Rationale    string                `json:"rationale"`
	TimeShift    *TimeShiftSuggestion  `json:"time_shift,omitempty"`
	Interval     *IntervalSuggestion   `json:"interval,omitempty"`
	MealOffset   *MealOffsetSuggestion `json:"meal_offset,omitempty"`
	MealChange   *MealChangeSuggestion `json:"meal_change,omitempty"`
}

// Conflict is one detected problem within a schedule edit, carrying its
// own suggestion list. A resolution's selected suggestion must come from
// that list.
type Conflict struct {
	ID          uuid.UUID        `json:"id"`
	EditID      uuid.UUID        `json:"edit_id"`
	Kind        Kind             `json:"kind"`
	State       State            `json:"state"`
	Description string           `json:"description"`
	Severity    string           `json:"severity,omitempty"`
	Evidence    string           `json:"evidence,omitempty"`
	Timing      *timing.Conflict `json:"timing,omitempty"`
	Suggestions []Suggestion     `json:"suggestions"`

	// Set on terminal transition.
	AppliedSuggestion *uuid.UUID `json:"applied_suggestion,omitempty"`
	Acknowledgement   string     `json:"acknowledgement,omitempty"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
}

// EditStatus is the lifecycle of a schedule edit as a whole.
type EditStatus string

const (
	EditOpen      EditStatus = "open"
	EditFinalized EditStatus = "finalized"
	EditCancelled EditStatus = "cancelled"
)

// Edit is one proposed schedule change together with the conflicts it
// raised. The prior schedule is kept so a cancelled edit reverts cleanly.
type Edit struct {
	ID           uuid.UUID               `json:"id"`
	PatientID    uuid.UUID               `json:"patient_id"`
	MedicationID uuid.UUID               `json:"medication_id"`
	Prior        medication.DoseSchedule `json:"prior_schedule"`
	Proposed     medication.DoseSchedule `json:"proposed_schedule"`
	Status       EditStatus              `json:"status"`
	Conflicts    []*Conflict             `json:"conflicts"`
	CreatedAt    time.Time               `json:"created_at"`
	FinalizedAt  *time.Time              `json:"finalized_at,omitempty"`
}

// Open reports whether any conflict still blocks finalization.
func (e *Edit) Open() bool {
	for _, c := range e.Conflicts {
		if !c.State.Terminal() {
			return true
		}
	}
	return false
}

// Cancelled reports whether any conflict was resolved by cancelling,
// which aborts the edit as a whole.
func (e *Edit) Cancelled() bool {
	for _, c := range e.Conflicts {
		if c.State == StateCancelled {
			return true
		}
	}
	return false
}

// Resolution is the caller's choice for one conflict.
type Resolution string

const (
	ResolutionAdjust   Resolution = "adjust"
	ResolutionOverride Resolution = "override"
	ResolutionCancel   Resolution = "cancel"
)

// Outcome is returned to the caller after a resolution attempt.
type Outcome struct {
	Conflict  *Conflict `json:"conflict"`
	EditID    uuid.UUID `json:"edit_id"`
	EditOpen  bool      `json:"edit_open"`
	Cancelled bool      `json:"cancelled"`
}
