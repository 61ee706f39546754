package audit

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one immutable record of a terminal safety decision. Entries
// are append-only and consumed externally for compliance reporting.
type Entry struct {
	ID         uuid.UUID `db:"id" json:"id"`
	Timestamp  time.Time `db:"timestamp" json:"timestamp"`
	Actor      string    `db:"actor" json:"actor"`
	Action     string    `db:"action" json:"action"`
	SubjectIDs []string  `db:"subject_ids" json:"subject_ids"`
	Outcome    string    `db:"outcome" json:"outcome"`
	Evidence   string    `db:"evidence" json:"evidence"`
}

// Actions recorded by the engine. One entry is written per terminal state
// transition, by the component that owns the transition.
const (
	ActionInteractionCheck = "interaction_check"
	ActionTimingValidation = "timing_validation"
	ActionConflictResolved = "conflict_resolved"
	ActionDoseGuard        = "dose_guard"
	ActionDoseLogged       = "dose_logged"
	ActionGuardOverride    = "guard_override"
	ActionEscalation       = "emergency_escalation"
)

// Outcomes.
const (
	OutcomePass       = "pass"
	OutcomeRejected   = "rejected"
	OutcomeWarned     = "warned"
	OutcomeError      = "error"
	OutcomeAdjusted   = "adjusted"
	OutcomeOverridden = "overridden"
	OutcomeCancelled  = "cancelled"
	OutcomePartial    = "partial_failure"
)
