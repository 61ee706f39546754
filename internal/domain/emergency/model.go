package emergency

import (
	"time"

	"github.com/google/uuid"

	"github.com/meditrack/meditrack/internal/platform/notification"
)

// Reason is what crossed the safety boundary.
type Reason string

const (
	ReasonGuardOverride     Reason = "guard_override"
	ReasonMissedCritical    Reason = "missed_critical_dose"
	ReasonSevereInteraction Reason = "severe_interaction"
)

// Contact is one registered emergency contact for a patient.
type Contact struct {
	ID        uuid.UUID            `db:"id" json:"id"`
	PatientID uuid.UUID            `db:"patient_id" json:"patient_id"`
	Name      string               `db:"name" json:"name"`
	Channel   notification.Channel `db:"channel" json:"channel"`
	Address   string               `db:"address" json:"address"`
	CreatedAt time.Time            `db:"created_at" json:"created_at"`
}

// ContactOutcome records the delivery result for one contact. The
// escalation result always enumerates every contact; a partial failure
// must never collapse into a single boolean.
type ContactOutcome struct {
	ContactID uuid.UUID `json:"contact_id"`
	Name      string    `json:"name"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// Event is one escalation occurrence with its per-contact outcomes.
type Event struct {
	ID          uuid.UUID        `db:"id" json:"id"`
	PatientID   uuid.UUID        `db:"patient_id" json:"patient_id"`
	Reason      Reason           `db:"reason" json:"reason"`
	Medications []string         `db:"medications" json:"medications"`
	Detail      string           `db:"detail" json:"detail"`
	OccurredAt  time.Time        `db:"occurred_at" json:"occurred_at"`
	Outcomes    []ContactOutcome `db:"outcomes" json:"outcomes"`
}
