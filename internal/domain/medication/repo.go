package medication

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Errors returned by the medication domain.
var (
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrNotFound        = errors.New("medication not found")
)

type MedicationRepository interface {
	Create(ctx context.Context, m *Medication) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medication, error)
	Update(ctx context.Context, m *Medication) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Medication, error)
}

// DoseLogRepository is append-only; there is no update or delete.
type DoseLogRepository interface {
	Append(ctx context.Context, e *DoseLogEntry) error
	// LastTaken returns the most recent entry with status taken for the
	// medication, or nil when none exists.
	LastTaken(ctx context.Context, medicationID uuid.UUID) (*DoseLogEntry, error)
	// CountTakenBetween counts taken entries in [from, to).
	CountTakenBetween(ctx context.Context, medicationID uuid.UUID, from, to time.Time) (int, error)
	ListByMedication(ctx context.Context, medicationID uuid.UUID, limit, offset int) ([]*DoseLogEntry, int, error)
}
