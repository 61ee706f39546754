package medication

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	meds  MedicationRepository
	doses DoseLogRepository
	now   func() time.Time
}

func NewService(meds MedicationRepository, doses DoseLogRepository) *Service {
	return &Service{meds: meds, doses: doses, now: time.Now}
}

// WithClock overrides the service clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Create(ctx context.Context, m *Medication) error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if m.DosageAmount <= 0 {
		return fmt.Errorf("dosage_amount must be positive")
	}
	if err := m.Schedule.Validate(); err != nil {
		return err
	}
	return s.meds.Create(ctx, m)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Medication, error) {
	return s.meds.GetByID(ctx, id)
}

// Update applies an explicit update. The identifier is immutable: the
// stored record keyed by m.ID is modified in place, never re-keyed.
func (s *Service) Update(ctx context.Context, m *Medication) error {
	if m.ID == uuid.Nil {
		return fmt.Errorf("id is required")
	}
	existing, err := s.meds.GetByID(ctx, m.ID)
	if err != nil {
		return err
	}
	if m.PatientID != uuid.Nil && m.PatientID != existing.PatientID {
		return fmt.Errorf("medication cannot move between patients")
	}
	m.PatientID = existing.PatientID
	if err := m.Schedule.Validate(); err != nil {
		return err
	}
	return s.meds.Update(ctx, m)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.meds.Delete(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Medication, error) {
	return s.meds.ListByPatient(ctx, patientID)
}

// UpdateSchedule replaces only the schedule of a medication, validating
// the replacement first. Used by the conflict resolver when finalizing an
// adjusted schedule edit.
func (s *Service) UpdateSchedule(ctx context.Context, id uuid.UUID, sched DoseSchedule) error {
	m, err := s.meds.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := sched.Validate(); err != nil {
		return err
	}
	m.Schedule = sched
	return s.meds.Update(ctx, m)
}

func (s *Service) ListDoseLog(ctx context.Context, medicationID uuid.UUID, limit, offset int) ([]*DoseLogEntry, int, error) {
	return s.doses.ListByMedication(ctx, medicationID, limit, offset)
}
