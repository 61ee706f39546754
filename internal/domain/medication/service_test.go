package medication

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func validMedication(patientID uuid.UUID, name string) *Medication {
	return &Medication{
		PatientID:    patientID,
		Name:         name,
		DosageAmount: 5,
		DosageUnit:   "mg",
		Schedule: DoseSchedule{Kind: KindFixedTime, FixedTime: &FixedTimeSchedule{
			Times:      []TimeOfDay{{Clock: "08:00", Zone: "UTC"}},
			DoseAmount: 1,
		}},
	}
}

func TestServiceCreateValidates(t *testing.T) {
	svc := NewService(NewMemoryRepo(), NewMemoryDoseLogRepo())
	ctx := context.Background()

	m := validMedication(uuid.New(), "Lisinopril")
	if err := svc.Create(ctx, m); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m.ID == uuid.Nil {
		t.Error("expected an assigned id")
	}

	missingName := validMedication(uuid.New(), "")
	if err := svc.Create(ctx, missingName); err == nil {
		t.Error("expected error for missing name")
	}

	badSchedule := validMedication(uuid.New(), "Aspirin")
	badSchedule.Schedule = DoseSchedule{Kind: KindPRN, PRN: &PRNSchedule{MaxDailyDoses: 3, MinHoursBetween: 1, DoseAmount: 1}}
	if err := svc.Create(ctx, badSchedule); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("expected ErrInvalidSchedule, got %v", err)
	}
}

func TestServiceUpdateKeepsPatient(t *testing.T) {
	svc := NewService(NewMemoryRepo(), NewMemoryDoseLogRepo())
	ctx := context.Background()

	patientID := uuid.New()
	m := validMedication(patientID, "Lisinopril")
	if err := svc.Create(ctx, m); err != nil {
		t.Fatalf("Create: %v", err)
	}

	moved := *m
	moved.PatientID = uuid.New()
	if err := svc.Update(ctx, &moved); err == nil {
		t.Fatal("expected error when moving a medication between patients")
	}

	renamed := *m
	renamed.Name = "Lisinopril 10mg"
	if err := svc.Update(ctx, &renamed); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := svc.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Lisinopril 10mg" {
		t.Errorf("expected renamed medication, got %s", got.Name)
	}
	if got.PatientID != patientID {
		t.Error("patient must not change on update")
	}
}

func TestServiceUpdateScheduleValidatesReplacement(t *testing.T) {
	svc := NewService(NewMemoryRepo(), NewMemoryDoseLogRepo())
	ctx := context.Background()

	m := validMedication(uuid.New(), "Metformin")
	if err := svc.Create(ctx, m); err != nil {
		t.Fatalf("Create: %v", err)
	}

	bad := DoseSchedule{Kind: KindInterval, Interval: &IntervalSchedule{Hours: 0.5, DoseAmount: 1}}
	if err := svc.UpdateSchedule(ctx, m.ID, bad); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}

	good := DoseSchedule{Kind: KindInterval, Interval: &IntervalSchedule{Hours: 12, DoseAmount: 1}}
	if err := svc.UpdateSchedule(ctx, m.ID, good); err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}
	got, _ := svc.Get(ctx, m.ID)
	if got.Schedule.Kind != KindInterval {
		t.Errorf("expected interval schedule, got %s", got.Schedule.Kind)
	}

	if err := svc.UpdateSchedule(ctx, uuid.New(), good); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
