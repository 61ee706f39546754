package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meditrack/meditrack/internal/domain/audit"
	"github.com/meditrack/meditrack/internal/domain/emergency"
	"github.com/meditrack/meditrack/internal/domain/interaction"
	"github.com/meditrack/meditrack/internal/domain/medication"
	"github.com/meditrack/meditrack/internal/domain/timing"
	"github.com/meditrack/meditrack/internal/platform/notification"
)

var noon = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	guard    *Guard
	meds     *medication.MemoryRepo
	doses    *medication.MemoryDoseLogRepo
	contacts *emergency.MemoryContactRepo
	events   *emergency.MemoryEventRepo
	trail    *audit.MemoryRepo
	sms      *notification.MockSMSSender
}

func newFixture(t *testing.T, gateway interaction.Gateway) *fixture {
	t.Helper()
	meds := medication.NewMemoryRepo()
	doses := medication.NewMemoryDoseLogRepo()
	trail := audit.NewMemoryRepo()
	recorder := audit.NewTrailRecorder(trail, zerolog.Nop())

	contacts := emergency.NewMemoryContactRepo()
	events := emergency.NewMemoryEventRepo()
	sms := &notification.MockSMSSender{}
	escalator := emergency.NewService(contacts, events,
		notification.NewRouter(&notification.MockEmailSender{}, sms), nil, audit.Nop(), zerolog.Nop())

	var checker *interaction.Checker
	if gateway != nil {
		validator := timing.NewValidator(timing.DefaultMinGap).WithClock(func() time.Time { return noon })
		checker = interaction.NewChecker(gateway, interaction.NewMemoryStore(0, 0), validator, audit.Nop(), zerolog.Nop())
	}

	g := New(meds, doses, checker, escalator, recorder, zerolog.Nop()).
		WithClock(func() time.Time { return noon })
	return &fixture{guard: g, meds: meds, doses: doses, contacts: contacts, events: events, trail: trail, sms: sms}
}

func seedMedication(t *testing.T, repo *medication.MemoryRepo, patientID uuid.UUID, name string, sched medication.DoseSchedule) *medication.Medication {
	t.Helper()
	m := &medication.Medication{
		PatientID:    patientID,
		Name:         name,
		DosageAmount: 5,
		DosageUnit:   "mg",
		Schedule:     sched,
	}
	if err := repo.Create(context.Background(), m); err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return m
}

func prnSchedule(maxDaily int, minHours float64) medication.DoseSchedule {
	return medication.DoseSchedule{
		Kind: medication.KindPRN,
		PRN:  &medication.PRNSchedule{MaxDailyDoses: maxDaily, MinHoursBetween: minHours, DoseAmount: 1},
	}
}

func logTaken(t *testing.T, doses *medication.MemoryDoseLogRepo, med *medication.Medication, at time.Time) {
	t.Helper()
	err := doses.Append(context.Background(), &medication.DoseLogEntry{
		MedicationID: med.ID,
		PatientID:    med.PatientID,
		TakenAt:      at,
		Status:       medication.DoseTaken,
	})
	if err != nil {
		t.Fatalf("append dose: %v", err)
	}
}

func TestGuardDoseIntervalBoundary(t *testing.T) {
	f := newFixture(t, nil)
	med := seedMedication(t, f.meds, uuid.New(), "Tylenol", prnSchedule(6, 4))
	logTaken(t, f.doses, med, noon)

	// One second before the minimum interval elapses is rejected.
	_, err := f.guard.GuardDose(context.Background(), med.ID, noon.Add(4*time.Hour-time.Second), "patient", false)
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("expected Rejection, got %v", err)
	}
	if rej.Rule != RuleDoubleDose {
		t.Errorf("expected rule %s, got %s", RuleDoubleDose, rej.Rule)
	}
	if !errors.Is(err, ErrGuardRejected) {
		t.Error("rejection must unwrap to ErrGuardRejected")
	}
	if want := noon.Add(4 * time.Hour); !rej.NextAllowed.Equal(want) {
		t.Errorf("expected next allowed %s, got %s", want, rej.NextAllowed)
	}

	// Exactly at the interval boundary is accepted.
	result, err := f.guard.GuardDose(context.Background(), med.ID, noon.Add(4*time.Hour), "patient", false)
	if err != nil {
		t.Fatalf("GuardDose at boundary: %v", err)
	}
	if !result.Allowed || result.Entry == nil {
		t.Fatal("expected dose accepted at exact interval boundary")
	}
}

func TestGuardDoseDailyLimit(t *testing.T) {
	f := newFixture(t, nil)
	med := seedMedication(t, f.meds, uuid.New(), "Ibuprofen", prnSchedule(3, 4))
	logTaken(t, f.doses, med, noon.Add(-11*time.Hour))
	logTaken(t, f.doses, med, noon.Add(-7*time.Hour))
	logTaken(t, f.doses, med, noon.Add(-3*time.Hour))

	// Fourth dose of the day, outside the re-dose interval, still hits
	// the daily ceiling.
	_, err := f.guard.GuardDose(context.Background(), med.ID, noon.Add(2*time.Hour), "patient", false)
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("expected Rejection, got %v", err)
	}
	if rej.Rule != RuleDailyLimit {
		t.Errorf("expected rule %s, got %s", RuleDailyLimit, rej.Rule)
	}
	if rej.NextAllowed.IsZero() {
		t.Error("rejection must say when the next dose becomes allowed")
	}

	entries, _, err := f.trail.Search(context.Background(), audit.ActionDoseGuard, "", 10, 0)
	if err != nil {
		t.Fatalf("search trail: %v", err)
	}
	if len(entries) != 1 || entries[0].Outcome != audit.OutcomeRejected {
		t.Fatalf("expected one rejected audit entry, got %+v", entries)
	}

	// The next calendar day starts fresh.
	result, err := f.guard.GuardDose(context.Background(), med.ID, noon.Add(13*time.Hour), "patient", false)
	if err != nil {
		t.Fatalf("GuardDose next day: %v", err)
	}
	if !result.Allowed {
		t.Fatal("expected dose accepted after the day rolled over")
	}
}

func TestGuardDoseInteractionWarningRequiresAcknowledgement(t *testing.T) {
	f := newFixture(t, interaction.NewStaticGateway())
	patientID := uuid.New()
	seedMedication(t, f.meds, patientID, "Warfarin", prnSchedule(3, 4))
	aspirin := seedMedication(t, f.meds, patientID, "Aspirin", prnSchedule(3, 4))
	f.contacts.Create(context.Background(), &emergency.Contact{
		PatientID: patientID, Name: "Alice", Channel: notification.ChannelSMS, Address: "+15551234567",
	})

	result, err := f.guard.GuardDose(context.Background(), aspirin.ID, noon, "patient", false)
	if err != nil {
		t.Fatalf("GuardDose: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected warning to withhold the dose until acknowledged")
	}
	if !result.RequiresAcknowledgement {
		t.Fatal("expected acknowledgement requirement")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected interaction warnings")
	}
	for _, w := range result.Warnings {
		if w.Severity == "" || w.Evidence == "" {
			t.Errorf("warning must carry severity and evidence, got %+v", w.Record)
		}
	}

	// Nothing was persisted and nothing escalated yet.
	if last, _ := f.doses.LastTaken(context.Background(), aspirin.ID); last != nil {
		t.Fatal("dose must not persist while acknowledgement is pending")
	}
	if _, total, _ := f.events.ListByPatient(context.Background(), patientID, 10, 0); total != 0 {
		t.Fatalf("expected no escalation yet, got %d events", total)
	}
}

func TestGuardDoseOverrideEscalatesOnce(t *testing.T) {
	f := newFixture(t, interaction.NewStaticGateway())
	patientID := uuid.New()
	seedMedication(t, f.meds, patientID, "Warfarin", prnSchedule(3, 4))
	aspirin := seedMedication(t, f.meds, patientID, "Aspirin", prnSchedule(3, 4))
	f.contacts.Create(context.Background(), &emergency.Contact{
		PatientID: patientID, Name: "Alice", Channel: notification.ChannelSMS, Address: "+15551234567",
	})
	f.contacts.Create(context.Background(), &emergency.Contact{
		PatientID: patientID, Name: "Bob", Channel: notification.ChannelSMS, Address: "+15557654321",
	})

	result, err := f.guard.GuardDose(context.Background(), aspirin.ID, noon, "patient", true)
	if err != nil {
		t.Fatalf("GuardDose with acknowledgement: %v", err)
	}
	if !result.Allowed || result.Entry == nil {
		t.Fatal("expected acknowledged dose to persist")
	}
	if result.Event == nil {
		t.Fatal("expected a guard_override escalation event")
	}
	if result.Event.Reason != emergency.ReasonGuardOverride {
		t.Errorf("expected reason %s, got %s", emergency.ReasonGuardOverride, result.Event.Reason)
	}
	if len(result.Event.Outcomes) != 2 {
		t.Fatalf("expected per-contact outcomes for both contacts, got %d", len(result.Event.Outcomes))
	}

	events, total, err := f.events.ListByPatient(context.Background(), patientID, 10, 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected exactly one emergency event, got %d", total)
	}
	if events[0].Reason != emergency.ReasonGuardOverride {
		t.Errorf("expected stored reason %s, got %s", emergency.ReasonGuardOverride, events[0].Reason)
	}

	overrides, _, err := f.trail.Search(context.Background(), audit.ActionGuardOverride, "", 10, 0)
	if err != nil {
		t.Fatalf("search trail: %v", err)
	}
	if len(overrides) != 1 || overrides[0].Outcome != audit.OutcomeOverridden {
		t.Fatalf("expected one override audit entry, got %+v", overrides)
	}
}

type downGateway struct{}

func (downGateway) Lookup(context.Context, string, string) ([]interaction.Fact, error) {
	return nil, errors.New("gateway down")
}

func (downGateway) IsHerbalSupplement(context.Context, string) (bool, error) {
	return false, errors.New("gateway down")
}

func (downGateway) DetailedInfo(context.Context, string) (*interaction.Profile, error) {
	return nil, errors.New("gateway down")
}

func TestGuardDoseLookupFailureIsUnknownNotClear(t *testing.T) {
	f := newFixture(t, downGateway{})
	patientID := uuid.New()
	seedMedication(t, f.meds, patientID, "Warfarin", prnSchedule(3, 4))
	aspirin := seedMedication(t, f.meds, patientID, "Aspirin", prnSchedule(3, 4))

	result, err := f.guard.GuardDose(context.Background(), aspirin.ID, noon, "patient", false)
	if err != nil {
		t.Fatalf("GuardDose: %v", err)
	}
	if result.Allowed {
		t.Fatal("unknown interaction status must not pass silently")
	}
	if !result.RequiresAcknowledgement || !result.LookupFailed {
		t.Fatalf("expected acknowledgement requirement with lookup_failed, got %+v", result)
	}
}

func TestMarkMissedCriticalEscalates(t *testing.T) {
	f := newFixture(t, nil)
	patientID := uuid.New()
	med := seedMedication(t, f.meds, patientID, "Insulin", prnSchedule(4, 4))
	med.Critical = true
	if err := f.meds.Update(context.Background(), med); err != nil {
		t.Fatalf("update: %v", err)
	}
	f.contacts.Create(context.Background(), &emergency.Contact{
		PatientID: patientID, Name: "Alice", Channel: notification.ChannelSMS, Address: "+15551234567",
	})

	result, err := f.guard.MarkMissed(context.Background(), med.ID, noon, "scheduler")
	if err != nil {
		t.Fatalf("MarkMissed: %v", err)
	}
	if result.Event == nil || result.Event.Reason != emergency.ReasonMissedCritical {
		t.Fatalf("expected missed_critical_dose escalation, got %+v", result.Event)
	}
	if len(f.sms.Calls()) != 1 {
		t.Errorf("expected contact notified, got %d calls", len(f.sms.Calls()))
	}

	// A missed non-critical medication does not escalate.
	other := seedMedication(t, f.meds, patientID, "Vitamin D", prnSchedule(1, 24))
	result, err = f.guard.MarkMissed(context.Background(), other.ID, noon, "scheduler")
	if err != nil {
		t.Fatalf("MarkMissed: %v", err)
	}
	if result.Event != nil {
		t.Error("non-critical missed dose must not escalate")
	}
}
