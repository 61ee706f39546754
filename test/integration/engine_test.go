package integration

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/meditrack/meditrack/internal/domain/audit"
	"github.com/meditrack/meditrack/internal/domain/conflict"
	"github.com/meditrack/meditrack/internal/domain/emergency"
	"github.com/meditrack/meditrack/internal/domain/guard"
	"github.com/meditrack/meditrack/internal/domain/interaction"
	"github.com/meditrack/meditrack/internal/domain/medication"
)

func TestMedicationLifecycle(t *testing.T) {
	s := newTestServer(t)
	patientID := uuid.New()

	med := s.createMedication(t, patientID, "Lisinopril", fixedSchedule("08:00"))
	if med.ID == uuid.Nil {
		t.Fatal("expected an assigned medication id")
	}

	rec := s.do(t, http.MethodGet, "/api/v1/medications/"+med.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}
	var fetched medication.Medication
	decode(t, rec, &fetched)
	if fetched.Name != "Lisinopril" || fetched.PatientID != patientID {
		t.Errorf("unexpected medication: %+v", fetched)
	}

	// A schedule with no dose times must be rejected, not stored.
	bad := fetched
	bad.Schedule = medication.DoseSchedule{Kind: medication.KindFixedTime, FixedTime: &medication.FixedTimeSchedule{DoseAmount: 1}}
	rec = s.do(t, http.MethodPut, "/api/v1/medications/"+med.ID.String(), bad)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for invalid schedule, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/patients/"+patientID.String()+"/medications", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var list []*medication.Medication
	decode(t, rec, &list)
	if len(list) != 1 || list[0].Schedule.FixedTime.Times[0].Clock != "08:00" {
		t.Errorf("stored schedule must be untouched by the rejected update: %+v", list)
	}

	rec = s.do(t, http.MethodDelete, "/api/v1/medications/"+med.ID.String(), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/v1/medications/"+med.ID.String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestInteractionCheckAndAssessment(t *testing.T) {
	s := newTestServer(t)
	patientID := uuid.New()
	s.createMedication(t, patientID, "Warfarin", fixedSchedule("08:00"))
	s.createMedication(t, patientID, "Aspirin", fixedSchedule("20:00"))

	rec := s.do(t, http.MethodGet, "/api/v1/patients/"+patientID.String()+"/interactions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("check: status %d body %s", rec.Code, rec.Body.String())
	}
	var results []interaction.Result
	decode(t, rec, &results)
	if len(results) != 1 {
		t.Fatalf("expected 1 interaction, got %d", len(results))
	}
	if results[0].Severity != interaction.SeveritySevere || !results[0].RequiresAttention {
		t.Errorf("unexpected result: %+v", results[0])
	}

	rec = s.do(t, http.MethodGet, "/api/v1/patients/"+patientID.String()+"/safety-assessment", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("assess: status %d", rec.Code)
	}
	var a interaction.Assessment
	decode(t, rec, &a)
	if a.Score != 0.6 || !a.RequiresAttention {
		t.Errorf("unexpected assessment: %+v", a)
	}

	entries, _, err := s.trail.Search(context.Background(), audit.ActionInteractionCheck, "", 10, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(entries) == 0 {
		t.Error("expected the check to be audited")
	}
}

func TestScheduleEditConflictResolution(t *testing.T) {
	s := newTestServer(t)
	patientID := uuid.New()
	s.createMedication(t, patientID, "Metformin", fixedSchedule("08:00"))
	levo := s.createMedication(t, patientID, "Levothyroxine", fixedSchedule("20:00"))

	// Moving levothyroxine onto metformin's dose time must open a
	// timing conflict instead of silently saving.
	rec := s.do(t, http.MethodPost, "/api/v1/medications/"+levo.ID.String()+"/schedule-edits", fixedSchedule("08:00"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("open edit: status %d body %s", rec.Code, rec.Body.String())
	}
	var edit conflict.Edit
	decode(t, rec, &edit)
	if len(edit.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(edit.Conflicts))
	}
	c := edit.Conflicts[0]
	if c.Kind != conflict.KindTiming || c.State != conflict.StateDetected {
		t.Fatalf("unexpected conflict: kind %s state %s", c.Kind, c.State)
	}

	var shift *conflict.Suggestion
	for i := range c.Suggestions {
		if c.Suggestions[i].Kind == conflict.SuggestTimeShift && c.Suggestions[i].MedicationID == levo.ID {
			shift = &c.Suggestions[i]
		}
	}
	if shift == nil {
		t.Fatal("expected a time-shift suggestion for the edited medication")
	}

	// Finalizing with the conflict still open must be blocked.
	rec = s.do(t, http.MethodPost, "/api/v1/schedule-edits/"+edit.ID.String()+"/finalize", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while unresolved, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/conflicts/"+c.ID.String()+"/resolution", map[string]interface{}{
		"resolution":    conflict.ResolutionAdjust,
		"suggestion_id": shift.ID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve: status %d body %s", rec.Code, rec.Body.String())
	}
	var outcome conflict.Outcome
	decode(t, rec, &outcome)
	if outcome.Conflict.State != conflict.StateAdjusted {
		t.Errorf("expected adjusted state, got %s", outcome.Conflict.State)
	}
	if outcome.EditOpen {
		t.Error("adjusting the only conflict must unblock the edit")
	}

	rec = s.do(t, http.MethodPost, "/api/v1/schedule-edits/"+edit.ID.String()+"/finalize", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("finalize: status %d body %s", rec.Code, rec.Body.String())
	}
	var finalized conflict.Edit
	decode(t, rec, &finalized)
	if finalized.Status != conflict.EditFinalized {
		t.Errorf("expected finalized status, got %s", finalized.Status)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/medications/"+levo.ID.String(), nil)
	var stored medication.Medication
	decode(t, rec, &stored)
	if got := stored.Schedule.FixedTime.Times[0].Clock; got != shift.TimeShift.Proposed.Clock {
		t.Errorf("stored schedule %s, want the adjusted time %s", got, shift.TimeShift.Proposed.Clock)
	}
}

func TestDoseGuardBlocksDoubleDose(t *testing.T) {
	s := newTestServer(t)
	patientID := uuid.New()
	med := s.createMedication(t, patientID, "Acetaminophen", intervalSchedule(6))

	first := time.Now().UTC().Add(-time.Hour)
	rec := s.do(t, http.MethodPost, "/api/v1/doses", map[string]interface{}{
		"medication_id": med.ID,
		"time":          first,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("first dose: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/api/v1/doses", map[string]interface{}{
		"medication_id": med.ID,
		"time":          first.Add(3 * time.Hour),
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a premature dose, got %d", rec.Code)
	}
	var rej guard.Rejection
	decode(t, rec, &rej)
	if rej.Rule != guard.RuleDoubleDose {
		t.Errorf("expected double_dose rule, got %s", rej.Rule)
	}
	if want := first.Add(6 * time.Hour); !rej.NextAllowed.Equal(want) {
		t.Errorf("next allowed %s, want %s", rej.NextAllowed, want)
	}
}

func TestDoseGuardOverrideNotifiesContacts(t *testing.T) {
	s := newTestServer(t)
	patientID := uuid.New()
	s.createMedication(t, patientID, "Warfarin", fixedSchedule("08:00"))
	aspirin := s.createMedication(t, patientID, "Aspirin", fixedSchedule("20:00"))

	rec := s.do(t, http.MethodPost, "/api/v1/patients/"+patientID.String()+"/emergency-contacts", map[string]interface{}{
		"name":    "Dana",
		"channel": "email",
		"address": "dana@example.com",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create contact: status %d body %s", rec.Code, rec.Body.String())
	}

	doseTime := time.Now().UTC()
	body := map[string]interface{}{
		"medication_id": aspirin.ID,
		"time":          doseTime,
	}
	rec = s.do(t, http.MethodPost, "/api/v1/doses", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 pending acknowledgement, got %d body %s", rec.Code, rec.Body.String())
	}
	var pending guard.Result
	decode(t, rec, &pending)
	if !pending.RequiresAcknowledgement || len(pending.Warnings) == 0 {
		t.Fatalf("expected interaction warnings, got %+v", pending)
	}
	if len(s.email.Calls()) != 0 {
		t.Fatal("no notification may go out before the override is confirmed")
	}

	body["acknowledge"] = true
	rec = s.do(t, http.MethodPost, "/api/v1/doses", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("override: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/v1/patients/"+patientID.String()+"/emergency-events", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list events: status %d", rec.Code)
	}
	var page struct {
		Data  []*emergency.Event `json:"data"`
		Total int                `json:"total"`
	}
	decode(t, rec, &page)
	if page.Total != 1 || len(page.Data) != 1 {
		t.Fatalf("expected exactly one escalation event, got %d", page.Total)
	}
	ev := page.Data[0]
	if ev.Reason != emergency.ReasonGuardOverride {
		t.Errorf("unexpected reason %s", ev.Reason)
	}
	if len(ev.Outcomes) != 1 || !ev.Outcomes[0].Success {
		t.Errorf("expected one delivered outcome, got %+v", ev.Outcomes)
	}
	if len(s.email.Calls()) != 1 {
		t.Errorf("expected 1 email, got %d", len(s.email.Calls()))
	}
}

func TestAuditTrailEndpoint(t *testing.T) {
	s := newTestServer(t)
	patientID := uuid.New()
	s.createMedication(t, patientID, "Warfarin", fixedSchedule("08:00"))
	s.createMedication(t, patientID, "Aspirin", fixedSchedule("20:00"))

	if rec := s.do(t, http.MethodGet, "/api/v1/patients/"+patientID.String()+"/interactions", nil); rec.Code != http.StatusOK {
		t.Fatalf("check: status %d", rec.Code)
	}

	path := fmt.Sprintf("/api/v1/audit-entries?action=%s&subject_id=Warfarin", audit.ActionInteractionCheck)
	rec := s.do(t, http.MethodGet, path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search: status %d", rec.Code)
	}
	var page struct {
		Data  []*audit.Entry `json:"data"`
		Total int            `json:"total"`
	}
	decode(t, rec, &page)
	if page.Total != 1 {
		t.Fatalf("expected 1 audit entry, got %d", page.Total)
	}
	e := page.Data[0]
	if e.Action != audit.ActionInteractionCheck || e.Outcome != audit.OutcomeWarned {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.Actor == "" || e.Timestamp.IsZero() {
		t.Errorf("entry missing actor or timestamp: %+v", e)
	}
}
