package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/meditrack/meditrack/internal/domain/audit"
	"github.com/meditrack/meditrack/internal/domain/conflict"
	"github.com/meditrack/meditrack/internal/domain/emergency"
	"github.com/meditrack/meditrack/internal/domain/guard"
	"github.com/meditrack/meditrack/internal/domain/interaction"
	"github.com/meditrack/meditrack/internal/domain/medication"
	"github.com/meditrack/meditrack/internal/domain/timing"
	"github.com/meditrack/meditrack/internal/platform/messaging"
	"github.com/meditrack/meditrack/internal/platform/notification"
)

// testServer wires the whole engine into one echo instance backed by
// in-memory stores and mock transports, mirroring the production wiring
// in cmd/meditrack-server.
type testServer struct {
	echo  *echo.Echo
	meds  *medication.MemoryRepo
	doses *medication.MemoryDoseLogRepo
	trail *audit.MemoryRepo
	email *notification.MockEmailSender
	sms   *notification.MockSMSSender
	bus   *messaging.MockPublisher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zerolog.Nop()

	s := &testServer{
		meds:  medication.NewMemoryRepo(),
		doses: medication.NewMemoryDoseLogRepo(),
		trail: audit.NewMemoryRepo(),
		email: &notification.MockEmailSender{},
		sms:   &notification.MockSMSSender{},
		bus:   &messaging.MockPublisher{},
	}
	recorder := audit.NewTrailRecorder(s.trail, logger)

	validator := timing.NewValidator(4 * time.Hour)
	gateway := interaction.NewStaticGateway()
	store := interaction.NewMemoryStore(time.Hour, 100)
	checker := interaction.NewChecker(gateway, store, validator, recorder, logger)

	router := notification.NewRouter(s.email, s.sms)
	contacts := emergency.NewMemoryContactRepo()
	events := emergency.NewMemoryEventRepo()
	emergencySvc := emergency.NewService(contacts, events, router, s.bus, recorder, logger)

	medSvc := medication.NewService(s.meds, s.doses)
	doseGuard := guard.New(s.meds, s.doses, checker, emergencySvc, recorder, logger)
	resolver := conflict.NewResolver(medSvc, checker, validator, conflict.NewMemoryEditStore(), recorder, emergencySvc, logger)

	e := echo.New()
	api := e.Group("/api/v1")
	medication.NewHandler(medSvc).RegisterRoutes(api)
	interaction.NewHandler(checker, s.meds).RegisterRoutes(api)
	emergency.NewHandler(emergencySvc, contacts, events).RegisterRoutes(api)
	conflict.NewHandler(resolver).RegisterRoutes(api)
	guard.NewHandler(doseGuard).RegisterRoutes(api)
	audit.NewHandler(s.trail).RegisterRoutes(api)

	s.echo = e
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func (s *testServer) createMedication(t *testing.T, patientID uuid.UUID, name string, schedule medication.DoseSchedule) *medication.Medication {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/medications", medication.Medication{
		PatientID:    patientID,
		Name:         name,
		DosageAmount: 1,
		DosageUnit:   "tablet",
		Schedule:     schedule,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create %s: status %d body %s", name, rec.Code, rec.Body.String())
	}
	var m medication.Medication
	decode(t, rec, &m)
	return &m
}

func fixedSchedule(clocks ...string) medication.DoseSchedule {
	times := make([]medication.TimeOfDay, 0, len(clocks))
	for _, c := range clocks {
		times = append(times, medication.TimeOfDay{Clock: c, Zone: "UTC"})
	}
	return medication.DoseSchedule{
		Kind:      medication.KindFixedTime,
		FixedTime: &medication.FixedTimeSchedule{Times: times, DoseAmount: 1},
	}
}

func intervalSchedule(hours float64) medication.DoseSchedule {
	return medication.DoseSchedule{
		Kind:     medication.KindInterval,
		Interval: &medication.IntervalSchedule{Hours: hours, DoseAmount: 1},
	}
}
