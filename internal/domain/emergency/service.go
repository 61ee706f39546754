package emergency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meditrack/meditrack/internal/domain/audit"
	"github.com/meditrack/meditrack/internal/platform/messaging"
	"github.com/meditrack/meditrack/internal/platform/notification"
)

// ErrPartialNotification signals that the escalation event was recorded
// but at least one contact could not be reached. Callers still receive
// the full event with per-contact outcomes.
var ErrPartialNotification = errors.New("one or more emergency contacts could not be notified")

// DefaultNotifyTimeout bounds the delivery attempt for a single contact.
const DefaultNotifyTimeout = 10 * time.Second

// Service performs emergency escalations: notify every registered
// contact, record the event, and publish it for downstream consumers.
type Service struct {
	contacts      ContactRepository
	events        EventRepository
	router        *notification.Router
	publisher     messaging.Publisher
	recorder      audit.Recorder
	logger        zerolog.Logger
	notifyTimeout time.Duration
	now           func() time.Time
}

func NewService(contacts ContactRepository, events EventRepository, router *notification.Router, publisher messaging.Publisher, recorder audit.Recorder, logger zerolog.Logger) *Service {
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	if recorder == nil {
		recorder = audit.Nop()
	}
	return &Service{
		contacts:      contacts,
		events:        events,
		router:        router,
		publisher:     publisher,
		recorder:      recorder,
		logger:        logger,
		notifyTimeout: DefaultNotifyTimeout,
		now:           time.Now,
	}
}

// WithNotifyTimeout overrides the per-contact delivery timeout.
func (s *Service) WithNotifyTimeout(d time.Duration) *Service {
	if d > 0 {
		s.notifyTimeout = d
	}
	return s
}

// WithClock overrides the service clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Escalate notifies every emergency contact of the patient, waits for
// all deliveries to settle, and appends one Event carrying an outcome
// per contact. A failed contact never aborts the others; if any contact
// fails the event is still recorded and ErrPartialNotification is
// returned alongside it.
func (s *Service) Escalate(ctx context.Context, patientID uuid.UUID, actor string, reason Reason, medications []string, detail string) (*Event, error) {
	contacts, err := s.contacts.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list emergency contacts: %w", err)
	}

	event := &Event{
		ID:          uuid.New(),
		PatientID:   patientID,
		Reason:      reason,
		Medications: medications,
		Detail:      detail,
		OccurredAt:  s.now().UTC(),
		Outcomes:    s.notifyAll(ctx, contacts, reason, medications, detail),
	}

	if err := s.events.Append(ctx, event); err != nil {
		return nil, fmt.Errorf("record escalation event: %w", err)
	}

	// Downstream consumers get the event best-effort; a broker outage
	// must not fail an escalation that already reached the contacts.
	if err := s.publisher.Publish(ctx, "emergency."+string(reason), event); err != nil {
		s.logger.Error().Err(err).
			Str("patient_id", patientID.String()).
			Str("reason", string(reason)).
			Msg("publish escalation event")
	}

	failed := 0
	for _, o := range event.Outcomes {
		if !o.Success {
			failed++
		}
	}
	outcome := audit.OutcomePass
	if failed > 0 {
		outcome = audit.OutcomePartial
	}
	if err := s.recorder.Record(ctx, audit.Entry{
		Actor:      actor,
		Action:     audit.ActionEscalation,
		SubjectIDs: append([]string{patientID.String()}, medications...),
		Outcome:    outcome,
		Evidence:   fmt.Sprintf("reason=%s contacts=%d failed=%d detail=%s", reason, len(event.Outcomes), failed, detail),
	}); err != nil {
		s.logger.Error().Err(err).Msg("record escalation audit entry")
	}

	if failed > 0 {
		return event, ErrPartialNotification
	}
	return event, nil
}

// notifyAll fans out one delivery per contact and waits for all of them.
// Every contact yields exactly one outcome.
func (s *Service) notifyAll(ctx context.Context, contacts []*Contact, reason Reason, medications []string, detail string) []ContactOutcome {
	subject, body := composeMessage(reason, medications, detail)

	outcomes := make([]ContactOutcome, len(contacts))
	var wg sync.WaitGroup
	for i, c := range contacts {
		wg.Add(1)
		go func(i int, c *Contact) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
			defer cancel()

			outcome := ContactOutcome{ContactID: c.ID, Name: c.Name, Success: true}
			if err := s.router.Send(sendCtx, c.Channel, c.Address, subject, body); err != nil {
				outcome.Success = false
				outcome.Error = err.Error()
				s.logger.Error().Err(err).
					Str("contact_id", c.ID.String()).
					Str("channel", string(c.Channel)).
					Msg("notify emergency contact")
			}
			outcomes[i] = outcome
		}(i, c)
	}
	wg.Wait()
	return outcomes
}

func composeMessage(reason Reason, medications []string, detail string) (subject, body string) {
	switch reason {
	case ReasonGuardOverride:
		subject = "Medication safety warning overridden"
	case ReasonMissedCritical:
		subject = "Critical medication dose missed"
	case ReasonSevereInteraction:
		subject = "Severe medication interaction detected"
	default:
		subject = "Medication safety alert"
	}
	var b strings.Builder
	b.WriteString(subject)
	if len(medications) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(medications, ", "))
	}
	if detail != "" {
		b.WriteString(". ")
		b.WriteString(detail)
	}
	return subject, b.String()
}
