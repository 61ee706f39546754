// Package notification provides the outbound channel senders used by the
// emergency escalation fan-out, plus test doubles. Delivery reliability
// (retries, queues) is the transport's concern, not the engine's.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Channel identifies how a contact is reached.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Router dispatches a message through the sender for the contact's
// channel.
type Router struct {
	email EmailSender
	sms   SMSSender
}

func NewRouter(email EmailSender, sms SMSSender) *Router {
	return &Router{email: email, sms: sms}
}

// Send delivers one message. The context carries the caller's timeout;
// Send itself never blocks past it.
func (r *Router) Send(ctx context.Context, ch Channel, to, subject, body string) error {
	switch ch {
	case ChannelEmail:
		if r.email == nil {
			return errors.New("no email sender configured")
		}
		return r.email.SendEmail(ctx, to, subject, body)
	case ChannelSMS:
		if r.sms == nil {
			return errors.New("no sms sender configured")
		}
		return r.sms.SendSMS(ctx, to, body)
	default:
		return fmt.Errorf("unsupported channel: %s", ch)
	}
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// SMSCall records a single call to SendSMS.
type SMSCall struct {
	To   string
	Body string
}

// MockSMSSender is a test double for SMSSender.
type MockSMSSender struct {
	mu         sync.Mutex
	calls      []SMSCall
	ShouldFail bool
	FailError  string
}

// SendSMS records the call and optionally returns an error.
func (m *MockSMSSender) SendSMS(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SMSCall{To: to, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded SMS calls.
func (m *MockSMSSender) Calls() []SMSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SMSCall, len(m.calls))
	copy(out, m.calls)
	return out
}
