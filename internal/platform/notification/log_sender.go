package notification

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSender writes outbound messages to the structured log instead of a
// real transport. Used when no email or SMS provider is configured; the
// escalation path still exercises its full fan-out and outcome handling.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.logger.Info().
		Str("channel", "email").
		Str("to", to).
		Str("subject", subject).
		Str("body", body).
		Msg("outbound notification")
	return nil
}

func (s *LogSender) SendSMS(_ context.Context, to, body string) error {
	s.logger.Info().
		Str("channel", "sms").
		Str("to", to).
		Str("body", body).
		Msg("outbound notification")
	return nil
}
