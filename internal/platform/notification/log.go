package notification

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSender writes messages to the log instead of delivering them. It is the
// development transport.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "notification").Logger()}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.logger.Info().
		Str("to", msg.RecipientEmail).
		Str("subject", msg.Subject).
		Int("body_bytes", len(msg.BodyHTML)).
		Msg("notification")
	return nil
}
