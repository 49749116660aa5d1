package email

import (
	"context"

	"github.com/google/uuid"

	"bloodlink/internal/types"
)

// Sender transmits a laid-out email and returns the provider's message ID.
// external.SendGridClient and SMTPSender implement it.
type Sender interface {
	Send(ctx context.Context, input types.SendInput) (providerMsgID string, err error)
}

// LogSender logs emails instead of sending them. It backs EMAIL_PROVIDER=stub
// for local runs.
type LogSender struct {
	logger types.Logger
}

var _ Sender = (*LogSender)(nil)

// NewLogSender creates a LogSender.
func NewLogSender(logger types.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the subject and the redacted recipient.
func (s *LogSender) Send(_ context.Context, input types.SendInput) (string, error) {
	id := "stub-" + uuid.NewString()
	s.logger.Info("email suppressed by stub sender",
		"to", types.RedactEmail(input.To),
		"subject", input.Subject,
		"reference_id", input.ReferenceID,
		"provider_message_id", id,
	)
	return id, nil
}
