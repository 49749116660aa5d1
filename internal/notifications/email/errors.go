// Package email implements the mail transport. It lays a rendered
// EmailPayload out as HTML and plain text and hands the result to a Sender:
// an SMTP relay, the SendGrid API, or a logging stub for local runs.
package email

import (
	"errors"

	"bloodlink/internal/types"
)

// ErrRecipientBlocked indicates the mail provider has the recipient on a
// suppression list or has blocked delivery. This is treated as a terminal
// (non-retryable) failure.
var ErrRecipientBlocked = errors.New("recipient blocked by provider")

// IsBlocklistError checks whether an error indicates the recipient is blocked
// by the mail provider. It checks both the sentinel ErrRecipientBlocked and
// the AppError code ErrCodeEmailBlocked returned by the SendGrid client.
func IsBlocklistError(err error) bool {
	if errors.Is(err, ErrRecipientBlocked) {
		return true
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Code == types.ErrCodeEmailBlocked
	}
	return false
}
