package email

import (
	"context"
	"errors"
	"fmt"

	"bloodlink/internal/notifications/core"
	"bloodlink/internal/types"
)

// Transport implements core.Transport for mail. It runs inside the deferred
// workers: it lays out the EmailPayload rendered by the dispatcher and sends
// it through a Sender.
type Transport struct {
	sender Sender
	layout *Layout
	from   types.SenderIdentity
	logger types.Logger
}

var _ core.Transport = (*Transport)(nil)

// TransportConfig holds the dependencies needed to create a Transport.
type TransportConfig struct {
	Sender Sender
	Layout *Layout
	From   types.SenderIdentity
	Logger types.Logger
}

// NewTransport creates a mail Transport.
func NewTransport(cfg TransportConfig) *Transport {
	return &Transport{
		sender: cfg.Sender,
		layout: cfg.Layout,
		from:   cfg.From,
		logger: cfg.Logger,
	}
}

// Kind returns types.TransportMail.
func (t *Transport) Kind() types.TransportKind {
	return types.TransportMail
}

// Send delivers payload to target.Address. A recipient blocked by the
// provider is returned as a non-transient ErrCodeEmailBlocked AppError;
// other provider failures keep their upstream codes so the worker retries
// them.
func (t *Transport) Send(ctx context.Context, target types.ChannelTarget, payload types.RenderedPayload) error {
	p, ok := payload.(*types.EmailPayload)
	if !ok || p == nil {
		return types.NewAppError(types.ErrCodeInternalConfiguration,
			fmt.Sprintf("mail transport cannot send %T", payload), nil)
	}
	to := target.Address
	if to == "" {
		to = p.To
	}
	dest := types.RedactEmail(to)

	rendered, err := t.layout.Render(p)
	if err != nil {
		t.logger.Error("email layout failed", "dest", dest, "error", err.Error())
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to lay out email", err)
	}

	msgID, err := t.sender.Send(ctx, types.SendInput{
		To:          to,
		ToName:      p.ToName,
		From:        t.from,
		Subject:     rendered.Subject,
		BodyHTML:    rendered.BodyHTML,
		BodyText:    rendered.BodyText,
		ReferenceID: types.GetEventID(ctx),
	})
	if err != nil {
		if IsBlocklistError(err) {
			t.logger.Warn("recipient blocked by provider", "dest", dest, "user_id", target.Recipient.UserID)
			var appErr *types.AppError
			if errors.As(err, &appErr) && appErr.Code == types.ErrCodeEmailBlocked {
				return err
			}
			return types.NewAppError(types.ErrCodeEmailBlocked, "recipient blocked by provider", err)
		}
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return types.NewAppError(types.ErrCodeUpstreamEmailProvider, "email provider send failed", err)
	}

	t.logger.Info("email sent", "dest", dest, "provider_message_id", msgID)
	return nil
}
