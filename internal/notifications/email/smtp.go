package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"bloodlink/internal/types"
)

// sendMailFunc matches smtp.SendMail.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPConfig holds the relay settings for SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTPSender delivers multipart/alternative messages through an SMTP relay.
// It is used against Mailpit in local development and against a managed
// relay elsewhere.
type SMTPSender struct {
	addr   string
	auth   smtp.Auth
	send   sendMailFunc
	clock  types.Clock
	logger types.Logger
}

var _ Sender = (*SMTPSender)(nil)

// SMTPOption configures an SMTPSender.
type SMTPOption func(*SMTPSender)

// WithSendMail replaces smtp.SendMail, for tests.
func WithSendMail(fn sendMailFunc) SMTPOption {
	return func(s *SMTPSender) { s.send = fn }
}

// WithSMTPClock sets the clock used for the Date header.
func WithSMTPClock(c types.Clock) SMTPOption {
	return func(s *SMTPSender) { s.clock = c }
}

// NewSMTPSender creates an SMTPSender. PLAIN auth is used only when a
// username is configured.
func NewSMTPSender(cfg SMTPConfig, logger types.Logger, opts ...SMTPOption) *SMTPSender {
	s := &SMTPSender{
		addr:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		send:   smtp.SendMail,
		clock:  types.RealClock{},
		logger: logger,
	}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send builds the MIME message and hands it to the relay. The generated
// Message-ID is returned as the provider message ID.
//
// Error mapping:
//   - 550, 551, 553, 554 replies -> types.ErrCodeEmailBlocked
//   - other replies and network errors -> types.ErrCodeUpstreamEmailProvider
//
// smtp.SendMail does not take a context; a cancelled ctx is only checked
// before dialing.
func (s *SMTPSender) Send(ctx context.Context, input types.SendInput) (string, error) {
	if input.To == "" {
		return "", types.NewAppError(types.ErrCodeValidationMissingField, "email recipient is empty", nil)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	msgID := messageID(input.From.Address)
	msg, err := s.buildMessage(input, msgID)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build MIME message", err)
	}

	if err := s.send(s.addr, s.auth, input.From.Address, []string{input.To}, msg); err != nil {
		return "", classifySMTPError(err)
	}

	s.logger.Info("email handed to smtp relay",
		"to", types.RedactEmail(input.To),
		"reference_id", input.ReferenceID,
		"provider_message_id", msgID,
	)
	return msgID, nil
}

func (s *SMTPSender) buildMessage(input types.SendInput, msgID string) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	from := mail.Address{Name: input.From.Name, Address: input.From.Address}
	to := mail.Address{Name: input.ToName, Address: input.To}
	header := []struct{ key, value string }{
		{"From", from.String()},
		{"To", to.String()},
		{"Subject", mime.QEncoding.Encode("utf-8", input.Subject)},
		{"Date", s.clock.Now().UTC().Format(time.RFC1123Z)},
		{"Message-ID", msgID},
		{"MIME-Version", "1.0"},
		{"Content-Type", "multipart/alternative; boundary=" + mw.Boundary()},
	}
	if input.ReferenceID != "" && safeHeaderValue(input.ReferenceID) {
		header = append(header, struct{ key, value string }{"X-Reference-ID", input.ReferenceID})
	}
	for _, h := range header {
		fmt.Fprintf(&buf, "%s: %s\r\n", h.key, h.value)
	}
	buf.WriteString("\r\n")

	for _, part := range []struct{ contentType, body string }{
		{"text/plain; charset=utf-8", input.BodyText},
		{"text/html; charset=utf-8", input.BodyHTML},
	} {
		if part.body == "" {
			continue
		}
		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		qp := quotedprintable.NewWriter(pw)
		if _, err := qp.Write([]byte(part.body)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// safeHeaderValue reports whether v can be written as a header value as is.
func safeHeaderValue(v string) bool {
	for _, r := range v {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}

func messageID(fromAddress string) string {
	domain := "bloodlink.local"
	if _, d, ok := strings.Cut(fromAddress, "@"); ok && d != "" {
		domain = d
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}

func classifySMTPError(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case 550, 551, 553, 554:
			return types.NewAppError(types.ErrCodeEmailBlocked,
				fmt.Sprintf("smtp relay rejected recipient: %d %s", tpErr.Code, tpErr.Msg),
				fmt.Errorf("%w: %w", ErrRecipientBlocked, err))
		}
		return types.NewAppError(types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("smtp relay error: %d %s", tpErr.Code, tpErr.Msg), err)
	}
	return types.NewAppError(types.ErrCodeUpstreamEmailProvider, "smtp relay unreachable", err)
}
