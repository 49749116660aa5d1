package types

import (
	"fmt"
	"time"
)

// Recipient is a user resolved out of an event snapshot.
type Recipient struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
}

// RecipientPreference is owned by the user-profile subsystem and read-only
// here. Absence means enabled.
type RecipientPreference struct {
	UserID      string      `json:"user_id"`
	ChannelKind ChannelKind `json:"channel_kind"`
	Enabled     bool        `json:"enabled"`
}

// ChannelTarget is one resolved destination for one event. Address is the
// broadcast channel name, the mailbox, or the user id depending on Transport.
type ChannelTarget struct {
	Transport TransportKind `json:"transport"`
	Address   string        `json:"address"`
	Recipient Recipient     `json:"recipient"`
}

// DeliveryOutcome reports what happened to one target.
type DeliveryOutcome struct {
	Transport TransportKind  `json:"transport"`
	Address   string         `json:"address"`
	Status    DeliveryStatus `json:"status"`
	Err       error          `json:"-"`
}

// Reason returns the error text, or "" when the outcome carries none.
func (o DeliveryOutcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// RenderedPayload is a transport-specific representation of an event.
type RenderedPayload interface {
	Transport() TransportKind
}

// RecordPayload is the structured body of a persisted in-app notification.
type RecordPayload struct {
	UserID string         `json:"user_id"`
	Kind   string         `json:"kind"`
	Data   map[string]any `json:"data"`
}

// Transport implements RenderedPayload.
func (*RecordPayload) Transport() TransportKind { return TransportDatabase }

// Action is an optional call-to-action link in an email.
type Action struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// EmailPayload is the content of a transactional email before layout.
type EmailPayload struct {
	To       string   `json:"to"`
	ToName   string   `json:"to_name,omitempty"`
	Subject  string   `json:"subject"`
	Greeting string   `json:"greeting"`
	Lines    []string `json:"lines"`
	Action   *Action  `json:"action,omitempty"`
}

// Transport implements RenderedPayload.
func (*EmailPayload) Transport() TransportKind { return TransportMail }

// BroadcastPayload is a real-time message for subscribers of Channel. Event is
// the stable tag clients route on.
type BroadcastPayload struct {
	Channel string         `json:"channel"`
	Event   string         `json:"event"`
	Body    map[string]any `json:"body"`
}

// Transport implements RenderedPayload.
func (*BroadcastPayload) Transport() TransportKind { return TransportBroadcast }

// DeferredJob carries a rendered payload for a deferred transport from the
// dispatcher to a worker. Exactly one payload field is set.
type DeferredJob struct {
	JobID      string         `json:"job_id"`
	EventID    string         `json:"event_id"`
	EventKind  EventKind      `json:"event_kind"`
	Target     ChannelTarget  `json:"target"`
	Email      *EmailPayload  `json:"email,omitempty"`
	Record     *RecordPayload `json:"record,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	RetryCount int            `json:"retry_count"`
	TraceID    string         `json:"trace_id,omitempty"`
}

// Payload returns the rendered payload matching the job's transport.
func (j DeferredJob) Payload() (RenderedPayload, error) {
	switch j.Target.Transport {
	case TransportMail:
		if j.Email == nil {
			return nil, fmt.Errorf("deferred job %s: mail job without email payload", j.JobID)
		}
		return j.Email, nil
	case TransportDatabase:
		if j.Record == nil {
			return nil, fmt.Errorf("deferred job %s: database job without record payload", j.JobID)
		}
		return j.Record, nil
	default:
		return nil, fmt.Errorf("deferred job %s: transport %q is not deferred", j.JobID, j.Target.Transport)
	}
}

// NotificationRecord is a persisted in-app notification row.
type NotificationRecord struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Kind      string         `json:"kind"`
	EventID   string         `json:"event_id"`
	Data      map[string]any `json:"data"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// SendInput is a fully rendered email handed to a mail provider.
type SendInput struct {
	To          string
	ToName      string
	From        SenderIdentity
	Subject     string
	BodyHTML    string
	BodyText    string
	ReferenceID string
}

// SenderIdentity defines the sender for outgoing emails.
type SenderIdentity struct {
	Name    string
	Address string
}
