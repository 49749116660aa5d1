package types

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is the immutable input to a dispatch: what happened, to which
// subject, when, and a snapshot of the subject at that moment.
type DomainEvent struct {
	ID         string    `json:"id"`
	Kind       EventKind `json:"kind"`
	SubjectID  string    `json:"subject_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    Snapshot  `json:"payload"`
}

// NewDomainEvent builds an event. An empty id is replaced with a fresh UUID.
func NewDomainEvent(id string, kind EventKind, subjectID string, occurredAt time.Time, payload Snapshot) DomainEvent {
	if id == "" {
		id = uuid.NewString()
	}
	return DomainEvent{
		ID:         id,
		Kind:       kind,
		SubjectID:  subjectID,
		OccurredAt: occurredAt.UTC(),
		Payload:    payload,
	}
}

// ChangeNotice is what a state-changing operation publishes after it commits:
// the kind of change, the affected entity, and any attributes of the change
// itself (for example the new delivery status) that should win over the
// stored row.
type ChangeNotice struct {
	EventID    string         `json:"event_id,omitempty" validate:"omitempty,max=64,printascii"`
	Kind       EventKind      `json:"kind" validate:"required"`
	SubjectID  string         `json:"subject_id" validate:"required,max=64,printascii"`
	OccurredAt time.Time      `json:"occurred_at"`
	Attributes map[string]any `json:"attributes,omitempty"`
}
