package types

import (
	"context"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// Logger defines the structured logging interface used throughout the service.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// PreferenceStore is the read-only view of the user-profile subsystem's
// notification preferences. A nil preference with a nil error means the user
// never expressed one.
type PreferenceStore interface {
	GetPreference(ctx context.Context, userID string, kind ChannelKind) (*RecipientPreference, error)
}

// EntityStore loads the entity an event is about, with its related entities
// attached, so that it can be snapshotted.
type EntityStore interface {
	Load(ctx context.Context, kind EntityKind, id string) (Entity, error)
}

// RecordStore persists and reads back in-app notification records.
type RecordStore interface {
	Save(ctx context.Context, rec *NotificationRecord) error
	Get(ctx context.Context, id string) (*NotificationRecord, error)
}

// Authenticator resolves a bearer token to the Actor it was issued to.
// Failures are AppErrors carrying one of the auth_ codes.
type Authenticator interface {
	ResolveToken(ctx context.Context, token string) (*Actor, error)
}
