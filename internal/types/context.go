package types

import (
	"context"
	"slices"
)

// ActorType identifies the kind of authenticated caller.
type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

// Actor is the authenticated caller of an API or realtime request. System
// actors are the blood bank's own services; user actors are staff of one or
// more hospitals or banks.
type Actor struct {
	ID              string
	Type            ActorType
	OrganizationIDs []string
}

// IsSystem reports whether the actor is a backend service.
func (a Actor) IsSystem() bool {
	return a.Type == ActorTypeSystem
}

// MemberOf reports whether the actor belongs to the organization.
func (a Actor) MemberOf(orgID string) bool {
	return orgID != "" && slices.Contains(a.OrganizationIDs, orgID)
}

// CanAccessUser reports whether the actor may read the user's inbox.
func (a Actor) CanAccessUser(userID string) bool {
	return a.IsSystem() || (a.Type == ActorTypeUser && a.ID != "" && a.ID == userID)
}

type contextKey string

const (
	actorKey     contextKey = "actor"
	requestIDKey contextKey = "request_id"
	eventIDKey   contextKey = "event_id"
)

// WithActor stores the Actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor retrieves the Actor from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithEventID stores the ID of the domain event being dispatched so that
// outbound adapters can tag their calls with it.
func WithEventID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, eventIDKey, id)
}

// GetEventID retrieves the domain event ID from the context.
func GetEventID(ctx context.Context) string {
	id, _ := ctx.Value(eventIDKey).(string)
	return id
}
