// Package record implements the persisted-record ("database") transport: an
// in-app notification row per recipient, read back by the client's
// notification inbox.
package record

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"bloodlink/internal/notifications/core"
	"bloodlink/internal/types"
)

// recordNamespace seeds the deterministic record IDs.
var recordNamespace = uuid.MustParse("6f1c2a4e-2b7d-4c55-9a0e-7f3b1d8e5c21")

// Transport implements core.Transport by saving a NotificationRecord.
type Transport struct {
	store  types.RecordStore
	clock  types.Clock
	logger types.Logger
}

var _ core.Transport = (*Transport)(nil)

// NewTransport creates a record Transport.
func NewTransport(store types.RecordStore, clock types.Clock, logger types.Logger) *Transport {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Transport{store: store, clock: clock, logger: logger}
}

// Kind returns types.TransportDatabase.
func (t *Transport) Kind() types.TransportKind {
	return types.TransportDatabase
}

// Send persists payload for its user. The record ID is derived from the
// event, the user and the record kind, so a retried job writes the same row.
func (t *Transport) Send(ctx context.Context, target types.ChannelTarget, payload types.RenderedPayload) error {
	p, ok := payload.(*types.RecordPayload)
	if !ok || p == nil {
		return types.NewAppError(types.ErrCodeInternalConfiguration,
			fmt.Sprintf("record transport cannot send %T", payload), nil)
	}
	userID := p.UserID
	if userID == "" {
		userID = target.Address
	}
	if userID == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "record without user id", nil)
	}

	eventID := types.GetEventID(ctx)
	rec := &types.NotificationRecord{
		ID:        RecordID(eventID, userID, p.Kind),
		UserID:    userID,
		Kind:      p.Kind,
		EventID:   eventID,
		Data:      p.Data,
		CreatedAt: t.clock.Now().UTC(),
	}
	if err := t.store.Save(ctx, rec); err != nil {
		return err
	}

	t.logger.Info("notification record saved",
		"record_id", rec.ID,
		"user_id", userID,
		"kind", p.Kind,
	)
	return nil
}

// RecordID returns the deterministic ID of the record for one event, user
// and kind.
func RecordID(eventID, userID, kind string) string {
	return uuid.NewSHA1(recordNamespace, []byte(eventID+"/"+userID+"/"+kind)).String()
}
