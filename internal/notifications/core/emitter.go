package core

import (
	"context"
	"fmt"

	"bloodlink/internal/types"
)

// Emitter is the entry point for state-changing operations: it turns a
// ChangeNotice into a DomainEvent and dispatches it.
type Emitter struct {
	entities   types.EntityStore
	dispatcher *Dispatcher
	clock      types.Clock
	logger     types.Logger
}

// NewEmitter creates an Emitter.
func NewEmitter(entities types.EntityStore, dispatcher *Dispatcher, clock types.Clock, logger types.Logger) *Emitter {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Emitter{entities: entities, dispatcher: dispatcher, clock: clock, logger: logger}
}

// Emit loads the subject of notice, overlays the notice attributes on it,
// snapshots it with the rule's FieldSpec and dispatches the resulting event.
//
// An error means no event could be formed: the kind is unroutable or the
// subject could not be loaded. Delivery failures are only reported through
// the returned outcomes so the caller's operation is never failed by them.
func (e *Emitter) Emit(ctx context.Context, notice types.ChangeNotice) ([]types.DeliveryOutcome, error) {
	rule, ok := e.dispatcher.Rule(notice.Kind)
	if !ok {
		return nil, &ConfigurationError{Kind: notice.Kind, Reason: "no routing rule registered"}
	}

	entity, err := e.entities.Load(ctx, rule.Entity, notice.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("emit %s: load %s %s: %w", notice.Kind, rule.Entity, notice.SubjectID, err)
	}
	if isNilEntity(entity) {
		return nil, types.NewAppError(types.ErrCodeNotFoundEntity, fmt.Sprintf("%s %s not found", rule.Entity, notice.SubjectID), nil)
	}
	if len(notice.Attributes) > 0 {
		entity = overlayEntity{Entity: entity, fields: notice.Attributes}
	}

	occurredAt := notice.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = e.clock.Now()
	}
	event := types.NewDomainEvent(notice.EventID, notice.Kind, notice.SubjectID, occurredAt, BuildSnapshot(entity, rule.Fields))

	outcomes, err := e.dispatcher.Dispatch(ctx, event)
	if err != nil {
		return nil, err
	}
	e.logger.Info("event emitted",
		"event_id", event.ID,
		"event_kind", string(event.Kind),
		"subject_id", event.SubjectID,
		"targets", len(outcomes),
	)
	return outcomes, nil
}

// overlayEntity lets the attributes of a change win over the stored row,
// for example the new delivery status when the row is read from a replica.
type overlayEntity struct {
	types.Entity
	fields map[string]any
}

func (o overlayEntity) Field(name string) (any, bool) {
	if v, ok := o.fields[name]; ok {
		return v, true
	}
	return o.Entity.Field(name)
}
