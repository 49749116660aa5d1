package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bloodlink/internal/types"
)

// DefaultImmediateTimeout bounds an inline send when none is configured.
const DefaultImmediateTimeout = 2 * time.Second

// DispatcherConfig wires a Dispatcher. Table is required. Kinds defaults to
// types.KnownEventKinds and names the event kinds the table must serve.
type DispatcherConfig struct {
	Table       RoutingTable
	Kinds       []types.EventKind
	Preferences types.PreferenceStore
	PublicURL   string

	// Immediate transports are sent inline; deferred transports go to Queue.
	Immediate []Transport
	Queue     Queue

	// Disabled transports produce Skipped outcomes. They need no transport
	// or queue.
	Disabled []types.TransportKind

	ImmediateTimeout time.Duration
	Metrics          NotificationMetrics
	Logger           types.Logger
	Clock            types.Clock
}

// Dispatcher fans one domain event out to its targets. It holds no mutable
// state, so Dispatch is safe for concurrent use.
type Dispatcher struct {
	table     RoutingTable
	resolver  *Resolver
	renderer  *Renderer
	immediate map[types.TransportKind]Transport
	queue     Queue
	disabled  map[types.TransportKind]bool
	timeout   time.Duration
	metrics   NotificationMetrics
	logger    types.Logger
	clock     types.Clock
}

// NewDispatcher validates the routing table against the configured kinds and
// transports and returns a ready Dispatcher. Any gap is a
// *ConfigurationError, so a misconfigured process fails before it takes
// traffic.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Logger == nil {
		return nil, errors.New("dispatcher: logger is required")
	}
	kinds := cfg.Kinds
	if kinds == nil {
		kinds = types.KnownEventKinds
	}
	if err := cfg.Table.Validate(kinds); err != nil {
		return nil, err
	}
	renderer, err := NewRenderer(cfg.Table, cfg.PublicURL)
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{
		table:     cfg.Table,
		resolver:  NewResolver(cfg.Preferences, cfg.Logger),
		renderer:  renderer,
		immediate: make(map[types.TransportKind]Transport, len(cfg.Immediate)),
		queue:     cfg.Queue,
		disabled:  make(map[types.TransportKind]bool, len(cfg.Disabled)),
		timeout:   cfg.ImmediateTimeout,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		clock:     cfg.Clock,
	}
	for _, t := range cfg.Immediate {
		d.immediate[t.Kind()] = t
	}
	for _, k := range cfg.Disabled {
		d.disabled[k] = true
	}
	if d.timeout <= 0 {
		d.timeout = DefaultImmediateTimeout
	}
	if d.metrics == nil {
		d.metrics = NoopMetrics{}
	}
	if d.clock == nil {
		d.clock = types.RealClock{}
	}

	for kind, rule := range d.table {
		for _, tr := range rule.Transports {
			if d.disabled[tr] {
				continue
			}
			switch tr.Mode() {
			case types.ModeImmediate:
				if _, ok := d.immediate[tr]; !ok {
					return nil, &ConfigurationError{Kind: kind, Transport: tr, Reason: "no immediate transport registered"}
				}
			case types.ModeDeferred:
				if d.queue == nil {
					return nil, &ConfigurationError{Kind: kind, Transport: tr, Reason: "no deferred queue configured"}
				}
			}
		}
	}
	return d, nil
}

// Rule exposes the routing rule for kind.
func (d *Dispatcher) Rule(kind types.EventKind) (RoutingRule, bool) {
	return d.table.Rule(kind)
}

// Dispatch resolves, renders and sends event, returning one outcome per
// target in resolver order. Only an unroutable kind is an error; failures of
// individual targets are reported in their outcomes and never stop the
// remaining targets.
func (d *Dispatcher) Dispatch(ctx context.Context, event types.DomainEvent) ([]types.DeliveryOutcome, error) {
	rule, ok := d.table.Rule(event.Kind)
	if !ok {
		err := &ConfigurationError{Kind: event.Kind, Reason: "no routing rule registered"}
		d.logger.Error("dispatch rejected", "event_id", event.ID, "event_kind", string(event.Kind), "error", err.Error())
		return nil, err
	}

	ctx = types.WithEventID(ctx, event.ID)
	log := d.logger.With("event_id", event.ID, "event_kind", string(event.Kind), "subject_id", event.SubjectID)

	targets := d.resolver.Resolve(ctx, event, rule)
	if len(targets) == 0 {
		log.Info("no eligible recipients")
		return nil, nil
	}

	outcomes := make([]types.DeliveryOutcome, 0, len(targets))
	for _, target := range targets {
		start := d.clock.Now()
		outcome := d.deliver(ctx, event, rule, target)
		outcomes = append(outcomes, outcome)

		d.metrics.RecordDelivery(ctx, target.Transport, ResultFor(outcome.Status))
		if outcome.Status == types.DeliverySent {
			d.metrics.RecordLatency(ctx, target.Transport, d.clock.Now().Sub(start))
		}

		args := []any{
			"transport", string(outcome.Transport),
			"address", types.RedactAddress(outcome.Transport, outcome.Address),
			"user_id", target.Recipient.UserID,
			"status", string(outcome.Status),
		}
		if outcome.Status == types.DeliveryFailed {
			log.Warn("notification target failed", append(args, "error", outcome.Reason())...)
		} else {
			log.Info("notification target dispatched", args...)
		}
	}
	return outcomes, nil
}

func (d *Dispatcher) deliver(ctx context.Context, event types.DomainEvent, rule RoutingRule, target types.ChannelTarget) types.DeliveryOutcome {
	outcome := types.DeliveryOutcome{Transport: target.Transport, Address: target.Address}

	if d.disabled[target.Transport] {
		outcome.Status = types.DeliverySkipped
		return outcome
	}

	payload, err := d.renderer.Render(event, target, rule)
	if err != nil {
		outcome.Status = types.DeliveryFailed
		outcome.Err = err
		return outcome
	}

	switch target.Transport.Mode() {
	case types.ModeImmediate:
		err = d.sendNow(ctx, target, payload)
		outcome.Status = types.DeliverySent
	default:
		err = d.enqueue(ctx, event, target, payload)
		outcome.Status = types.DeliveryQueued
	}
	if err != nil {
		outcome.Status = types.DeliveryFailed
		outcome.Err = err
	}
	return outcome
}

// sendNow performs an inline send bounded by the immediate timeout. A
// panicking transport is reported as a failure.
func (d *Dispatcher) sendNow(ctx context.Context, target types.ChannelTarget, payload types.RenderedPayload) (err error) {
	tr, ok := d.immediate[target.Transport]
	if !ok {
		return &ConfigurationError{Transport: target.Transport, Reason: "no immediate transport registered"}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s transport panicked: %v", target.Transport, r)
		}
	}()
	return tr.Send(sendCtx, target, payload)
}

func (d *Dispatcher) enqueue(ctx context.Context, event types.DomainEvent, target types.ChannelTarget, payload types.RenderedPayload) (err error) {
	job := types.DeferredJob{
		JobID:      uuid.NewString(),
		EventID:    event.ID,
		EventKind:  event.Kind,
		Target:     target,
		EnqueuedAt: d.clock.Now(),
		TraceID:    types.GetRequestID(ctx),
	}
	switch p := payload.(type) {
	case *types.EmailPayload:
		job.Email = p
	case *types.RecordPayload:
		job.Record = p
	default:
		return fmt.Errorf("payload %T cannot be deferred", payload)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue panicked: %v", r)
		}
	}()
	return d.queue.Enqueue(ctx, job)
}
