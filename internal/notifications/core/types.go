// Package core provides the notification dispatch pipeline shared by every
// BloodLink service: snapshotting the changed entity, resolving recipients
// against their preferences, rendering a payload per transport and fanning
// out to the transports. It also owns the deferred work path (SQS queue,
// in-process worker pool, job runner), retry policy and delivery metrics.
package core

import (
	"context"
	"time"

	"bloodlink/internal/types"
)

// Transport delivers a rendered payload to one target. Implementations must
// return errors rather than panic and must respect ctx cancellation.
type Transport interface {
	Kind() types.TransportKind
	Send(ctx context.Context, target types.ChannelTarget, payload types.RenderedPayload) error
}

// Queue accepts deferred work. Enqueue returns once the job is accepted, not
// once it is delivered. Jobs enqueued by one caller are accepted in order.
type Queue interface {
	Enqueue(ctx context.Context, job types.DeferredJob) error
}

// MetricResult categorizes a delivery outcome for metrics reporting.
type MetricResult string

const (
	MetricSuccess MetricResult = "success"
	MetricQueued  MetricResult = "queued"
	MetricFailed  MetricResult = "failed"
	MetricSkipped MetricResult = "skipped"
)

// ResultFor maps a delivery status onto its metric result.
func ResultFor(s types.DeliveryStatus) MetricResult {
	switch s {
	case types.DeliverySent:
		return MetricSuccess
	case types.DeliveryQueued:
		return MetricQueued
	case types.DeliverySkipped:
		return MetricSkipped
	default:
		return MetricFailed
	}
}

// NotificationMetrics abstracts the telemetry sink for delivery outcomes.
type NotificationMetrics interface {
	RecordDelivery(ctx context.Context, transport types.TransportKind, result MetricResult)
	RecordLatency(ctx context.Context, transport types.TransportKind, duration time.Duration)
	RecordQueueLag(ctx context.Context, lag time.Duration)
}

// NoopMetrics discards everything. It is used when no sink is configured.
type NoopMetrics struct{}

var _ NotificationMetrics = NoopMetrics{}

func (NoopMetrics) RecordDelivery(context.Context, types.TransportKind, MetricResult) {}
func (NoopMetrics) RecordLatency(context.Context, types.TransportKind, time.Duration) {}
func (NoopMetrics) RecordQueueLag(context.Context, time.Duration)                     {}

// RetryPolicy defines the exponential backoff parameters for deferred
// delivery retries.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// Standard retry policies for each deferred transport.
var (
	MailRetryPolicy = RetryPolicy{
		MaxAttempts:   3,
		BaseDelay:     1 * time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
	}
	RecordRetryPolicy = RetryPolicy{
		MaxAttempts:   5,
		BaseDelay:     500 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 3.0,
	}
)

// PolicyFor returns the retry policy of a deferred transport.
func PolicyFor(t types.TransportKind) RetryPolicy {
	if t == types.TransportDatabase {
		return RecordRetryPolicy
	}
	return MailRetryPolicy
}

// CalculateNextRetry computes the delay before the next retry attempt using
// exponential backoff: delay = min(BaseDelay * BackoffFactor^attempt, MaxDelay).
func CalculateNextRetry(policy RetryPolicy, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(policy.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= policy.BackoffFactor
	}

	d := time.Duration(delay)
	if d > policy.MaxDelay {
		d = policy.MaxDelay
	}
	if d < 0 {
		// Guard against overflow
		d = policy.MaxDelay
	}

	return d
}
