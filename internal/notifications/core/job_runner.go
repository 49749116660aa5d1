package core

import (
	"context"
	"errors"
	"fmt"

	"bloodlink/internal/types"
)

// JobHandler executes one deferred job.
type JobHandler interface {
	Run(ctx context.Context, job types.DeferredJob) error
}

// JobRunner executes deferred jobs against the deferred transports. It is
// shared by the in-process worker pool and the SQS notify-worker.
type JobRunner struct {
	transports map[types.TransportKind]Transport
	metrics    NotificationMetrics
	clock      types.Clock
	logger     types.Logger
}

var _ JobHandler = (*JobRunner)(nil)

// NewJobRunner creates a JobRunner over the given transports. A nil metrics
// sink discards measurements.
func NewJobRunner(transports []Transport, metrics NotificationMetrics, clock types.Clock, logger types.Logger) *JobRunner {
	r := &JobRunner{
		transports: make(map[types.TransportKind]Transport, len(transports)),
		metrics:    metrics,
		clock:      clock,
		logger:     logger,
	}
	for _, t := range transports {
		r.transports[t.Kind()] = t
	}
	if r.metrics == nil {
		r.metrics = NoopMetrics{}
	}
	if r.clock == nil {
		r.clock = types.RealClock{}
	}
	return r
}

// Run sends the job's payload through the transport matching its target.
func (r *JobRunner) Run(ctx context.Context, job types.DeferredJob) (err error) {
	ctx = types.WithEventID(ctx, job.EventID)
	if job.TraceID != "" {
		ctx = types.WithRequestID(ctx, job.TraceID)
	}

	start := r.clock.Now()
	if !job.EnqueuedAt.IsZero() {
		r.metrics.RecordQueueLag(ctx, start.Sub(job.EnqueuedAt))
	}

	tr, ok := r.transports[job.Target.Transport]
	if !ok {
		r.metrics.RecordDelivery(ctx, job.Target.Transport, MetricFailed)
		return types.NewAppError(types.ErrCodeInternalConfiguration,
			fmt.Sprintf("no transport registered for %q", job.Target.Transport), nil)
	}
	payload, err := job.Payload()
	if err != nil {
		r.metrics.RecordDelivery(ctx, job.Target.Transport, MetricFailed)
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "malformed deferred job", err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s transport panicked: %v", job.Target.Transport, rec)
		}
		if err != nil {
			r.metrics.RecordDelivery(ctx, job.Target.Transport, MetricFailed)
			return
		}
		r.metrics.RecordDelivery(ctx, job.Target.Transport, MetricSuccess)
		r.metrics.RecordLatency(ctx, job.Target.Transport, r.clock.Now().Sub(start))
	}()
	return tr.Send(ctx, job.Target, payload)
}

// ShouldRetry reports whether a failed job may succeed on another attempt.
// Application errors decide by their code; render and configuration errors
// never recover; anything else, such as a network error, is retried.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Transient()
	}
	var renderErr *RenderError
	var cfgErr *ConfigurationError
	if errors.As(err, &renderErr) || errors.As(err, &cfgErr) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
