package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"bloodlink/internal/types"
)

// latencyBuckets spans 1ms to 30s.
var latencyBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// PrometheusMetrics implements NotificationMetrics for the long-running
// services, which expose /metrics.
type PrometheusMetrics struct {
	deliveries *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	queueLag   prometheus.Histogram
}

var _ NotificationMetrics = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics registers the notification metrics with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bloodlink_notification_deliveries_total",
				Help: "Total number of notification target outcomes, by transport and result.",
			},
			[]string{"transport", "result"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bloodlink_notification_send_duration_seconds",
				Help:    "Histogram of successful transport send duration in seconds, by transport.",
				Buckets: latencyBuckets,
			},
			[]string{"transport"},
		),
		queueLag: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bloodlink_notification_queue_lag_seconds",
				Help:    "Histogram of time deferred jobs spent queued before processing.",
				Buckets: latencyBuckets,
			},
		),
	}
}

func (m *PrometheusMetrics) RecordDelivery(_ context.Context, transport types.TransportKind, result MetricResult) {
	m.deliveries.WithLabelValues(string(transport), string(result)).Inc()
}

func (m *PrometheusMetrics) RecordLatency(_ context.Context, transport types.TransportKind, duration time.Duration) {
	m.latency.WithLabelValues(string(transport)).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordQueueLag(_ context.Context, lag time.Duration) {
	m.queueLag.Observe(lag.Seconds())
}
