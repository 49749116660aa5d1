package core

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"bloodlink/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics implements NotificationMetrics by emitting metrics to
// AWS CloudWatch. The notify-worker uses it.
//
// Metrics emitted:
//   - DeliveryAttempt: Dims {Transport, Result} on every outcome
//   - DeliveryAttemptLatency: Dims {Transport} for successful sends
//   - NotificationQueueLag: no dims, enqueue to processing start
//
// Metric failures are logged and never returned.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

var _ NotificationMetrics = (*CloudWatchMetrics)(nil)

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to namespace.
// An empty namespace uses types.MetricNamespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordDelivery emits a DeliveryAttempt count, for example
//
//	Metric: DeliveryAttempt, Dims: {Transport: "mail", Result: "success"}
func (m *CloudWatchMetrics) RecordDelivery(ctx context.Context, transport types.TransportKind, result MetricResult) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricDeliveryAttempt),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimTransport), Value: aws.String(string(transport))},
			{Name: aws.String(types.DimResult), Value: aws.String(string(result))},
		},
	}, "transport", string(transport), "result", string(result))
}

// RecordLatency emits the send duration in milliseconds.
func (m *CloudWatchMetrics) RecordLatency(ctx context.Context, transport types.TransportKind, duration time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricDeliveryLatency),
		Value:      aws.Float64(float64(duration.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimTransport), Value: aws.String(string(transport))},
		},
	}, "transport", string(transport), "duration_ms", duration.Milliseconds())
}

// RecordQueueLag emits the time between enqueue and processing start,
// including SQS visibility delays and backlog.
func (m *CloudWatchMetrics) RecordQueueLag(ctx context.Context, lag time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricQueueLag),
		Value:      aws.Float64(float64(lag.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	}, "lag_ms", lag.Milliseconds())
}

func (m *CloudWatchMetrics) put(ctx context.Context, datum cwtypes.MetricDatum, logArgs ...any) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record metric",
			append([]any{"metric", aws.ToString(datum.MetricName), "error", err.Error()}, logArgs...)...,
		)
	}
}
