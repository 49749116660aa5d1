package types

// Telemetry metric names shared by the CloudWatch and Prometheus sinks.
const (
	// Metric Names
	MetricDeliveryAttempt = "DeliveryAttempt"
	MetricDeliveryLatency = "DeliveryAttemptLatency"
	MetricQueueLag        = "NotificationQueueLag"

	// Dimension Keys
	DimTransport = "Transport"
	DimResult    = "Result"

	// Metric Namespace
	MetricNamespace = "BloodLink"
)
