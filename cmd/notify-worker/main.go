// Package main is the entrypoint for the notify-worker Lambda function.
//
// The worker consumes deferred jobs (mail and in-app records) from the
// notification SQS queue when the dispatcher runs with DEFERRED_MODE=sqs.
// Each job is run through the same JobRunner the in-process pool uses.
//
// Per message:
//  1. Unmarshal the DeferredJob. A malformed body is logged and acknowledged.
//  2. Run the job against its transport.
//  3. On a retryable failure below the transport's attempt limit, re-publish
//     the job with exponential delay and acknowledge the original.
//  4. On a permanent failure, or once attempts are exhausted, log and
//     acknowledge.
//  5. If the re-publish itself fails, report the message in
//     batchItemFailures so SQS redelivers it.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"bloodlink/internal/bootstrap"
	"bloodlink/internal/config"
	"bloodlink/internal/db"
	notifcore "bloodlink/internal/notifications/core"
	"bloodlink/internal/types"
)

// Requeuer re-publishes a job for a later attempt. *core.SQSQueue
// implements it.
type Requeuer interface {
	Requeue(ctx context.Context, job types.DeferredJob, delay time.Duration) error
}

// Handler holds the dependencies of the Lambda handler.
type Handler struct {
	runner   notifcore.JobHandler
	requeuer Requeuer
	logger   types.Logger
}

// Handle processes one SQS batch. Only messages whose retry could not be
// scheduled are reported as failures.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.Error("failed to process SQS message",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var job types.DeferredJob
	if err := json.Unmarshal([]byte(record.Body), &job); err != nil {
		h.logger.Error("discarding malformed deferred job",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		return nil
	}

	logger := h.logger.With(
		"job_id", job.JobID,
		"event_id", job.EventID,
		"event_kind", string(job.EventKind),
		"transport", string(job.Target.Transport),
		"retry_count", job.RetryCount,
		"trace_id", job.TraceID,
	)

	err := h.runner.Run(ctx, job)
	if err == nil {
		logger.Info("deferred job delivered")
		return nil
	}

	policy := notifcore.PolicyFor(job.Target.Transport)
	if !notifcore.ShouldRetry(err) || job.RetryCount+1 >= policy.MaxAttempts {
		logger.Error("deferred job failed permanently", "error", err.Error())
		return nil
	}

	delay := notifcore.CalculateNextRetry(policy, job.RetryCount)
	if rqErr := h.requeuer.Requeue(ctx, job, delay); rqErr != nil {
		return fmt.Errorf("requeue after %v: %w", err, rqErr)
	}
	logger.Warn("deferred job failed, retry scheduled",
		"error", err.Error(),
		"delay_seconds", int(delay.Seconds()),
	)
	return nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: loading configuration: %v\n", err)
		os.Exit(1)
	}
	logger := bootstrap.Adapt(bootstrap.NewLogger(os.Stdout, cfg.LogLevel)).
		With("service", "notify-worker", "version", cfg.Build.Version)

	ctx := context.Background()

	awsCfg, err := bootstrap.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err.Error())
		os.Exit(1)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err.Error())
		os.Exit(1)
	}

	clock := types.RealClock{}
	transports, err := bootstrap.DeferredTransports(cfg, pool, clock, logger)
	if err != nil {
		logger.Error("failed to build transports", "error", err.Error())
		os.Exit(1)
	}
	metrics := notifcore.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger)

	h := &Handler{
		runner:   notifcore.NewJobRunner(transports, metrics, clock, logger),
		requeuer: notifcore.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.AWS.NotificationQueue, logger),
		logger:   logger,
	}
	lambda.Start(h.Handle)
}
