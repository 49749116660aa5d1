package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"bloodlink/internal/types"
)

// maxSQSDelay is the SQS limit on DelaySeconds.
const maxSQSDelay = 900

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSQueue hands deferred jobs to the notify-worker through the
// notification queue. It serves both the first enqueue from the dispatcher
// and the worker's retry re-publish.
type SQSQueue struct {
	client   SQSSender
	queueURL string
	logger   types.Logger
}

var _ Queue = (*SQSQueue)(nil)

// NewSQSQueue creates an SQSQueue targeting queueURL.
func NewSQSQueue(client SQSSender, queueURL string, logger types.Logger) *SQSQueue {
	return &SQSQueue{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Enqueue sends job for immediate processing.
func (q *SQSQueue) Enqueue(ctx context.Context, job types.DeferredJob) error {
	return q.send(ctx, job, 0)
}

// Requeue increments the job's RetryCount, then sends it with the given
// delay so the next consumer sees the attempt it is on. The delay is
// clamped to the SQS range of 0 to 900 seconds.
func (q *SQSQueue) Requeue(ctx context.Context, job types.DeferredJob, delay time.Duration) error {
	job.RetryCount++
	return q.send(ctx, job, delay)
}

func (q *SQSQueue) send(ctx context.Context, job types.DeferredJob, delay time.Duration) error {
	body, err := json.Marshal(job)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalQueue, "failed to marshal deferred job", err)
	}

	delaySec := int32(delay.Seconds())
	if delaySec > maxSQSDelay {
		delaySec = maxSQSDelay
	}
	if delaySec < 0 {
		delaySec = 0
	}

	input := &sqs.SendMessageInput{
		QueueUrl:     aws.String(q.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: delaySec,
	}
	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeInternalQueue, fmt.Sprintf("failed to send job to %s", q.queueURL), err)
	}

	q.logger.Info("deferred job enqueued",
		"job_id", job.JobID,
		"event_id", job.EventID,
		"transport", string(job.Target.Transport),
		"retry_count", job.RetryCount,
		"delay_seconds", delaySec,
		"trace_id", job.TraceID,
	)
	return nil
}
