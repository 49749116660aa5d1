// Package ingest turns change notices published on Kafka into dispatches.
// Each message carries one JSON-encoded types.ChangeNotice; the consumer
// emits it and commits the offset once the notice has been handled or
// judged undeliverable.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"bloodlink/internal/config"
	"bloodlink/internal/types"
)

const (
	defaultMaxAttempts = 3
	defaultBackoff     = time.Second
	eventIDHeader      = "event_id"
)

// noticeNamespace seeds event ids derived from a message's log position.
var noticeNamespace = uuid.MustParse("b8d3e6a1-5c2f-4e97-8a14-3f6d9c0b7e52")

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ MessageReader = (*kafka.Reader)(nil)

// Emitter forms and dispatches the event for a change notice.
type Emitter interface {
	Emit(ctx context.Context, notice types.ChangeNotice) ([]types.DeliveryOutcome, error)
}

// NewReader builds a consumer-group reader for cfg.
func NewReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// Consumer reads change notices and hands them to an Emitter.
type Consumer struct {
	reader      MessageReader
	emitter     Emitter
	validate    *validator.Validate
	logger      types.Logger
	maxAttempts int
	backoff     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithRetry sets how many times a transient Emit failure is attempted and
// the wait between attempts.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(c *Consumer) {
		c.maxAttempts = maxAttempts
		c.backoff = backoff
	}
}

// WithSleepFunc replaces the wait between attempts.
func WithSleepFunc(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Consumer) {
		c.sleep = fn
	}
}

// NewConsumer creates a Consumer. It takes ownership of reader and closes it
// when Run returns.
func NewConsumer(reader MessageReader, emitter Emitter, logger types.Logger, opts ...Option) *Consumer {
	c := &Consumer{
		reader:      reader,
		emitter:     emitter,
		validate:    validator.New(),
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	return c
}

// Run consumes until ctx is cancelled. Read failures are logged and retried
// after the backoff; Run only returns an error when closing the reader
// fails.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Error("failed to close kafka reader", "error", err.Error())
		}
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("kafka fetch failed", "error", err.Error())
			if c.sleep(ctx, c.backoff) != nil {
				return nil
			}
			continue
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("kafka commit failed",
				"error", err.Error(),
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
		}
	}
}

// handle never fails: every outcome ends with the offset committed.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	log := c.logger.With("topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)

	notice, err := c.decode(msg)
	if err != nil {
		log.Warn("discarding malformed change notice", "error", err.Error())
		return
	}
	log = log.With("event_id", notice.EventID, "event_kind", string(notice.Kind), "subject_id", notice.SubjectID)
	ctx = types.WithRequestID(ctx, notice.EventID)

	for attempt := 1; ; attempt++ {
		outcomes, err := c.emitter.Emit(ctx, notice)
		if err == nil {
			logOutcomes(log, outcomes)
			return
		}
		if !retryable(err) || attempt >= c.maxAttempts {
			log.Error("change notice not dispatched", "error", err.Error(), "attempts", attempt)
			return
		}
		log.Warn("emit failed, retrying", "error", err.Error(), "attempt", attempt)
		if c.sleep(ctx, c.backoff*time.Duration(attempt)) != nil {
			return
		}
	}
}

// decode parses the message value. Numbers in attributes stay json.Number so
// integer ids keep their exact value. A missing event id falls back to the
// event_id header, then to an id derived from topic, partition and offset so
// a redelivered message keeps the id of its first delivery.
func (c *Consumer) decode(msg kafka.Message) (types.ChangeNotice, error) {
	var notice types.ChangeNotice
	dec := json.NewDecoder(bytes.NewReader(msg.Value))
	dec.UseNumber()
	if err := dec.Decode(&notice); err != nil {
		return notice, types.NewAppError(types.ErrCodeValidationInvalidJSON, "change notice is not valid JSON", err)
	}
	if notice.EventID == "" {
		notice.EventID = headerValue(msg.Headers, eventIDHeader)
	}
	if notice.EventID == "" {
		notice.EventID = derivedEventID(msg)
	}
	if err := c.validate.Struct(notice); err != nil {
		return notice, types.NewAppError(types.ErrCodeValidationInvalidEvent, fmt.Sprintf("invalid change notice: %v", err), err)
	}
	return notice, nil
}

func logOutcomes(log types.Logger, outcomes []types.DeliveryOutcome) {
	var failed int
	for _, o := range outcomes {
		if o.Status == types.DeliveryFailed {
			failed++
			log.Warn("delivery failed",
				"transport", string(o.Transport),
				"reason", o.Reason(),
			)
		}
	}
	log.Info("change notice dispatched", "targets", len(outcomes), "failed", failed)
}

// retryable reports whether an Emit failure may succeed on another attempt.
// Configuration, validation and not-found errors never will.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Transient()
	}
	return false
}

func derivedEventID(msg kafka.Message) string {
	pos := fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	return uuid.NewSHA1(noticeNamespace, []byte(pos)).String()
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
