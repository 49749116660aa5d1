package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bloodlink/internal/notifications/core"
	"bloodlink/internal/types"
)

// RedisPublishClient is the subset of *redis.Client used by RedisPublisher.
type RedisPublishClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher publishes envelopes with Redis PUBLISH. Delivery is
// fire-and-forget: a message published while no gateway is subscribed is
// lost.
type RedisPublisher struct {
	client  RedisPublishClient
	prefix  string
	timeout time.Duration
	logger  types.Logger
}

var _ core.Transport = (*RedisPublisher)(nil)

// NewRedisPublisher creates a RedisPublisher. Broker channels are prefix +
// logical channel. A non-positive timeout uses DefaultPublishTimeout.
func NewRedisPublisher(client RedisPublishClient, prefix string, timeout time.Duration, logger types.Logger) *RedisPublisher {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &RedisPublisher{client: client, prefix: prefix, timeout: timeout, logger: logger}
}

// NewRedisClient builds the go-redis client shared by the publisher and the
// gateway subscriber.
func NewRedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}

// Kind returns types.TransportBroadcast.
func (p *RedisPublisher) Kind() types.TransportKind {
	return types.TransportBroadcast
}

// Send publishes payload to its channel.
func (p *RedisPublisher) Send(ctx context.Context, target types.ChannelTarget, payload types.RenderedPayload) error {
	b, err := payloadOf(payload)
	if err != nil {
		return err
	}
	data, err := NewEnvelope(b).Encode()
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode broadcast envelope", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	subject := p.prefix + b.Channel
	receivers, err := p.client.Publish(ctx, subject, data).Result()
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamBroker, fmt.Sprintf("redis publish to %s failed", subject), err)
	}

	p.logger.Info("broadcast published",
		"channel", subject,
		"event", b.Event,
		"receivers", receivers,
	)
	return nil
}
