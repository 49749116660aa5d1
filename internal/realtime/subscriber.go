package realtime

import (
	"context"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"bloodlink/internal/notifications/broadcast"
	"bloodlink/internal/types"
)

// Publisher receives frames for a logical channel. *Hub implements it.
type Publisher interface {
	Publish(channel string, frame []byte) int
}

var _ Publisher = (*Hub)(nil)

// forward validates an envelope and hands it to the hub unchanged.
func forward(hub Publisher, logger types.Logger, source string, data []byte) {
	env, err := broadcast.DecodeEnvelope(data)
	if err != nil {
		logger.Warn("discarding malformed broadcast envelope", "source", source, "error", err.Error())
		return
	}
	hub.Publish(env.Channel, data)
}

// RedisSubscriber relays every message published under the channel prefix.
type RedisSubscriber struct {
	client *redis.Client
	prefix string
	hub    Publisher
	logger types.Logger
}

// NewRedisSubscriber creates a subscriber for prefix+"*".
func NewRedisSubscriber(client *redis.Client, prefix string, hub Publisher, logger types.Logger) *RedisSubscriber {
	return &RedisSubscriber{client: client, prefix: prefix, hub: hub, logger: logger}
}

// Run subscribes and relays until ctx is cancelled.
func (s *RedisSubscriber) Run(ctx context.Context) error {
	pubsub := s.client.PSubscribe(ctx, s.prefix+"*")
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return types.NewAppError(types.ErrCodeUpstreamBroker, "redis psubscribe failed", err)
	}
	s.logger.Info("realtime subscribed", "broker", "redis", "pattern", s.prefix+"*")
	return s.consume(ctx, pubsub.Channel())
}

func (s *RedisSubscriber) consume(ctx context.Context, msgs <-chan *redis.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(msg.Channel, s.prefix) {
				continue
			}
			forward(s.hub, s.logger, msg.Channel, []byte(msg.Payload))
		}
	}
}

// NATSSubscriber relays every message published under the subject prefix.
type NATSSubscriber struct {
	conn   *nats.Conn
	prefix string
	hub    Publisher
	logger types.Logger
}

// NewNATSSubscriber creates a subscriber for prefix+">".
func NewNATSSubscriber(conn *nats.Conn, prefix string, hub Publisher, logger types.Logger) *NATSSubscriber {
	return &NATSSubscriber{conn: conn, prefix: prefix, hub: hub, logger: logger}
}

// Run subscribes and relays until ctx is cancelled.
func (s *NATSSubscriber) Run(ctx context.Context) error {
	sub, err := s.conn.Subscribe(s.prefix+">", s.handle)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamBroker, "nats subscribe failed", err)
	}
	s.logger.Info("realtime subscribed", "broker", "nats", "subject", s.prefix+">")
	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil {
		s.logger.Warn("nats unsubscribe failed", "error", err.Error())
	}
	return nil
}

func (s *NATSSubscriber) handle(msg *nats.Msg) {
	forward(s.hub, s.logger, msg.Subject, msg.Data)
}
