package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisSubscriber_ForwardsEnvelopes(t *testing.T) {
	hub := newRecordingHub()
	logger := &testLogger{}
	s := NewRedisSubscriber(nil, "bloodlink.", hub, logger)

	msgs := make(chan *redis.Message, 4)
	msgs <- &redis.Message{Channel: "bloodlink.delivery.42", Payload: string(envelope("delivery.42", "DeliveryStatusUpdated"))}
	msgs <- &redis.Message{Channel: "bloodlink.user.11", Payload: "not json"}
	msgs <- &redis.Message{Channel: "other.user.11", Payload: string(envelope("user.11", "MessageReceived"))}
	close(msgs)

	require.NoError(t, s.consume(context.Background(), msgs))

	require.Len(t, hub.frames["delivery.42"], 1)
	assert.JSONEq(t, string(envelope("delivery.42", "DeliveryStatusUpdated")), string(hub.frames["delivery.42"][0]))
	assert.Empty(t, hub.frames["user.11"])
	assert.Equal(t, []string{"discarding malformed broadcast envelope"}, logger.warnings())
}

func TestRedisSubscriber_StopsOnCancel(t *testing.T) {
	s := NewRedisSubscriber(nil, "bloodlink.", newRecordingHub(), &testLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- s.consume(ctx, make(chan *redis.Message)) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consume did not return after cancel")
	}
}

func TestNATSSubscriber_Handle(t *testing.T) {
	hub := newRecordingHub()
	logger := &testLogger{}
	s := NewNATSSubscriber(nil, "bloodlink.", hub, logger)

	s.handle(&nats.Msg{Subject: "bloodlink.organization.3", Data: envelope("organization.3", "ComplianceReviewed")})
	s.handle(&nats.Msg{Subject: "bloodlink.organization.3", Data: []byte(`{"channel":"","event":"x"}`)})

	assert.Len(t, hub.frames["organization.3"], 1)
	assert.Len(t, logger.warnings(), 1)
}
