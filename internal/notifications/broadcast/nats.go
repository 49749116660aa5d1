package broadcast

import (
	"context"
	"fmt"
	"time"

	natspkg "github.com/nats-io/nats.go"

	"bloodlink/internal/notifications/core"
	"bloodlink/internal/types"
)

// NATSConn is the subset of *nats.Conn used by NATSPublisher.
type NATSConn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// NATSPublisher publishes envelopes on NATS core subjects. NATS subjects use
// dots as token separators, so logical channels like delivery.42 map onto
// subject hierarchies the gateway can wildcard.
type NATSPublisher struct {
	conn    NATSConn
	prefix  string
	timeout time.Duration
	logger  types.Logger
}

var _ core.Transport = (*NATSPublisher)(nil)

// NewNATSPublisher creates a NATSPublisher.
func NewNATSPublisher(conn NATSConn, prefix string, timeout time.Duration, logger types.Logger) *NATSPublisher {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &NATSPublisher{conn: conn, prefix: prefix, timeout: timeout, logger: logger}
}

// ConnectNATS dials the broker with reconnects enabled.
func ConnectNATS(url, name string, logger types.Logger) (*natspkg.Conn, error) {
	nc, err := natspkg.Connect(url,
		natspkg.Name(name),
		natspkg.MaxReconnects(-1),
		natspkg.DisconnectErrHandler(func(_ *natspkg.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err.Error())
			}
		}),
		natspkg.ReconnectHandler(func(nc *natspkg.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("broadcast: connect nats: %w", err)
	}
	return nc, nil
}

// Kind returns types.TransportBroadcast.
func (p *NATSPublisher) Kind() types.TransportKind {
	return types.TransportBroadcast
}

// Send publishes payload and flushes so a broker failure surfaces within the
// timeout instead of being buffered.
func (p *NATSPublisher) Send(ctx context.Context, target types.ChannelTarget, payload types.RenderedPayload) error {
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
	if err := p.conn.Publish(subject, data); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamBroker, fmt.Sprintf("nats publish to %s failed", subject), err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamBroker, fmt.Sprintf("nats flush after %s failed", subject), err)
	}

	p.logger.Info("broadcast published", "channel", subject, "event", b.Event)
	return nil
}
