package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"bloodlink/internal/config"
	"bloodlink/internal/core"
	"bloodlink/internal/db"
	"bloodlink/internal/external"
	"bloodlink/internal/notifications/broadcast"
	notifcore "bloodlink/internal/notifications/core"
	"bloodlink/internal/notifications/email"
	"bloodlink/internal/notifications/record"
	"bloodlink/internal/types"
)

// NewMailSender returns the Sender selected by EMAIL_PROVIDER.
func NewMailSender(cfg config.EmailConfig, logger types.Logger) (email.Sender, error) {
	switch cfg.Provider {
	case "sendgrid":
		return external.NewSendGridClient(&http.Client{Timeout: cfg.Timeout}, external.SendGridClientConfig{
			APIKey: cfg.SendGridAPIKey.Unmask(),
			Logger: logger,
		}), nil
	case "smtp":
		return email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword.Unmask(),
		}, logger), nil
	case "stub":
		return email.NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}

// DeferredTransports builds the mail and record transports run by the
// deferred workers. Transports switched off in cfg.Feature are omitted.
func DeferredTransports(cfg *config.Config, conn db.DBTX, clock types.Clock, logger types.Logger) ([]notifcore.Transport, error) {
	var out []notifcore.Transport
	if cfg.Feature.EnableEmail {
		sender, err := NewMailSender(cfg.Email, logger)
		if err != nil {
			return nil, err
		}
		layout, err := email.NewLayout(cfg.Email.FromName)
		if err != nil {
			return nil, fmt.Errorf("building email layout: %w", err)
		}
		out = append(out, email.NewTransport(email.TransportConfig{
			Sender: sender,
			Layout: layout,
			From:   types.SenderIdentity{Name: cfg.Email.FromName, Address: cfg.Email.FromAddress},
			Logger: logger,
		}))
	}
	if cfg.Feature.EnableRecords {
		out = append(out, record.NewTransport(db.NewNotificationRepository(conn), clock, logger))
	}
	return out, nil
}

// DisabledTransports lists the transports switched off in cfg.
func DisabledTransports(cfg config.FeatureConfig) []types.TransportKind {
	var out []types.TransportKind
	if !cfg.EnableBroadcast {
		out = append(out, types.TransportBroadcast)
	}
	if !cfg.EnableEmail {
		out = append(out, types.TransportMail)
	}
	if !cfg.EnableRecords {
		out = append(out, types.TransportDatabase)
	}
	return out
}

// Broker is a connected broadcast broker: a publishing transport plus the
// probe and cleanup that go with its connection.
type Broker struct {
	Name      string
	Transport notifcore.Transport
	Probe     core.HealthProbe
	Close     func()
}

// ConnectBroker connects to the broker named by cfg.Broker.
func ConnectBroker(ctx context.Context, cfg config.BroadcastConfig, service string, logger types.Logger) (*Broker, error) {
	switch cfg.Broker {
	case "redis":
		client := broadcast.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword.Unmask())
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		return &Broker{
			Name:      "redis",
			Transport: broadcast.NewRedisPublisher(client, cfg.ChannelPrefix, cfg.Timeout, logger),
			Probe: core.ProbeFunc{ProbeName: "redis", Fn: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			}},
			Close: func() { _ = client.Close() },
		}, nil
	case "nats":
		conn, err := broadcast.ConnectNATS(cfg.NATSURL, service, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to nats at %s: %w", cfg.NATSURL, err)
		}
		return &Broker{
			Name:      "nats",
			Transport: broadcast.NewNATSPublisher(conn, cfg.ChannelPrefix, cfg.Timeout, logger),
			Probe: core.ProbeFunc{ProbeName: "nats", Fn: func(ctx context.Context) error {
				return conn.FlushWithContext(ctx)
			}},
			Close: conn.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown broadcast broker %q", cfg.Broker)
	}
}
