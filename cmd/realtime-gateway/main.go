// Package main is the entrypoint for the realtime gateway.
//
// The gateway subscribes to every broadcast channel on the configured broker
// and relays envelopes to WebSocket clients connected at
// /ws?channels=delivery.42,user.11 with a bearer token that may join those
// channels. It also serves /health and /metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"bloodlink/internal/auth"
	"bloodlink/internal/bootstrap"
	"bloodlink/internal/config"
	"bloodlink/internal/notifications/broadcast"
	"bloodlink/internal/realtime"
	"bloodlink/internal/types"
)

const shutdownTimeout = 10 * time.Second

type subscriber interface {
	Run(ctx context.Context) error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := bootstrap.Adapt(bootstrap.NewLogger(os.Stdout, cfg.LogLevel)).
		With("service", "realtime-gateway", "version", cfg.Build.Version)

	authn, err := auth.NewJWTAuthenticator(cfg.Auth)
	if err != nil {
		return fmt.Errorf("creating authenticator: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	hub := realtime.NewHub(logger, reg)
	defer hub.Close()

	sub, closeBroker, err := newSubscriber(ctx, cfg.Broadcast, hub, logger)
	if err != nil {
		return err
	}
	defer closeBroker()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.GatewayPort,
		Handler:           newRouter(hub, authn, reg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sub.Run(gctx) })
	g.Go(func() error {
		logger.Info("realtime gateway listening", "addr", httpServer.Addr, "broker", cfg.Broadcast.Broker)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newRouter(hub *realtime.Hub, authn types.Authenticator, gatherer prometheus.Gatherer, logger types.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Handle("/ws", realtime.NewGateway(hub, authn, logger))
	return r
}

func newSubscriber(ctx context.Context, cfg config.BroadcastConfig, hub *realtime.Hub, logger types.Logger) (subscriber, func(), error) {
	switch cfg.Broker {
	case "redis":
		client := broadcast.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword.Unmask())
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		return realtime.NewRedisSubscriber(client, cfg.ChannelPrefix, hub, logger), func() { _ = client.Close() }, nil
	case "nats":
		conn, err := broadcast.ConnectNATS(cfg.NATSURL, "realtime-gateway", logger)
		if err != nil {
			return nil, nil, err
		}
		return realtime.NewNATSSubscriber(conn, cfg.ChannelPrefix, hub, logger), conn.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown broadcast broker %q", cfg.Broker)
	}
}
