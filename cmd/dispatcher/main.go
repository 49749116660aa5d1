// Package main is the entrypoint for the notification dispatcher.
//
// The dispatcher accepts change notices over HTTP (POST /v1/events) and,
// when KAFKA_BROKERS is set, from the change topic. Each notice is resolved
// to a domain event and fanned out: broadcasts are published inline to the
// configured broker, and mail and in-app records are handed to the deferred
// queue. With DEFERRED_MODE=local that queue is an in-process worker pool;
// with DEFERRED_MODE=sqs it is the notification SQS queue drained by the
// notify-worker Lambda.
//
// Shutdown on SIGINT/SIGTERM stops intake first, then drains the worker pool.
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

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"bloodlink/internal/auth"
	"bloodlink/internal/bootstrap"
	"bloodlink/internal/config"
	"bloodlink/internal/core"
	"bloodlink/internal/db"
	"bloodlink/internal/ingest"
	notifcore "bloodlink/internal/notifications/core"
	"bloodlink/internal/types"
)

const shutdownTimeout = 10 * time.Second

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
		With("service", cfg.Service, "version", cfg.Build.Version)
	logger.Info("dispatcher starting",
		"environment", cfg.Environment,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"deferred_mode", cfg.Dispatch.DeferredMode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	clock := types.RealClock{}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := notifcore.NewPrometheusMetrics(reg)

	probes := []core.HealthProbe{core.ProbeFunc{ProbeName: "database", Fn: pool.Ping}}

	var immediate []notifcore.Transport
	if cfg.Feature.EnableBroadcast {
		broker, err := bootstrap.ConnectBroker(ctx, cfg.Broadcast, cfg.Service, logger)
		if err != nil {
			return err
		}
		defer broker.Close()
		immediate = append(immediate, broker.Transport)
		probes = append(probes, broker.Probe)
		logger.Info("broadcast broker connected", "broker", broker.Name)
	}

	queue, drain, err := newDeferredQueue(ctx, cfg, pool, metrics, clock, logger)
	if err != nil {
		return err
	}
	defer drain()

	dispatcher, err := notifcore.NewDispatcher(notifcore.DispatcherConfig{
		Table:            notifcore.DefaultRoutingTable(),
		Preferences:      db.NewPreferenceRepository(pool),
		PublicURL:        cfg.Server.PublicURL,
		Immediate:        immediate,
		Queue:            queue,
		Disabled:         bootstrap.DisabledTransports(cfg.Feature),
		ImmediateTimeout: cfg.Broadcast.Timeout,
		Metrics:          metrics,
		Logger:           logger,
		Clock:            clock,
	})
	if err != nil {
		return fmt.Errorf("building dispatcher: %w", err)
	}
	emitter := notifcore.NewEmitter(db.NewEntityRepository(pool), dispatcher, clock, logger)

	authn, err := auth.NewJWTAuthenticator(cfg.Auth)
	if err != nil {
		return fmt.Errorf("creating authenticator: %w", err)
	}

	srv, err := core.NewServer(logger, emitter,
		core.WithAuthenticator(authn),
		core.WithNotificationStore(db.NewNotificationRepository(pool)),
		core.WithHealthProbes(probes...),
		core.WithPrometheus(reg, reg),
		core.WithClock(clock),
	)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveHTTP(gctx, ":"+cfg.Server.Port, srv.Handler(), logger)
	})
	if len(cfg.Kafka.Brokers) > 0 {
		consumer := ingest.NewConsumer(ingest.NewReader(cfg.Kafka), emitter, logger,
			ingest.WithRetry(cfg.Dispatch.MaxAttempts, time.Second))
		g.Go(func() error {
			logger.Info("kafka consumer started", "topic", cfg.Kafka.Topic, "group_id", cfg.Kafka.GroupID)
			return consumer.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("dispatcher stopped cleanly")
	return nil
}

// newDeferredQueue returns the queue for mail and record jobs, and a drain
// func to call after intake has stopped.
func newDeferredQueue(ctx context.Context, cfg *config.Config, conn db.DBTX, metrics notifcore.NotificationMetrics, clock types.Clock, logger types.Logger) (notifcore.Queue, func(), error) {
	if cfg.Dispatch.DeferredMode == "sqs" {
		awsCfg, err := bootstrap.LoadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			return nil, nil, err
		}
		q := notifcore.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.AWS.NotificationQueue, logger)
		return q, func() {}, nil
	}

	transports, err := bootstrap.DeferredTransports(cfg, conn, clock, logger)
	if err != nil {
		return nil, nil, err
	}
	runner := notifcore.NewJobRunner(transports, metrics, clock, logger)
	wp := notifcore.NewWorkerPool(runner, cfg.Dispatch.Workers, cfg.Dispatch.QueueSize, logger)
	// Workers outlive the signal context so buffered jobs finish on shutdown.
	wp.Start(context.WithoutCancel(ctx))
	return wp, func() {
		logger.Info("draining deferred jobs")
		wp.Close()
	}, nil
}

// serveHTTP runs the listener until ctx is cancelled, then shuts it down
// gracefully.
func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger types.Logger) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	return nil
}
