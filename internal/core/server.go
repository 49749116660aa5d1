// Package core provides the HTTP chassis for the notification dispatcher.
// It builds a chi router carrying the cross-cutting concerns (panic
// recovery, request ids, timeouts, request logging, Prometheus metrics) and
// mounts the authenticated event trigger and in-app notification endpoints.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"bloodlink/internal/types"
)

// Emitter forms and dispatches the event described by a change notice.
type Emitter interface {
	Emit(ctx context.Context, notice types.ChangeNotice) ([]types.DeliveryOutcome, error)
}

// NotificationStore serves a user's in-app notifications.
type NotificationStore interface {
	Get(ctx context.Context, id string) (*types.NotificationRecord, error)
	ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*types.NotificationRecord, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
}

// Server holds the dependencies of the HTTP surface so tests can inject
// fakes for each of them.
type Server struct {
	Logger        types.Logger
	Emitter       Emitter
	Notifications NotificationStore
	Authenticator types.Authenticator
	Validator     *Validator
	HealthProbes  []HealthProbe
	Clock         types.Clock

	requestTimeout time.Duration
	metrics        *HTTPMetrics
	gatherer       prometheus.Gatherer
	router         *chi.Mux
}

// ServerOption configures optional Server dependencies.
type ServerOption func(*Server)

// WithNotificationStore mounts the in-app notification endpoints.
func WithNotificationStore(store NotificationStore) ServerOption {
	return func(s *Server) {
		s.Notifications = store
	}
}

// WithAuthenticator requires a bearer token on every /v1 route.
func WithAuthenticator(a types.Authenticator) ServerOption {
	return func(s *Server) {
		s.Authenticator = a
	}
}

// WithHealthProbes registers the dependencies /health checks.
func WithHealthProbes(probes ...HealthProbe) ServerOption {
	return func(s *Server) {
		s.HealthProbes = append(s.HealthProbes, probes...)
	}
}

// WithPrometheus records request metrics into reg and serves gatherer on
// /metrics.
func WithPrometheus(reg prometheus.Registerer, gatherer prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.metrics = NewHTTPMetrics(reg)
		s.gatherer = gatherer
	}
}

// WithRequestTimeout overrides the soft deadline applied to request contexts.
func WithRequestTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.requestTimeout = d
	}
}

// WithClock overrides the clock used for read receipts.
func WithClock(clock types.Clock) ServerOption {
	return func(s *Server) {
		s.Clock = clock
	}
}

// NewServer validates the required dependencies and mounts every route.
func NewServer(logger types.Logger, emitter Emitter, opts ...ServerOption) (*Server, error) {
	if logger == nil {
		return nil, errors.New("logger must not be nil")
	}
	if emitter == nil {
		return nil, errors.New("emitter must not be nil")
	}

	s := &Server{
		Logger:         logger,
		Emitter:        emitter,
		Validator:      NewValidator(),
		Clock:          types.RealClock{},
		requestTimeout: defaultRequestTimeout,
		router:         chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.requestTimeout <= 0 {
		return nil, fmt.Errorf("request timeout must be positive, got %s", s.requestTimeout)
	}

	s.mountRoutes()
	return s, nil
}

// Handler returns the router for http.Server.
func (s *Server) Handler() *chi.Mux {
	return s.router
}
