package core

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bloodlink/internal/types"
)

// defaultRequestTimeout bounds request handling, which includes the
// immediate broadcast sends of a dispatch.
const defaultRequestTimeout = 15 * time.Second

const requestIDHeader = "X-Request-Id"

// mountRoutes registers the middleware chain and routes.
//
// Middleware order:
//  1. Recoverer      - outermost so every panic becomes a 500.
//  2. RequestID      - before logging so log lines carry it.
//  3. RequestLogger
//  4. Metrics
//  5. ContextTimeout
//
// /v1 routes additionally run AuthMiddleware; /health and /metrics stay
// public.
func (s *Server) mountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger))
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
	}
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout))

	s.router.Get("/health", s.HandleHealth)
	if s.gatherer != nil {
		s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.AuthMiddleware)
		r.With(s.RequireSystem).Post("/events", s.HandleEmitEvent)
		if s.Notifications != nil {
			r.Get("/users/{userID}/notifications", s.HandleListNotifications)
			r.Post("/notifications/{notificationID}/read", s.HandleMarkRead)
		}
	})
}

// ContextTimeoutMiddleware sets a deadline on the request context.
func ContextTimeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware reuses the caller's X-Request-Id or generates one,
// stores it with types.WithRequestID and echoes it on the response. The id
// travels with deferred jobs as their trace id.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), requestID)))
	})
}
