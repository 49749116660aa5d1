package core

import (
	"errors"
	"net/http"
	"strings"

	"bloodlink/internal/types"
)

// AuthMiddleware resolves the bearer token of every /v1 request to an Actor
// and stores it with types.WithActor. Failures answer 401 with one of:
//   - auth_token_missing: no Authorization header or empty Bearer token.
//   - auth_token_invalid: malformed, wrongly signed or unknown token.
//   - auth_token_expired: the token is past its expiry.
//
// If the Authenticator field on Server is nil (e.g., during tests that don't
// inject one), the middleware passes through without authentication.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authorization header is required")
			return
		}
		token := ExtractBearerToken(authHeader)
		if token == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Bearer token is required")
			return
		}

		actor, err := s.Authenticator.ResolveToken(r.Context(), token)
		if err != nil {
			s.handleAuthError(w, r, err)
			return
		}
		if actor == nil {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}

		next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), *actor)))
	})
}

// ExtractBearerToken parses an Authorization header value of the form
// "Bearer <token>" (case-insensitive scheme per RFC 7235). It returns ""
// for any other format.
func ExtractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

// handleAuthError maps a ResolveToken failure to a 401 without leaking its
// cause.
func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeAuthTokenExpired:
			s.Logger.Warn("authentication failed: token expired",
				"method", r.Method,
				"path", r.URL.Path,
			)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenExpired, "Authentication token has expired")
			return
		case types.ErrCodeAuthTokenInvalid:
			s.Logger.Warn("authentication failed: token invalid",
				"method", r.Method,
				"path", r.URL.Path,
				"error", err.Error(),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}
	}

	s.Logger.Error("authentication failed: unexpected error",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err.Error(),
	)
	s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Authentication failed")
}

// writeAuthError writes a 401 Unauthorized JSON response with the given error code.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	JSON(w, r, http.StatusUnauthorized, APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	})
}

// writeForbidden writes a 403 permission_denied response.
func (s *Server) writeForbidden(w http.ResponseWriter, r *http.Request, message string) {
	JSON(w, r, http.StatusForbidden, APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(types.ErrCodePermissionDenied),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	})
}

// RequireSystem only lets backend services through. Event triggers are
// raised by the services that own the entities, never by end users.
//
// If the Actor is not present in context (unauthenticated), returns 401.
// Passes through when no Authenticator is configured.
func (s *Server) RequireSystem(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil {
			next.ServeHTTP(w, r)
			return
		}
		actor, ok := types.GetActor(r.Context())
		if !ok {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authentication required")
			return
		}
		if !actor.IsSystem() {
			s.writeForbidden(w, r, "Only backend services may raise events")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// canAccessUser reports whether the request's actor may act on userID's
// inbox. It is always true when no Authenticator is configured.
func (s *Server) canAccessUser(r *http.Request, userID string) bool {
	if s.Authenticator == nil {
		return true
	}
	actor, ok := types.GetActor(r.Context())
	return ok && actor.CanAccessUser(userID)
}
