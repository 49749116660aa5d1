// Package auth verifies the HS256 bearer tokens presented to the dispatcher
// API and the realtime gateway. Tokens are minted by the identity service;
// IssueToken exists for service-to-service callers and tests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"bloodlink/internal/config"
	"bloodlink/internal/types"
)

// Claims are the JWT claims of a BloodLink access token. The subject is the
// user id, or the service name for system tokens.
type Claims struct {
	jwt.RegisteredClaims
	ActorType string   `json:"typ"`
	Orgs      []string `json:"orgs,omitempty"`
}

// JWTAuthenticator implements types.Authenticator for HS256 tokens.
type JWTAuthenticator struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

var _ types.Authenticator = (*JWTAuthenticator)(nil)

// Option configures a JWTAuthenticator.
type Option func(*JWTAuthenticator)

// WithTimeFunc overrides the clock used for expiry checks.
func WithTimeFunc(now func() time.Time) Option {
	return func(a *JWTAuthenticator) {
		a.now = now
	}
}

// NewJWTAuthenticator builds an authenticator from cfg. An empty secret is
// a configuration error.
func NewJWTAuthenticator(cfg config.AuthConfig, opts ...Option) (*JWTAuthenticator, error) {
	secret := cfg.JWTSecret.Unmask()
	if secret == "" {
		return nil, types.NewAppError(types.ErrCodeInternalConfiguration, "AUTH_JWT_SECRET is required", nil)
	}
	a := &JWTAuthenticator{
		secret:   []byte(secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// ResolveToken verifies the signature, issuer, audience and expiry of token
// and returns the Actor it names.
func (a *JWTAuthenticator) ResolveToken(_ context.Context, token string) (*types.Actor, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(a.audience))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenExpired, "token has expired", err)
		}
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "token is invalid", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "token is invalid", nil)
	}

	actor := &types.Actor{ID: claims.Subject, OrganizationIDs: claims.Orgs}
	switch types.ActorType(claims.ActorType) {
	case types.ActorTypeUser:
		actor.Type = types.ActorTypeUser
	case types.ActorTypeSystem:
		actor.Type = types.ActorTypeSystem
	default:
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "token names an unknown actor type", nil)
	}
	return actor, nil
}

// IssueToken signs a token for actor that expires after ttl.
func (a *JWTAuthenticator) IssueToken(actor types.Actor, ttl time.Duration) (string, error) {
	now := a.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   actor.ID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		ActorType: string(actor.Type),
		Orgs:      actor.OrganizationIDs,
	}
	if a.audience != "" {
		claims.Audience = jwt.ClaimStrings{a.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
