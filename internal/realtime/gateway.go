package realtime

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"bloodlink/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	// MaxChannelsPerClient caps the channels one connection may join.
	MaxChannelsPerClient = 20
)

// accessTokenParam carries the bearer token for browser clients, which
// cannot set headers on a WebSocket handshake.
const accessTokenParam = "access_token"

// ChannelAuthorizer decides whether actor may join channel.
type ChannelAuthorizer func(actor types.Actor, channel string) bool

// AuthorizeChannel is the default ChannelAuthorizer:
//   - system actors may join any channel.
//   - user.{id} only as that user.
//   - organization.{id} only as a member of that organization.
//   - delivery.{id} for any authenticated actor.
//
// Every other channel is refused.
func AuthorizeChannel(actor types.Actor, channel string) bool {
	if actor.IsSystem() {
		return true
	}
	scope, id, ok := strings.Cut(channel, ".")
	if !ok || id == "" {
		return false
	}
	switch scope {
	case "user":
		return actor.CanAccessUser(id)
	case "organization":
		return actor.MemberOf(id)
	case "delivery":
		return true
	default:
		return false
	}
}

// Gateway upgrades HTTP requests to WebSocket connections and attaches them
// to the hub. Clients authenticate with a bearer token and choose channels
// with ?channels=delivery.42,user.11.
type Gateway struct {
	hub       *Hub
	authn     types.Authenticator
	authorize ChannelAuthorizer
	logger    types.Logger
	upgrader  websocket.Upgrader
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithOriginCheck replaces the default same-origin check.
func WithOriginCheck(fn func(r *http.Request) bool) GatewayOption {
	return func(g *Gateway) { g.upgrader.CheckOrigin = fn }
}

// WithChannelAuthorizer replaces AuthorizeChannel.
func WithChannelAuthorizer(fn ChannelAuthorizer) GatewayOption {
	return func(g *Gateway) { g.authorize = fn }
}

// NewGateway creates a Gateway over hub. Every connection must present a
// token that authn resolves; a nil authn refuses all connections.
func NewGateway(hub *Hub, authn types.Authenticator, logger types.Logger, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		hub:       hub,
		authn:     authn,
		authorize: AuthorizeChannel,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ParseChannels extracts the requested channel list. It returns nil when the
// list is empty, too long, or contains a blank name.
func ParseChannels(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) > MaxChannelsPerClient {
		return nil
	}
	seen := make(map[string]struct{}, len(parts))
	channels := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		channels = append(channels, p)
	}
	return channels
}

// ServeHTTP implements http.Handler. It answers 401 without a valid token,
// 400 for a bad channel list and 403 when any channel is not the caller's.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, err := g.authenticate(r)
	if err != nil {
		g.logger.Warn("realtime client rejected", "error", err.Error(), "remote_addr", r.RemoteAddr)
		http.Error(w, "a valid bearer token is required", http.StatusUnauthorized)
		return
	}

	channels := ParseChannels(r.URL.Query().Get("channels"))
	if channels == nil {
		http.Error(w, "channels must list between 1 and 20 names", http.StatusBadRequest)
		return
	}
	for _, ch := range channels {
		if !g.authorize(actor, ch) {
			g.logger.Warn("realtime channel denied", "actor_id", actor.ID, "channel", ch)
			http.Error(w, "not allowed to join channel "+ch, http.StatusForbidden)
			return
		}
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		g.logger.Warn("websocket upgrade failed", "error", err.Error(), "remote_addr", r.RemoteAddr)
		return
	}

	client := NewClient(channels)
	g.hub.Register(client)
	g.logger.Info("realtime client connected", "actor_id", actor.ID, "channels", len(channels), "remote_addr", r.RemoteAddr)

	go g.writePump(conn, client)
	go g.readPump(conn, client)
}

// authenticate resolves the token from the Authorization header, falling
// back to the access_token query parameter.
func (g *Gateway) authenticate(r *http.Request) (types.Actor, error) {
	if g.authn == nil {
		return types.Actor{}, errors.New("no authenticator configured")
	}
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get(accessTokenParam)
	}
	if token == "" {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenMissing, "bearer token is required", nil)
	}
	actor, err := g.authn.ResolveToken(r.Context(), token)
	if err != nil {
		return types.Actor{}, err
	}
	if actor == nil {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenInvalid, "token resolved to no actor", nil)
	}
	return *actor, nil
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// readPump discards inbound frames and detects disconnects.
func (g *Gateway) readPump(conn *websocket.Conn, client *Client) {
	defer func() {
		g.hub.Unregister(client)
		conn.Close()
	}()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Warn("realtime client read failed", "error", err.Error())
			}
			return
		}
	}
}

// writePump forwards hub frames and keeps the connection alive with pings.
func (g *Gateway) writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case frame, ok := <-client.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
