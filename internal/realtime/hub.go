// Package realtime fans broadcast envelopes out to WebSocket clients. The
// gateway subscribes to the broker (Redis or NATS), and the Hub routes each
// envelope to the clients subscribed to its channel.
package realtime

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"bloodlink/internal/types"
)

// clientBuffer is how many frames a client may fall behind before it is
// disconnected.
const clientBuffer = 64

// Client is one connected subscriber. Frames are delivered on Send; the
// channel is closed when the hub drops the client.
type Client struct {
	channels []string
	send     chan []byte
	once     sync.Once
}

// NewClient creates a client subscribed to channels.
func NewClient(channels []string) *Client {
	return &Client{channels: channels, send: make(chan []byte, clientBuffer)}
}

// Send returns the frame stream.
func (c *Client) Send() <-chan []byte { return c.send }

func (c *Client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub tracks which clients listen on which channel.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Client]struct{}
	logger   types.Logger

	connected prometheus.Gauge
	delivered prometheus.Counter
	dropped   prometheus.Counter
}

// NewHub creates a Hub whose metrics are registered with reg.
func NewHub(logger types.Logger, reg prometheus.Registerer) *Hub {
	factory := promauto.With(reg)
	return &Hub{
		channels: make(map[string]map[*Client]struct{}),
		logger:   logger,
		connected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bloodlink_realtime_clients",
			Help: "Number of connected WebSocket clients.",
		}),
		delivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "bloodlink_realtime_frames_delivered_total",
			Help: "Frames queued to WebSocket clients.",
		}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "bloodlink_realtime_slow_clients_dropped_total",
			Help: "Clients disconnected because their buffer was full.",
		}),
	}
}

// Register subscribes c to its channels.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range c.channels {
		subs, ok := h.channels[ch]
		if !ok {
			subs = make(map[*Client]struct{})
			h.channels[ch] = subs
		}
		subs[c] = struct{}{}
	}
	h.connected.Inc()
}

// Unregister removes c and closes its frame stream. It is safe to call more
// than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	removed := h.removeLocked(c)
	h.mu.Unlock()
	if removed {
		h.connected.Dec()
	}
	c.close()
}

func (h *Hub) removeLocked(c *Client) bool {
	removed := false
	for _, ch := range c.channels {
		subs := h.channels[ch]
		if _, ok := subs[c]; ok {
			delete(subs, c)
			removed = true
		}
		if len(subs) == 0 {
			delete(h.channels, ch)
		}
	}
	return removed
}

// Publish queues frame for every client on channel and returns how many
// received it. A client whose buffer is full is dropped rather than
// blocking the broker subscription.
func (h *Hub) Publish(channel string, frame []byte) int {
	h.mu.RLock()
	var slow []*Client
	n := 0
	for c := range h.channels[channel] {
		select {
		case c.send <- frame:
			n++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	h.delivered.Add(float64(n))
	for _, c := range slow {
		h.logger.Warn("dropping slow realtime client", "channel", channel)
		h.dropped.Inc()
		h.Unregister(c)
	}
	return n
}

// Subscribers returns the number of clients on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Close drops every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make(map[*Client]struct{})
	for _, subs := range h.channels {
		for c := range subs {
			clients[c] = struct{}{}
		}
	}
	h.mu.Unlock()
	for c := range clients {
		h.Unregister(c)
	}
}
