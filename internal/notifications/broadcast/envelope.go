// Package broadcast implements the real-time transport. Payloads are wrapped
// in an Envelope and published to a pub/sub broker (Redis or NATS), from
// which the realtime gateway fans them out to connected clients.
package broadcast

import (
	"encoding/json"
	"fmt"
	"time"

	"bloodlink/internal/types"
)

// DefaultPublishTimeout bounds a publish when none is configured.
const DefaultPublishTimeout = 2 * time.Second

// Envelope is the wire format published to the broker and forwarded
// unchanged to WebSocket clients.
type Envelope struct {
	Channel string         `json:"channel"`
	Event   string         `json:"event"`
	Data    map[string]any `json:"data"`
}

// NewEnvelope wraps a broadcast payload. The envelope keeps the logical
// channel name; the broker prefix is only applied to the broker subject.
func NewEnvelope(p *types.BroadcastPayload) Envelope {
	return Envelope{Channel: p.Channel, Event: p.Event, Data: p.Body}
}

// Encode marshals the envelope.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses a broker message.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("broadcast: decode envelope: %w", err)
	}
	if e.Channel == "" || e.Event == "" {
		return Envelope{}, fmt.Errorf("broadcast: envelope without channel or event")
	}
	return e, nil
}

// payloadOf checks that payload is a broadcast payload.
func payloadOf(payload types.RenderedPayload) (*types.BroadcastPayload, error) {
	p, ok := payload.(*types.BroadcastPayload)
	if !ok || p == nil {
		return nil, types.NewAppError(types.ErrCodeInternalConfiguration,
			fmt.Sprintf("broadcast transport cannot send %T", payload), nil)
	}
	return p, nil
}
