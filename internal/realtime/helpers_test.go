package realtime

import (
	"context"
	"fmt"
	"sync"

	"bloodlink/internal/types"
)

type testLogger struct {
	mu    sync.Mutex
	warns []string
	infos []string
}

func (l *testLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func (l *testLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *testLogger) Error(msg string, _ ...any) { l.Warn(msg) }
func (l *testLogger) With(...any) types.Logger   { return l }

func (l *testLogger) warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warns...)
}

// fakeAuthenticator resolves a fixed set of tokens.
type fakeAuthenticator map[string]types.Actor

func (a fakeAuthenticator) ResolveToken(_ context.Context, token string) (*types.Actor, error) {
	actor, ok := a[token]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "unknown token", nil)
	}
	return &actor, nil
}

func testAuthenticator() fakeAuthenticator {
	return fakeAuthenticator{
		"user-11": {ID: "11", Type: types.ActorTypeUser, OrganizationIDs: []string{"3"}},
		"svc":     {ID: "dispatcher", Type: types.ActorTypeSystem},
	}
}

func envelope(channel, event string) []byte {
	return []byte(fmt.Sprintf(`{"channel":%q,"event":%q,"data":{"id":42}}`, channel, event))
}

// recordingHub captures frames routed by the subscribers.
type recordingHub struct {
	mu     sync.Mutex
	frames map[string][][]byte
}

func newRecordingHub() *recordingHub {
	return &recordingHub{frames: make(map[string][][]byte)}
}

func (h *recordingHub) Publish(channel string, frame []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames[channel] = append(h.frames[channel], frame)
	return 1
}
