package core

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"bloodlink/internal/types"
)

type logEntry struct {
	level string
	msg   string
	args  []any
}

type testLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *testLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level, msg, args})
}

func (l *testLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *testLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *testLogger) Error(msg string, args ...any) { l.add("error", msg, args) }
func (l *testLogger) With(...any) types.Logger      { return l }

func (l *testLogger) find(level, msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

// fakeEmitter records notices and returns canned results.
type fakeEmitter struct {
	mu       sync.Mutex
	notices  []types.ChangeNotice
	traces   []string
	outcomes []types.DeliveryOutcome
	err      error
	panics   bool
}

func (e *fakeEmitter) Emit(ctx context.Context, notice types.ChangeNotice) ([]types.DeliveryOutcome, error) {
	if e.panics {
		panic("emitter exploded")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notices = append(e.notices, notice)
	e.traces = append(e.traces, types.GetRequestID(ctx))
	return e.outcomes, e.err
}

// fakeStore is an in-memory NotificationStore.
type fakeStore struct {
	recs     []*types.NotificationRecord
	listErr  error
	readAt   map[string]time.Time
	lastList struct {
		userID     string
		unreadOnly bool
		limit      int
	}
}

func (s *fakeStore) Get(_ context.Context, id string) (*types.NotificationRecord, error) {
	for _, r := range s.recs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
}

func (s *fakeStore) ListForUser(_ context.Context, userID string, unreadOnly bool, limit int) ([]*types.NotificationRecord, error) {
	s.lastList.userID, s.lastList.unreadOnly, s.lastList.limit = userID, unreadOnly, limit
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*types.NotificationRecord
	for _, r := range s.recs {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkRead(_ context.Context, id string, at time.Time) error {
	for _, r := range s.recs {
		if r.ID == id {
			if s.readAt == nil {
				s.readAt = map[string]time.Time{}
			}
			s.readAt[id] = at
			return nil
		}
	}
	return types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
}

// fakeAuthenticator maps fixed tokens to actors.
type fakeAuthenticator struct {
	actors map[string]types.Actor
	err    error
}

func (a *fakeAuthenticator) ResolveToken(_ context.Context, token string) (*types.Actor, error) {
	if a.err != nil {
		return nil, a.err
	}
	actor, ok := a.actors[token]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "unknown token", nil)
	}
	return &actor, nil
}

func testAuthenticator() *fakeAuthenticator {
	return &fakeAuthenticator{actors: map[string]types.Actor{
		"svc":     {ID: "inventory-service", Type: types.ActorTypeSystem},
		"user-17": {ID: "17", Type: types.ActorTypeUser, OrganizationIDs: []string{"3"}},
		"user-11": {ID: "11", Type: types.ActorTypeUser, OrganizationIDs: []string{"3"}},
	}}
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestServer(t *testing.T, emitter Emitter, opts ...ServerOption) (*Server, *testLogger) {
	t.Helper()
	logger := &testLogger{}
	srv, err := NewServer(logger, emitter, opts...)
	if err != nil {
		t.Fatalf("NewServer returned unexpected error: %v", err)
	}
	return srv, logger
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return doAuth(t, srv, method, path, body, "")
}

// doAuth sends the request with "Authorization: Bearer <token>" when token
// is set.
func doAuth(t *testing.T, srv *Server, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	if token == "" {
		return doWithAuthorization(t, srv, method, path, body, "")
	}
	return doWithAuthorization(t, srv, method, path, body, "Bearer "+token)
}

func doWithAuthorization(t *testing.T, srv *Server, method, path, body, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not an error envelope: %v (%s)", err, rec.Body.String())
	}
	return resp.Error
}
