package core

import (
	"errors"
	"net/http"
	"testing"

	"bloodlink/internal/types"
)

const emitBody = `{"kind":"delivery.status_changed","subject_id":"42"}`

func TestAuthMiddleware_RejectsUnauthenticated(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		wantCode types.ErrorCode
	}{
		{"no header", "", types.ErrCodeAuthTokenMissing},
		{"wrong scheme", "Basic dXNlcjpwYXNz", types.ErrCodeAuthTokenMissing},
		{"empty bearer", "Bearer   ", types.ErrCodeAuthTokenMissing},
		{"unknown token", "Bearer nope", types.ErrCodeAuthTokenInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emitter := &fakeEmitter{}
			srv, _ := newTestServer(t, emitter, WithAuthenticator(testAuthenticator()), WithNotificationStore(&fakeStore{}))

			for _, path := range []string{"/v1/events", "/v1/users/17/notifications"} {
				method := http.MethodGet
				body := ""
				if path == "/v1/events" {
					method, body = http.MethodPost, emitBody
				}
				rec := doWithAuthorization(t, srv, method, path, body, tt.header)

				if rec.Code != http.StatusUnauthorized {
					t.Fatalf("%s: expected 401, got %d", path, rec.Code)
				}
				if detail := decodeError(t, rec); detail.Code != string(tt.wantCode) {
					t.Errorf("%s: expected code %s, got %s", path, tt.wantCode, detail.Code)
				}
			}
			if len(emitter.notices) != 0 {
				t.Error("emitter must not run for unauthenticated requests")
			}
		})
	}
}

func TestAuthMiddleware_ExpiredAndUnexpectedErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode types.ErrorCode
		level    string
	}{
		{"expired", types.NewAppError(types.ErrCodeAuthTokenExpired, "token has expired", nil), types.ErrCodeAuthTokenExpired, "warn"},
		{"unexpected", errors.New("keystore offline"), types.ErrCodeAuthTokenInvalid, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, logger := newTestServer(t, &fakeEmitter{}, WithAuthenticator(&fakeAuthenticator{err: tt.err}))

			rec := doAuth(t, srv, http.MethodPost, "/v1/events", emitBody, "anything")

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			detail := decodeError(t, rec)
			if detail.Code != string(tt.wantCode) {
				t.Errorf("expected code %s, got %s", tt.wantCode, detail.Code)
			}
			if detail.Message == "keystore offline" {
				t.Error("authenticator error must not leak")
			}
			found := false
			for _, e := range logger.entries {
				if e.level == tt.level {
					found = true
				}
			}
			if !found {
				t.Errorf("expected a %s log line", tt.level)
			}
		})
	}
}

func TestAuthMiddleware_HealthStaysPublic(t *testing.T) {
	srv, _ := newTestServer(t, &fakeEmitter{}, WithAuthenticator(testAuthenticator()))

	rec := do(t, srv, http.MethodGet, "/health", "")

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestEmitEvent_RequiresSystemActor(t *testing.T) {
	emitter := &fakeEmitter{}
	srv, _ := newTestServer(t, emitter, WithAuthenticator(testAuthenticator()))

	rec := doAuth(t, srv, http.MethodPost, "/v1/events", emitBody, "user-17")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a user token, got %d", rec.Code)
	}
	if detail := decodeError(t, rec); detail.Code != string(types.ErrCodePermissionDenied) {
		t.Errorf("expected permission_denied, got %s", detail.Code)
	}
	if len(emitter.notices) != 0 {
		t.Fatal("user tokens must not raise events")
	}

	rec = doAuth(t, srv, http.MethodPost, "/v1/events", emitBody, "svc")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 for a service token, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(emitter.notices) != 1 {
		t.Errorf("expected one emit, got %d", len(emitter.notices))
	}
}

func TestListNotifications_OnlyOwnInbox(t *testing.T) {
	store := &fakeStore{recs: []*types.NotificationRecord{{ID: "n-1", UserID: "17"}}}
	srv, _ := newTestServer(t, &fakeEmitter{}, WithAuthenticator(testAuthenticator()), WithNotificationStore(store))

	rec := doAuth(t, srv, http.MethodGet, "/v1/users/17/notifications", "", "user-11")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another user's inbox, got %d", rec.Code)
	}
	if store.lastList.userID != "" {
		t.Error("store must not be queried for a forbidden inbox")
	}

	for _, token := range []string{"user-17", "svc"} {
		rec = doAuth(t, srv, http.MethodGet, "/v1/users/17/notifications", "", token)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", token, rec.Code)
		}
	}
}

func TestMarkRead_OnlyOwnNotification(t *testing.T) {
	store := &fakeStore{recs: []*types.NotificationRecord{{ID: "n-1", UserID: "17"}}}
	srv, _ := newTestServer(t, &fakeEmitter{}, WithAuthenticator(testAuthenticator()), WithNotificationStore(store))

	rec := doAuth(t, srv, http.MethodPost, "/v1/notifications/n-1/read", "", "user-11")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user's notification, got %d", rec.Code)
	}
	if _, ok := store.readAt["n-1"]; ok {
		t.Fatal("notification must stay unread")
	}

	rec = doAuth(t, srv, http.MethodPost, "/v1/notifications/n-1/read", "", "user-17")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for the owner, got %d", rec.Code)
	}
	if _, ok := store.readAt["n-1"]; !ok {
		t.Error("expected the owner's read to be recorded")
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":   "abc",
		"bearer abc":   "abc",
		"BEARER  abc ": "abc",
		"Basic abc":    "",
		"Bearer":       "",
		"":             "",
	}
	for header, want := range tests {
		if got := ExtractBearerToken(header); got != want {
			t.Errorf("ExtractBearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}
