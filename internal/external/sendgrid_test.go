package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bloodlink/internal/types"
)

func newTestSendGridClient(t *testing.T, serverURL string) *SendGridClient {
	t.Helper()
	base := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-sendgrid",
		RetryPolicy{
			MaxRetries: 0, // deterministic
			MinWait:    time.Millisecond,
			MaxWait:    10 * time.Millisecond,
		},
		"BloodLink-Test/1.0",
		WithSleepFunc(noopSleep),
	)
	return NewSendGridClientWithBase(base, SendGridClientConfig{
		APIKey:  "SG.test_api_key",
		BaseURL: serverURL + "/",
	})
}

func testSendInput() types.SendInput {
	return types.SendInput{
		To:     "owner@stmarys.org",
		ToName: "Ada Owner",
		From: types.SenderIdentity{
			Name:    "BloodLink",
			Address: "notifications@bloodlink.org",
		},
		Subject:     "Delivery TRK-42 is now Delivered",
		BodyText:    "Hello Ada Owner,",
		BodyHTML:    "<p>Hello Ada Owner,</p>",
		ReferenceID: "evt-1",
	}
}

func TestSendGridSend_Success(t *testing.T) {
	var payload sendGridMailPayload
	var auth, contentType, path string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.Header().Set("X-Message-Id", "sg_msg_abc123")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	msgID, err := newTestSendGridClient(t, server.URL).Send(context.Background(), testSendInput())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if msgID != "sg_msg_abc123" {
		t.Errorf("expected message ID sg_msg_abc123, got %s", msgID)
	}
	if path != "/v3/mail/send" {
		t.Errorf("expected path /v3/mail/send, got %s", path)
	}
	if auth != "Bearer SG.test_api_key" {
		t.Errorf("expected Bearer SG.test_api_key, got %s", auth)
	}
	if contentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", contentType)
	}

	if len(payload.Personalizations) != 1 || len(payload.Personalizations[0].To) != 1 {
		t.Fatalf("expected a single recipient, got %+v", payload.Personalizations)
	}
	to := payload.Personalizations[0].To[0]
	if to.Email != "owner@stmarys.org" || to.Name != "Ada Owner" {
		t.Errorf("unexpected recipient %+v", to)
	}
	if payload.From.Email != "notifications@bloodlink.org" || payload.From.Name != "BloodLink" {
		t.Errorf("unexpected sender %+v", payload.From)
	}
	if payload.Subject != "Delivery TRK-42 is now Delivered" {
		t.Errorf("unexpected subject %q", payload.Subject)
	}
	if len(payload.Content) != 2 || payload.Content[0].Type != "text/plain" || payload.Content[1].Type != "text/html" {
		t.Errorf("expected text/plain then text/html content, got %+v", payload.Content)
	}
	if payload.CustomArgs["reference_id"] != "evt-1" {
		t.Errorf("expected reference_id evt-1, got %v", payload.CustomArgs)
	}
}

func TestSendGridSend_OmitsEmptyParts(t *testing.T) {
	var payload sendGridMailPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	input := testSendInput()
	input.BodyHTML = ""
	input.ReferenceID = ""

	if _, err := newTestSendGridClient(t, server.URL).Send(context.Background(), input); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(payload.Content) != 1 || payload.Content[0].Type != "text/plain" {
		t.Errorf("expected only text/plain, got %+v", payload.Content)
	}
	if payload.CustomArgs != nil {
		t.Errorf("expected no custom_args, got %v", payload.CustomArgs)
	}
}

func TestSendGridSend_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCode  types.ErrorCode
		transient bool
	}{
		{"forbidden is blocked", http.StatusForbidden, `{"errors":[{"message":"recipient suppressed"}]}`, types.ErrCodeEmailBlocked, false},
		{"rate limited", http.StatusTooManyRequests, ``, types.ErrCodeUpstreamRateLimited, true},
		{"server error", http.StatusBadGateway, `upstream down`, types.ErrCodeUpstreamUnavailable, true},
		{"bad request", http.StatusBadRequest, `{"errors":[{"message":"invalid from","field":"from"}]}`, types.ErrCodeUpstreamEmailProvider, true},
		{"non json body", http.StatusUnauthorized, `<html>nope</html>`, types.ErrCodeUpstreamEmailProvider, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestSendGridClient(t, server.URL).Send(context.Background(), testSendInput())

			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *types.AppError, got %T: %v", err, err)
			}
			if appErr.Code != tt.wantCode {
				t.Errorf("expected %s, got %s", tt.wantCode, appErr.Code)
			}
			if appErr.Transient() != tt.transient {
				t.Errorf("Transient() = %v, want %v", appErr.Transient(), tt.transient)
			}
		})
	}
}

func TestSendGridSend_ForbiddenMessageIncludesReason(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errors":[{"message":"recipient suppressed"}]}`))
	}))
	defer server.Close()

	_, err := newTestSendGridClient(t, server.URL).Send(context.Background(), testSendInput())

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Message != "SendGrid blocked delivery: recipient suppressed" {
		t.Errorf("unexpected error %v", err)
	}
}
