package email

import (
	"context"
	"sync"

	"bloodlink/internal/types"
)

// testLogger records log messages for assertions.
type testLogger struct {
	mu     sync.Mutex
	infos  []string
	warns  []string
	errors []string
}

func newTestLogger() *testLogger {
	return &testLogger{}
}

func (l *testLogger) Info(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func (l *testLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *testLogger) Error(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *testLogger) With(args ...any) types.Logger { return l }

// mockSender implements Sender for testing.
type mockSender struct {
	sendCalled bool
	sendInput  types.SendInput
	sendMsgID  string
	sendErr    error
}

func (m *mockSender) Send(ctx context.Context, input types.SendInput) (string, error) {
	m.sendCalled = true
	m.sendInput = input
	if m.sendErr != nil {
		return "", m.sendErr
	}
	return m.sendMsgID, nil
}

func deliveryPayload() *types.EmailPayload {
	return &types.EmailPayload{
		To:       "owner@stmarys.org",
		ToName:   "Ada Owner",
		Subject:  "Delivery TRK-42 is now In Transit",
		Greeting: "Hello Ada Owner,",
		Lines: []string{
			"The delivery with tracking code TRK-42 has a new status: In Transit.",
			"The blood units are on their way to your facility.",
		},
		Action: &types.Action{Label: "Track delivery", URL: "https://app.bloodlink.test/deliveries/42"},
	}
}
