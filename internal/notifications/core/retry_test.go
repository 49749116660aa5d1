package core

import (
	"testing"
	"time"

	"bloodlink/internal/types"
)

func TestCalculateNextRetry_MailPolicy(t *testing.T) {
	// MailRetryPolicy: BaseDelay=1s, BackoffFactor=2.0, MaxDelay=10s
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},  // 1s * 2^0 = 1s
		{1, 2 * time.Second},  // 1s * 2^1 = 2s
		{2, 4 * time.Second},  // 1s * 2^2 = 4s
		{3, 8 * time.Second},  // 1s * 2^3 = 8s
		{4, 10 * time.Second}, // 1s * 2^4 = 16s, capped at 10s
	}

	for _, tt := range tests {
		d := CalculateNextRetry(MailRetryPolicy, tt.attempt)
		if d != tt.expected {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.expected, d)
		}
	}
}

func TestCalculateNextRetry_RecordPolicy(t *testing.T) {
	// RecordRetryPolicy: BaseDelay=500ms, BackoffFactor=3.0, MaxDelay=30s
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 500 * time.Millisecond},   // 500ms * 3^0
		{1, 1500 * time.Millisecond},  // 500ms * 3^1
		{2, 4500 * time.Millisecond},  // 500ms * 3^2
		{3, 13500 * time.Millisecond}, // 500ms * 3^3
		{4, 30 * time.Second},         // 500ms * 3^4 = 40.5s, capped at 30s
	}

	for _, tt := range tests {
		d := CalculateNextRetry(RecordRetryPolicy, tt.attempt)
		if d != tt.expected {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.expected, d)
		}
	}
}

func TestCalculateNextRetry_NegativeAttempt(t *testing.T) {
	// Negative attempt should be treated as 0.
	d := CalculateNextRetry(MailRetryPolicy, -1)
	if d != 1*time.Second {
		t.Errorf("expected 1s for negative attempt, got %v", d)
	}
}

func TestCalculateNextRetry_OverflowCapsAtMax(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 100, BaseDelay: time.Hour, MaxDelay: time.Minute, BackoffFactor: 1e6}
	if d := CalculateNextRetry(policy, 50); d != time.Minute {
		t.Errorf("expected MaxDelay on overflow, got %v", d)
	}
}

func TestPolicyFor(t *testing.T) {
	if PolicyFor(types.TransportDatabase) != RecordRetryPolicy {
		t.Error("database should use RecordRetryPolicy")
	}
	if PolicyFor(types.TransportMail) != MailRetryPolicy {
		t.Error("mail should use MailRetryPolicy")
	}
}
