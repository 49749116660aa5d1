package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bloodlink/internal/types"
)

// mockLogger implements types.Logger as a no-op for tests.
type mockLogger struct{}

func (l *mockLogger) Info(msg string, args ...any)  {}
func (l *mockLogger) Error(msg string, args ...any) {}
func (l *mockLogger) Warn(msg string, args ...any)  {}
func (l *mockLogger) With(args ...any) types.Logger { return l }

// recordingLogger keeps the messages logged at warn and error level.
type recordingLogger struct {
	mu       sync.Mutex
	warnings []string
	errors   []string
}

func (l *recordingLogger) Info(msg string, args ...any) {}
func (l *recordingLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, msg)
}
func (l *recordingLogger) Error(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}
func (l *recordingLogger) With(args ...any) types.Logger { return l }

type mockClock struct {
	now time.Time
}

func (c *mockClock) Now() time.Time { return c.now }

// fakePrefs is an in-memory PreferenceStore. Missing keys mean no preference.
type fakePrefs struct {
	mu     sync.Mutex
	values map[string]bool
	err    error
	calls  int
}

func newFakePrefs() *fakePrefs { return &fakePrefs{values: map[string]bool{}} }

func (p *fakePrefs) set(userID string, kind types.ChannelKind, enabled bool) *fakePrefs {
	p.values[userID+"/"+string(kind)] = enabled
	return p
}

func (p *fakePrefs) GetPreference(_ context.Context, userID string, kind types.ChannelKind) (*types.RecipientPreference, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	enabled, ok := p.values[userID+"/"+string(kind)]
	if !ok {
		return nil, nil
	}
	return &types.RecipientPreference{UserID: userID, ChannelKind: kind, Enabled: enabled}, nil
}

// fakeTransport records every send and can be told to fail or panic.
type fakeTransport struct {
	kind    types.TransportKind
	mu      sync.Mutex
	sent    []types.RenderedPayload
	targets []types.ChannelTarget
	err     error
	panics  bool
	// failFor makes sends to this address fail.
	failFor string
}

func (t *fakeTransport) Kind() types.TransportKind { return t.kind }

func (t *fakeTransport) Send(_ context.Context, target types.ChannelTarget, payload types.RenderedPayload) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.panics {
		panic("broker exploded")
	}
	t.targets = append(t.targets, target)
	t.sent = append(t.sent, payload)
	if t.failFor != "" && target.Address == t.failFor {
		return fmt.Errorf("send to %s failed", target.Address)
	}
	return t.err
}

func (t *fakeTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

// fakeQueue records enqueued jobs.
type fakeQueue struct {
	mu   sync.Mutex
	jobs []types.DeferredJob
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, job types.DeferredJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

// recordingMetrics counts RecordDelivery calls by transport and result.
type recordingMetrics struct {
	mu         sync.Mutex
	deliveries map[string]int
	latencies  int
	lags       []time.Duration
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{deliveries: map[string]int{}}
}

func (m *recordingMetrics) RecordDelivery(_ context.Context, t types.TransportKind, r MetricResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries[string(t)+"/"+string(r)]++
}

func (m *recordingMetrics) RecordLatency(context.Context, types.TransportKind, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies++
}

func (m *recordingMetrics) RecordQueueLag(_ context.Context, lag time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lags = append(m.lags, lag)
}

// fakeEntities serves records by kind and id.
type fakeEntities struct {
	records map[string]*types.Record
	err     error
}

func (s *fakeEntities) Load(_ context.Context, kind types.EntityKind, id string) (types.Entity, error) {
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.records[string(kind)+"/"+id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundEntity, fmt.Sprintf("%s %s not found", kind, id), nil)
	}
	return rec, nil
}

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

// deliveryEntity is delivery 42 from the status-change scenario, owned by
// organization 3 whose owner is user 17.
func deliveryEntity(status string) *types.Record {
	owner := types.NewRecord(types.EntityUser, map[string]any{
		"id": int64(17), "email": "owner@stmarys.org", "name": "Ada Owner",
	})
	org := types.NewRecord(types.EntityOrganization, map[string]any{
		"id": int64(3), "name": "St Mary's Blood Bank",
	}).Attach("owner", owner)
	rider := types.NewRecord(types.EntityRider, map[string]any{
		"id": int64(7), "name": "Rui Rider", "current_latitude": 1.0, "current_longitude": 2.0,
	})
	return types.NewRecord(types.EntityDelivery, map[string]any{
		"id":                int64(42),
		"tracking_code":     "TRK-42",
		"status":            status,
		"organization_id":   int64(3),
		"estimated_arrival": nil,
		"updated_at":        fixedNow,
	}).Attach("rider", rider).Attach("organization", org)
}

// messageEntity is message 9 from user 5 to user 11.
func messageEntity() *types.Record {
	sender := types.NewRecord(types.EntityUser, map[string]any{"id": int64(5), "name": "Dr. Sender"})
	recipient := types.NewRecord(types.EntityUser, map[string]any{
		"id": int64(11), "email": "nurse@cityhospital.org", "name": "Nia Nurse",
	})
	return types.NewRecord(types.EntityMessage, map[string]any{
		"id":           int64(9),
		"body":         "Two units of O- are ready for pickup.",
		"sender_id":    int64(5),
		"recipient_id": int64(11),
		"created_at":   fixedNow,
	}).Attach("sender", sender).Attach("recipient", recipient)
}

func complianceEntity(status string) *types.Record {
	owner := types.NewRecord(types.EntityUser, map[string]any{
		"id": int64(17), "email": "owner@stmarys.org", "name": "Ada Owner",
	})
	org := types.NewRecord(types.EntityOrganization, map[string]any{
		"id": int64(3), "name": "St Mary's Blood Bank",
	}).Attach("owner", owner)
	return types.NewRecord(types.EntityComplianceReview, map[string]any{
		"id":              int64(21),
		"organization_id": int64(3),
		"status":          status,
		"notes":           "Cold-chain logs incomplete.",
		"decided_at":      fixedNow,
	}).Attach("organization", org)
}

func eventFor(kind types.EventKind, entity types.Entity) types.DomainEvent {
	rule := DefaultRoutingTable()[kind]
	return types.NewDomainEvent("evt-1", kind, "42", fixedNow, BuildSnapshot(entity, rule.Fields))
}

type dispatchFixture struct {
	prefs     *fakePrefs
	broadcast *fakeTransport
	queue     *fakeQueue
	metrics   *recordingMetrics
	logger    *recordingLogger
}

func newDispatchFixture() *dispatchFixture {
	return &dispatchFixture{
		prefs:     newFakePrefs(),
		broadcast: &fakeTransport{kind: types.TransportBroadcast},
		queue:     &fakeQueue{},
		metrics:   newRecordingMetrics(),
		logger:    &recordingLogger{},
	}
}

func (f *dispatchFixture) config() DispatcherConfig {
	return DispatcherConfig{
		Table:       DefaultRoutingTable(),
		Preferences: f.prefs,
		PublicURL:   "https://app.bloodlink.test/",
		Immediate:   []Transport{f.broadcast},
		Queue:       f.queue,
		Metrics:     f.metrics,
		Logger:      f.logger,
		Clock:       &mockClock{now: fixedNow},
	}
}
