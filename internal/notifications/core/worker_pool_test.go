package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bloodlink/internal/types"
)

// scriptedHandler fails the first failures runs of each job with err.
type scriptedHandler struct {
	mu       sync.Mutex
	failures int
	err      error
	runs     map[string]int
	order    []string
	retries  []int
}

func newScriptedHandler(failures int, err error) *scriptedHandler {
	return &scriptedHandler{failures: failures, err: err, runs: map[string]int{}}
}

func (h *scriptedHandler) Run(_ context.Context, job types.DeferredJob) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs[job.JobID]++
	h.order = append(h.order, job.JobID)
	h.retries = append(h.retries, job.RetryCount)
	if h.runs[job.JobID] <= h.failures {
		return h.err
	}
	return nil
}

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func jobWithID(id string) types.DeferredJob {
	job := mailJob()
	job.JobID = id
	return job
}

func TestWorkerPool_SingleWorkerKeepsEnqueueOrder(t *testing.T) {
	h := newScriptedHandler(0, nil)
	p := NewWorkerPool(h, 1, 8, &mockLogger{})
	p.Start(context.Background())

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Enqueue(context.Background(), jobWithID(fmt.Sprintf("job-%d", i))))
	}
	p.Close()

	assert.Equal(t, []string{"job-0", "job-1", "job-2", "job-3", "job-4"}, h.order)
}

func TestWorkerPool_RetriesTransientFailures(t *testing.T) {
	h := newScriptedHandler(2, errors.New("smtp: 421 try again later"))
	sleeps := &recordedSleeps{}
	p := NewWorkerPool(h, 1, 1, &mockLogger{}, WithPoolSleep(sleeps.sleep))
	p.Start(context.Background())

	require.NoError(t, p.Enqueue(context.Background(), jobWithID("job-1")))
	p.Close()

	assert.Equal(t, 3, h.runs["job-1"])
	assert.Equal(t, []int{0, 1, 2}, h.retries)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps.delays)
}

func TestWorkerPool_GivesUpAfterMaxAttempts(t *testing.T) {
	h := newScriptedHandler(100, errors.New("smtp: connection reset"))
	logger := &recordingLogger{}
	p := NewWorkerPool(h, 1, 1, logger, WithPoolSleep((&recordedSleeps{}).sleep))
	p.Start(context.Background())

	require.NoError(t, p.Enqueue(context.Background(), jobWithID("job-1")))
	p.Close()

	assert.Equal(t, MailRetryPolicy.MaxAttempts, h.runs["job-1"])
	assert.Contains(t, logger.errors, "deferred job failed permanently")
}

func TestWorkerPool_PermanentErrorIsNotRetried(t *testing.T) {
	h := newScriptedHandler(100, types.NewAppError(types.ErrCodeEmailBlocked, "recipient blocked", nil))
	sleeps := &recordedSleeps{}
	p := NewWorkerPool(h, 1, 1, &mockLogger{}, WithPoolSleep(sleeps.sleep))
	p.Start(context.Background())

	require.NoError(t, p.Enqueue(context.Background(), jobWithID("job-1")))
	p.Close()

	assert.Equal(t, 1, h.runs["job-1"])
	assert.Empty(t, sleeps.delays)
}

func TestWorkerPool_EnqueueAfterClose(t *testing.T) {
	p := NewWorkerPool(newScriptedHandler(0, nil), 2, 1, &mockLogger{})
	p.Start(context.Background())
	p.Close()

	err := p.Enqueue(context.Background(), jobWithID("late"))

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalQueue, appErr.Code)
}

func TestWorkerPool_EnqueueRespectsContextWhenFull(t *testing.T) {
	// Not started: the single buffer slot fills and the next enqueue blocks.
	p := NewWorkerPool(newScriptedHandler(0, nil), 1, 1, &mockLogger{})
	require.NoError(t, p.Enqueue(context.Background(), jobWithID("first")))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := p.Enqueue(ctx, jobWithID("second"))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorkerPool_CloseDrainsBufferedJobs(t *testing.T) {
	h := newScriptedHandler(0, nil)
	p := NewWorkerPool(h, 3, 16, &mockLogger{})
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Enqueue(context.Background(), jobWithID(fmt.Sprintf("job-%d", i))))
	}
	p.Start(context.Background())
	p.Close()

	assert.Len(t, h.runs, 10)
}
