package core

import (
	"context"
	"sync"
	"time"

	"bloodlink/internal/types"
)

// WorkerPool runs deferred jobs on in-process goroutines. Jobs are accepted
// into a bounded buffer in enqueue order; there is no ordering between jobs
// once different workers pick them up. Failed jobs are retried in place
// following the transport's RetryPolicy.
type WorkerPool struct {
	handler JobHandler
	workers int
	jobs    chan types.DeferredJob
	sleep   func(ctx context.Context, d time.Duration) error
	logger  types.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ Queue = (*WorkerPool)(nil)

// PoolOption configures a WorkerPool.
type PoolOption func(*WorkerPool)

// WithPoolSleep replaces the backoff sleep, for tests.
func WithPoolSleep(fn func(ctx context.Context, d time.Duration) error) PoolOption {
	return func(p *WorkerPool) { p.sleep = fn }
}

// NewWorkerPool creates a pool of workers goroutines over a buffer of size
// jobs. Workers do not run until Start.
func NewWorkerPool(handler JobHandler, workers, size int, logger types.Logger, opts ...PoolOption) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if size < 0 {
		size = 0
	}
	p := &WorkerPool{
		handler: handler,
		workers: workers,
		jobs:    make(chan types.DeferredJob, size),
		sleep:   sleepCtx,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. ctx is passed to every job run.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for job := range p.jobs {
				p.process(ctx, id, job)
			}
		}(i)
	}
}

// Enqueue blocks until the job is buffered, ctx is done, or the pool is
// closed.
func (p *WorkerPool) Enqueue(ctx context.Context, job types.DeferredJob) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return types.NewAppError(types.ErrCodeInternalQueue, "worker pool is closed", nil)
	}
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return types.NewAppError(types.ErrCodeInternalQueue, "worker pool is full", ctx.Err())
	}
}

// Close stops accepting jobs and waits for the buffered ones to finish.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *WorkerPool) process(ctx context.Context, worker int, job types.DeferredJob) {
	policy := PolicyFor(job.Target.Transport)
	log := p.logger.With(
		"worker", worker,
		"job_id", job.JobID,
		"event_id", job.EventID,
		"transport", string(job.Target.Transport),
	)

	for {
		err := p.handler.Run(ctx, job)
		if err == nil {
			return
		}
		if !ShouldRetry(err) || job.RetryCount+1 >= policy.MaxAttempts {
			log.Error("deferred job failed permanently",
				"retry_count", job.RetryCount,
				"error", err.Error(),
			)
			return
		}

		delay := CalculateNextRetry(policy, job.RetryCount)
		log.Warn("deferred job failed, retrying",
			"retry_count", job.RetryCount,
			"delay", delay.String(),
			"error", err.Error(),
		)
		if err := p.sleep(ctx, delay); err != nil {
			log.Error("deferred job abandoned", "error", err.Error())
			return
		}
		job.RetryCount++
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
