package session

import (
	"context"
	"log/slog"
	"sync"
)

// SyncQueue is a pausable, strictly FIFO single-worker executor for
// outbound message synchronization. While paused, the worker blocks
// before starting the next job; queued jobs are preserved in order.
// Callers pause it while the app is backgrounded or the topic is not yet
// attached, and resume it once publishing is safe.
type SyncQueue struct {
	logger *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	jobs     []func(context.Context)
	paused   bool
	shutdown bool
	done     chan struct{}
}

func NewSyncQueue(logger *slog.Logger) *SyncQueue {
	q := &SyncQueue{
		logger: logger,
		done:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)

	return q
}

// Start launches the worker. Jobs run with the given context.
func (q *SyncQueue) Start(ctx context.Context) {
	go q.run(ctx)
	go func() {
		select {
		case <-ctx.Done():
			q.ShutdownNow()
		case <-q.done:
		}
	}()
}

func (q *SyncQueue) run(ctx context.Context) {
	for {
		q.mu.Lock()
		for !q.shutdown && (q.paused || len(q.jobs) == 0) {
			q.cond.Wait()
		}
		if q.shutdown {
			q.mu.Unlock()

			return
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		job(ctx)
	}
}

// Enqueue appends a job. Jobs execute in submission order, one at a
// time, never while paused.
func (q *SyncQueue) Enqueue(job func(context.Context)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shutdown {
		return ErrQueueShutdown
	}
	q.jobs = append(q.jobs, job)
	q.cond.Broadcast()

	return nil
}

// Pause stops the worker before the next job. Safe from any goroutine,
// including before any job exists.
func (q *SyncQueue) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = true
}

// Resume lets the worker proceed, waking every blocked waiter.
func (q *SyncQueue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = false
	q.cond.Broadcast()
}

// ShutdownNow discards queued jobs and releases the worker. In-flight
// network calls are not aborted; no further queued work executes.
func (q *SyncQueue) ShutdownNow() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shutdown {
		return
	}
	q.shutdown = true
	q.jobs = nil
	close(q.done)
	q.cond.Broadcast()
}
