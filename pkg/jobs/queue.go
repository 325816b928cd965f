package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueStopped is returned when enqueueing on a queue that is not running.
	ErrQueueStopped = errors.New("queue not running")
	// ErrQueueFull is returned by TryEnqueue when the buffer has no room.
	ErrQueueFull = errors.New("queue full")
)

const defaultDrainTimeout = 30 * time.Second

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Enqueued time.Time
}

// Handler processes a job. Errors are logged; retries are the handler's concern.
type Handler func(context.Context, Job) error

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	// DrainTimeout bounds how long Stop waits for buffered and running jobs.
	DrainTimeout time.Duration
	// OnDrop receives every accepted job that never ran because the drain timed out.
	OnDrop func(Job)
	Logger *zap.Logger
}

// Queue is a lightweight in-memory job dispatcher backed by goroutines. Each job runs as an
// independent unit of work so a slow job never blocks the others. Jobs outlive the context
// given to Start; Stop drains the buffer before returning.
type Queue struct {
	name    string
	handler Handler

	workers      int
	drainTimeout time.Duration
	onDrop       func(Job)
	logger       *zap.Logger

	jobs     chan Job
	stopping chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	sendMu   sync.RWMutex
	started  bool
	closed   bool
	inFlight atomic.Int64
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:         name,
		handler:      handler,
		workers:      cfg.Workers,
		drainTimeout: cfg.DrainTimeout,
		onDrop:       cfg.OnDrop,
		logger:       cfg.Logger,
		jobs:         make(chan Job, cfg.BufferSize),
		stopping:     make(chan struct{}),
	}
}

// Start begins worker consumption. A stopped queue cannot be restarted.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.ctx, q.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i + 1)
	}
	q.started = true
	q.logger.Sugar().Infow("queue started", "queue", q.name, "workers", q.workers)
}

// Stop refuses new jobs, lets workers finish everything already accepted, and returns once
// they exit. Jobs still unfinished after the drain timeout see a cancelled context; those
// not yet started are handed to OnDrop.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.started = false
	q.closed = true
	close(q.stopping)
	q.mu.Unlock()

	// Blocked Enqueue calls return on stopping; once they release sendMu no send can race the close.
	q.sendMu.Lock()
	close(q.jobs)
	q.sendMu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(q.drainTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		q.logger.Sugar().Warnw("queue drain timed out", "queue", q.name, "pending", q.Pending())
		q.cancel()
		<-done
	}
	q.cancel()
	q.logger.Sugar().Infow("queue stopped", "queue", q.name)
}

// Enqueue pushes a job onto the queue, waiting for buffer space until ctx or the queue ends.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	return q.push(ctx, job, true)
}

// TryEnqueue pushes a job without waiting; a full buffer yields ErrQueueFull.
func (q *Queue) TryEnqueue(ctx context.Context, job Job) error {
	return q.push(ctx, job, false)
}

func (q *Queue) push(ctx context.Context, job Job, wait bool) error {
	q.sendMu.RLock()
	defer q.sendMu.RUnlock()

	q.mu.Lock()
	started := q.started
	q.mu.Unlock()
	if !started {
		return fmt.Errorf("%w: %s", ErrQueueStopped, q.name)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	if !wait {
		select {
		case q.jobs <- job:
			return nil
		default:
			return fmt.Errorf("%w: %s", ErrQueueFull, q.name)
		}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.stopping:
		return fmt.Errorf("%w: %s", ErrQueueStopped, q.name)
	case q.jobs <- job:
		return nil
	}
}

// Pending returns the number of buffered plus running jobs.
func (q *Queue) Pending() int {
	return len(q.jobs) + int(q.inFlight.Load())
}

func (q *Queue) worker(workerID int) {
	defer q.wg.Done()
	for job := range q.jobs {
		if q.ctx.Err() != nil {
			q.drop(job)
			continue
		}
		q.run(workerID, job)
	}
}

func (q *Queue) drop(job Job) {
	q.logger.Sugar().Warnw("job dropped at shutdown", "queue", q.name, "job_id", job.ID, "type", job.Type)
	if q.onDrop == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			q.logger.Sugar().Errorw("drop hook panicked", "queue", q.name, "job_id", job.ID, "panic", r)
		}
	}()
	q.onDrop(job)
}

func (q *Queue) run(workerID int, job Job) {
	q.inFlight.Add(1)
	defer q.inFlight.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			q.logger.Sugar().Errorw("job panicked", "queue", q.name, "worker", workerID, "job_id", job.ID, "type", job.Type, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	if err := q.handler(q.ctx, job); err != nil {
		q.logger.Sugar().Warnw("job failed", "queue", q.name, "worker", workerID, "job_id", job.ID, "type", job.Type, "error", err)
	}
}
