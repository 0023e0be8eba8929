package queue

import (
	"context"
	"sync"
	"time"

	"appstore-notifications/pkg/logging"

	"github.com/google/uuid"
)

// LocalQueue is an in-process queue used when no Redis is configured.
// Pending jobs are lost if the process dies; Stop drains them first.
type LocalQueue struct {
	handler      Handler
	workers      int
	maxRetries   int
	retryBackoff time.Duration

	jobs    chan *Job
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	stopped bool
}

// NewLocalQueue creates a queue holding at most capacity pending jobs.
func NewLocalQueue(handler Handler, workers, maxRetries, capacity int) *LocalQueue {
	if workers <= 0 {
		workers = 3
	}
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if capacity <= 0 {
		capacity = 1000
	}

	return &LocalQueue{
		handler:      handler,
		workers:      workers,
		maxRetries:   maxRetries,
		retryBackoff: time.Second,
		jobs:         make(chan *Job, capacity),
	}
}

// Enqueue adds a job without blocking. It fails when the buffer is full or the queue was stopped.
func (q *LocalQueue) Enqueue(_ context.Context, signedPayload string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.stopped {
		return ErrQueueStopped
	}

	now := time.Now()
	job := &Job{
		ID:            uuid.New().String(),
		SignedPayload: signedPayload,
		Status:        JobStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		MaxRetries:    q.maxRetries,
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start starts the workers
func (q *LocalQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running || q.stopped {
		return
	}
	q.running = true

	logging.Infof("[Queue] Starting %d local workers", q.workers)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
}

// Stop rejects new jobs and waits until every queued job has been handled.
func (q *LocalQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
	logging.Infof("[Queue] Local queue drained")
}

func (q *LocalQueue) worker() {
	defer q.wg.Done()
	for job := range q.jobs {
		q.processJob(job)
	}
}

// processJob retries in place; the local queue has no durable place to park a job.
func (q *LocalQueue) processJob(job *Job) {
	ctx := context.Background()
	for {
		job.MarkAsProcessing()
		err := q.handler(ctx, job.SignedPayload)
		if err == nil {
			return
		}

		logging.Errorf("[Queue] Job %s failed: %v", job.ID, err)
		job.MarkAsFailed(err.Error())
		if !job.IsRetryable() {
			logging.Errorf("[Queue] Job %s permanently failed after %d attempts", job.ID, job.RetryCount)
			return
		}
		job.MarkAsRetrying()
		time.Sleep(q.retryBackoff * time.Duration(job.RetryCount))
	}
}
