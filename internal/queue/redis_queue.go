package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"appstore-notifications/pkg/logging"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// Redis keys
	JobKeyPrefix     = "appstore:job:"
	JobQueueKey      = "appstore:job_queue"
	JobProcessingKey = "appstore:job_processing"
	JobDelayedKey    = "appstore:job_delayed" // sorted set scored by next attempt, unix ms

	// Jobs expire after a week; Apple itself stops retrying after a few days
	JobTTL = 7 * 24 * time.Hour
)

// promoteDueScript moves due retries back onto the pending list in one step.
var promoteDueScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
	redis.call('LPUSH', KEYS[2], id)
end
return #ids
`)

// RedisQueue is a durable phase-two queue. A job is always referenced by the
// pending list, the processing list or the delayed set: it moves atomically
// from pending to processing while a worker holds it, failed jobs wait in the
// delayed set until their next attempt, and jobs held by a crashed process are
// recovered by the stuck sweeper.
type RedisQueue struct {
	client       *redis.Client
	handler      Handler
	workers      int
	maxRetries   int
	retryBackoff time.Duration
	stuckAfter   time.Duration
	sweepEvery   time.Duration
	promoteEvery time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewRedisQueue creates a new Redis backed queue
func NewRedisQueue(client *redis.Client, handler Handler, workers, maxRetries int) *RedisQueue {
	if workers <= 0 {
		workers = 3
	}
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}

	return &RedisQueue{
		client:       client,
		handler:      handler,
		workers:      workers,
		maxRetries:   maxRetries,
		retryBackoff: 30 * time.Second,
		stuckAfter:   10 * time.Minute,
		sweepEvery:   time.Minute,
		promoteEvery: time.Second,
	}
}

// Enqueue stores the job and pushes it onto the pending list in one pipeline.
func (q *RedisQueue) Enqueue(ctx context.Context, signedPayload string) error {
	now := time.Now()
	job := &Job{
		ID:            uuid.New().String(),
		SignedPayload: signedPayload,
		Status:        JobStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		MaxRetries:    q.maxRetries,
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, JobKeyPrefix+job.ID, jobData, JobTTL)
	pipe.LPush(ctx, JobQueueKey, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	logging.Infof("[Queue] Enqueued job %s", job.ID)
	return nil
}

// Start starts the workers and the scheduler
func (q *RedisQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}
	q.running = true
	q.ctx, q.cancel = context.WithCancel(context.Background())

	logging.Infof("[Queue] Starting %d Redis workers", q.workers)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	q.wg.Add(1)
	go q.scheduler()
}

// Stop stops the workers and waits for in-flight jobs to finish
func (q *RedisQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}

	logging.Infof("[Queue] Stopping Redis workers...")
	q.cancel()
	q.running = false
	q.wg.Wait()
	logging.Infof("[Queue] All Redis workers stopped")
}

func (q *RedisQueue) worker(id int) {
	defer q.wg.Done()

	for {
		if q.ctx.Err() != nil {
			return
		}

		job, err := q.dequeueJob(q.ctx)
		if err != nil {
			if errors.Is(err, redis.Nil) || q.ctx.Err() != nil {
				continue
			}
			logging.Errorf("[Queue] Worker %d: error dequeuing job: %v", id, err)
			select {
			case <-time.After(time.Second):
			case <-q.ctx.Done():
			}
			continue
		}

		// in-flight jobs finish even when Stop is called
		q.processJob(context.Background(), job)
	}
}

// dequeueJob moves the next job from the pending list to the processing list
func (q *RedisQueue) dequeueJob(ctx context.Context) (*Job, error) {
	jobID, err := q.client.BRPopLPush(ctx, JobQueueKey, JobProcessingKey, time.Second).Result()
	if err != nil {
		return nil, err
	}

	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		q.removeFromProcessing(ctx, jobID)
		return nil, fmt.Errorf("job %s: %w", jobID, err)
	}
	return job, nil
}

func (q *RedisQueue) processJob(ctx context.Context, job *Job) {
	job.MarkAsProcessing()
	q.updateJob(ctx, job)

	err := q.handler(ctx, job.SignedPayload)
	if err == nil {
		q.client.Del(ctx, JobKeyPrefix+job.ID)
		q.removeFromProcessing(ctx, job.ID)
		return
	}

	logging.Errorf("[Queue] Job %s failed: %v", job.ID, err)
	job.MarkAsFailed(err.Error())

	if job.IsRetryable() {
		logging.Infof("[Queue] Retrying job %s (attempt %d/%d)", job.ID, job.RetryCount, job.MaxRetries)
		job.MarkAsRetrying()
		if err := q.scheduleRetry(ctx, job, time.Now().Add(q.retryBackoff*time.Duration(job.RetryCount))); err != nil {
			// still in the processing list, so the sweeper picks it up
			logging.Errorf("[Queue] Failed to schedule retry of job %s: %v", job.ID, err)
		}
		return
	}

	logging.Errorf("[Queue] Job %s permanently failed after %d attempts", job.ID, job.RetryCount)
	q.updateJob(ctx, job)
	q.removeFromProcessing(ctx, job.ID)
}

// scheduleRetry parks the job in the delayed set and releases it from the processing list in one transaction.
func (q *RedisQueue) scheduleRetry(ctx context.Context, job *Job, at time.Time) error {
	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, JobKeyPrefix+job.ID, jobData, JobTTL)
	pipe.ZAdd(ctx, JobDelayedKey, redis.Z{Score: float64(at.UnixMilli()), Member: job.ID})
	pipe.LRem(ctx, JobProcessingKey, 1, job.ID)
	_, err = pipe.Exec(ctx)
	return err
}

// scheduler promotes due retries and requeues jobs left in the processing list by a crashed worker
func (q *RedisQueue) scheduler() {
	defer q.wg.Done()

	promote := time.NewTicker(q.promoteEvery)
	defer promote.Stop()
	sweep := time.NewTicker(q.sweepEvery)
	defer sweep.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-promote.C:
			q.promoteDueJobs(q.ctx, time.Now())
		case <-sweep.C:
			q.sweepStuckJobs(q.ctx, time.Now())
		}
	}
}

func (q *RedisQueue) promoteDueJobs(ctx context.Context, now time.Time) {
	moved, err := promoteDueScript.Run(ctx, q.client,
		[]string{JobDelayedKey, JobQueueKey}, now.UnixMilli(), 100).Int()
	if err != nil {
		if ctx.Err() == nil {
			logging.Errorf("[Queue] Failed to promote delayed jobs: %v", err)
		}
		return
	}
	if moved > 0 {
		logging.Infof("[Queue] Promoted %d delayed jobs", moved)
	}
}

func (q *RedisQueue) sweepStuckJobs(ctx context.Context, now time.Time) {
	ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
	if err != nil {
		logging.Errorf("[Queue] Sweeper LRange error: %v", err)
		return
	}

	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if errors.Is(err, redis.Nil) {
			q.removeFromProcessing(ctx, id)
			continue
		}
		if err != nil {
			logging.Errorf("[Queue] Sweeper failed to load job %s: %v", id, err)
			continue
		}

		// any status counts: a worker may die before it marks the job as processing
		started := job.UpdatedAt
		if job.Status == JobStatusProcessing && job.ProcessedAt != nil {
			started = *job.ProcessedAt
		}
		if now.Sub(started) <= q.stuckAfter {
			continue
		}

		logging.Warnf("[Queue] Recovering stuck job %s, age=%s", job.ID, now.Sub(started))
		job.Status = JobStatusPending
		job.ErrorMsg = "recovered by sweeper"
		job.UpdatedAt = now
		if err := q.requeueStuck(ctx, job); err != nil {
			logging.Errorf("[Queue] Failed to requeue stuck job %s: %v", id, err)
		}
	}
}

func (q *RedisQueue) requeueStuck(ctx context.Context, job *Job) error {
	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, JobKeyPrefix+job.ID, jobData, JobTTL)
	pipe.LRem(ctx, JobProcessingKey, 1, job.ID)
	pipe.RPush(ctx, JobQueueKey, job.ID)
	_, err = pipe.Exec(ctx)
	return err
}

// GetJob retrieves a job by ID
func (q *RedisQueue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	jobData, err := q.client.Get(ctx, JobKeyPrefix+jobID).Result()
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Size returns the number of pending, in-flight and delayed jobs
func (q *RedisQueue) Size(ctx context.Context) (pending, processing, delayed int64, err error) {
	pipe := q.client.Pipeline()
	pendingCmd := pipe.LLen(ctx, JobQueueKey)
	processingCmd := pipe.LLen(ctx, JobProcessingKey)
	delayedCmd := pipe.ZCard(ctx, JobDelayedKey)
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, 0, 0, err
	}
	return pendingCmd.Val(), processingCmd.Val(), delayedCmd.Val(), nil
}

func (q *RedisQueue) updateJob(ctx context.Context, job *Job) {
	jobData, err := json.Marshal(job)
	if err != nil {
		logging.Errorf("[Queue] Failed to marshal job %s: %v", job.ID, err)
		return
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, jobData, JobTTL).Err(); err != nil {
		logging.Errorf("[Queue] Failed to update job %s: %v", job.ID, err)
	}
}

func (q *RedisQueue) removeFromProcessing(ctx context.Context, jobID string) {
	if err := q.client.LRem(ctx, JobProcessingKey, 1, jobID).Err(); err != nil {
		logging.Errorf("[Queue] Failed to remove job %s from processing list: %v", jobID, err)
	}
}
