package queue

import (
	"context"
	"errors"
	"time"
)

// Handler processes one signedPayload. A non-nil error makes the job eligible for retry.
type Handler func(ctx context.Context, signedPayload string) error

// Queue accepts phase-two work from the ingress handler.
type Queue interface {
	Enqueue(ctx context.Context, signedPayload string) error
	Start()
	Stop()
}

var (
	ErrQueueFull    = errors.New("queue is full")
	ErrQueueStopped = errors.New("queue is stopped")
)

// DefaultMaxRetries is used when a queue is created with a negative retry count.
const DefaultMaxRetries = 3

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job is one queued App Store notification
type Job struct {
	ID            string     `json:"id"`
	SignedPayload string     `json:"signed_payload"`
	Status        JobStatus  `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	ErrorMsg      string     `json:"error_msg,omitempty"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount <= j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsFailed records the failure and counts the attempt
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
