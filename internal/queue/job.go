package queue

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeEmailSync pulls new INBOX messages for one email account
	JobTypeEmailSync JobType = "email_sync"
)

// DefaultMaxRetries is how many times a failed job is re-enqueued before it goes to the DLQ
const DefaultMaxRetries = 3

// Job represents a job in the queue
type Job struct {
	ID         uuid.UUID      `json:"id"`
	Type       JobType        `json:"type"`
	AccountID  int64          `json:"account_id"`
	NotBefore  *time.Time     `json:"not_before,omitempty"` // Earliest time to process job (nil = immediate)
	NotAfter   *time.Time     `json:"not_after,omitempty"`  // Latest time to process job (nil = no expiration)
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	RetryCount int            `json:"retry_count"`
	MaxRetries int            `json:"max_retries"`
}

// NewJob creates a new job for an email account
func NewJob(jobType JobType, accountID int64) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		AccountID:  accountID,
		Metadata:   make(map[string]any),
		CreatedAt:  time.Now(),
		RetryCount: 0,
		MaxRetries: DefaultMaxRetries,
	}
}

// NewEmailSyncJob creates a sync job that expires after ttl so stale
// scheduled syncs do not pile up behind a stuck worker
func NewEmailSyncJob(accountID int64, ttl time.Duration) *Job {
	job := NewJob(JobTypeEmailSync, accountID)
	if ttl > 0 {
		notAfter := job.CreatedAt.Add(ttl)
		job.NotAfter = &notAfter
	}
	return job
}

// ShouldProcess checks if the job should be processed now
func (j *Job) ShouldProcess() bool {
	now := time.Now()

	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}

	if j.NotAfter != nil && now.After(*j.NotAfter) {
		return false
	}

	return true
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}

	return time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}

// RetryAfter prepares the job for another attempt no earlier than delay from now.
// The delay doubles with every retry.
func (j *Job) RetryAfter(delay time.Duration) {
	j.IncrementRetry()
	backoff := delay << (j.RetryCount - 1)
	notBefore := time.Now().Add(backoff)
	j.NotBefore = &notBefore
	if j.NotAfter != nil && j.NotAfter.Before(notBefore) {
		notAfter := notBefore.Add(delay)
		j.NotAfter = &notAfter
	}
}
