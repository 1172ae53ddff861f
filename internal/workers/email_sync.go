package workers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/benvon/gtd/internal/database"
	"github.com/benvon/gtd/internal/events"
	"github.com/benvon/gtd/internal/metrics"
	"github.com/benvon/gtd/internal/models"
	"github.com/benvon/gtd/internal/queue"
	"github.com/benvon/gtd/internal/services/mail"
	"github.com/benvon/gtd/internal/telemetry"
)

const (
	defaultFetchLimit = 50
	defaultRetryDelay = 30 * time.Second
)

// SyncResult reports one account's sync
type SyncResult struct {
	AccountID int64 `json:"account_id"`
	Fetched   int   `json:"fetched"`
	Stored    int   `json:"stored"`
}

// EmailSyncer pulls INBOX messages into the store. It runs inside the worker
// for queued jobs and inside the API for the synchronous fetch endpoint.
type EmailSyncer struct {
	accounts   database.EmailAccountRepositoryInterface
	emails     database.EmailRepositoryInterface
	fetcher    mail.Fetcher
	dedup      Deduper
	publisher  events.Publisher
	jobQueue   queue.JobQueue // For re-enqueueing failed jobs with a delay
	fetchLimit int
	retryDelay time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// EmailSyncerOption configures an EmailSyncer
type EmailSyncerOption func(*EmailSyncer)

// WithDeduper adds a fast-path deduper
func WithDeduper(d Deduper) EmailSyncerOption {
	return func(s *EmailSyncer) { s.dedup = d }
}

// WithJobQueue lets failed jobs be re-enqueued with backoff
func WithJobQueue(q queue.JobQueue) EmailSyncerOption {
	return func(s *EmailSyncer) { s.jobQueue = q }
}

// WithFetchLimit caps messages fetched per account per run
func WithFetchLimit(n int) EmailSyncerOption {
	return func(s *EmailSyncer) {
		if n > 0 {
			s.fetchLimit = n
		}
	}
}

// WithRetryDelay sets the base backoff for failed jobs
func WithRetryDelay(d time.Duration) EmailSyncerOption {
	return func(s *EmailSyncer) {
		if d > 0 {
			s.retryDelay = d
		}
	}
}

// NewEmailSyncer creates a syncer. A nil publisher discards changes.
func NewEmailSyncer(
	accounts database.EmailAccountRepositoryInterface,
	emails database.EmailRepositoryInterface,
	fetcher mail.Fetcher,
	publisher events.Publisher,
	logger *zap.Logger,
	opts ...EmailSyncerOption,
) *EmailSyncer {
	if publisher == nil {
		publisher = events.Nop{}
	}
	s := &EmailSyncer{
		accounts:   accounts,
		emails:     emails,
		fetcher:    fetcher,
		publisher:  publisher,
		fetchLimit: defaultFetchLimit,
		retryDelay: defaultRetryDelay,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncAccount fetches one account's INBOX and stores messages not seen before.
// Nothing is written when the fetch fails.
func (s *EmailSyncer) SyncAccount(ctx context.Context, accountID int64) (_ *SyncResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "email_sync.account", attribute.Int64("gtd.account_id", accountID))
	defer func() { telemetry.End(span, err) }()

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get email account: %w", err)
	}
	if !account.IsActive {
		s.logger.Info("email_sync_skipped_inactive", zap.Int64("account_id", accountID))
		return &SyncResult{AccountID: accountID}, nil
	}

	fetched, err := s.fetcher.FetchInbox(ctx, account, s.fetchLimit)
	if err != nil {
		metrics.IncrementEmailSyncFailure()
		return nil, err
	}

	result := &SyncResult{AccountID: accountID, Fetched: len(fetched)}
	for _, email := range fetched {
		stored, err := s.store(ctx, email)
		if err != nil {
			metrics.IncrementEmailSyncFailure()
			return result, err
		}
		if stored {
			result.Stored++
		}
	}

	if err := s.accounts.TouchLastSync(ctx, accountID, s.now()); err != nil {
		s.logger.Warn("email_account_touch_failed", zap.Int64("account_id", accountID), zap.Error(err))
	}

	metrics.AddEmailsFetched(strconv.FormatInt(accountID, 10), result.Stored)
	if result.Stored > 0 {
		change := events.NewChange(events.EntityEmail, 0, events.ActionCreated,
			events.EmailList(models.FolderInbox), events.ListDashboard)
		if err := s.publisher.Publish(ctx, change); err != nil {
			s.logger.Warn("change_publish_failed", zap.Error(err))
		}
	}

	s.logger.Info("email_sync_completed",
		zap.Int64("account_id", accountID),
		zap.Int("fetched", result.Fetched),
		zap.Int("stored", result.Stored))
	return result, nil
}

func (s *EmailSyncer) store(ctx context.Context, email *models.Email) (bool, error) {
	key := dedupKey(email)
	if s.dedup != nil {
		fresh, err := s.dedup.MarkNew(ctx, key)
		if err != nil {
			// The unique constraint still protects us; fall through to the insert
			s.logger.Warn("email_dedup_unavailable", zap.Error(err))
		} else if !fresh {
			return false, nil
		}
	}

	inserted, err := s.emails.InsertIfNew(ctx, email)
	if err != nil {
		if s.dedup != nil {
			if forgetErr := s.dedup.Forget(ctx, key); forgetErr != nil {
				s.logger.Warn("email_dedup_release_failed", zap.Error(forgetErr))
			}
		}
		return false, fmt.Errorf("failed to store email: %w", err)
	}
	return inserted, nil
}

func dedupKey(email *models.Email) string {
	if email.AccountID != nil {
		return strconv.FormatInt(*email.AccountID, 10) + ":" + email.MessageID
	}
	return email.MessageID
}

// SyncAll syncs every active account and joins per-account errors
func (s *EmailSyncer) SyncAll(ctx context.Context) ([]*SyncResult, error) {
	accounts, err := s.accounts.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list email accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, mail.ErrNoAccount
	}

	results := make([]*SyncResult, 0, len(accounts))
	var errs []error
	for _, account := range accounts {
		res, err := s.SyncAccount(ctx, account.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("account %d: %w", account.ID, err))
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// EnqueueAll queues one sync job per active account
func (s *EmailSyncer) EnqueueAll(ctx context.Context, q queue.JobQueue, ttl time.Duration) (int, error) {
	accounts, err := s.accounts.List(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("failed to list email accounts: %w", err)
	}
	queued := 0
	for _, account := range accounts {
		job := queue.NewEmailSyncJob(account.ID, ttl)
		if err := q.Enqueue(ctx, job); err != nil {
			return queued, fmt.Errorf("failed to enqueue sync for account %d: %w", account.ID, err)
		}
		queued++
	}
	return queued, nil
}

// ProcessJob processes a job based on its type
func (s *EmailSyncer) ProcessJob(ctx context.Context, msg queue.Delivery) error {
	job := msg.Job()

	switch job.Type {
	case queue.JobTypeEmailSync:
		if _, err := s.SyncAccount(ctx, job.AccountID); err != nil {
			return s.handleJobError(ctx, msg, job, err)
		}
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack job: %w", ackErr)
		}
		return nil

	default:
		if nackErr := msg.Nack(false); nackErr != nil { // Unknown job type, send to DLQ
			s.logger.Warn("job_nack_failed", zap.Error(nackErr))
		}
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// handleJobError re-enqueues a failed job with backoff while it can retry,
// otherwise dead-letters it. A missing account is never retried.
func (s *EmailSyncer) handleJobError(ctx context.Context, msg queue.Delivery, job *queue.Job, err error) error {
	if errors.Is(err, database.ErrNotFound) || !job.CanRetry() {
		s.logger.Error("email_sync_job_dead_lettered",
			zap.String("job_id", job.ID.String()),
			zap.Int64("account_id", job.AccountID),
			zap.Int("retries", job.RetryCount),
			zap.Error(err))
		if nackErr := msg.Nack(false); nackErr != nil {
			s.logger.Warn("job_nack_failed", zap.Error(nackErr))
		}
		return fmt.Errorf("job failed (no retry): %w", err)
	}

	if s.jobQueue != nil {
		retry := *job
		retry.RetryAfter(s.retryDelay)
		enqueueErr := s.jobQueue.Enqueue(ctx, &retry)
		if enqueueErr == nil {
			if ackErr := msg.Ack(); ackErr != nil {
				s.logger.Warn("job_ack_failed", zap.Error(ackErr))
			}
			s.logger.Warn("email_sync_job_retry_scheduled",
				zap.String("job_id", job.ID.String()),
				zap.Int("attempt", retry.RetryCount),
				zap.Timep("not_before", retry.NotBefore),
				zap.Error(err))
			return fmt.Errorf("job failed (will retry): %w", err)
		}
		s.logger.Warn("job_reenqueue_failed", zap.Error(enqueueErr))
	}

	// Fallback: nack with requeue
	job.IncrementRetry()
	if nackErr := msg.Nack(true); nackErr != nil {
		s.logger.Warn("job_nack_failed", zap.Error(nackErr))
	}
	return fmt.Errorf("job failed (requeued): %w", err)
}
