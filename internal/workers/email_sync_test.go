package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/benvon/gtd/internal/database/memstore"
	"github.com/benvon/gtd/internal/events"
	"github.com/benvon/gtd/internal/models"
	"github.com/benvon/gtd/internal/queue"
	"github.com/benvon/gtd/internal/services/mail"
)

// mockFetcher is a mock implementation of mail.Fetcher
type mockFetcher struct {
	fetchFunc func(ctx context.Context, account *models.EmailAccount, limit int) ([]*models.Email, error)
	calls     int
}

func (m *mockFetcher) FetchInbox(ctx context.Context, account *models.EmailAccount, limit int) ([]*models.Email, error) {
	m.calls++
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, account, limit)
	}
	return nil, nil
}

var _ mail.Fetcher = (*mockFetcher)(nil)

// mockDeduper is an in-memory Deduper
type mockDeduper struct {
	mu     sync.Mutex
	seen   map[string]bool
	err    error
	forgot []string
}

func newMockDeduper() *mockDeduper {
	return &mockDeduper{seen: map[string]bool{}}
}

func (m *mockDeduper) MarkNew(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func (m *mockDeduper) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, key)
	m.forgot = append(m.forgot, key)
	return nil
}

var _ Deduper = (*mockDeduper)(nil)

// mockJobQueue is a mock implementation of JobQueue
type mockJobQueue struct {
	enqueued   []*queue.Job
	enqueueErr error
}

func (m *mockJobQueue) Enqueue(_ context.Context, job *queue.Job) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}

func (m *mockJobQueue) Consume(context.Context, int) (<-chan queue.Delivery, <-chan error, error) {
	return nil, nil, errors.New("not implemented")
}

func (m *mockJobQueue) Close() error { return nil }

func (m *mockJobQueue) HealthCheck(context.Context) error { return nil }

var _ queue.JobQueue = (*mockJobQueue)(nil)

// mockMessage records how a delivery was settled
type mockMessage struct {
	job       *queue.Job
	acked     bool
	nacked    bool
	requeued  bool
	ackErr    error
	nackError error
}

func (m *mockMessage) Ack() error {
	m.acked = true
	return m.ackErr
}

func (m *mockMessage) Nack(requeue bool) error {
	m.nacked = true
	m.requeued = requeue
	return m.nackError
}

func (m *mockMessage) Job() *queue.Job {
	return m.job
}

var _ queue.Delivery = (*mockMessage)(nil)

type recordingPublisher struct {
	changes []events.Change
}

func (r *recordingPublisher) Publish(_ context.Context, c events.Change) error {
	r.changes = append(r.changes, c)
	return nil
}

func seedAccount(t *testing.T, store *memstore.Store, active bool) *models.EmailAccount {
	t.Helper()
	n := len(mustList(t, store)) + 1
	account := &models.EmailAccount{Address: fmt.Sprintf("me%d@example.com", n), IMAPHost: "imap.example.com", IMAPPort: 993, IsActive: active}
	if err := store.EmailAccounts().Create(context.Background(), account); err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}
	return account
}

func mustList(t *testing.T, store *memstore.Store) []*models.EmailAccount {
	t.Helper()
	accounts, err := store.EmailAccounts().List(context.Background(), false)
	if err != nil {
		t.Fatalf("Failed to list accounts: %v", err)
	}
	return accounts
}

func inboxEmail(accountID int64, messageID string) *models.Email {
	return &models.Email{
		AccountID:  &accountID,
		MessageID:  messageID,
		Subject:    "subject " + messageID,
		Folder:     models.FolderInbox,
		ReceivedAt: time.Now(),
	}
}

func TestSyncAccountStoresNewMessages(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	account := seedAccount(t, store, true)
	fetcher := &mockFetcher{fetchFunc: func(_ context.Context, a *models.EmailAccount, limit int) ([]*models.Email, error) {
		if limit != 10 {
			t.Errorf("Expected limit 10, got %d", limit)
		}
		return []*models.Email{inboxEmail(a.ID, "<1@x>"), inboxEmail(a.ID, "<2@x>")}, nil
	}}
	pub := &recordingPublisher{}
	syncer := NewEmailSyncer(store.EmailAccounts(), store.Emails(), fetcher, pub, zap.NewNop(),
		WithDeduper(newMockDeduper()), WithFetchLimit(10))

	res, err := syncer.SyncAccount(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("SyncAccount() error = %v", err)
	}
	if res.Fetched != 2 || res.Stored != 2 {
		t.Errorf("Expected 2 fetched / 2 stored, got %+v", res)
	}
	if len(pub.changes) != 1 || !pub.changes[0].Touches(events.EmailList(models.FolderInbox)) {
		t.Errorf("Expected one INBOX change, got %+v", pub.changes)
	}

	stored, _ := store.EmailAccounts().GetByID(context.Background(), account.ID)
	if stored.LastSyncAt == nil {
		t.Error("Expected last_sync_at to be set")
	}

	// Second run sees the same messages: nothing new, no change
	res, err = syncer.SyncAccount(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("SyncAccount() second run error = %v", err)
	}
	if res.Stored != 0 {
		t.Errorf("Expected nothing stored on second run, got %d", res.Stored)
	}
	if len(pub.changes) != 1 {
		t.Errorf("Expected no extra change, got %d", len(pub.changes))
	}
}

func TestSyncAccountWithoutDeduperIsStillIdempotent(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	account := seedAccount(t, store, true)
	fetcher := &mockFetcher{fetchFunc: func(_ context.Context, a *models.EmailAccount, _ int) ([]*models.Email, error) {
		return []*models.Email{inboxEmail(a.ID, "<1@x>")}, nil
	}}
	syncer := NewEmailSyncer(store.EmailAccounts(), store.Emails(), fetcher, nil, zap.NewNop())

	for i, want := range []int{1, 0} {
		res, err := syncer.SyncAccount(context.Background(), account.ID)
		if err != nil {
			t.Fatalf("SyncAccount() run %d error = %v", i, err)
		}
		if res.Stored != want {
			t.Errorf("Run %d: expected %d stored, got %d", i, want, res.Stored)
		}
	}
}

func TestSyncAccountSkipsDeletedMessages(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.New()
	account := seedAccount(t, store, true)
	fetcher := &mockFetcher{fetchFunc: func(_ context.Context, a *models.EmailAccount, _ int) ([]*models.Email, error) {
		return []*models.Email{inboxEmail(a.ID, "<spam@x>"), inboxEmail(a.ID, "<keep@x>")}, nil
	}}
	syncer := NewEmailSyncer(store.EmailAccounts(), store.Emails(), fetcher, nil, zap.NewNop())

	if _, err := syncer.SyncAccount(ctx, account.ID); err != nil {
		t.Fatalf("SyncAccount() error = %v", err)
	}
	emails, err := store.Emails().List(ctx, models.EmailFilter{})
	if err != nil {
		t.Fatalf("Failed to list emails: %v", err)
	}
	for _, e := range emails {
		if e.MessageID == "<spam@x>" {
			if err := store.Emails().Delete(ctx, e.ID); err != nil {
				t.Fatalf("Failed to delete email: %v", err)
			}
		}
	}

	// The mailbox is read-only, so the next fetch still returns the deleted message
	res, err := syncer.SyncAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("SyncAccount() second run error = %v", err)
	}
	if res.Stored != 0 {
		t.Errorf("Expected deleted message to stay deleted, got %d stored", res.Stored)
	}
	emails, _ = store.Emails().List(ctx, models.EmailFilter{})
	if len(emails) != 1 || emails[0].MessageID != "<keep@x>" {
		t.Errorf("Expected only <keep@x> left, got %d emails", len(emails))
	}
}

func TestSyncAccountFetchFailureWritesNothing(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	account := seedAccount(t, store, true)
	fetcher := &mockFetcher{fetchFunc: func(context.Context, *models.EmailAccount, int) ([]*models.Email, error) {
		return nil, mail.ErrGateway
	}}
	syncer := NewEmailSyncer(store.EmailAccounts(), store.Emails(), fetcher, nil, zap.NewNop())

	if _, err := syncer.SyncAccount(context.Background(), account.ID); !errors.Is(err, mail.ErrGateway) {
		t.Fatalf("Expected ErrGateway, got %v", err)
	}
	stored, _ := store.EmailAccounts().GetByID(context.Background(), account.ID)
	if stored.LastSyncAt != nil {
		t.Error("Expected last_sync_at untouched after a failed fetch")
	}
}

func TestSyncAccountReleasesClaimWhenInsertFails(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	account := seedAccount(t, store, true)
	store.FailOn("emails.InsertIfNew", errors.New("connection reset"))
	fetcher := &mockFetcher{fetchFunc: func(_ context.Context, a *models.EmailAccount, _ int) ([]*models.Email, error) {
		return []*models.Email{inboxEmail(a.ID, "<1@x>")}, nil
	}}
	dedup := newMockDeduper()
	syncer := NewEmailSyncer(store.EmailAccounts(), store.Emails(), fetcher, nil, zap.NewNop(), WithDeduper(dedup))

	if _, err := syncer.SyncAccount(context.Background(), account.ID); err == nil {
		t.Fatal("Expected error when insert fails")
	}
	if len(dedup.forgot) != 1 {
		t.Errorf("Expected the dedup claim to be released, got %v", dedup.forgot)
	}
}

func TestSyncAccountDedupOutageFallsBackToInsert(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	account := seedAccount(t, store, true)
	fetcher := &mockFetcher{fetchFunc: func(_ context.Context, a *models.EmailAccount, _ int) ([]*models.Email, error) {
		return []*models.Email{inboxEmail(a.ID, "<1@x>")}, nil
	}}
	dedup := newMockDeduper()
	dedup.err = errors.New("redis down")
	syncer := NewEmailSyncer(store.EmailAccounts(), store.Emails(), fetcher, nil, zap.NewNop(), WithDeduper(dedup))

	res, err := syncer.SyncAccount(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("SyncAccount() error = %v", err)
	}
	if res.Stored != 1 {
		t.Errorf("Expected 1 stored, got %d", res.Stored)
	}
}

func TestSyncAccountSkipsInactive(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	account := seedAccount(t, store, false)
	fetcher := &mockFetcher{}
	syncer := NewEmailSyncer(store.EmailAccounts(), store.Emails(), fetcher, nil, zap.NewNop())

	if _, err := syncer.SyncAccount(context.Background(), account.ID); err != nil {
		t.Fatalf("SyncAccount() error = %v", err)
	}
	if fetcher.calls != 0 {
		t.Errorf("Expected no fetch for an inactive account, got %d", fetcher.calls)
	}
}

func TestSyncAllWithoutAccounts(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	syncer := NewEmailSyncer(store.EmailAccounts(), store.Emails(), &mockFetcher{}, nil, zap.NewNop())
	if _, err := syncer.SyncAll(context.Background()); !errors.Is(err, mail.ErrNoAccount) {
		t.Errorf("Expected ErrNoAccount, got %v", err)
	}
}

func TestEnqueueAll(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	active := seedAccount(t, store, true)
	seedAccount(t, store, false)
	q := &mockJobQueue{}
	syncer := NewEmailSyncer(store.EmailAccounts(), store.Emails(), &mockFetcher{}, nil, zap.NewNop())

	n, err := syncer.EnqueueAll(context.Background(), q, time.Minute)
	if err != nil {
		t.Fatalf("EnqueueAll() error = %v", err)
	}
	if n != 1 || len(q.enqueued) != 1 {
		t.Fatalf("Expected 1 job, got %d", n)
	}
	job := q.enqueued[0]
	if job.Type != queue.JobTypeEmailSync || job.AccountID != active.ID || job.NotAfter == nil {
		t.Errorf("Unexpected job %+v", job)
	}
}

func TestProcessJob(t *testing.T) {
	t.Parallel()

	gatewayDown := func(context.Context, *models.EmailAccount, int) ([]*models.Email, error) {
		return nil, mail.ErrGateway
	}

	tests := []struct {
		name         string
		jobType      queue.JobType
		retryCount   int
		accountID    int64
		fetch        func(context.Context, *models.EmailAccount, int) ([]*models.Email, error)
		queue        *mockJobQueue
		wantErr      bool
		wantAck      bool
		wantNack     bool
		wantRequeue  bool
		wantEnqueued int
	}{
		{name: "success acks", jobType: queue.JobTypeEmailSync, wantAck: true},
		{name: "unknown type dead-letters", jobType: "bogus", wantErr: true, wantNack: true},
		{name: "failure re-enqueues with backoff", jobType: queue.JobTypeEmailSync, fetch: gatewayDown, queue: &mockJobQueue{}, wantErr: true, wantAck: true, wantEnqueued: 1},
		{name: "failure requeues when enqueue fails", jobType: queue.JobTypeEmailSync, fetch: gatewayDown, queue: &mockJobQueue{enqueueErr: errors.New("closed")}, wantErr: true, wantNack: true, wantRequeue: true},
		{name: "failure without queue requeues", jobType: queue.JobTypeEmailSync, fetch: gatewayDown, wantErr: true, wantNack: true, wantRequeue: true},
		{name: "retries exhausted dead-letters", jobType: queue.JobTypeEmailSync, retryCount: queue.DefaultMaxRetries, fetch: gatewayDown, queue: &mockJobQueue{}, wantErr: true, wantNack: true},
		{name: "missing account dead-letters", jobType: queue.JobTypeEmailSync, accountID: 999, queue: &mockJobQueue{}, wantErr: true, wantNack: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := memstore.New()
			account := seedAccount(t, store, true)

			opts := []EmailSyncerOption{WithRetryDelay(time.Second)}
			if tt.queue != nil {
				opts = append(opts, WithJobQueue(tt.queue))
			}
			syncer := NewEmailSyncer(store.EmailAccounts(), store.Emails(), &mockFetcher{fetchFunc: tt.fetch}, nil, zap.NewNop(), opts...)

			accountID := account.ID
			if tt.accountID != 0 {
				accountID = tt.accountID
			}
			job := queue.NewJob(tt.jobType, accountID)
			job.RetryCount = tt.retryCount
			msg := &mockMessage{job: job}

			err := syncer.ProcessJob(context.Background(), msg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ProcessJob() error = %v, wantErr %v", err, tt.wantErr)
			}
			if msg.acked != tt.wantAck {
				t.Errorf("Expected acked=%v, got %v", tt.wantAck, msg.acked)
			}
			if msg.nacked != tt.wantNack {
				t.Errorf("Expected nacked=%v, got %v", tt.wantNack, msg.nacked)
			}
			if msg.requeued != tt.wantRequeue {
				t.Errorf("Expected requeue=%v, got %v", tt.wantRequeue, msg.requeued)
			}
			if tt.queue != nil && len(tt.queue.enqueued) != tt.wantEnqueued {
				t.Errorf("Expected %d re-enqueued jobs, got %d", tt.wantEnqueued, len(tt.queue.enqueued))
			}
			if tt.wantEnqueued > 0 {
				retry := tt.queue.enqueued[0]
				if retry.RetryCount != tt.retryCount+1 || retry.NotBefore == nil || retry.ID != job.ID {
					t.Errorf("Unexpected retry job %+v", retry)
				}
			}
		})
	}
}
