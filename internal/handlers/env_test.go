package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/gtd/internal/database/memstore"
	"github.com/benvon/gtd/internal/events"
	"github.com/benvon/gtd/internal/health"
	"github.com/benvon/gtd/internal/models"
	"github.com/benvon/gtd/internal/services/calendar"
	"github.com/benvon/gtd/internal/services/inbox"
	"github.com/benvon/gtd/internal/services/mail"
	"github.com/benvon/gtd/internal/workers"
)

type recordingPublisher struct {
	mu      sync.Mutex
	changes []events.Change
}

func (p *recordingPublisher) Publish(_ context.Context, c events.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
	return nil
}

func (p *recordingPublisher) last(t *testing.T) events.Change {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.changes) == 0 {
		t.Fatal("Expected a published change, got none")
	}
	return p.changes[len(p.changes)-1]
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.changes)
}

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []*mail.Outgoing
}

func (f *fakeSender) Send(_ context.Context, _ *models.EmailAccount, msg *mail.Outgoing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if msg.MessageID == "" {
		msg.MessageID = fmt.Sprintf("<sent-%d@example.com>", len(f.sent)+1)
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeFetcher struct {
	results []*workers.SyncResult
	err     error
}

func (f *fakeFetcher) SyncAll(context.Context) ([]*workers.SyncResult, error) {
	return f.results, f.err
}

type fakeCalendar struct {
	configured bool
	status     calendar.Status
	events     []models.CalendarEvent
	err        error
	gotDays    int
	gotState   string
	exchanged  string
}

func (f *fakeCalendar) Configured() bool { return f.configured }

func (f *fakeCalendar) AuthURL(state string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.gotState = state
	return "https://accounts.example.com/auth?state=" + state, nil
}

func (f *fakeCalendar) Exchange(_ context.Context, code string) error {
	if f.err != nil {
		return f.err
	}
	f.exchanged = code
	return nil
}

func (f *fakeCalendar) Status(context.Context) (calendar.Status, error) {
	return f.status, f.err
}

func (f *fakeCalendar) UpcomingEvents(_ context.Context, days, _ int) ([]models.CalendarEvent, error) {
	f.gotDays = days
	return f.events, f.err
}

var (
	_ events.Publisher = (*recordingPublisher)(nil)
	_ mail.Sender      = (*fakeSender)(nil)
	_ Fetcher          = (*fakeFetcher)(nil)
	_ CalendarService  = (*fakeCalendar)(nil)
)

// testEnv wires every API handler over one memstore
type testEnv struct {
	store    *memstore.Store
	pub      *recordingPublisher
	sender   *fakeSender
	fetcher  *fakeFetcher
	calendar *fakeCalendar
	router   *mux.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zap.NewNop()
	env := &testEnv{
		store:    memstore.New(),
		pub:      &recordingPublisher{},
		sender:   &fakeSender{},
		fetcher:  &fakeFetcher{},
		calendar: &fakeCalendar{configured: true},
		router:   mux.NewRouter(),
	}
	s := env.store
	processor := inbox.NewProcessor(s, s.Tasks(), s.Projects(), s.Emails(), env.pub, log)
	mailer := mail.NewService(s.EmailAccounts(), s.Emails(), env.sender, env.pub, log)
	scorer := health.NewService(s.Tasks(), s.Projects(), s.Emails(), s.WeeklyReviews(), log)

	api := env.router.PathPrefix("/api").Subrouter()
	NewTaskHandler(s.Tasks(), processor, env.pub, log).RegisterRoutes(api.PathPrefix("/tasks").Subrouter())
	NewProjectHandler(s.Projects(), env.pub, log).RegisterRoutes(api.PathPrefix("/projects").Subrouter())
	NewContextHandler(s.Contexts(), env.pub, log).RegisterRoutes(api.PathPrefix("/contexts").Subrouter())
	NewEmailHandler(s.Emails(), processor, mailer, env.fetcher, env.pub, log).RegisterRoutes(api.PathPrefix("/emails").Subrouter())
	NewEmailAccountHandler(s.EmailAccounts(), env.pub, log).RegisterRoutes(api.PathPrefix("/email-accounts").Subrouter())
	cal := NewCalendarHandler(env.calendar, 7, "", log)
	calRouter := api.PathPrefix("/calendar").Subrouter()
	cal.RegisterRoutes(calRouter)
	cal.RegisterCallback(calRouter)
	NewWeeklyReviewHandler(s.WeeklyReviews(), env.pub, log).RegisterRoutes(api.PathPrefix("/weekly-reviews").Subrouter())
	NewDashboardHandler(scorer, log).RegisterRoutes(api.PathPrefix("/dashboard").Subrouter())
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// decodeData unwraps the success envelope into dst
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !envelope.Success {
		t.Fatalf("Expected success envelope, got %s", string(envelope.Data))
	}
	if err := json.Unmarshal(envelope.Data, dst); err != nil {
		t.Fatalf("Failed to decode data: %v", err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("Expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func (e *testEnv) seedTask(t *testing.T, task *models.Task) *models.Task {
	t.Helper()
	if err := e.store.Tasks().Create(context.Background(), task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	return task
}

func (e *testEnv) seedEmail(t *testing.T, email *models.Email) *models.Email {
	t.Helper()
	if err := e.store.Emails().Create(context.Background(), email); err != nil {
		t.Fatalf("Failed to create email: %v", err)
	}
	return email
}

func (e *testEnv) seedAccount(t *testing.T) *models.EmailAccount {
	t.Helper()
	account := &models.EmailAccount{
		Address:  "me@example.com",
		IMAPHost: "imap.example.com",
		IMAPPort: 993,
		SMTPHost: "smtp.example.com",
		SMTPPort: 587,
		Username: "me",
		Password: "secret",
		UseTLS:   true,
		IsActive: true,
	}
	if err := e.store.EmailAccounts().Create(context.Background(), account); err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}
	return account
}
