// Package memstore is an in-memory implementation of the database repository
// interfaces. It is exported so tests in other packages can share it.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benvon/gtd/internal/database"
	"github.com/benvon/gtd/internal/models"
)

// Store holds every table in memory. WithTx restores the previous state when fn fails.
type Store struct {
	mu       sync.Mutex
	nextID   int64
	tasks    map[int64]models.Task
	projects map[int64]models.Project
	contexts map[int64]models.Context
	emails   map[int64]models.Email
	accounts map[int64]models.EmailAccount
	reviews  map[int64]models.WeeklyReview
	token    *models.CalendarToken
	deleted  map[string]bool
	failures map[string]error
	now      func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		tasks:    map[int64]models.Task{},
		projects: map[int64]models.Project{},
		contexts: map[int64]models.Context{},
		emails:   map[int64]models.Email{},
		accounts: map[int64]models.EmailAccount{},
		reviews:  map[int64]models.WeeklyReview{},
		deleted:  map[string]bool{},
		failures: map[string]error{},
		now:      time.Now,
	}
}

// SetNow overrides the clock used for timestamps
func (s *Store) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailOn makes the named operation (e.g. "tasks.Create") return err until cleared with a nil err
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) fail(op string) error {
	return s.failures[op]
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

type txKey struct{}

type snapshot struct {
	nextID   int64
	tasks    map[int64]models.Task
	projects map[int64]models.Project
	contexts map[int64]models.Context
	emails   map[int64]models.Email
	accounts map[int64]models.EmailAccount
	reviews  map[int64]models.WeeklyReview
	token    *models.CalendarToken
	deleted  map[string]bool
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// WithTx runs fn and rolls every table back if it returns an error
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	if err := s.fail("tx.Begin"); err != nil {
		s.mu.Unlock()
		return err
	}
	snap := snapshot{
		nextID:   s.nextID,
		tasks:    cloneMap(s.tasks),
		projects: cloneMap(s.projects),
		contexts: cloneMap(s.contexts),
		emails:   cloneMap(s.emails),
		accounts: cloneMap(s.accounts),
		reviews:  cloneMap(s.reviews),
		token:    s.token,
		deleted:  cloneMap(s.deleted),
	}
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.nextID = snap.nextID
		s.tasks = snap.tasks
		s.projects = snap.projects
		s.contexts = snap.contexts
		s.emails = snap.emails
		s.accounts = snap.accounts
		s.reviews = snap.reviews
		s.token = snap.token
		s.deleted = snap.deleted
		s.mu.Unlock()
		return err
	}
	return nil
}

// Tasks returns the task repository
func (s *Store) Tasks() *Tasks { return &Tasks{s: s} }

// Projects returns the project repository
func (s *Store) Projects() *Projects { return &Projects{s: s} }

// Contexts returns the context repository
func (s *Store) Contexts() *Contexts { return &Contexts{s: s} }

// Emails returns the email repository
func (s *Store) Emails() *Emails { return &Emails{s: s} }

// EmailAccounts returns the email account repository
func (s *Store) EmailAccounts() *EmailAccounts { return &EmailAccounts{s: s} }

// WeeklyReviews returns the weekly review repository
func (s *Store) WeeklyReviews() *WeeklyReviews { return &WeeklyReviews{s: s} }

// CalendarTokens returns the calendar token repository
func (s *Store) CalendarTokens() *CalendarTokens { return &CalendarTokens{s: s} }

func notFound(entity string, id int64) error {
	return fmt.Errorf("%s %d: %w", entity, id, database.ErrNotFound)
}

func invalidReference(entity, field string, id int64) error {
	return fmt.Errorf("%s %s %d: %w", entity, field, id, database.ErrInvalidReference)
}

// checkTaskRefs mirrors the foreign keys on tasks. Callers hold s.mu.
func (s *Store) checkTaskRefs(t *models.Task) error {
	if t.ProjectID != nil {
		if _, ok := s.projects[*t.ProjectID]; !ok {
			return invalidReference("task", "project", *t.ProjectID)
		}
	}
	if t.ContextID != nil {
		if _, ok := s.contexts[*t.ContextID]; !ok {
			return invalidReference("task", "context", *t.ContextID)
		}
	}
	if t.EmailID != nil {
		if _, ok := s.emails[*t.EmailID]; !ok {
			return invalidReference("task", "email", *t.EmailID)
		}
	}
	return nil
}

// checkEmailRefs mirrors the foreign key on emails. Callers hold s.mu.
func (s *Store) checkEmailRefs(e *models.Email) error {
	if e.AccountID != nil {
		if _, ok := s.accounts[*e.AccountID]; !ok {
			return invalidReference("email", "account", *e.AccountID)
		}
	}
	return nil
}

// Tasks is the in-memory task repository
type Tasks struct{ s *Store }

func (r *Tasks) Create(_ context.Context, task *models.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("tasks.Create"); err != nil {
		return err
	}
	if err := r.s.checkTaskRefs(task); err != nil {
		return err
	}
	now := r.s.now()
	if task.Status == "" {
		task.Status = models.TaskStatusInbox
	}
	if task.Status == models.TaskStatusDone && task.CompletedAt == nil {
		task.CompletedAt = &now
	}
	task.ID = r.s.id()
	task.CreatedAt = now
	task.UpdatedAt = now
	r.s.tasks[task.ID] = *task
	return nil
}

func (r *Tasks) GetByID(_ context.Context, id int64) (*models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return nil, notFound("task", id)
	}
	return &t, nil
}

func (r *Tasks) List(_ context.Context, filter models.TaskFilter) ([]*models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.Task{}
	for _, t := range r.s.tasks {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.ProjectID != nil && (t.ProjectID == nil || *t.ProjectID != *filter.ProjectID) {
			continue
		}
		if filter.ContextID != nil && (t.ContextID == nil || *t.ContextID != *filter.ContextID) {
			continue
		}
		t := t
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *Tasks) Update(_ context.Context, task *models.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("tasks.Update"); err != nil {
		return err
	}
	if _, ok := r.s.tasks[task.ID]; !ok {
		return notFound("task", task.ID)
	}
	if err := r.s.checkTaskRefs(task); err != nil {
		return err
	}
	task.UpdatedAt = r.s.now()
	r.s.tasks[task.ID] = *task
	return nil
}

func (r *Tasks) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tasks[id]; !ok {
		return notFound("task", id)
	}
	delete(r.s.tasks, id)
	return nil
}

func (r *Tasks) IncrementDeferCount(_ context.Context, id int64) (*models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return nil, notFound("task", id)
	}
	t.DeferCount++
	t.UpdatedAt = r.s.now()
	r.s.tasks[id] = t
	return &t, nil
}

func (r *Tasks) count(match func(models.Task) bool) int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, t := range r.s.tasks {
		if match(t) {
			n++
		}
	}
	return n
}

func (r *Tasks) CountByStatus(_ context.Context, status models.TaskStatus) (int, error) {
	return r.count(func(t models.Task) bool { return t.Status == status }), nil
}

func (r *Tasks) CountCompletedSince(_ context.Context, since time.Time) (int, error) {
	return r.count(func(t models.Task) bool {
		return t.Status == models.TaskStatusDone && t.CompletedAt != nil && !t.CompletedAt.Before(since)
	}), nil
}

func (r *Tasks) CountStaleWaiting(_ context.Context, now time.Time) (int, error) {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return r.count(func(t models.Task) bool {
		return t.Status == models.TaskStatusWaiting && t.WaitingForFollowUp != nil && t.WaitingForFollowUp.Before(today)
	}), nil
}

func (r *Tasks) CountDeferredInbox(_ context.Context) (int, error) {
	return r.count(func(t models.Task) bool { return t.Status == models.TaskStatusInbox && t.DeferCount > 0 }), nil
}

// Projects is the in-memory project repository
type Projects struct{ s *Store }

func (r *Projects) Create(_ context.Context, p *models.Project) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("projects.Create"); err != nil {
		return err
	}
	now := r.s.now()
	p.ID = r.s.id()
	p.CreatedAt = now
	p.UpdatedAt = now
	r.s.projects[p.ID] = *p
	return nil
}

func (r *Projects) GetByID(_ context.Context, id int64) (*models.Project, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.projects[id]
	if !ok {
		return nil, notFound("project", id)
	}
	return &p, nil
}

func (r *Projects) list(match func(models.Project) bool) []*models.Project {
	out := []*models.Project{}
	for _, p := range r.s.projects {
		if match(p) {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *Projects) hasNextAction(id int64) bool {
	for _, t := range r.s.tasks {
		if t.ProjectID != nil && *t.ProjectID == id && t.Status == models.TaskStatusNextAction {
			return true
		}
	}
	return false
}

func (r *Projects) List(_ context.Context, activeOnly bool) ([]*models.Project, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(func(p models.Project) bool { return !activeOnly || p.IsActive }), nil
}

func (r *Projects) ListStalled(_ context.Context) ([]*models.Project, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(func(p models.Project) bool { return p.IsActive && !r.hasNextAction(p.ID) }), nil
}

func (r *Projects) Update(_ context.Context, p *models.Project) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.projects[p.ID]
	if !ok {
		return notFound("project", p.ID)
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = r.s.now()
	r.s.projects[p.ID] = *p
	return nil
}

func (r *Projects) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.projects[id]; !ok {
		return notFound("project", id)
	}
	delete(r.s.projects, id)
	for tid, t := range r.s.tasks {
		if t.ProjectID != nil && *t.ProjectID == id {
			t.ProjectID = nil
			r.s.tasks[tid] = t
		}
	}
	return nil
}

func (r *Projects) CountActive(_ context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.list(func(p models.Project) bool { return p.IsActive })), nil
}

func (r *Projects) CountActiveWithNextAction(_ context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.list(func(p models.Project) bool { return p.IsActive && r.hasNextAction(p.ID) })), nil
}

// Contexts is the in-memory context repository
type Contexts struct{ s *Store }

func (r *Contexts) nameTaken(name string, except int64) bool {
	for _, c := range r.s.contexts {
		if c.ID != except && strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func (r *Contexts) Create(_ context.Context, c *models.Context) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.nameTaken(c.Name, 0) {
		return fmt.Errorf("context %q: %w", c.Name, database.ErrConflict)
	}
	c.ID = r.s.id()
	c.CreatedAt = r.s.now()
	r.s.contexts[c.ID] = *c
	return nil
}

func (r *Contexts) GetByID(_ context.Context, id int64) (*models.Context, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.contexts[id]
	if !ok {
		return nil, notFound("context", id)
	}
	return &c, nil
}

func (r *Contexts) List(_ context.Context) ([]*models.Context, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.Context{}
	for _, c := range r.s.contexts {
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Contexts) Update(_ context.Context, c *models.Context) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.contexts[c.ID]
	if !ok {
		return notFound("context", c.ID)
	}
	if r.nameTaken(c.Name, c.ID) {
		return fmt.Errorf("context %q: %w", c.Name, database.ErrConflict)
	}
	c.CreatedAt = existing.CreatedAt
	r.s.contexts[c.ID] = *c
	return nil
}

func (r *Contexts) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.contexts[id]; !ok {
		return notFound("context", id)
	}
	delete(r.s.contexts, id)
	for tid, t := range r.s.tasks {
		if t.ContextID != nil && *t.ContextID == id {
			t.ContextID = nil
			r.s.tasks[tid] = t
		}
	}
	return nil
}

// Emails is the in-memory email repository
type Emails struct{ s *Store }

func (r *Emails) messageIDTaken(messageID string, except int64) bool {
	for _, e := range r.s.emails {
		if e.ID != except && e.MessageID == messageID {
			return true
		}
	}
	return false
}

func (r *Emails) insert(e *models.Email) {
	now := r.s.now()
	if e.Folder == "" {
		e.Folder = models.FolderInbox
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = now
	}
	e.ID = r.s.id()
	e.CreatedAt = now
	e.UpdatedAt = now
	r.s.emails[e.ID] = *e
}

func (r *Emails) Create(_ context.Context, e *models.Email) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("emails.Create"); err != nil {
		return err
	}
	if r.messageIDTaken(e.MessageID, 0) {
		return fmt.Errorf("email %q: %w", e.MessageID, database.ErrConflict)
	}
	if err := r.s.checkEmailRefs(e); err != nil {
		return err
	}
	r.insert(e)
	return nil
}

func (r *Emails) InsertIfNew(_ context.Context, e *models.Email) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("emails.InsertIfNew"); err != nil {
		return false, err
	}
	if r.messageIDTaken(e.MessageID, 0) || r.s.deleted[e.MessageID] {
		return false, nil
	}
	if err := r.s.checkEmailRefs(e); err != nil {
		return false, err
	}
	r.insert(e)
	return true, nil
}

func (r *Emails) GetByID(_ context.Context, id int64) (*models.Email, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.emails[id]
	if !ok {
		return nil, notFound("email", id)
	}
	return &e, nil
}

func (r *Emails) List(_ context.Context, filter models.EmailFilter) ([]*models.Email, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.Email{}
	for _, e := range r.s.emails {
		if filter.Folder != nil && e.Folder != *filter.Folder {
			continue
		}
		if filter.Processed != nil && e.Processed != *filter.Processed {
			continue
		}
		e := e
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.After(out[j].ReceivedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *Emails) Update(_ context.Context, e *models.Email) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.emails[e.ID]
	if !ok {
		return notFound("email", e.ID)
	}
	if r.messageIDTaken(e.MessageID, e.ID) {
		return fmt.Errorf("email %q: %w", e.MessageID, database.ErrConflict)
	}
	if err := r.s.checkEmailRefs(e); err != nil {
		return err
	}
	e.CreatedAt = existing.CreatedAt
	e.UpdatedAt = r.s.now()
	r.s.emails[e.ID] = *e
	return nil
}

func (r *Emails) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("emails.Delete"); err != nil {
		return err
	}
	e, ok := r.s.emails[id]
	if !ok {
		return notFound("email", id)
	}
	delete(r.s.emails, id)
	r.s.deleted[e.MessageID] = true
	for tid, t := range r.s.tasks {
		if t.EmailID != nil && *t.EmailID == id {
			t.EmailID = nil
			r.s.tasks[tid] = t
		}
	}
	return nil
}

func (r *Emails) SetFolder(_ context.Context, id int64, folder models.EmailFolder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.emails[id]
	if !ok {
		return notFound("email", id)
	}
	e.Folder = folder
	e.UpdatedAt = r.s.now()
	r.s.emails[id] = e
	return nil
}

func (r *Emails) MarkProcessed(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("emails.MarkProcessed"); err != nil {
		return err
	}
	e, ok := r.s.emails[id]
	if !ok {
		return notFound("email", id)
	}
	e.Processed = true
	e.UpdatedAt = r.s.now()
	r.s.emails[id] = e
	return nil
}

func (r *Emails) CountUnprocessedInbox(_ context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, e := range r.s.emails {
		if e.Folder == models.FolderInbox && !e.Processed {
			n++
		}
	}
	return n, nil
}

func (r *Emails) CountUnprocessedOlderThan(_ context.Context, t time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, e := range r.s.emails {
		if e.Folder == models.FolderInbox && !e.Processed && e.ReceivedAt.Before(t) {
			n++
		}
	}
	return n, nil
}

// EmailAccounts is the in-memory email account repository
type EmailAccounts struct{ s *Store }

func (r *EmailAccounts) Create(_ context.Context, a *models.EmailAccount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.accounts {
		if existing.Address == a.Address {
			return fmt.Errorf("email account %q: %w", a.Address, database.ErrConflict)
		}
	}
	now := r.s.now()
	a.ID = r.s.id()
	a.CreatedAt = now
	a.UpdatedAt = now
	r.s.accounts[a.ID] = *a
	return nil
}

func (r *EmailAccounts) GetByID(_ context.Context, id int64) (*models.EmailAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, notFound("email account", id)
	}
	return &a, nil
}

func (r *EmailAccounts) GetByAddress(_ context.Context, address string) (*models.EmailAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if a.Address == address {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("email account %q: %w", address, database.ErrNotFound)
}

func (r *EmailAccounts) List(_ context.Context, activeOnly bool) ([]*models.EmailAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.EmailAccount{}
	for _, a := range r.s.accounts {
		if activeOnly && !a.IsActive {
			continue
		}
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *EmailAccounts) Update(_ context.Context, a *models.EmailAccount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.accounts[a.ID]
	if !ok {
		return notFound("email account", a.ID)
	}
	a.CreatedAt = existing.CreatedAt
	a.LastSyncAt = existing.LastSyncAt
	a.UpdatedAt = r.s.now()
	r.s.accounts[a.ID] = *a
	return nil
}

func (r *EmailAccounts) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.accounts[id]; !ok {
		return notFound("email account", id)
	}
	delete(r.s.accounts, id)
	for eid, e := range r.s.emails {
		if e.AccountID != nil && *e.AccountID == id {
			e.AccountID = nil
			r.s.emails[eid] = e
		}
	}
	return nil
}

func (r *EmailAccounts) TouchLastSync(_ context.Context, id int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return notFound("email account", id)
	}
	a.LastSyncAt = &at
	r.s.accounts[id] = a
	return nil
}

// WeeklyReviews is the in-memory weekly review repository
type WeeklyReviews struct{ s *Store }

func (r *WeeklyReviews) Create(_ context.Context, wr *models.WeeklyReview) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if wr.CompletedAt.IsZero() {
		wr.CompletedAt = r.s.now()
	}
	wr.ID = r.s.id()
	r.s.reviews[wr.ID] = *wr
	return nil
}

func (r *WeeklyReviews) sorted() []*models.WeeklyReview {
	out := []*models.WeeklyReview{}
	for _, wr := range r.s.reviews {
		wr := wr
		out = append(out, &wr)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].CompletedAt.After(out[j].CompletedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r *WeeklyReviews) List(_ context.Context) ([]*models.WeeklyReview, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.sorted(), nil
}

func (r *WeeklyReviews) Latest(_ context.Context) (*models.WeeklyReview, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := r.sorted()
	if len(all) == 0 {
		return nil, fmt.Errorf("weekly review: %w", database.ErrNotFound)
	}
	return all[0], nil
}

func (r *WeeklyReviews) CountCompletedSince(_ context.Context, since time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, wr := range r.s.reviews {
		if !wr.CompletedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// CalendarTokens is the in-memory calendar token repository
type CalendarTokens struct{ s *Store }

func (r *CalendarTokens) Get(_ context.Context) (*models.CalendarToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.token == nil {
		return nil, fmt.Errorf("calendar token: %w", database.ErrNotFound)
	}
	tok := *r.s.token
	return &tok, nil
}

func (r *CalendarTokens) Save(_ context.Context, tok *models.CalendarToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	saved := *tok
	if saved.RefreshToken == "" && r.s.token != nil {
		saved.RefreshToken = r.s.token.RefreshToken
	}
	saved.UpdatedAt = r.s.now()
	tok.UpdatedAt = saved.UpdatedAt
	r.s.token = &saved
	return nil
}

var (
	_ database.TxRunner                         = (*Store)(nil)
	_ database.TaskRepositoryInterface          = (*Tasks)(nil)
	_ database.ProjectRepositoryInterface       = (*Projects)(nil)
	_ database.ContextRepositoryInterface       = (*Contexts)(nil)
	_ database.EmailRepositoryInterface         = (*Emails)(nil)
	_ database.EmailAccountRepositoryInterface  = (*EmailAccounts)(nil)
	_ database.WeeklyReviewRepositoryInterface  = (*WeeklyReviews)(nil)
	_ database.CalendarTokenRepositoryInterface = (*CalendarTokens)(nil)
)
