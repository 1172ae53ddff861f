package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/gtd/internal/clarify"
	"github.com/benvon/gtd/internal/database"
	"github.com/benvon/gtd/internal/events"
	"github.com/benvon/gtd/internal/models"
	"github.com/benvon/gtd/internal/services/inbox"
	"github.com/benvon/gtd/internal/services/mail"
	"github.com/benvon/gtd/internal/validation"
	"github.com/benvon/gtd/internal/workers"
)

// Mailer sends outgoing mail and files the SENT copy
type Mailer interface {
	Send(ctx context.Context, req mail.SendRequest) (*models.Email, error)
	Reply(ctx context.Context, id int64, body string) (*models.Email, error)
	Forward(ctx context.Context, id int64, to []string, note string) (*models.Email, error)
}

// Fetcher pulls new mail for every active account
type Fetcher interface {
	SyncAll(ctx context.Context) ([]*workers.SyncResult, error)
}

// EmailHandler handles email requests
type EmailHandler struct {
	emails    database.EmailRepositoryInterface
	processor *inbox.Processor
	mailer    Mailer
	fetcher   Fetcher
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewEmailHandler creates a new email handler
func NewEmailHandler(
	emails database.EmailRepositoryInterface,
	processor *inbox.Processor,
	mailer Mailer,
	fetcher Fetcher,
	publisher events.Publisher,
	logger *zap.Logger,
) *EmailHandler {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &EmailHandler{
		emails:    emails,
		processor: processor,
		mailer:    mailer,
		fetcher:   fetcher,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// RegisterRoutes registers email routes on a router that already carries the /emails prefix
func (h *EmailHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListEmails).Methods("GET")
	r.HandleFunc("", h.CreateDraft).Methods("POST")
	r.HandleFunc("/send", h.SendEmail).Methods("POST")
	r.HandleFunc("/fetch", h.FetchEmails).Methods("POST")
	r.HandleFunc("/{id:[0-9]+}", h.GetEmail).Methods("GET")
	r.HandleFunc("/{id:[0-9]+}", h.UpdateEmail).Methods("PATCH")
	r.HandleFunc("/{id:[0-9]+}", h.DeleteEmail).Methods("DELETE")
	r.HandleFunc("/{id:[0-9]+}/archive", h.ArchiveEmail).Methods("POST")
	r.HandleFunc("/{id:[0-9]+}/move", h.MoveEmail).Methods("POST")
	r.HandleFunc("/{id:[0-9]+}/process", h.ProcessEmail).Methods("POST")
	r.HandleFunc("/{id:[0-9]+}/reply", h.ReplyEmail).Methods("POST")
	r.HandleFunc("/{id:[0-9]+}/forward", h.ForwardEmail).Methods("POST")
	r.HandleFunc("/{id:[0-9]+}/clarify", h.ClarifyEmail).Methods("POST")
}

// DraftRequest creates or edits a draft
type DraftRequest struct {
	AccountID *int64   `json:"account_id,omitempty" validate:"omitempty,gt=0"`
	To        []string `json:"to,omitempty" validate:"omitempty,dive,email"`
	CC        []string `json:"cc,omitempty" validate:"omitempty,dive,email"`
	BCC       []string `json:"bcc,omitempty" validate:"omitempty,dive,email"`
	Subject   *string  `json:"subject,omitempty" validate:"omitempty,max=998"`
	Content   *string  `json:"content,omitempty" validate:"omitempty,max=1000000"`
}

// SendEmailRequest sends a new message
type SendEmailRequest struct {
	AccountID *int64   `json:"account_id,omitempty" validate:"omitempty,gt=0"`
	To        []string `json:"to" validate:"required,min=1,dive,email"`
	CC        []string `json:"cc,omitempty" validate:"omitempty,dive,email"`
	BCC       []string `json:"bcc,omitempty" validate:"omitempty,dive,email"`
	Subject   string   `json:"subject" validate:"max=998"`
	Body      string   `json:"body" validate:"max=1000000"`
}

// ReplyRequest answers a stored email
type ReplyRequest struct {
	Body string `json:"body" validate:"required,max=1000000"`
}

// ForwardRequest sends a stored email on
type ForwardRequest struct {
	To   []string `json:"to" validate:"required,min=1,dive,email"`
	Note string   `json:"note,omitempty" validate:"max=1000000"`
}

// MoveRequest files an email under another folder
type MoveRequest struct {
	Folder models.EmailFolder `json:"folder" validate:"required,email_folder"`
}

// ListEmails lists emails, optionally filtered by ?folder= and ?processed=
func (h *EmailHandler) ListEmails(w http.ResponseWriter, r *http.Request) {
	var filter models.EmailFilter
	if raw := r.URL.Query().Get("folder"); raw != "" {
		if err := validation.ValidateEmailFolder(raw); err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		folder := models.EmailFolder(raw)
		filter.Folder = &folder
	}
	processed, err := queryBool(r, "processed")
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	filter.Processed = processed

	emails, err := h.emails.List(r.Context(), filter)
	if err != nil {
		respondServiceError(w, h.logger, "list emails", err)
		return
	}
	respondJSON(w, http.StatusOK, emails)
}

// CreateDraft stores a local draft. Nothing is sent.
func (h *EmailHandler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	email := &models.Email{
		AccountID:  req.AccountID,
		MessageID:  "<" + uuid.NewString() + "@gtd.local>",
		Recipients: nonNil(req.To),
		CC:         nonNil(req.CC),
		BCC:        nonNil(req.BCC),
		Folder:     models.FolderDrafts,
		Processed:  true,
		Flags:      []string{},
		ReceivedAt: h.now().UTC(),
	}
	if req.Subject != nil {
		email.Subject = validation.SanitizeText(*req.Subject)
	}
	if req.Content != nil {
		email.Content = *req.Content
	}

	if err := h.emails.Create(r.Context(), email); err != nil {
		respondServiceError(w, h.logger, "create draft", err)
		return
	}
	publish(r, h.publisher, h.logger, events.NewChange(events.EntityEmail, email.ID, events.ActionCreated, events.EmailList(models.FolderDrafts)))
	respondJSON(w, http.StatusCreated, email)
}

// GetEmail returns one email
func (h *EmailHandler) GetEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	email, err := h.emails.GetByID(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, "get email", err)
		return
	}
	respondJSON(w, http.StatusOK, email)
}

// UpdateEmail edits a draft. Received and sent mail is immutable apart from its folder.
func (h *EmailHandler) UpdateEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req DraftRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	email, err := h.emails.GetByID(ctx, id)
	if err != nil {
		respondServiceError(w, h.logger, "get email", err)
		return
	}
	if email.Folder != models.FolderDrafts {
		respondJSONError(w, http.StatusConflict, "Conflict", "Only drafts can be edited")
		return
	}
	if req.AccountID != nil {
		email.AccountID = req.AccountID
	}
	if req.To != nil {
		email.Recipients = req.To
	}
	if req.CC != nil {
		email.CC = req.CC
	}
	if req.BCC != nil {
		email.BCC = req.BCC
	}
	if req.Subject != nil {
		email.Subject = validation.SanitizeText(*req.Subject)
	}
	if req.Content != nil {
		email.Content = *req.Content
	}

	if err := h.emails.Update(ctx, email); err != nil {
		respondServiceError(w, h.logger, "update email", err)
		return
	}
	publish(r, h.publisher, h.logger, events.NewChange(events.EntityEmail, id, events.ActionUpdated, events.EmailList(email.Folder)))
	respondJSON(w, http.StatusOK, email)
}

// DeleteEmail removes an email. Tasks created from it keep existing.
func (h *EmailHandler) DeleteEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	email, err := h.emails.GetByID(ctx, id)
	if err != nil {
		respondServiceError(w, h.logger, "get email", err)
		return
	}
	if err := h.emails.Delete(ctx, id); err != nil {
		respondServiceError(w, h.logger, "delete email", err)
		return
	}
	publish(r, h.publisher, h.logger, events.NewChange(events.EntityEmail, id, events.ActionDeleted, events.EmailList(email.Folder), events.ListDashboard))
	w.WriteHeader(http.StatusNoContent)
}

// ArchiveEmail files an email under ARCHIVED
func (h *EmailHandler) ArchiveEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	h.move(w, r, id, models.FolderArchived)
}

// MoveEmail files an email under the requested folder
func (h *EmailHandler) MoveEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req MoveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.move(w, r, id, req.Folder)
}

func (h *EmailHandler) move(w http.ResponseWriter, r *http.Request, id int64, folder models.EmailFolder) {
	ctx := r.Context()
	email, err := h.emails.GetByID(ctx, id)
	if err != nil {
		respondServiceError(w, h.logger, "get email", err)
		return
	}
	from := email.Folder
	if err := h.emails.SetFolder(ctx, id, folder); err != nil {
		respondServiceError(w, h.logger, "move email", err)
		return
	}
	email.Folder = folder

	publish(r, h.publisher, h.logger, events.NewChange(events.EntityEmail, id, events.ActionUpdated,
		events.EmailList(from), events.EmailList(folder), events.ListDashboard))
	respondJSON(w, http.StatusOK, email)
}

// ProcessEmail marks an email processed without creating anything from it
func (h *EmailHandler) ProcessEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	email, err := h.emails.GetByID(ctx, id)
	if err != nil {
		respondServiceError(w, h.logger, "get email", err)
		return
	}
	if err := h.emails.MarkProcessed(ctx, id); err != nil {
		respondServiceError(w, h.logger, "process email", err)
		return
	}
	email.Processed = true

	publish(r, h.publisher, h.logger, events.NewChange(events.EntityEmail, id, events.ActionUpdated, events.EmailList(email.Folder), events.ListDashboard))
	respondJSON(w, http.StatusOK, email)
}

// SendEmail sends a new message from the given or default account
func (h *EmailHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	var req SendEmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sent, err := h.mailer.Send(r.Context(), mail.SendRequest{
		AccountID: req.AccountID,
		To:        req.To,
		CC:        req.CC,
		BCC:       req.BCC,
		Subject:   validation.SanitizeText(req.Subject),
		Body:      req.Body,
	})
	if err != nil {
		respondServiceError(w, h.logger, "send email", err)
		return
	}
	respondJSON(w, http.StatusCreated, sent)
}

// ReplyEmail answers a stored email
func (h *EmailHandler) ReplyEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ReplyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sent, err := h.mailer.Reply(r.Context(), id, req.Body)
	if err != nil {
		respondServiceError(w, h.logger, "reply to email", err)
		return
	}
	respondJSON(w, http.StatusCreated, sent)
}

// ForwardEmail forwards a stored email
func (h *EmailHandler) ForwardEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ForwardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sent, err := h.mailer.Forward(r.Context(), id, req.To, req.Note)
	if err != nil {
		respondServiceError(w, h.logger, "forward email", err)
		return
	}
	respondJSON(w, http.StatusCreated, sent)
}

// ClarifyEmail applies a processing result to an email
func (h *EmailHandler) ClarifyEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var result clarify.Result
	if !decodeJSON(w, r, &result) {
		return
	}

	ctx := r.Context()
	email, err := h.emails.GetByID(ctx, id)
	if err != nil {
		respondServiceError(w, h.logger, "get email", err)
		return
	}
	out, err := h.processor.Apply(ctx, clarify.EmailItem{Email: email}, result)
	if err != nil {
		respondServiceError(w, h.logger, "clarify email", err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// FetchEmails syncs every active account now
func (h *EmailHandler) FetchEmails(w http.ResponseWriter, r *http.Request) {
	if h.fetcher == nil {
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Email fetching is not configured")
		return
	}
	results, err := h.fetcher.SyncAll(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, "fetch emails", err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
