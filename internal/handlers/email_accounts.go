package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/gtd/internal/database"
	"github.com/benvon/gtd/internal/events"
	"github.com/benvon/gtd/internal/models"
)

// EmailAccountHandler handles mailbox configuration requests
type EmailAccountHandler struct {
	accounts  database.EmailAccountRepositoryInterface
	publisher events.Publisher
	logger    *zap.Logger
}

// NewEmailAccountHandler creates a new email account handler
func NewEmailAccountHandler(accounts database.EmailAccountRepositoryInterface, publisher events.Publisher, logger *zap.Logger) *EmailAccountHandler {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &EmailAccountHandler{accounts: accounts, publisher: publisher, logger: logger}
}

// RegisterRoutes registers account routes on a router that already carries the /email-accounts prefix
func (h *EmailAccountHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListAccounts).Methods("GET")
	r.HandleFunc("", h.CreateAccount).Methods("POST")
	r.HandleFunc("/{id:[0-9]+}", h.UpdateAccount).Methods("PATCH")
	r.HandleFunc("/{id:[0-9]+}", h.DeleteAccount).Methods("DELETE")
}

// CreateEmailAccountRequest configures a mailbox. The password is write-only.
type CreateEmailAccountRequest struct {
	Address  string `json:"address" validate:"required,email,max=256"`
	IMAPHost string `json:"imap_host" validate:"required,hostname|ip"`
	IMAPPort int    `json:"imap_port" validate:"required,min=1,max=65535"`
	SMTPHost string `json:"smtp_host" validate:"required,hostname|ip"`
	SMTPPort int    `json:"smtp_port" validate:"required,min=1,max=65535"`
	Username string `json:"username" validate:"required,max=256"`
	Password string `json:"password" validate:"required,max=1024"`
	UseTLS   *bool  `json:"use_tls,omitempty"`
	IsActive *bool  `json:"is_active,omitempty"`
}

// UpdateEmailAccountRequest changes some settings of a mailbox
type UpdateEmailAccountRequest struct {
	IMAPHost *string `json:"imap_host,omitempty" validate:"omitempty,hostname|ip"`
	IMAPPort *int    `json:"imap_port,omitempty" validate:"omitempty,min=1,max=65535"`
	SMTPHost *string `json:"smtp_host,omitempty" validate:"omitempty,hostname|ip"`
	SMTPPort *int    `json:"smtp_port,omitempty" validate:"omitempty,min=1,max=65535"`
	Username *string `json:"username,omitempty" validate:"omitempty,max=256"`
	Password *string `json:"password,omitempty" validate:"omitempty,max=1024"`
	UseTLS   *bool   `json:"use_tls,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// ListAccounts lists every configured mailbox
func (h *EmailAccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.List(r.Context(), false)
	if err != nil {
		respondServiceError(w, h.logger, "list email accounts", err)
		return
	}
	respondJSON(w, http.StatusOK, accounts)
}

// CreateAccount adds a mailbox. TLS and the active flag default to on.
func (h *EmailAccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateEmailAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	account := &models.EmailAccount{
		Address:  strings.ToLower(strings.TrimSpace(req.Address)),
		IMAPHost: req.IMAPHost,
		IMAPPort: req.IMAPPort,
		SMTPHost: req.SMTPHost,
		SMTPPort: req.SMTPPort,
		Username: req.Username,
		Password: req.Password,
		UseTLS:   req.UseTLS == nil || *req.UseTLS,
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	if err := h.accounts.Create(r.Context(), account); err != nil {
		respondServiceError(w, h.logger, "create email account", err)
		return
	}
	h.logger.Info("email_account_created", zap.Int64("account_id", account.ID))
	publish(r, h.publisher, h.logger, events.NewChange(events.EntityEmailAccount, account.ID, events.ActionCreated, events.ListEmailAccounts))
	respondJSON(w, http.StatusCreated, account)
}

// UpdateAccount applies a partial update
func (h *EmailAccountHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateEmailAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	account, err := h.accounts.GetByID(ctx, id)
	if err != nil {
		respondServiceError(w, h.logger, "get email account", err)
		return
	}
	if req.IMAPHost != nil {
		account.IMAPHost = *req.IMAPHost
	}
	if req.IMAPPort != nil {
		account.IMAPPort = *req.IMAPPort
	}
	if req.SMTPHost != nil {
		account.SMTPHost = *req.SMTPHost
	}
	if req.SMTPPort != nil {
		account.SMTPPort = *req.SMTPPort
	}
	if req.Username != nil {
		account.Username = *req.Username
	}
	if req.Password != nil {
		account.Password = *req.Password
	}
	if req.UseTLS != nil {
		account.UseTLS = *req.UseTLS
	}
	if req.IsActive != nil {
		account.IsActive = *req.IsActive
	}

	if err := h.accounts.Update(ctx, account); err != nil {
		respondServiceError(w, h.logger, "update email account", err)
		return
	}
	publish(r, h.publisher, h.logger, events.NewChange(events.EntityEmailAccount, id, events.ActionUpdated, events.ListEmailAccounts))
	respondJSON(w, http.StatusOK, account)
}

// DeleteAccount removes a mailbox. Stored mail stays.
func (h *EmailAccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.accounts.Delete(r.Context(), id); err != nil {
		respondServiceError(w, h.logger, "delete email account", err)
		return
	}
	publish(r, h.publisher, h.logger, events.NewChange(events.EntityEmailAccount, id, events.ActionDeleted, events.ListEmailAccounts))
	w.WriteHeader(http.StatusNoContent)
}
