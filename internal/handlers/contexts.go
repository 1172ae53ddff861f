package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/gtd/internal/database"
	"github.com/benvon/gtd/internal/events"
	"github.com/benvon/gtd/internal/models"
	"github.com/benvon/gtd/internal/validation"
)

// ContextHandler handles context requests
type ContextHandler struct {
	contexts  database.ContextRepositoryInterface
	publisher events.Publisher
	logger    *zap.Logger
}

// NewContextHandler creates a new context handler
func NewContextHandler(contexts database.ContextRepositoryInterface, publisher events.Publisher, logger *zap.Logger) *ContextHandler {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &ContextHandler{contexts: contexts, publisher: publisher, logger: logger}
}

// RegisterRoutes registers context routes on a router that already carries the /contexts prefix
func (h *ContextHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListContexts).Methods("GET")
	r.HandleFunc("", h.CreateContext).Methods("POST")
	r.HandleFunc("/{id:[0-9]+}", h.GetContext).Methods("GET")
	r.HandleFunc("/{id:[0-9]+}", h.UpdateContext).Methods("PATCH")
	r.HandleFunc("/{id:[0-9]+}", h.DeleteContext).Methods("DELETE")
}

// ContextRequest creates or updates a context. Names are unique case-insensitively.
type ContextRequest struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=100"`
	Color *string `json:"color,omitempty" validate:"omitempty,hexcolor_or_empty"`
}

// ListContexts lists every context
func (h *ContextHandler) ListContexts(w http.ResponseWriter, r *http.Request) {
	contexts, err := h.contexts.List(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, "list contexts", err)
		return
	}
	respondJSON(w, http.StatusOK, contexts)
}

// CreateContext creates a context
func (h *ContextHandler) CreateContext(w http.ResponseWriter, r *http.Request) {
	var req ContextRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == nil || validation.SanitizeText(*req.Name) == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Name is required")
		return
	}

	c := &models.Context{Name: validation.SanitizeText(*req.Name)}
	if req.Color != nil {
		c.Color = *req.Color
	}
	if err := h.contexts.Create(r.Context(), c); err != nil {
		respondServiceError(w, h.logger, "create context", err)
		return
	}
	publish(r, h.publisher, h.logger, events.NewChange(events.EntityContext, c.ID, events.ActionCreated, events.ListContexts))
	respondJSON(w, http.StatusCreated, c)
}

// GetContext returns one context
func (h *ContextHandler) GetContext(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := h.contexts.GetByID(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, "get context", err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// UpdateContext renames or recolors a context
func (h *ContextHandler) UpdateContext(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ContextRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	c, err := h.contexts.GetByID(ctx, id)
	if err != nil {
		respondServiceError(w, h.logger, "get context", err)
		return
	}
	if req.Name != nil {
		name := validation.SanitizeText(*req.Name)
		if name == "" {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Name cannot be empty")
			return
		}
		c.Name = name
	}
	if req.Color != nil {
		c.Color = *req.Color
	}

	if err := h.contexts.Update(ctx, c); err != nil {
		respondServiceError(w, h.logger, "update context", err)
		return
	}
	publish(r, h.publisher, h.logger, events.NewChange(events.EntityContext, id, events.ActionUpdated, events.ListContexts))
	respondJSON(w, http.StatusOK, c)
}

// DeleteContext removes a context. Tasks keep existing without it.
func (h *ContextHandler) DeleteContext(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.contexts.Delete(r.Context(), id); err != nil {
		respondServiceError(w, h.logger, "delete context", err)
		return
	}
	publish(r, h.publisher, h.logger, events.NewChange(events.EntityContext, id, events.ActionDeleted, events.ListContexts))
	w.WriteHeader(http.StatusNoContent)
}
