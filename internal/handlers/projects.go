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

// ProjectHandler handles project requests
type ProjectHandler struct {
	projects  database.ProjectRepositoryInterface
	publisher events.Publisher
	logger    *zap.Logger
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(projects database.ProjectRepositoryInterface, publisher events.Publisher, logger *zap.Logger) *ProjectHandler {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &ProjectHandler{projects: projects, publisher: publisher, logger: logger}
}

// RegisterRoutes registers project routes on a router that already carries the /projects prefix
func (h *ProjectHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListProjects).Methods("GET")
	r.HandleFunc("", h.CreateProject).Methods("POST")
	r.HandleFunc("/stalled", h.ListStalled).Methods("GET")
	r.HandleFunc("/{id:[0-9]+}", h.GetProject).Methods("GET")
	r.HandleFunc("/{id:[0-9]+}", h.UpdateProject).Methods("PATCH")
	r.HandleFunc("/{id:[0-9]+}", h.DeleteProject).Methods("DELETE")
}

// CreateProjectRequest represents a create project request
type CreateProjectRequest struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=10000"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// UpdateProjectRequest represents a partial project update
type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=10000"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// ListProjects lists projects; ?active=true limits to active ones
func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	active, err := queryBool(r, "active")
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	projects, err := h.projects.List(r.Context(), active != nil && *active)
	if err != nil {
		respondServiceError(w, h.logger, "list projects", err)
		return
	}
	respondJSON(w, http.StatusOK, projects)
}

// ListStalled lists active projects without a next action
func (h *ProjectHandler) ListStalled(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.ListStalled(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, "list stalled projects", err)
		return
	}
	respondJSON(w, http.StatusOK, projects)
}

// CreateProject creates a project. New projects are active unless told otherwise.
func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	name := validation.SanitizeText(req.Name)
	if name == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Name is required and cannot be empty after sanitization")
		return
	}

	project := &models.Project{
		Name:        name,
		Description: validation.SanitizeOptional(req.Description),
		IsActive:    req.IsActive == nil || *req.IsActive,
	}
	if err := h.projects.Create(r.Context(), project); err != nil {
		respondServiceError(w, h.logger, "create project", err)
		return
	}

	publish(r, h.publisher, h.logger, events.NewChange(events.EntityProject, project.ID, events.ActionCreated, events.ListProjects, events.ListDashboard))
	respondJSON(w, http.StatusCreated, project)
}

// GetProject returns one project
func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	project, err := h.projects.GetByID(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, "get project", err)
		return
	}
	respondJSON(w, http.StatusOK, project)
}

// UpdateProject applies a partial update
func (h *ProjectHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	project, err := h.projects.GetByID(ctx, id)
	if err != nil {
		respondServiceError(w, h.logger, "get project", err)
		return
	}
	if req.Name != nil {
		name := validation.SanitizeText(*req.Name)
		if name == "" {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Name cannot be empty")
			return
		}
		project.Name = name
	}
	if req.Description != nil {
		project.Description = validation.SanitizeOptional(req.Description)
	}
	if req.IsActive != nil {
		project.IsActive = *req.IsActive
	}

	if err := h.projects.Update(ctx, project); err != nil {
		respondServiceError(w, h.logger, "update project", err)
		return
	}
	publish(r, h.publisher, h.logger, events.NewChange(events.EntityProject, id, events.ActionUpdated, events.ListProjects, events.ListDashboard))
	respondJSON(w, http.StatusOK, project)
}

// DeleteProject removes a project. Its tasks stay and lose the project link.
func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.projects.Delete(r.Context(), id); err != nil {
		respondServiceError(w, h.logger, "delete project", err)
		return
	}
	publish(r, h.publisher, h.logger, events.NewChange(events.EntityProject, id, events.ActionDeleted, events.ListProjects, events.ListDashboard))
	w.WriteHeader(http.StatusNoContent)
}
