package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/gtd/internal/clarify"
	"github.com/benvon/gtd/internal/database"
	"github.com/benvon/gtd/internal/events"
	"github.com/benvon/gtd/internal/models"
	"github.com/benvon/gtd/internal/services/inbox"
	"github.com/benvon/gtd/internal/validation"
)

// TaskHandler handles task-related requests
type TaskHandler struct {
	tasks     database.TaskRepositoryInterface
	processor *inbox.Processor
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(tasks database.TaskRepositoryInterface, processor *inbox.Processor, publisher events.Publisher, logger *zap.Logger) *TaskHandler {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &TaskHandler{tasks: tasks, processor: processor, publisher: publisher, logger: logger, now: time.Now}
}

// RegisterRoutes registers task routes on a router that already carries the /tasks prefix
func (h *TaskHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListTasks).Methods("GET")
	r.HandleFunc("", h.CreateTask).Methods("POST")
	r.HandleFunc("/status/{status}", h.ListByStatus).Methods("GET")
	r.HandleFunc("/{id:[0-9]+}", h.GetTask).Methods("GET")
	r.HandleFunc("/{id:[0-9]+}", h.UpdateTask).Methods("PATCH")
	r.HandleFunc("/{id:[0-9]+}", h.DeleteTask).Methods("DELETE")
	r.HandleFunc("/{id:[0-9]+}/defer", h.DeferTask).Methods("POST")
	r.HandleFunc("/{id:[0-9]+}/clarify", h.ClarifyTask).Methods("POST")
}

// CreateTaskRequest represents a create task request. Status defaults to inbox.
type CreateTaskRequest struct {
	Title              string               `json:"title" validate:"required,max=500"`
	Description        *string              `json:"description,omitempty" validate:"omitempty,max=10000"`
	Status             *models.TaskStatus   `json:"status,omitempty" validate:"omitempty,task_status"`
	ProjectID          *int64               `json:"project_id,omitempty" validate:"omitempty,gt=0"`
	ContextID          *int64               `json:"context_id,omitempty" validate:"omitempty,gt=0"`
	DueDate            *string              `json:"due_date,omitempty"`
	TimeEstimate       *models.TimeEstimate `json:"time_estimate,omitempty" validate:"omitempty,time_estimate"`
	EnergyLevel        *models.EnergyLevel  `json:"energy_level,omitempty" validate:"omitempty,energy_level"`
	WaitingFor         *string              `json:"waiting_for,omitempty" validate:"omitempty,max=200"`
	WaitingForFollowUp *string              `json:"waiting_for_follow_up,omitempty"`
	ReferenceCategory  *string              `json:"reference_category,omitempty" validate:"omitempty,max=200"`
	Notes              *string              `json:"notes,omitempty" validate:"omitempty,max=10000"`
}

// UpdateTaskRequest represents a partial task update. Omitted fields are left alone.
type UpdateTaskRequest struct {
	Title              *string              `json:"title,omitempty" validate:"omitempty,max=500"`
	Description        *string              `json:"description,omitempty" validate:"omitempty,max=10000"`
	Status             *models.TaskStatus   `json:"status,omitempty" validate:"omitempty,task_status"`
	ProjectID          *int64               `json:"project_id,omitempty" validate:"omitempty,gte=0"`
	ContextID          *int64               `json:"context_id,omitempty" validate:"omitempty,gte=0"`
	DueDate            *string              `json:"due_date,omitempty"`
	TimeEstimate       *models.TimeEstimate `json:"time_estimate,omitempty" validate:"omitempty,time_estimate"`
	EnergyLevel        *models.EnergyLevel  `json:"energy_level,omitempty" validate:"omitempty,energy_level"`
	WaitingFor         *string              `json:"waiting_for,omitempty" validate:"omitempty,max=200"`
	WaitingForFollowUp *string              `json:"waiting_for_follow_up,omitempty"`
	ReferenceCategory  *string              `json:"reference_category,omitempty" validate:"omitempty,max=200"`
	Notes              *string              `json:"notes,omitempty" validate:"omitempty,max=10000"`
}

// optionalDate parses an optional date field. An empty string clears it.
func optionalDate(raw *string) (*time.Time, bool, error) {
	if raw == nil {
		return nil, false, nil
	}
	if *raw == "" {
		return nil, true, nil
	}
	t, err := models.ParseDate(*raw)
	if err != nil {
		return nil, false, err
	}
	return &t, true, nil
}

// optionalID maps 0 to "clear the reference"
func optionalID(id *int64) *int64 {
	if id == nil || *id == 0 {
		return nil
	}
	return id
}

func taskLists(statuses ...models.TaskStatus) []string {
	lists := make([]string, 0, len(statuses)+1)
	for _, s := range statuses {
		lists = append(lists, events.TaskList(s))
	}
	return append(lists, events.ListDashboard)
}

// ListTasks lists tasks filtered by status, project_id and context_id
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	var filter models.TaskFilter

	if s := r.URL.Query().Get("status"); s != "" {
		if err := validation.ValidateTaskStatus(s); err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		status := models.TaskStatus(s)
		filter.Status = &status
	}

	var err error
	if filter.ProjectID, err = queryInt64(r, "project_id"); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if filter.ContextID, err = queryInt64(r, "context_id"); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	tasks, err := h.tasks.List(r.Context(), filter)
	if err != nil {
		respondServiceError(w, h.logger, "list tasks", err)
		return
	}
	respondJSON(w, http.StatusOK, tasks)
}

// ListByStatus lists the tasks in one bucket
func (h *TaskHandler) ListByStatus(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["status"]
	if err := validation.ValidateTaskStatus(raw); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	status := models.TaskStatus(raw)

	tasks, err := h.tasks.List(r.Context(), models.TaskFilter{Status: &status})
	if err != nil {
		respondServiceError(w, h.logger, "list tasks", err)
		return
	}
	respondJSON(w, http.StatusOK, tasks)
}

// CreateTask captures a new task
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	title := validation.SanitizeText(req.Title)
	if title == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Title is required and cannot be empty after sanitization")
		return
	}

	due, _, err := optionalDate(req.DueDate)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid due_date")
		return
	}
	followUp, _, err := optionalDate(req.WaitingForFollowUp)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid waiting_for_follow_up")
		return
	}

	now := h.now()
	task := &models.Task{
		Title:              title,
		Description:        validation.SanitizeOptional(req.Description),
		Status:             models.TaskStatusInbox,
		ProjectID:          req.ProjectID,
		ContextID:          req.ContextID,
		DueDate:            due,
		TimeEstimate:       req.TimeEstimate,
		EnergyLevel:        req.EnergyLevel,
		WaitingFor:         validation.SanitizeOptional(req.WaitingFor),
		WaitingForFollowUp: followUp,
		ReferenceCategory:  validation.SanitizeOptional(req.ReferenceCategory),
		Notes:              validation.SanitizeOptional(req.Notes),
	}
	if req.Status != nil {
		task.SetStatus(*req.Status, now)
	}

	if err := h.tasks.Create(r.Context(), task); err != nil {
		respondServiceError(w, h.logger, "create task", err)
		return
	}

	publish(r, h.publisher, h.logger, events.NewChange(events.EntityTask, task.ID, events.ActionCreated, taskLists(task.Status)...))
	respondJSON(w, http.StatusCreated, task)
}

// GetTask returns one task
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	task, err := h.tasks.GetByID(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, "get task", err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// UpdateTask applies a partial update
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	task, err := h.tasks.GetByID(ctx, id)
	if err != nil {
		respondServiceError(w, h.logger, "get task", err)
		return
	}
	oldStatus := task.Status
	oldProject := task.ProjectID

	if req.Title != nil {
		title := validation.SanitizeText(*req.Title)
		if title == "" {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Title cannot be empty")
			return
		}
		task.Title = title
	}
	if req.Description != nil {
		task.Description = validation.SanitizeOptional(req.Description)
	}
	if req.ProjectID != nil {
		task.ProjectID = optionalID(req.ProjectID)
	}
	if req.ContextID != nil {
		task.ContextID = optionalID(req.ContextID)
	}
	if due, set, err := optionalDate(req.DueDate); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid due_date")
		return
	} else if set {
		task.DueDate = due
	}
	if followUp, set, err := optionalDate(req.WaitingForFollowUp); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid waiting_for_follow_up")
		return
	} else if set {
		task.WaitingForFollowUp = followUp
	}
	if req.TimeEstimate != nil {
		task.TimeEstimate = req.TimeEstimate
	}
	if req.EnergyLevel != nil {
		task.EnergyLevel = req.EnergyLevel
	}
	if req.WaitingFor != nil {
		task.WaitingFor = validation.SanitizeOptional(req.WaitingFor)
	}
	if req.ReferenceCategory != nil {
		task.ReferenceCategory = validation.SanitizeOptional(req.ReferenceCategory)
	}
	if req.Notes != nil {
		task.Notes = validation.SanitizeOptional(req.Notes)
	}
	if req.Status != nil {
		task.SetStatus(*req.Status, h.now())
	}

	if err := h.tasks.Update(ctx, task); err != nil {
		respondServiceError(w, h.logger, "update task", err)
		return
	}

	lists := taskLists(oldStatus, task.Status)
	if !sameID(oldProject, task.ProjectID) {
		lists = append(lists, events.ListProjects)
	}
	publish(r, h.publisher, h.logger, events.NewChange(events.EntityTask, task.ID, events.ActionUpdated, lists...))
	respondJSON(w, http.StatusOK, task)
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// DeleteTask removes a task
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	task, err := h.tasks.GetByID(ctx, id)
	if err != nil {
		respondServiceError(w, h.logger, "get task", err)
		return
	}
	if err := h.tasks.Delete(ctx, id); err != nil {
		respondServiceError(w, h.logger, "delete task", err)
		return
	}

	lists := taskLists(task.Status)
	if task.ProjectID != nil {
		lists = append(lists, events.ListProjects)
	}
	publish(r, h.publisher, h.logger, events.NewChange(events.EntityTask, id, events.ActionDeleted, lists...))
	w.WriteHeader(http.StatusNoContent)
}

// DeferTask leaves an inbox task in place and counts the deferral
func (h *TaskHandler) DeferTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	task, err := h.tasks.GetByID(ctx, id)
	if err != nil {
		respondServiceError(w, h.logger, "get task", err)
		return
	}
	task, err = h.processor.Defer(ctx, task)
	if err != nil {
		respondServiceError(w, h.logger, "defer task", err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// ClarifyTask applies a processing result to a task
func (h *TaskHandler) ClarifyTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var result clarify.Result
	if !decodeJSON(w, r, &result) {
		return
	}

	ctx := r.Context()
	task, err := h.tasks.GetByID(ctx, id)
	if err != nil {
		respondServiceError(w, h.logger, "get task", err)
		return
	}
	out, err := h.processor.Apply(ctx, clarify.TaskItem{Task: task}, result)
	if err != nil {
		respondServiceError(w, h.logger, "apply processing result", err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}
