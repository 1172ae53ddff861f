package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/gtd/internal/database"
	"github.com/benvon/gtd/internal/events"
	"github.com/benvon/gtd/internal/models"
	"github.com/benvon/gtd/internal/validation"
)

// WeeklyReviewHandler records completed weekly reviews
type WeeklyReviewHandler struct {
	reviews   database.WeeklyReviewRepositoryInterface
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewWeeklyReviewHandler creates a new weekly review handler
func NewWeeklyReviewHandler(reviews database.WeeklyReviewRepositoryInterface, publisher events.Publisher, logger *zap.Logger) *WeeklyReviewHandler {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &WeeklyReviewHandler{reviews: reviews, publisher: publisher, logger: logger, now: time.Now}
}

// RegisterRoutes registers review routes on a router that already carries the /weekly-reviews prefix
func (h *WeeklyReviewHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListReviews).Methods("GET")
	r.HandleFunc("", h.CreateReview).Methods("POST")
	r.HandleFunc("/latest", h.LatestReview).Methods("GET")
}

// CreateWeeklyReviewRequest is the summary written at the end of a review
type CreateWeeklyReviewRequest struct {
	ProjectsReviewed     int     `json:"projects_reviewed" validate:"gte=0"`
	StalledProjectsFound int     `json:"stalled_projects_found" validate:"gte=0"`
	WaitingForReviewed   int     `json:"waiting_for_reviewed" validate:"gte=0"`
	SomedayReviewed      int     `json:"someday_reviewed" validate:"gte=0"`
	CompletedTasksCount  int     `json:"completed_tasks_count" validate:"gte=0"`
	Notes                *string `json:"notes,omitempty" validate:"omitempty,max=10000"`
}

// ListReviews lists reviews, most recent first
func (h *WeeklyReviewHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.reviews.List(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, "list weekly reviews", err)
		return
	}
	respondJSON(w, http.StatusOK, reviews)
}

// LatestReview returns the most recent review, 404 when none was recorded
func (h *WeeklyReviewHandler) LatestReview(w http.ResponseWriter, r *http.Request) {
	review, err := h.reviews.Latest(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, "get latest weekly review", err)
		return
	}
	respondJSON(w, http.StatusOK, review)
}

// CreateReview records a completed review stamped with the current time
func (h *WeeklyReviewHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	var req CreateWeeklyReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	review := &models.WeeklyReview{
		CompletedAt:          h.now().UTC(),
		ProjectsReviewed:     req.ProjectsReviewed,
		StalledProjectsFound: req.StalledProjectsFound,
		WaitingForReviewed:   req.WaitingForReviewed,
		SomedayReviewed:      req.SomedayReviewed,
		CompletedTasksCount:  req.CompletedTasksCount,
		Notes:                validation.SanitizeOptional(req.Notes),
	}
	if err := h.reviews.Create(r.Context(), review); err != nil {
		respondServiceError(w, h.logger, "create weekly review", err)
		return
	}
	publish(r, h.publisher, h.logger, events.NewChange(events.EntityWeeklyReview, review.ID, events.ActionCreated, events.ListWeeklyReviews, events.ListDashboard))
	respondJSON(w, http.StatusCreated, review)
}
