package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/gtd/internal/health"
)

// HealthScorer computes the GTD health snapshot
type HealthScorer interface {
	Snapshot(ctx context.Context) (health.Snapshot, error)
}

// DashboardHandler serves the dashboard scores
type DashboardHandler struct {
	scorer HealthScorer
	logger *zap.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(scorer HealthScorer, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{scorer: scorer, logger: logger}
}

// RegisterRoutes registers dashboard routes on a router that already carries the /dashboard prefix
func (h *DashboardHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.GetHealth).Methods("GET")
}

// GetHealth returns the five habit scores and their inputs
func (h *DashboardHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	snap, err := h.scorer.Snapshot(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, "compute health", err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

var _ HealthScorer = (*health.Service)(nil)
