package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sort"
	"time"
)

// Version is set at build time with -ldflags "-X github.com/benvon/gtd/internal/handlers.Version=..."
var Version = "dev"

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

// HealthChecker handles health check requests
type HealthChecker struct {
	checks  map[string]CheckFunc
	timeout time.Duration
}

// NewHealthChecker creates a new health checker. Nil checks are skipped.
func NewHealthChecker(checks map[string]CheckFunc) *HealthChecker {
	filtered := make(map[string]CheckFunc, len(checks))
	for name, fn := range checks {
		if fn != nil {
			filtered[name] = fn
		}
	}
	return &HealthChecker{checks: filtered, timeout: 5 * time.Second}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// VersionResponse describes the running build
type VersionResponse struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
}

// HealthCheck handles the /healthz endpoint. ?mode=extended probes every dependency.
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	statusCode := http.StatusOK

	if r.URL.Query().Get("mode") == "extended" {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		names := make([]string, 0, len(h.checks))
		for name := range h.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		response.Checks = make(map[string]string, len(names))
		for _, name := range names {
			if err := h.checks[name](ctx); err != nil {
				response.Status = "unhealthy"
				response.Checks[name] = "unhealthy: " + err.Error()
				continue
			}
			response.Checks[name] = "healthy"
		}
		if response.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// VersionInfo handles the /version endpoint
func (h *HealthChecker) VersionInfo(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(VersionResponse{Version: Version, GoVersion: runtime.Version()})
}
