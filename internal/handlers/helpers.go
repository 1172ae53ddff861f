package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/gtd/internal/clarify"
	"github.com/benvon/gtd/internal/database"
	"github.com/benvon/gtd/internal/events"
	logpkg "github.com/benvon/gtd/internal/logger"
	"github.com/benvon/gtd/internal/services/calendar"
	"github.com/benvon/gtd/internal/services/inbox"
	"github.com/benvon/gtd/internal/services/mail"
	"github.com/benvon/gtd/internal/validation"
)

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// sanitizeErrorMessage removes internal details from error messages
func sanitizeErrorMessage(message string) string {
	if len(message) > 200 {
		message = message[:200] + "..."
	}
	return message
}

// respondJSONError sends an error JSON response with sanitized error messages
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   false,
		"error":     errorType,
		"message":   sanitizeErrorMessage(message),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondServiceError maps domain errors onto HTTP statuses.
// Only client-facing errors echo their message; everything else is logged and hidden.
func respondServiceError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		respondJSONError(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, clarify.ErrInvalidInput),
		errors.Is(err, inbox.ErrInvalidResult),
		errors.Is(err, database.ErrInvalidReference),
		errors.Is(err, mail.ErrInvalidMessage):
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, database.ErrConflict),
		errors.Is(err, calendar.ErrNotConnected),
		errors.Is(err, mail.ErrNoAccount):
		respondJSONError(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, mail.ErrGateway), errors.Is(err, calendar.ErrGateway):
		logger.Warn("gateway_request_failed", zap.String("operation", op), zap.String("error", logpkg.SanitizeError(err)))
		respondJSONError(w, http.StatusBadGateway, "Bad Gateway", "Upstream service request failed")
	default:
		logger.Error("request_failed", zap.String("operation", op), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", fmt.Sprintf("Failed to %s", op))
	}
}

// decodeJSON decodes and validates the request body into dst. It writes the error response and
// returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytesErr.Limit))
			return false
		}
		if errors.Is(err, clarify.ErrInvalidInput) {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
			return false
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return false
	}

	if err := validation.Validate.Struct(dst); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("Validation failed: %s", validation.FormatErrors(err)))
		return false
	}
	return true
}

// pathID parses the {id} route variable
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid ID")
		return 0, false
	}
	return id, true
}

// queryInt64 parses an optional positive integer query parameter
func queryInt64(r *http.Request, key string) (*int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, fmt.Errorf("invalid %s: %s", key, raw)
	}
	return &v, nil
}

// queryBool parses an optional boolean query parameter
func queryBool(r *http.Request, key string) (*bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %s", key, raw)
	}
	return &v, nil
}

// publish announces a committed change. Failures only cost a client refresh, so they are logged.
func publish(r *http.Request, publisher events.Publisher, logger *zap.Logger, change events.Change) {
	if err := publisher.Publish(r.Context(), change); err != nil {
		logger.Warn("change_publish_failed", zap.String("entity", change.Entity), zap.Error(err))
	}
}
