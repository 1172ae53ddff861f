package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/gtd/internal/models"
	"github.com/benvon/gtd/internal/services/calendar"
)

const (
	oauthStateCookie = "gtd_oauth_state"
	maxLookaheadDays = 90
)

// CalendarService is the read-only calendar gateway
type CalendarService interface {
	Configured() bool
	AuthURL(state string) (string, error)
	Exchange(ctx context.Context, code string) error
	Status(ctx context.Context) (calendar.Status, error)
	UpcomingEvents(ctx context.Context, days, maxResults int) ([]models.CalendarEvent, error)
}

// CalendarHandler handles calendar connection and event requests
type CalendarHandler struct {
	calendar    CalendarService
	defaultDays int
	frontendURL string
	logger      *zap.Logger
}

// NewCalendarHandler creates a new calendar handler. After the OAuth callback the
// browser is sent back to frontendURL when set.
func NewCalendarHandler(svc CalendarService, defaultDays int, frontendURL string, logger *zap.Logger) *CalendarHandler {
	if defaultDays <= 0 {
		defaultDays = 7
	}
	return &CalendarHandler{calendar: svc, defaultDays: defaultDays, frontendURL: frontendURL, logger: logger}
}

// RegisterRoutes registers calendar routes on a router that already carries the /calendar prefix
func (h *CalendarHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/status", h.GetStatus).Methods("GET")
	r.HandleFunc("/events", h.ListEvents).Methods("GET")
	r.HandleFunc("/auth-url", h.GetAuthURL).Methods("GET")
}

// RegisterCallback registers the OAuth redirect target. The provider redirects the
// browser here without an API token, so it lives outside the authenticated router.
func (h *CalendarHandler) RegisterCallback(r *mux.Router) {
	r.HandleFunc("/callback", h.Callback).Methods("GET")
}

// GetStatus reports whether the calendar is configured and connected
func (h *CalendarHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.calendar.Status(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, "get calendar status", err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// ListEvents lists upcoming events for ?days= days
func (h *CalendarHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	days := h.defaultDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxLookaheadDays {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "days must be between 1 and 90")
			return
		}
		days = v
	}
	evts, err := h.calendar.UpcomingEvents(r.Context(), days, 0)
	if err != nil {
		respondServiceError(w, h.logger, "list calendar events", err)
		return
	}
	if evts == nil {
		evts = []models.CalendarEvent{}
	}
	respondJSON(w, http.StatusOK, evts)
}

// GetAuthURL returns the consent URL and binds a fresh state to the browser
func (h *CalendarHandler) GetAuthURL(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	url, err := h.calendar.AuthURL(state)
	if err != nil {
		respondServiceError(w, h.logger, "build calendar auth url", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/calendar",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

// Callback completes the OAuth flow
func (h *CalendarHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errParam := q.Get("error"); errParam != "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Authorization was denied: "+errParam)
		return
	}
	cookie, err := r.Cookie(oauthStateCookie)
	state := q.Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid OAuth state")
		return
	}
	code := q.Get("code")
	if code == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Missing authorization code")
		return
	}

	if err := h.calendar.Exchange(r.Context(), code); err != nil {
		respondServiceError(w, h.logger, "connect calendar", err)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/api/calendar", MaxAge: -1})

	if h.frontendURL != "" {
		http.Redirect(w, r, h.frontendURL, http.StatusFound)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"connected": true})
}

var _ CalendarService = (*calendar.Service)(nil)
