package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/gtd/internal/events"
)

const defaultHeartbeat = 25 * time.Second

// Subscriber hands out change subscriptions
type Subscriber interface {
	Subscribe(buffer int) (<-chan events.Change, func())
}

// EventStreamHandler streams committed changes as Server-Sent Events
type EventStreamHandler struct {
	subscriber Subscriber
	heartbeat  time.Duration
	logger     *zap.Logger
}

// NewEventStreamHandler creates a new change stream handler
func NewEventStreamHandler(subscriber Subscriber, logger *zap.Logger) *EventStreamHandler {
	return &EventStreamHandler{subscriber: subscriber, heartbeat: defaultHeartbeat, logger: logger}
}

// RegisterRoutes registers the stream on a router that already carries the /events prefix
func (h *EventStreamHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.Stream).Methods("GET")
}

// Stream writes one "change" event per change until the client goes away.
// ?lists=tasks:inbox,projects limits the stream to changes touching those lists.
func (h *EventStreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	var filter []string
	if raw := r.URL.Query().Get("lists"); raw != "" {
		for _, l := range strings.Split(raw, ",") {
			if l = strings.TrimSpace(l); l != "" {
				filter = append(filter, l)
			}
		}
	}

	// The stream outlives the server's write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	changes, unsubscribe := h.subscriber.Subscribe(0)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		h.logger.Warn("event_stream_flush_unsupported", zap.Error(err))
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case c, ok := <-changes:
			if !ok {
				return
			}
			if !wanted(c, filter) {
				continue
			}
			data, err := json.Marshal(c)
			if err != nil {
				h.logger.Error("change_encode_failed", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: change\ndata: %s\n\n", c.ID, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func wanted(c events.Change, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, l := range filter {
		if c.Touches(l) {
			return true
		}
	}
	return false
}

var _ Subscriber = (*events.Broadcaster)(nil)
