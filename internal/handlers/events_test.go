package handlers

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/benvon/gtd/internal/events"
	"github.com/benvon/gtd/internal/models"
)

func TestEventStreamHandler(t *testing.T) {
	t.Parallel()

	broadcaster := events.NewBroadcaster(zap.NewNop())
	h := NewEventStreamHandler(broadcaster, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(h.Stream))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?lists=projects", nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to open stream: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected text/event-stream, got %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	if line, err := reader.ReadString('\n'); err != nil || !strings.HasPrefix(line, ": connected") {
		t.Fatalf("Expected connected comment, got %q (%v)", line, err)
	}

	for broadcaster.Subscribers() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	_ = broadcaster.Publish(ctx, events.NewChange(events.EntityTask, 1, events.ActionCreated, events.TaskList(models.TaskStatusInbox)))
	_ = broadcaster.Publish(ctx, events.NewChange(events.EntityProject, 2, events.ActionCreated, events.ListProjects))

	var frame []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("Failed to read frame: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if line == "" {
			if len(frame) > 0 {
				break
			}
			continue
		}
		frame = append(frame, line)
	}

	joined := strings.Join(frame, "\n")
	if !strings.Contains(joined, "event: change") {
		t.Errorf("Expected change event, got %q", joined)
	}
	if !strings.Contains(joined, `"entity":"project"`) {
		t.Errorf("Expected the filter to skip the task change, got %q", joined)
	}
}

func TestWanted(t *testing.T) {
	t.Parallel()
	c := events.NewChange(events.EntityTask, 1, events.ActionUpdated, "tasks:inbox", "dashboard")

	tests := []struct {
		filter []string
		want   bool
	}{
		{nil, true},
		{[]string{"dashboard"}, true},
		{[]string{"projects", "tasks:inbox"}, true},
		{[]string{"projects"}, false},
	}
	for _, tt := range tests {
		if got := wanted(c, tt.filter); got != tt.want {
			t.Errorf("wanted(%v) = %v, want %v", tt.filter, got, tt.want)
		}
	}
}
