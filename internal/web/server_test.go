package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	recognition "github.com/chelleboyer/reachy-recognizer/core"
	"github.com/chelleboyer/reachy-recognizer/core/perception"
)

func newTestServer(t *testing.T) (*Server, *recognition.Tracker) {
	t.Helper()
	registry := recognition.NewRegistry()
	tracker := recognition.NewTracker(registry, recognition.WithAppearanceThreshold(1))
	coordinator := recognition.NewCoordinator(registry)
	t.Cleanup(coordinator.Close)

	server := NewServer(":0", registry, tracker, coordinator, nil, zap.NewNop())
	return server, tracker
}

func confirmIdentity(tracker *recognition.Tracker, label string, confidence float64) {
	tracker.Ingest(context.Background(), []perception.Observation{{
		Label:      label,
		Confidence: confidence,
		Region:     perception.Region{Top: 0, Right: 100, Bottom: 100, Left: 0},
	}})
}

func TestEventsEndpoint(t *testing.T) {
	server, tracker := newTestServer(t)
	confirmIdentity(tracker, "alice", 0.9)
	confirmIdentity(tracker, "bob", 0.8)

	req := httptest.NewRequest(http.MethodGet, "/api/events?n=1", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var payload []struct {
		Kind  string `json:"kind"`
		Label string `json:"label"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(payload) != 1 || payload[0].Label != "bob" {
		t.Fatalf("expected newest event only, got %+v", payload)
	}
}

func TestEventsEndpointRejectsBadCount(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/events?n=-2", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	server, tracker := newTestServer(t)
	confirmIdentity(tracker, "alice", 0.9)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var payload struct {
		Frames      uint64 `json:"frames"`
		HistorySize int    `json:"history_size"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload.Frames != 1 || payload.HistorySize != 1 {
		t.Fatalf("unexpected stats: %+v", payload)
	}
}

func TestSessionResetEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/session/reset", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestEventStreamDeliversEvents(t *testing.T) {
	server, tracker := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		server.Router().ServeHTTP(rec, req)
	}()

	// Give the handler time to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	confirmIdentity(tracker, "alice", 0.9)
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler did not exit on disconnect")
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: identity.recognized") {
		t.Fatalf("expected recognized event in stream, got %q", body)
	}
}
