// Package web exposes the engine's observation surface: recent events,
// runtime statistics, session reset, and a live event stream.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	recognition "github.com/chelleboyer/reachy-recognizer/core"
	"github.com/chelleboyer/reachy-recognizer/core/behaviors"
	"github.com/chelleboyer/reachy-recognizer/core/events"
)

// Server serves the HTTP API over the recognition engine.
type Server struct {
	registry    *recognition.Registry
	tracker     *recognition.Tracker
	coordinator *recognition.Coordinator
	executor    *behaviors.Executor

	router     *chi.Mux
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer wires the API around the engine components.
func NewServer(
	addr string,
	registry *recognition.Registry,
	tracker *recognition.Tracker,
	coordinator *recognition.Coordinator,
	executor *behaviors.Executor,
	logger *zap.Logger,
) *Server {
	r := chi.NewRouter()

	s := &Server{
		registry:    registry,
		tracker:     tracker,
		coordinator: coordinator,
		executor:    executor,
		router:      r,
		logger:      logger,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/events", s.handleEvents)
		r.Get("/events/stream", s.handleEventStream)
		r.Get("/stats", s.handleStats)
		r.Post("/session/reset", s.handleSessionReset)
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // long timeout for SSE
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting web server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() http.Handler {
	return s.router
}

type eventPayload struct {
	Kind        string    `json:"kind"`
	Sequence    uint64    `json:"sequence"`
	Timestamp   time.Time `json:"timestamp"`
	Label       string    `json:"label,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	Description string    `json:"description"`
}

func payloadFor(event events.Event) eventPayload {
	return eventPayload{
		Kind:        string(event.Kind()),
		Sequence:    event.Sequence(),
		Timestamp:   event.Timestamp(),
		Label:       events.EventLabel(event),
		Confidence:  events.EventConfidence(event),
		Description: event.String(),
	}
}

// handleEvents returns the most recent events, newest first. The n query
// parameter caps the count and defaults to 20.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	n := 20
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, "n must be a non-negative integer")
			return
		}
		n = parsed
	}

	recent := s.registry.Recent(n)
	payload := make([]eventPayload, 0, len(recent))
	for _, event := range recent {
		payload = append(payload, payloadFor(event))
	}
	respondJSON(w, http.StatusOK, payload)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := struct {
		Frames      uint64                       `json:"frames"`
		Tracked     int                          `json:"tracked"`
		HistorySize int                          `json:"history_size"`
		Coordinator recognition.CoordinatorStats `json:"coordinator"`
		Behaviors   *behaviors.ExecutorStats     `json:"behaviors,omitempty"`
	}{
		Frames:      s.tracker.FrameCount(),
		Tracked:     s.tracker.TrackedCount(),
		HistorySize: s.registry.HistorySize(),
		Coordinator: s.coordinator.Stats(),
	}
	if s.executor != nil {
		executorStats := s.executor.Stats()
		stats.Behaviors = &executorStats
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	s.coordinator.ResetSession()
	s.logger.Info("session reset via api")
	respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// handleEventStream pushes every new event to the client as SSE.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	// Buffered so a slow client drops events instead of stalling
	// dispatch.
	eventCh := make(chan events.Event, 64)
	listener := func(event events.Event) {
		select {
		case eventCh <- event:
		default:
		}
	}

	var subscriptions []recognition.SubscriptionID
	for _, kind := range []events.Kind{
		events.KindIdentityRecognized,
		events.KindIdentityUnknown,
		events.KindIdentityDeparted,
		events.KindNoIdentitiesPresent,
	} {
		subscriptions = append(subscriptions, s.registry.Register(kind, listener))
	}
	defer func() {
		for _, id := range subscriptions {
			s.registry.Unregister(id)
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-eventCh:
			data, err := json.Marshal(payloadFor(event))
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind(), data)
			flusher.Flush()
		}
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
