// Package observe implements the minimal read-only run-time state surface
// SPEC_FULL.md §1 names as an external-facing contract the core must
// provide: "exposes... an observable run-time state snapshot" for whatever
// operator-facing display consumes it (out of scope here).
//
// Trimmed from the teacher's internal/api dashboard server: kept the
// http.Server wiring and the aggregate-snapshot-over-GET shape, dropped the
// WebSocket hub, static file serving, and CORS-origin allowlist — there is
// no streaming dashboard client and no browser origin to police, only a
// local operator or sibling process polling one endpoint.
package observe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"polymarket-mm/internal/config"
	"polymarket-mm/internal/maker"
)

// SnapshotProvider is satisfied by *coordinator.Coordinator.
type SnapshotProvider interface {
	Snapshots() map[string]maker.Snapshot
}

// Server serves one JSON endpoint: the current run-time state of every
// active engine, keyed by slot.
type Server struct {
	cfg      config.ObserveConfig
	provider SnapshotProvider
	server   *http.Server
	logger   *slog.Logger
}

// New constructs a Server. It does not start listening until Start is called.
func New(cfg config.ObserveConfig, provider SnapshotProvider, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		provider: provider,
		logger:   logger.With("component", "observe"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/state", s.handleState)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until Stop is called or the listener errors.
// If the surface is disabled in config, Start returns immediately.
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("observe surface disabled, not starting")
		return nil
	}
	s.logger.Info("observe surface starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("observe server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// stateResponse is the wire shape of GET /state.
type stateResponse struct {
	Timestamp time.Time                 `json:"timestamp"`
	Engines   map[string]maker.Snapshot `json:"engines"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	resp := stateResponse{
		Timestamp: time.Now(),
		Engines:   s.provider.Snapshots(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode state snapshot", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
