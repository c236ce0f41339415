// Package monitor serves sync-health snapshots over HTTP: a JSON endpoint
// for one-shot reads and a websocket stream for dashboards.
package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Snapshot is one observation of the running role's health.
type Snapshot struct {
	Role      string `json:"role"`
	State     string `json:"state,omitempty"`
	Sequence  uint8  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`

	// Leader counters.
	Advertised uint64 `json:"advertised,omitempty"`
	Skipped    uint64 `json:"skipped,omitempty"`

	// Follower counters.
	Accepted        uint64 `json:"accepted,omitempty"`
	Duplicates      uint64 `json:"duplicates,omitempty"`
	Stale           uint64 `json:"stale,omitempty"`
	Malformed       uint64 `json:"malformed,omitempty"`
	LastFrameAgeMS  int64  `json:"lastFrameAgeMs,omitempty"`
	LeaderAvailable bool   `json:"leaderAvailable"`
}

// Source produces the current snapshot. The daemon's role loop implements
// this from its session state.
type Source interface {
	Snapshot() Snapshot
}

// Server streams snapshots.
type Server struct {
	source   Source
	interval time.Duration
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New creates a monitor server polling the source at the given interval.
func New(source Source, interval time.Duration, logger *slog.Logger) *Server {
	return &Server{
		source:   source,
		interval: interval,
		logger:   logger,
	}
}

// Handler returns the monitor's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Run serves the monitor until the context is canceled.
func (s *Server) Run(ctx context.Context, listen string) error {
	server := &http.Server{
		Addr:    listen,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("monitor listening", "addr", listen)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "monitor server failed")
	}
	return ctx.Err()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.source.Snapshot()); err != nil {
		s.logger.Debug("failed to write status", "error", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := conn.WriteJSON(s.source.Snapshot()); err != nil {
			s.logger.Debug("monitor client gone", "error", err)
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
