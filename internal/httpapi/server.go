// Package httpapi exposes the operational surface: health and
// Prometheus metrics. It carries no trading endpoints; decisions and
// orders never flow through HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"quantgate/internal/metrics"
)

// Server serves the monitoring endpoints.
type Server struct {
	srv     *http.Server
	router  *mux.Router
	mode    string
	started time.Time
	log     zerolog.Logger
}

// NewServer builds the monitor server on the given listen address.
func NewServer(addr, mode string, reg *metrics.Registry) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		mode:    mode,
		started: time.Now(),
		log:     log.With().Str("component", "httpapi").Logger(),
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if reg != nil {
		s.router.Handle("/metrics", reg.Handler()).Methods("GET")
	}

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("monitor server listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "healthy",
		"mode":           s.mode,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
