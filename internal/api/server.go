// Package api exposes a minimal HTTP heartbeat for the trading process:
// /health for liveness and /api/snapshot for the current session and risk
// state. Adapted from the teacher's internal/api: the same
// http.Server-with-mux shape and Start/Stop lifecycle, with the
// WebSocket push hub and static dashboard file server dropped since
// nothing in this system's scope serves a browser UI.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Server runs the HTTP heartbeat endpoint.
type Server struct {
	addr     string
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer creates a new API server bound to addr (e.g. ":8090").
func NewServer(addr string, provider SnapshotProvider, logger *slog.Logger) *Server {
	handlers := NewHandlers(provider, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/snapshot", handlers.HandleSnapshot)

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		addr:     addr,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Start runs the HTTP server. Blocks until Stop is called or the server
// fails.
func (s *Server) Start() error {
	s.logger.Info("heartbeat server starting", "addr", s.addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.logger.Info("stopping heartbeat server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}
