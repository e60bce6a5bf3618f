// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package api wires the HTTP transport for Gateway, the ingest
// coordinator, and Supervisor diagnostics (spec.md §6's programmatic
// entry point, the concrete surface pkg/client talks to).
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/groupsio/membridge/internal/api/handlers"
	"github.com/groupsio/membridge/internal/api/middleware"
	"github.com/groupsio/membridge/internal/events"
	"github.com/groupsio/membridge/internal/gateway"
	"github.com/groupsio/membridge/internal/ingest"
	"github.com/groupsio/membridge/internal/supervisor"
)

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Host string
	Port int
}

// Dependencies holds every collaborator the router's handlers need.
type Dependencies struct {
	Supervisor  *supervisor.Supervisor
	Gateway     *gateway.Gateway
	Coordinator *ingest.Coordinator
	Bus         events.EventBus
	Log         *zap.Logger
}

// NewRouter builds the mux.Router for the bridge supervisor's HTTP
// surface (spec.md §6): health, retrieve, ingest, and diagnostics.
func NewRouter(deps Dependencies) *mux.Router {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := mux.NewRouter()
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CORS)

	v1 := r.PathPrefix("/api/v1").Subrouter()

	healthHandler := handlers.NewHealthHandler(deps.Supervisor)
	v1.HandleFunc("/health", healthHandler.Get).Methods(http.MethodGet)

	if deps.Gateway != nil {
		retrieveHandler := handlers.NewRetrieveHandler(deps.Gateway)
		v1.HandleFunc("/retrieve", retrieveHandler.Retrieve).Methods(http.MethodPost)
	}

	if deps.Coordinator != nil {
		ingestHandler := handlers.NewIngestHandler(deps.Coordinator)
		v1.HandleFunc("/ingest", ingestHandler.Ingest).Methods(http.MethodPost)
	}

	diagnosticsHandler := handlers.NewDiagnosticsHandler(deps.Supervisor, deps.Bus)
	v1.HandleFunc("/diagnostics", diagnosticsHandler.Get).Methods(http.MethodGet)
	v1.HandleFunc("/diagnostics/stream", diagnosticsHandler.Stream).Methods(http.MethodGet)

	return r
}

// Server wraps the router in an *http.Server with graceful shutdown.
type Server struct {
	router *mux.Router
	cfg    ServerConfig
	server *http.Server
	log    *zap.Logger
}

// NewServer constructs a Server from cfg and deps.
func NewServer(cfg ServerConfig, deps Dependencies) *Server {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{router: NewRouter(deps), cfg: cfg, log: log}
}

// Router returns the underlying router, mainly for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ListenAndServe starts the HTTP server. It blocks until Shutdown is
// called or the listener fails.
func (s *Server) ListenAndServe() error {
	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	s.server = &http.Server{Addr: addr, Handler: s.router}

	s.log.Info("api server listening", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	return s.server.Shutdown(shutdownCtx)
}
