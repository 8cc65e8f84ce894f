// Package server wires every component into the HTTP surface of spec.md
// §6: route registration, request decoding, and the uniform JSON response
// envelope.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/agent-bridge/bridge/internal/browse"
	"github.com/agent-bridge/bridge/internal/config"
	"github.com/agent-bridge/bridge/internal/files"
	"github.com/agent-bridge/bridge/internal/identity"
	"github.com/agent-bridge/bridge/internal/messaging"
	"github.com/agent-bridge/bridge/internal/projects"
	"github.com/agent-bridge/bridge/internal/revisions"
	"github.com/agent-bridge/bridge/internal/status"
	"github.com/agent-bridge/bridge/internal/store"
	"github.com/agent-bridge/bridge/internal/tasks"
	"github.com/gorilla/mux"
)

// Server is the main HTTP server, composing every component over the
// shared store.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	cfg        *config.Config

	db        *store.Store
	identity  *identity.Store
	messaging *messaging.Store
	files     *files.Store
	tasks     *tasks.Store
	projects  *projects.Store
	revisions *revisions.Store
	browse    *browse.Store
	status    *status.Reporter
}

// New constructs the server and registers every route.
func New(cfg *config.Config, db *store.Store) *Server {
	s := &Server{cfg: cfg, db: db}

	s.identity = identity.New(db)
	s.messaging = messaging.New(db)
	s.projects = projects.New(db)
	s.revisions = revisions.New(db)
	s.browse = browse.New(db)
	s.tasks = tasks.New(db)
	s.files = files.New(db, cfg.FilesDir, cfg.MaxFileSize, s.messaging)

	s.status = status.New(status.Counters{
		Agents:   func() (int, error) { a, err := s.identity.ListAgents(); return len(a), err },
		Messages: s.messaging.CountAll,
		Files:    func() (int, error) { f, err := s.files.List("", ""); return len(f), err },
		Tasks:    s.tasks.CountAll,
		Commits:  s.revisions.CountAll,
	})

	s.router = mux.NewRouter()
	s.router.Use(loggingMiddleware)
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.router,
	}
	return s
}

// ListenAndServe starts accepting connections. It blocks until the server
// stops or errors.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Handler exposes the router for use in tests via httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Shutdown gracefully drains in-flight requests, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
