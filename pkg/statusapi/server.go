// Package statusapi exposes a small read-only HTTP view over a tuning or
// experiment run in progress, backed by pkg/resultstore.
package statusapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/asashepard/contexttune/pkg/resultstore"
)

// Store is the narrow surface of *resultstore.Store the server depends on,
// so tests can substitute a fake without a Postgres container.
type Store interface {
	Health(ctx context.Context) (*resultstore.HealthStatus, error)
	RepoState(ctx context.Context, repo string) (resultstore.RepoState, error)
	ExperimentSummary(ctx context.Context, experimentID string) (resultstore.ExperimentSummary, error)
}

// Server is the status HTTP server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	store      Store
	logger     *slog.Logger
}

// NewServer builds a Server wired to st. A nil logger falls back to
// slog.Default().
func NewServer(st Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery())

	s := &Server{engine: e, store: st, logger: logger}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.healthHandler)
	s.engine.GET("/repos/*repo", s.repoStateHandler)
	s.engine.GET("/experiments/:id/summary", s.experimentSummaryHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener, such
// as one bound to an OS-assigned port. The serve-status subcommand starts
// the server this way.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.engine}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// repoPathParam strips the leading slash gin's */repo wildcard captures and
// the trailing /state suffix, recovering the repo's "org/name" form.
func repoPathParam(raw string) string {
	trimmed := strings.TrimPrefix(raw, "/")
	trimmed = strings.TrimSuffix(trimmed, "/state")
	return trimmed
}
