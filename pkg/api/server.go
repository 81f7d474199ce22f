// Package api is Crater's HTTP surface: the agent-facing /agent-api/
// endpoints and the operator/bot endpoints that create, edit, and abort
// experiments (§4.6).
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/codeready-toolchain/crater/pkg/config"
	"github.com/codeready-toolchain/crater/pkg/experiment"
	"github.com/codeready-toolchain/crater/pkg/job"
	"github.com/codeready-toolchain/crater/pkg/model"
)

// AgentStore is the subset of *store.Store the API needs for agent
// registration, auth, and heartbeats.
type AgentStore interface {
	GetAgent(ctx context.Context, name string) (*model.Agent, error)
	RegisterAgent(ctx context.Context, name, tokenHash string, capabilities []string) error
	Heartbeat(ctx context.Context, name, inflightJobKey string) error
}

// JobStore is the subset of *store.Store the API needs to record job
// progress. Job rows are planned eagerly at experiment creation
// (experiment.Registry.Create), not here.
type JobStore interface {
	RecordOutcome(ctx context.Context, experiment string, pkg model.PackageRef, tc model.ToolchainRef, outcome model.Outcome, logBytes []byte, truncated bool) error
}

// Server is Crater's HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	cfg      *config.Config
	registry *experiment.Registry
	reporter *experiment.Reporter
	agents   AgentStore
	jobs     JobStore
	corpus   job.Corpus
	health   func(ctx context.Context) error
}

// SetHealthCheck wires a liveness probe (typically store.Store.Health)
// consulted by GET /health.
func (s *Server) SetHealthCheck(check func(ctx context.Context) error) {
	s.health = check
}

// NewServer wires a Server over its collaborators and registers routes.
func NewServer(cfg *config.Config, registry *experiment.Registry, reporter *experiment.Reporter, agents AgentStore, jobs JobStore, corpus job.Corpus) *Server {
	e := echo.New()
	s := &Server{
		echo:     e,
		cfg:      cfg,
		registry: registry,
		reporter: reporter,
		agents:   agents,
		jobs:     jobs,
		corpus:   corpus,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)

	agentAPI := s.echo.Group("/agent-api", s.agentAuth)
	agentAPI.GET("/config", s.agentConfigHandler)
	agentAPI.GET("/next-experiment", s.nextExperimentHandler)
	agentAPI.POST("/record-progress", s.recordProgressHandler)
	agentAPI.POST("/heartbeat", s.heartbeatHandler)
	agentAPI.POST("/error", s.agentErrorHandler)

	ops := s.echo.Group("/ops", s.operatorAuth)
	ops.POST("/experiments", s.createExperimentHandler)
	ops.PATCH("/experiments/:name", s.editExperimentHandler)
	ops.POST("/experiments/:name/abort", s.abortExperimentHandler)
	ops.GET("/experiments/:name/progress", s.experimentProgressHandler)
	ops.POST("/acl/reload", s.reloadACLHandler)
	ops.POST("/agents", s.registerAgentHandler)
	ops.POST("/experiments/:name/retry-report", s.retryReportHandler)
}

// Start starts the HTTP server on addr (non-blocking at the net.Listener
// level; ListenAndServe itself blocks the calling goroutine).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener, used
// by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server, draining in-flight
// requests (the agent runtime's own in-flight sandboxes are drained
// separately, per §5).
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(c *echo.Context) error {
	if s.health == nil {
		return c.JSON(http.StatusOK, ok(map[string]string{"status": "healthy"}))
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := s.health(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, failed(statusInternal, err.Error()))
	}
	return c.JSON(http.StatusOK, ok(map[string]string{"status": "healthy"}))
}
