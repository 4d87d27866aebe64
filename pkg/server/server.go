// Package server exposes the agentxd HTTP API: the task registry, the
// per-task log read endpoint, and the per-task SSE event stream.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dustland/agentx/pkg/bus"
	"github.com/dustland/agentx/pkg/logstore"
	"github.com/dustland/agentx/pkg/runner"
	"github.com/dustland/agentx/pkg/taskstore"
)

const defaultPageSize = 100

// Server wires the stores, bus, and runner behind the HTTP API.
type Server struct {
	router *gin.Engine
	logs   *logstore.Store
	tasks  *taskstore.Store
	events *bus.Bus
	runner *runner.Runner
	logger *slog.Logger
	srv    *http.Server
}

// New builds the server and registers all routes. The runner may be nil
// when the daemon only serves externally produced logs.
func New(logs *logstore.Store, tasks *taskstore.Store, events *bus.Bus, run *runner.Runner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router: router,
		logs:   logs,
		tasks:  tasks,
		events: events,
		runner: run,
		logger: logger,
	}
	router.Use(s.requestLogger())
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/tasks", s.handleListTasks)
	s.router.POST("/tasks", s.handleCreateTask)
	s.router.GET("/tasks/:taskID", s.handleGetTask)
	s.router.GET("/tasks/:taskID/artifacts", s.handleListArtifacts)
	s.router.GET("/tasks/:taskID/logs", s.handleLogs)
	s.router.GET("/tasks/:taskID/stream", s.handleStream)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.logger.Info("server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requestLogger records each request with method, path, status, duration.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Streaming connections stay open for minutes; logging them on
		// completion only adds noise.
		if c.FullPath() == "/tasks/:taskID/stream" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
