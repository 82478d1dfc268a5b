// Package httpapi exposes the agent over HTTP.
//
// The API is a thin front door over the loop: one endpoint starts a run,
// the rest are read-only views of the message log. Runs are serialized;
// the loop owns the working tree and concurrent runs would race on it.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/rcliao/selfedit/internal/loop"
	"github.com/rcliao/selfedit/internal/memory"
)

// Server serves the HTTP API.
type Server struct {
	echo   *echo.Echo
	orch   *loop.Orchestrator
	mem    memory.Log
	logger *zap.Logger

	mu sync.Mutex // held for the duration of a run
}

// NewServer builds the server and registers its routes.
func NewServer(orch *loop.Orchestrator, mem memory.Log, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:   e,
		orch:   orch,
		mem:    mem,
		logger: logger,
	}

	e.GET("/", s.handleIndex)
	e.GET("/healthz", s.handleHealth)
	e.POST("/run", s.handleRun)
	e.GET("/log", s.handleLog)

	return s
}

// Start listens on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP makes the server usable with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) handleIndex(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"service": "selfedit",
		"endpoints": map[string]string{
			"POST /run":    `start a run: {"goal": "...", "max_steps": 0}`,
			"GET /log":     "message log as JSON, ?limit=N for the most recent entries",
			"GET /healthz": "liveness probe",
		},
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type runRequest struct {
	Goal     string `json:"goal"`
	MaxSteps int    `json:"max_steps"`
}

func (s *Server) handleRun(c echo.Context) error {
	var req runRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Goal == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "goal is required"})
	}

	if !s.mu.TryLock() {
		return c.JSON(http.StatusConflict, map[string]string{"error": "a run is already in progress"})
	}
	defer s.mu.Unlock()

	res, err := s.orch.Run(c.Request().Context(), req.Goal, req.MaxSteps)
	if err != nil {
		s.logger.Error("run failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"error":  err.Error(),
			"result": res,
		})
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleLog(c echo.Context) error {
	messages, err := s.mem.AllMessages(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
		}
		if limit > 0 && len(messages) > limit {
			messages = messages[len(messages)-limit:]
		}
	}
	return c.JSON(http.StatusOK, messages)
}
