// Package admin serves the operator HTTP API: health, Prometheus metrics and
// module lifecycle control.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/roach88/cogd/internal/logging"
	"github.com/roach88/cogd/internal/module"
)

// Modules is the lifecycle surface the API drives. *module.Manager
// implements it.
type Modules interface {
	Records() []module.Snapshot
	Get(id string) (module.Snapshot, bool)
	LoadAll(ctx context.Context) *module.Report
	Load(ctx context.Context, id string) error
	Unload(ctx context.Context, id string) error
	Reload(ctx context.Context, id string) error
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server provides the admin endpoints.
type Server struct {
	echo    *echo.Echo
	modules Modules
	health  Pinger
	logger  *logging.Logger
	addr    string
}

// NewServer creates the server. health may be nil.
func NewServer(modules Modules, health Pinger, logger *logging.Logger, addr string) (*Server, error) {
	if modules == nil {
		return nil, fmt.Errorf("modules cannot be nil")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.Named("admin")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	})

	s := &Server{
		echo:    e,
		modules: modules,
		health:  health,
		logger:  logger,
		addr:    addr,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/modules", s.handleList)
	v1.POST("/modules/load-all", s.handleLoadAll)
	v1.GET("/modules/:id", s.handleGet)
	v1.POST("/modules/:id/load", s.lifecycle("load"))
	v1.POST("/modules/:id/unload", s.lifecycle("unload"))
	v1.POST("/modules/:id/reload", s.lifecycle("reload"))
}

// ServeHTTP lets the server be mounted or driven by httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on the configured address. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "starting admin server", zap.String("addr", s.addr))
	return s.echo.Start(s.addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down admin server")
	return s.echo.Shutdown(ctx)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	if s.health != nil {
		if err := s.health.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
		}
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// ListResponse is the body of GET /api/v1/modules.
type ListResponse struct {
	Modules []module.Snapshot `json:"modules"`
}

func (s *Server) handleList(c echo.Context) error {
	return c.JSON(http.StatusOK, ListResponse{Modules: s.modules.Records()})
}

func (s *Server) handleGet(c echo.Context) error {
	snap, ok := s.modules.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no module %q", c.Param("id")))
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) handleLoadAll(c echo.Context) error {
	report := s.modules.LoadAll(c.Request().Context())
	status := http.StatusOK
	if len(report.Failed()) > 0 || len(report.Errors) > 0 {
		status = http.StatusMultiStatus
	}
	return c.JSON(status, report)
}

func (s *Server) lifecycle(op string) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		id := c.Param("id")

		var err error
		switch op {
		case "load":
			err = s.modules.Load(ctx, id)
		case "unload":
			err = s.modules.Unload(ctx, id)
		case "reload":
			err = s.modules.Reload(ctx, id)
		}

		res := module.Result{ID: id, OK: err == nil, Error: module.Detail(err)}
		if snap, ok := s.modules.Get(id); ok {
			res.State = snap.State
		}
		if err != nil {
			s.logger.Warn(ctx, "module operation failed", zap.String("op", op), zap.String("module.id", id), zap.Error(err))
		}
		return c.JSON(statusFor(err), res)
	}
}

// statusFor maps lifecycle errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, module.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, module.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}
