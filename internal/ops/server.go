// Package ops serves the operational HTTP surface: liveness and metrics.
package ops

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/skuld/internal/telemetry"
)

// Pinger reports backing-store health for the readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the ops HTTP server. It carries no business endpoints; the
// processor has no inbound API beyond the scheduler.
type Server struct {
	echo   *echo.Echo
	port   uint16
	logger *slog.Logger
}

// NewServer builds the ops server with healthz and prometheus endpoints.
func NewServer(port uint16, store Pinger, httpMetrics *telemetry.HTTPMetrics, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	if httpMetrics != nil {
		e.Use(httpMetrics.Middleware())
	}

	e.GET("/healthz", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return &Server{
		echo:   e,
		port:   port,
		logger: logger,
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("ops server listening", "port", s.port)
	err := s.echo.Start(fmt.Sprintf(":%d", s.port))
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ops server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
