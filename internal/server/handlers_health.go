package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mitsuaky/felpsbot-backend/internal/version"
)

const healthCheckTimeout = 2 * time.Second

type healthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: s.clock.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleReadiness reports whether the service can do useful work. Postgres
// down means we cannot acknowledge callbacks, so readiness fails hard. Redis
// down only degrades dedup and dispatch, but is still surfaced.
func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	checks := make(map[string]string, 2)
	status := http.StatusOK

	if err := s.db.Ping(ctx); err != nil {
		checks["postgres"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		checks["postgres"] = "ok"
	}

	if err := s.redisClient.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		checks["redis"] = "ok"
	}

	resp := healthResponse{Status: "ok", Uptime: s.clock.Since(s.startTime).Round(time.Second).String(), Checks: checks}
	if status != http.StatusOK {
		resp.Status = "degraded"
	}
	return c.JSON(status, resp)
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, version.Get())
}
