package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/fabgilson/scrumboard-live/internal/domain"
	"github.com/fabgilson/scrumboard-live/internal/platform/version"
	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

const readinessProbeTimeout = 5 * time.Second

// HealthCheck is a named dependency check run by the readiness probe.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// ReadinessResponse maps every check to "ok" or its error message.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "ok",
		"uptime":      s.opts.Clock.Since(s.startTime).Seconds(),
		"connections": s.liveConnections(),
	})
}

func (s *Server) liveConnections() int64 {
	if s.opts.Groups == nil {
		return 0
	}
	var total int64
	for key, n := range s.opts.Groups.Counts() {
		// every joined connection is in exactly one user group
		if kind, _, err := domain.ParseGroupKey(key); err == nil && kind == domain.GroupUser {
			total += n
		}
	}
	return total
}

// handleReadiness runs all checks concurrently under one deadline. Any failure makes the
// instance unready.
func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessProbeTimeout)
	defer cancel()

	results := make([]error, len(s.opts.HealthChecks))
	var g errgroup.Group
	for i, hc := range s.opts.HealthChecks {
		g.Go(func() error {
			results[i] = hc.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	resp := ReadinessResponse{Status: "ready", Checks: make(map[string]string, len(results))}
	status := http.StatusOK
	for i, hc := range s.opts.HealthChecks {
		if results[i] != nil {
			resp.Checks[hc.Name] = results[i].Error()
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[hc.Name] = "ok"
	}
	return c.JSON(status, resp)
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, version.Get())
}
