package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/starpush/internal/platform/version"
	"golang.org/x/sync/errgroup"
)

const (
	startupTimeout   = 2 * time.Second
	readinessTimeout = 5 * time.Second
)

// HealthCheck is a named dependency check run by the startup and readiness endpoints.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type checkResult struct {
	Name     string `json:"name"`
	OK       bool   `json:"ok"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

type dependencyReport struct {
	Status string        `json:"status"`
	Checks []checkResult `json:"checks"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.dependencyHandler(startupTimeout))
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.dependencyHandler(readinessTimeout))
	s.echo.GET("/version", s.handleVersion)
}

// dependencyHandler runs every HealthCheck concurrently under timeout and answers 503
// if any of them failed.
func (s *Server) dependencyHandler(timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
		defer cancel()

		report := s.checkDependencies(ctx)
		code := http.StatusOK
		if report.Status != "ready" {
			code = http.StatusServiceUnavailable
		}
		if err := c.JSON(code, report); err != nil {
			return fmt.Errorf("failed to write dependency report: %w", err)
		}
		return nil
	}
}

func (s *Server) checkDependencies(ctx context.Context) dependencyReport {
	results := make([]checkResult, len(s.healthChecks))

	var g errgroup.Group
	for i, hc := range s.healthChecks {
		g.Go(func() error {
			start := s.clock.Now()
			err := hc.Check(ctx)
			results[i] = checkResult{Name: hc.Name, OK: err == nil, Duration: s.clock.Since(start).String()}
			if err != nil {
				results[i].Error = err.Error()
				slog.WarnContext(ctx, "Dependency check failed", "check", hc.Name, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := dependencyReport{Status: "ready", Checks: results}
	for _, r := range results {
		if !r.OK {
			report.Status = "unhealthy"
			break
		}
	}
	return report
}

func (s *Server) handleLiveness(c echo.Context) error {
	response := map[string]any{
		"status":      "ok",
		"uptime":      s.clock.Since(s.startTime).Seconds(),
		"connections": s.registry.Count(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
