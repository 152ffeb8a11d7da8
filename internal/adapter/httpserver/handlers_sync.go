package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/starpush/internal/platform/errors"
	"github.com/pscheid92/starpush/internal/syncer"
)

type syncResponse struct {
	Ran    bool          `json:"ran"`
	Status syncer.Status `json:"status"`
}

func (s *Server) registerSyncRoutes(api *echo.Group) {
	api.POST("/sync", s.handleManualSync)
	api.GET("/sync", s.handleSyncStatus)
}

// handleManualSync runs a sync now. A sync that is already running is not an error;
// ran reports false and the caller can poll the status.
func (s *Server) handleManualSync(c echo.Context) error {
	ran, err := s.sync.ManualSync(c.Request().Context())
	if err != nil {
		return apperrors.ExternalError("sync failed", err)
	}

	if err := c.JSON(http.StatusOK, syncResponse{Ran: ran, Status: s.sync.Status()}); err != nil {
		return fmt.Errorf("failed to write sync response: %w", err)
	}
	return nil
}

func (s *Server) handleSyncStatus(c echo.Context) error {
	if err := c.JSON(http.StatusOK, s.sync.Status()); err != nil {
		return fmt.Errorf("failed to write sync status: %w", err)
	}
	return nil
}
