package httpserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/starpush/internal/app"
	"github.com/pscheid92/starpush/internal/domain"
	apperrors "github.com/pscheid92/starpush/internal/platform/errors"
)

type listResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Count         int                   `json:"count"`
}

type broadcastResponse struct {
	Notification *domain.Notification `json:"notification"`
	Recipients   int                  `json:"recipients"`
}

func (s *Server) registerAPIRoutes(api *echo.Group) {
	api.POST("/notifications", s.handleCreateNotification)
	api.GET("/notifications", s.handleListNotifications)
	api.POST("/notifications/broadcast", s.handleBroadcast)
	api.POST("/notifications/:id/read", s.handleMarkRead)
	api.GET("/notifications/health", s.handleNotificationHealth)
	api.GET("/cache/stats", s.handleCacheStats)
}

func (s *Server) handleCreateNotification(c echo.Context) error {
	var req app.CreateRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	n, err := s.notifications.Create(c.Request().Context(), req)
	if err != nil {
		return mapDomainError(err, "failed to create notification").WithField("user_id", req.UserID)
	}

	if err := c.JSON(http.StatusCreated, n); err != nil {
		return fmt.Errorf("failed to write notification response: %w", err)
	}
	return nil
}

func (s *Server) handleBroadcast(c echo.Context) error {
	var req app.BroadcastRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	n, recipients, err := s.notifications.Broadcast(c.Request().Context(), req)
	if err != nil {
		return mapDomainError(err, "failed to broadcast notification")
	}

	if err := c.JSON(http.StatusCreated, broadcastResponse{Notification: n, Recipients: recipients}); err != nil {
		return fmt.Errorf("failed to write broadcast response: %w", err)
	}
	return nil
}

// handleListNotifications lists one user's notifications, or the newest across all
// users when user_id is omitted.
func (s *Server) handleListNotifications(c echo.Context) error {
	ctx := c.Request().Context()
	userID := strings.TrimSpace(c.QueryParam("user_id"))

	var (
		list []domain.Notification
		err  error
	)
	if userID == "" {
		list, err = s.notifications.ListRecentAll(ctx)
	} else {
		list, err = s.notifications.ListRecent(ctx, userID)
	}
	if err != nil {
		return mapDomainError(err, "failed to list notifications")
	}
	if list == nil {
		list = []domain.Notification{}
	}

	if err := c.JSON(http.StatusOK, listResponse{Notifications: list, Count: len(list)}); err != nil {
		return fmt.Errorf("failed to write list response: %w", err)
	}
	return nil
}

func (s *Server) handleMarkRead(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperrors.ValidationError("invalid notification id").WithField("id", c.Param("id"))
	}
	userID := strings.TrimSpace(c.QueryParam("user_id"))

	if err := s.notifications.MarkRead(c.Request().Context(), userID, id); err != nil {
		return mapDomainError(err, "failed to mark notification read").WithField("notification_id", id.String())
	}
	return c.NoContent(http.StatusNoContent)
}

// handleNotificationHealth reports delivery health as healthy, degraded or critical
// with a 0-100 score and the indicators behind it.
func (s *Server) handleNotificationHealth(c echo.Context) error {
	now := s.clock.Now()
	global := s.limits.Global()
	resp := notificationHealth{
		Timestamp: now.UTC(),
		Uptime:    now.Sub(s.startTime).Round(time.Second).String(),
		Conns:     s.registry.Count(),
		Slots:     global.Current(),
		MaxConns:  global.Max(),
	}
	in := healthInputs{connections: resp.Slots, maxConns: resp.MaxConns}

	if s.broadcaster != nil {
		resp.Delivery = s.broadcaster.DeliveryStats()
		in.delivery = resp.Delivery
	}
	if s.sync != nil {
		st := s.sync.Status()
		resp.Sync, in.sync = &st, &st
	}
	if s.breaker != nil {
		resp.Breaker = s.breaker.BreakerState()
		in.breaker = resp.Breaker
	}
	if s.cache != nil {
		stats := s.cache.Stats()
		resp.Cache = &stats
	}
	if s.dedup != nil {
		n := s.dedup.Len()
		resp.Dedup = &n
	}
	if s.limiter != nil {
		n := s.limiter.Len()
		resp.Limiter = &n
	}

	resp.Status, resp.Score, resp.Indicators = assessHealth(in)

	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write notification health response: %w", err)
	}
	return nil
}

func (s *Server) handleCacheStats(c echo.Context) error {
	if s.cache == nil {
		return apperrors.UnavailableError("cache not configured")
	}
	if err := c.JSON(http.StatusOK, s.cache.Stats()); err != nil {
		return fmt.Errorf("failed to write cache stats: %w", err)
	}
	return nil
}
