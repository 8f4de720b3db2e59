package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// NotificationHistory lists the user's notifications, newest first. The
// terminal status on each row is the only delivery outcome surfaced to the
// user; skipped rows carry no error.
func (h *Handler) NotificationHistory(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	notifications, err := h.Notifications.History(c.Request().Context(), userID(c), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list notifications"})
	}
	return c.JSON(http.StatusOK, notifications)
}

// NotificationDeliveryLogs returns the per-attempt audit trail for one of
// the user's notifications.
func (h *Handler) NotificationDeliveryLogs(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid notification id"})
	}

	n, err := h.Notifications.Get(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get notification"})
	}
	if n == nil || n.UserID != userID(c) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Notification not found"})
	}

	logs, err := h.DeliveryLogs.ListByNotification(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list delivery logs"})
	}
	return c.JSON(http.StatusOK, logs)
}
