package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"alertflow/internal/auth"
	"alertflow/internal/frequency"
	"alertflow/internal/queue"
	"alertflow/internal/store"
)

// Handler bundles the stores the HTTP surface reads and writes.
type Handler struct {
	Auth          *auth.Service
	Preferences   *store.PreferenceStore
	Subscriptions *store.SubscriptionStore
	Notifications *store.NotificationStore
	Announcements *store.AnnouncementStore
	DeliveryLogs  *store.DeliveryLogStore
	Manager       *frequency.Manager
	Queue         *queue.Client
}

func NewHandler(authSvc *auth.Service, prefs *store.PreferenceStore, subs *store.SubscriptionStore, notifs *store.NotificationStore, anns *store.AnnouncementStore, logs *store.DeliveryLogStore, manager *frequency.Manager, q *queue.Client) *Handler {
	return &Handler{
		Auth:          authSvc,
		Preferences:   prefs,
		Subscriptions: subs,
		Notifications: notifs,
		Announcements: anns,
		DeliveryLogs:  logs,
		Manager:       manager,
		Queue:         q,
	}
}

func (h *Handler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func userID(c echo.Context) int64 {
	return c.Get("user_id").(int64)
}
