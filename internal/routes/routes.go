package routes

import (
	"github.com/labstack/echo/v4"

	"alertflow/internal/auth"
	"alertflow/internal/handlers"
)

func SetupRoutes(api *echo.Group, h *handlers.Handler) {
	// Public routes
	api.GET("/health", h.HealthCheck)

	// Auth routes with rate limiting
	authGroup := api.Group("/auth")
	authGroup.Use(auth.RateLimitMiddleware)
	authGroup.POST("/signup", h.Signup)
	authGroup.POST("/login", h.Login)

	// Protected routes
	api.Use(auth.JWTMiddleware)

	prefs := api.Group("/preferences")
	prefs.GET("", h.GetPreferences)
	prefs.PATCH("", h.PatchPreferences)
	prefs.DELETE("", h.DeletePreferences)
	prefs.GET("/digest-schedule", h.GetDigestSchedule)

	subs := api.Group("/subscriptions")
	subs.POST("", h.CreateSubscription)
	subs.GET("", h.ListSubscriptions)
	subs.PUT("/:id", h.UpdateSubscription)
	subs.DELETE("/:id", h.DeactivateSubscription)

	api.GET("/notifications", h.NotificationHistory)
	api.GET("/notifications/:id/logs", h.NotificationDeliveryLogs)

	api.POST("/announcements", h.IngestAnnouncement)
	api.POST("/matching/run", h.TriggerMatchRun)
	api.GET("/matching/tasks/:id", h.MatchRunStatus)
}
