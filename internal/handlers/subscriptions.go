package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"alertflow/internal/auth"
	"alertflow/internal/models"
)

type SubscriptionRequest struct {
	Keywords       []string   `json:"keywords" validate:"required,min=1,dive,min=1"`
	Domain         string     `json:"domain"`
	Categories     []string   `json:"categories"`
	Regions        []string   `json:"regions"`
	Statuses       []string   `json:"statuses"`
	PublishedFrom  *time.Time `json:"published_from"`
	PublishedTo    *time.Time `json:"published_to"`
	Channels       []string   `json:"channels" validate:"omitempty,dive,oneof=email web push"`
	Frequency      string     `json:"frequency" validate:"omitempty,oneof=realtime daily weekly"`

	// A pointer so an explicit 0.0 survives; absent means the 0.5 default.
	MatchThreshold *float64 `json:"match_threshold" validate:"omitnil,min=0,max=1"`
}

func (r *SubscriptionRequest) toModel(userID int64) *models.Subscription {
	sub := &models.Subscription{
		UserID:         userID,
		Keywords:       r.Keywords,
		Channels:       r.Channels,
		Frequency:      r.Frequency,
		MatchThreshold: 0.5,
	}
	if r.MatchThreshold != nil {
		sub.MatchThreshold = *r.MatchThreshold
	}
	sub.Domain = r.Domain
	sub.Categories = r.Categories
	sub.Regions = r.Regions
	sub.Statuses = r.Statuses
	sub.PublishedFrom = r.PublishedFrom
	sub.PublishedTo = r.PublishedTo
	if sub.Domain == "" {
		sub.Domain = "kstartup"
	}
	return sub
}

func (h *Handler) CreateSubscription(c echo.Context) error {
	var req SubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := auth.Validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	sub := req.toModel(userID(c))
	id, err := h.Subscriptions.Create(c.Request().Context(), sub)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create subscription"})
	}
	sub.ID = id
	sub.IsActive = true

	return c.JSON(http.StatusCreated, sub)
}

func (h *Handler) ListSubscriptions(c echo.Context) error {
	subs, err := h.Subscriptions.ListByUser(c.Request().Context(), userID(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list subscriptions"})
	}
	return c.JSON(http.StatusOK, subs)
}

func (h *Handler) UpdateSubscription(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid subscription id"})
	}

	var req SubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := auth.Validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	sub := req.toModel(userID(c))
	sub.ID = id
	if len(sub.Channels) == 0 {
		sub.Channels = []string{"email"}
	}
	if sub.Frequency == "" {
		sub.Frequency = "realtime"
	}

	if err := h.Subscriptions.Update(c.Request().Context(), sub); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Subscription not found"})
	}
	return c.JSON(http.StatusOK, sub)
}

// DeactivateSubscription flips is_active; rows are never physically
// deleted.
func (h *Handler) DeactivateSubscription(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid subscription id"})
	}

	if err := h.Subscriptions.SetActive(c.Request().Context(), id, userID(c), false); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Subscription not found"})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Subscription deactivated"})
}
