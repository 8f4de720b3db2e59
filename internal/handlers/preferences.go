package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"alertflow/internal/auth"
	"alertflow/internal/models"
)

// GetPreferences returns the stored record, falling back to defaults so the
// client always sees a complete preference set.
func (h *Handler) GetPreferences(c echo.Context) error {
	prefs, err := h.Preferences.Preferences(c.Request().Context(), userID(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get preferences"})
	}
	return c.JSON(http.StatusOK, prefs)
}

// PatchPreferences applies a partial update; only provided keys change.
func (h *Handler) PatchPreferences(c echo.Context) error {
	var patch models.PreferencePatch
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	if err := auth.Validate.Struct(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	uid := userID(c)
	if err := h.Preferences.Patch(c.Request().Context(), uid, &patch); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to update preferences"})
	}

	prefs, err := h.Preferences.Preferences(c.Request().Context(), uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get preferences"})
	}
	return c.JSON(http.StatusOK, prefs)
}

// DeletePreferences resets the user to the default record.
func (h *Handler) DeletePreferences(c echo.Context) error {
	deleted, err := h.Preferences.Delete(c.Request().Context(), userID(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to delete preferences"})
	}
	if !deleted {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "No preferences stored"})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Preferences reset to defaults"})
}

// GetDigestSchedule exposes the digest schedule derived from preferences.
func (h *Handler) GetDigestSchedule(c echo.Context) error {
	schedule, err := h.Manager.GetDigestSchedule(c.Request().Context(), userID(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get digest schedule"})
	}
	if schedule == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{"digest": "off"})
	}
	return c.JSON(http.StatusOK, schedule)
}
