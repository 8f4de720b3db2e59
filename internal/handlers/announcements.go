package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"alertflow/internal/auth"
	"alertflow/internal/models"
	"alertflow/internal/queue"
)

type AnnouncementRequest struct {
	ID          string     `json:"id" validate:"required"`
	Domain      string     `json:"domain" validate:"required"`
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description"`
	Summary     string     `json:"summary"`
	Keywords    []string   `json:"keywords"`
	Category    string     `json:"category"`
	Region      string     `json:"region"`
	Status      string     `json:"status"`
	PublishedAt *time.Time `json:"published_at"`
	Deadline    *time.Time `json:"deadline"`
}

// IngestAnnouncement upserts one content item from an upstream collector.
// Repeat ingestion of the same id refreshes the mutable fields.
func (h *Handler) IngestAnnouncement(c echo.Context) error {
	var req AnnouncementRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := auth.Validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	announcement := &models.Announcement{
		ID:          req.ID,
		Domain:      req.Domain,
		Title:       req.Title,
		Description: req.Description,
		Summary:     req.Summary,
		Keywords:    req.Keywords,
		Category:    req.Category,
		Region:      req.Region,
		Status:      req.Status,
		PublishedAt: req.PublishedAt,
		Deadline:    req.Deadline,
	}

	if err := h.Announcements.Upsert(c.Request().Context(), announcement); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to store announcement"})
	}
	return c.JSON(http.StatusOK, announcement)
}

type MatchRunRequest struct {
	Domain       string `json:"domain"`
	SinceMinutes int    `json:"since_minutes" validate:"omitempty,min=1,max=1440"`
}

// TriggerMatchRun enqueues an ad hoc matching run, outside the scheduler's
// 15 minute cadence. Safe to call repeatedly; queueing is idempotent.
func (h *Handler) TriggerMatchRun(c echo.Context) error {
	var req MatchRunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := auth.Validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if req.Domain == "" {
		req.Domain = "kstartup"
	}
	if req.SinceMinutes == 0 {
		req.SinceMinutes = 15
	}

	taskID, err := h.Queue.EnqueueMatch(req.Domain, req.SinceMinutes)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to enqueue matching run"})
	}
	return c.JSON(http.StatusAccepted, map[string]string{"task_id": taskID})
}

// MatchRunStatus reports the state of an ad hoc matching task.
func (h *Handler) MatchRunStatus(c echo.Context) error {
	info, err := h.Queue.GetTaskStatus(queue.TaskMatchAndEnqueue, c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Task not found"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"task_id": info.ID,
		"state":   info.State.String(),
		"retried": info.Retried,
	})
}
