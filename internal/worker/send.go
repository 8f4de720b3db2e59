package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"alertflow/internal/delivery"
	"alertflow/internal/models"
	"alertflow/internal/queue"
)

// HandleSendNotification delivers one queued notification. Preferences,
// quiet hours and quota are all re-checked here even though the matching
// pipeline already passed them: state may have drifted between enqueue and
// send, and the send job is the last gate before the user's inbox.
//
// Outcome mapping:
//   - category or channel disabled / quota reached -> status skipped, no retry
//   - quiet hours -> retryable error, row stays queued
//   - provider failure -> retryable error, terminal failed on last attempt
func (w *Worker) HandleSendNotification(ctx context.Context, t *asynq.Task) error {
	var payload queue.SendPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid send payload: %v: %w", err, asynq.SkipRetry)
	}

	n, err := w.deps.Notifications.Get(ctx, payload.NotificationID)
	if err != nil {
		return err
	}
	if n == nil {
		slog.Error("Notification not found", "notification_id", payload.NotificationID)
		return fmt.Errorf("notification %d not found: %w", payload.NotificationID, asynq.SkipRetry)
	}
	if n.Status != models.StatusQueued {
		// Already terminal; a redelivered task is a no-op.
		slog.Info("Notification already processed",
			"notification_id", n.ID, "status", n.Status)
		return nil
	}

	now := w.deps.Now().UTC()

	prefs, err := w.deps.Preferences.Preferences(ctx, n.UserID)
	if err != nil {
		return err
	}

	if enabled, known := prefs.CategoryEnabled(n.Type); known && !enabled {
		slog.Info("Skipping notification, category disabled",
			"notification_id", n.ID, "user_id", n.UserID, "type", n.Type)
		return w.skip(ctx, n.ID, now)
	}

	if !channelEnabled(prefs.EnabledChannels(), n.Channel) {
		slog.Info("Skipping notification, channel disabled",
			"notification_id", n.ID, "user_id", n.UserID, "channel", n.Channel)
		return w.skip(ctx, n.ID, now)
	}

	quiet, err := w.quiet.Evaluate(prefs, now)
	if err != nil {
		slog.Warn("quiet hours check failed open", "user_id", n.UserID, "error", err)
	}
	if quiet {
		// Not terminal: the task retries and goes out once the window ends.
		resume, optErr := w.optimizer.OptimalSendTime(ctx, n.UserID, now)
		if optErr != nil {
			slog.Warn("send time optimization failed open", "user_id", n.UserID, "error", optErr)
		}
		return fmt.Errorf("quiet hours active for user %d until about %s", n.UserID, resume.Format("15:04 MST"))
	}

	allowed, current, max, err := w.quota.CheckDailyLimit(ctx, n.UserID)
	if err != nil {
		return err
	}
	if !allowed {
		slog.Info("Skipping notification, daily limit reached",
			"notification_id", n.ID, "user_id", n.UserID, "current", current, "max", max)
		return w.skip(ctx, n.ID, now)
	}

	// Global sliding-window limit shared by every send worker.
	limCtx, err := w.deps.SendLimiter.Get(ctx, "notifications:send")
	if err != nil {
		return fmt.Errorf("failed to check send rate limit: %w", err)
	}
	if limCtx.Reached {
		return fmt.Errorf("global send rate limit reached, retrying notification %d", n.ID)
	}

	sub, err := w.deps.Subscriptions.Get(ctx, n.SubscriptionID)
	if err != nil {
		return err
	}
	content, err := w.deps.Announcements.Get(ctx, n.ContentID)
	if err != nil {
		return err
	}
	if sub == nil || content == nil {
		slog.Error("Notification references missing data",
			"notification_id", n.ID, "subscription_id", n.SubscriptionID, "content_id", n.ContentID)
		if markErr := w.deps.Notifications.MarkFailed(ctx, n.ID, now); markErr != nil {
			slog.Error("Failed to mark notification failed", "error", markErr, "notification_id", n.ID)
		}
		return fmt.Errorf("notification %d references missing data: %w", n.ID, asynq.SkipRetry)
	}

	to, err := w.deps.Users.EmailByID(ctx, n.UserID)
	if err != nil {
		return err
	}

	attempt, _ := asynq.GetRetryCount(ctx)
	messageID, sendErr := w.deps.Channel.SendTemplated(ctx, to, delivery.TemplateNewAnnouncement, map[string]interface{}{
		"title":      content.Title,
		"summary":    content.Summary,
		"domain":     content.Domain,
		"content_id": content.ID,
		"deadline":   content.Deadline,
		"score":      n.Score,
		"priority":   n.Priority,
		"keywords":   sub.Keywords,
	})

	w.logAttempt(ctx, n.ID, attempt, messageID, sendErr)

	if sendErr != nil {
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		if attempt >= maxRetry {
			if markErr := w.deps.Notifications.MarkFailed(ctx, n.ID, now); markErr != nil {
				slog.Error("Failed to mark notification failed", "error", markErr, "notification_id", n.ID)
			}
		}
		slog.Error("Failed to deliver notification",
			"error", sendErr, "notification_id", n.ID, "attempt", attempt)
		return sendErr
	}

	if err := w.deps.Notifications.MarkSent(ctx, n.ID, now); err != nil {
		return err
	}

	slog.Info("Successfully delivered notification",
		"notification_id", n.ID,
		"user_id", n.UserID,
		"message_id", messageID,
	)
	return nil
}

func channelEnabled(enabled []string, channel string) bool {
	for _, c := range enabled {
		if c == channel {
			return true
		}
	}
	return false
}

// skip records the expected, non-error terminal outcome.
func (w *Worker) skip(ctx context.Context, id int64, now time.Time) error {
	if err := w.deps.Notifications.MarkSkipped(ctx, id, now); err != nil {
		return err
	}
	return nil
}

// logAttempt appends the per-attempt audit row. Audit failures are logged
// and swallowed: the delivery outcome, not the log, decides the task result.
func (w *Worker) logAttempt(ctx context.Context, notificationID int64, attempt int, messageID string, sendErr error) {
	entry := &models.DeliveryLog{
		NotificationID: notificationID,
		Attempt:        attempt,
	}
	if messageID != "" {
		entry.ProviderMsgID = &messageID
	}
	if sendErr != nil {
		errMsg := sendErr.Error()
		entry.Error = &errMsg
	} else {
		response := "accepted"
		entry.ProviderResponse = &response
	}

	if err := w.deps.DeliveryLogs.Append(ctx, entry); err != nil {
		slog.Warn("failed to append delivery log",
			"error", err, "notification_id", notificationID, "attempt", attempt)
	}
}
