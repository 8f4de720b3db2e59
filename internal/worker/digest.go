package worker

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/time/rate"

	"alertflow/internal/delivery"
	"alertflow/internal/frequency"
	"alertflow/internal/matching"
	"alertflow/internal/models"
)

// digestSendRate paces digest emails so a large user base does not burst
// the provider. Independent of the global per-notification limiter, which
// governs realtime sends.
var digestSendRate = rate.Limit(5)

// HandleDailyDigest builds and sends one digest email per eligible user.
// The audience is the union of users whose stored preference says daily
// digests and owners of legacy daily-frequency subscriptions.
func (w *Worker) HandleDailyDigest(ctx context.Context, t *asynq.Task) error {
	prefUsers, err := w.deps.Preferences.DigestUserIDs(ctx, models.DigestDaily)
	if err != nil {
		return err
	}
	legacyUsers, err := w.deps.Subscriptions.ActiveUserIDsByFrequency(ctx, "daily")
	if err != nil {
		return err
	}

	seen := make(map[int64]bool)
	var userIDs []int64
	for _, id := range append(prefUsers, legacyUsers...) {
		if !seen[id] {
			seen[id] = true
			userIDs = append(userIDs, id)
		}
	}

	limiter := rate.NewLimiter(digestSendRate, 1)
	sent, skipped := 0, 0
	for _, userID := range userIDs {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		ok, err := w.sendDigestForUser(ctx, userID)
		if err != nil {
			// One user's failure must not starve the rest of the run.
			slog.Error("Failed to send digest", "error", err, "user_id", userID)
			continue
		}
		if ok {
			sent++
		} else {
			skipped++
		}
	}

	slog.Info("Successfully completed digest run",
		"users", len(userIDs), "sent", sent, "skipped", skipped)
	return nil
}

func (w *Worker) sendDigestForUser(ctx context.Context, userID int64) (bool, error) {
	prefs, err := w.deps.Preferences.Preferences(ctx, userID)
	if err != nil {
		return false, err
	}

	// Eligibility is re-checked at send time, same as realtime delivery.
	if !prefs.DigestNotifications {
		return false, nil
	}
	quiet, err := w.quiet.Evaluate(prefs, w.deps.Now())
	if err != nil {
		slog.Warn("quiet hours check failed open", "user_id", userID, "error", err)
	}
	if quiet {
		return false, nil
	}

	subs, err := w.deps.Subscriptions.ActiveByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if len(subs) == 0 {
		return false, nil
	}

	now := w.deps.Now().UTC()
	since := now.Add(-24 * time.Hour)

	newItems := w.collectNewItems(ctx, subs, since)
	deadlineItems, err := w.collectDeadlineItems(ctx, userID, subs, prefs, now)
	if err != nil {
		return false, err
	}

	// Dedupe across both sections by content id.
	byID := make(map[string]bool)
	var items []models.Announcement
	for _, item := range append(newItems, deadlineItems...) {
		if !byID[item.ID] {
			byID[item.ID] = true
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return false, nil
	}

	// Engaged users get the long digest, everyone else a short one.
	maxItems := 5
	engagementScore, err := w.engagement.Score(ctx, userID)
	if err != nil {
		slog.Warn("engagement score failed, using short digest", "user_id", userID, "error", err)
		engagementScore = 0.5
	}
	if engagementScore >= 0.5 {
		maxItems = 10
	}
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	to, err := w.deps.Users.EmailByID(ctx, userID)
	if err != nil {
		return false, err
	}

	messageID, err := w.deps.Channel.SendTemplated(ctx, to, delivery.TemplateDailyDigest, map[string]interface{}{
		"items":      items,
		"item_count": len(items),
		"engagement": engagementScore,
		"date":       now.Format("2006-01-02"),
	})
	if err != nil {
		return false, err
	}

	slog.Info("Successfully sent digest",
		"user_id", userID, "items", len(items), "message_id", messageID)
	return true, nil
}

// collectNewItems gathers content updated in the trailing day that clears
// each subscription's match threshold. Per-subscription failures are logged
// and skipped.
func (w *Worker) collectNewItems(ctx context.Context, subs []models.Subscription, since time.Time) []models.Announcement {
	var items []models.Announcement
	for i := range subs {
		sub := &subs[i]
		query, err := matching.BuildQuery(sub.Domain, sub.Keywords, sub.SubscriptionFilter, since)
		if err != nil {
			slog.Warn("skipping malformed subscription in digest",
				"error", err, "subscription_id", sub.ID)
			continue
		}
		scored, err := w.deps.Announcements.Search(ctx, query)
		if err != nil {
			slog.Error("Failed to search content for digest",
				"error", err, "subscription_id", sub.ID)
			continue
		}
		for _, item := range scored {
			if matching.NormalizeScore(item.RawScore, len(sub.Keywords)) >= sub.MatchThreshold {
				items = append(items, item.Announcement)
			}
		}
	}
	return items
}

// collectDeadlineItems gathers announcements with deadlines inside the
// user's largest reminder offset whose text touches a subscription keyword,
// and queues deadline reminders for offsets hit today.
func (w *Worker) collectDeadlineItems(ctx context.Context, userID int64, subs []models.Subscription, prefs *models.NotificationPreference, now time.Time) ([]models.Announcement, error) {
	maxDays := int64(7)
	for _, d := range prefs.DeadlineReminderDays {
		if d > maxDays {
			maxDays = d
		}
	}

	domains := make(map[string]bool)
	for _, sub := range subs {
		domains[sub.Domain] = true
	}

	var items []models.Announcement
	for domain := range domains {
		candidates, err := w.deps.Announcements.DeadlineWithin(ctx, domain, now, time.Duration(maxDays)*24*time.Hour)
		if err != nil {
			return nil, err
		}
		for i := range candidates {
			item := &candidates[i]
			sub := matchingSubscription(subs, item)
			if sub == nil {
				continue
			}
			items = append(items, *item)
			w.maybeQueueDeadlineReminder(ctx, sub, item, prefs, now)
		}
	}
	return items, nil
}

// matchingSubscription finds the first subscription whose keywords appear in
// the announcement text. Cheap substring containment; relevance ranking is
// not needed for the deadline section.
func matchingSubscription(subs []models.Subscription, item *models.Announcement) *models.Subscription {
	text := strings.ToLower(item.Title + " " + item.Description + " " + item.Summary)
	for i := range subs {
		for _, kw := range subs[i].Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(text, kw) {
				return &subs[i]
			}
		}
	}
	return nil
}

// maybeQueueDeadlineReminder creates a deadline_reminder notification when
// one of the user's configured day offsets lands today, subject to the same
// admission gate and unique-triple insert as realtime notifications.
func (w *Worker) maybeQueueDeadlineReminder(ctx context.Context, sub *models.Subscription, item *models.Announcement, prefs *models.NotificationPreference, now time.Time) {
	if item.Deadline == nil {
		return
	}
	daysLeft := int(item.Deadline.Sub(now).Hours() / 24)

	hit := false
	for _, d := range prefs.DeadlineReminderDays {
		if int64(daysLeft) == d {
			hit = true
			break
		}
	}
	if !hit {
		return
	}

	admitted, reason, err := w.deps.Manager.ShouldSend(ctx, sub.UserID, models.TypeDeadlineReminder, item.ID)
	if err != nil {
		slog.Error("Failed admission check for deadline reminder",
			"error", err, "user_id", sub.UserID, "content_id", item.ID)
		return
	}
	if !admitted {
		slog.Debug("deadline reminder rejected",
			"user_id", sub.UserID, "content_id", item.ID, "reason", reason)
		return
	}

	priority, err := w.deps.Scorer.Calculate(ctx, sub.UserID, frequency.PriorityInput{
		Type:        models.TypeDeadlineReminder,
		DaysLeft:    daysLeft,
		Title:       item.Title,
		Description: item.Description,
	})
	if err != nil {
		slog.Error("Failed to score deadline reminder",
			"error", err, "user_id", sub.UserID, "content_id", item.ID)
		return
	}

	id, created, err := w.deps.Notifications.InsertIfAbsent(ctx, &models.Notification{
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		Domain:         sub.Domain,
		ContentID:      item.ID,
		Type:           models.TypeDeadlineReminder,
		Channel:        "email",
		Status:         models.StatusQueued,
		Priority:       priority,
	})
	if err != nil {
		slog.Error("Failed to queue deadline reminder",
			"error", err, "user_id", sub.UserID, "content_id", item.ID)
		return
	}
	if created {
		if _, err := w.deps.Queue.EnqueueSend(id); err != nil {
			slog.Error("Failed to enqueue deadline reminder send",
				"error", err, "notification_id", id)
		}
	}
}

