package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"alertflow/internal/queue"
)

// HandleMatchAndEnqueue fans out over every active realtime subscription and
// runs the matching pipeline against content updated in the lookback
// window. Reruns are harmless: the notification insert is
// conditional-on-absence, so the same (subscription, content) pair can never
// produce a second row.
func (w *Worker) HandleMatchAndEnqueue(ctx context.Context, t *asynq.Task) error {
	var payload queue.MatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	if payload.SinceMinutes <= 0 {
		payload.SinceMinutes = 15
	}
	if payload.Domain == "" {
		payload.Domain = w.deps.MatchDomain
	}

	since := w.deps.Now().UTC().Add(-time.Duration(payload.SinceMinutes) * time.Minute)

	subs, err := w.deps.Subscriptions.ActiveByFrequency(ctx, "realtime")
	if err != nil {
		slog.Error("Failed to list active subscriptions", "error", err)
		return err
	}

	matched, queued := 0, 0
	for i := range subs {
		sub := &subs[i]
		if sub.Domain != payload.Domain {
			continue
		}

		result, err := w.deps.Pipeline.MatchSubscription(ctx, sub, since)
		if err != nil {
			// One malformed subscription must not abort the run for
			// everyone else.
			slog.Error("Failed to match subscription",
				"error", err, "subscription_id", sub.ID, "user_id", sub.UserID)
			continue
		}
		matched += result.Matched
		queued += result.Queued

		for _, id := range result.QueuedIDs {
			if _, err := w.deps.Queue.EnqueueSend(id); err != nil {
				slog.Error("Failed to enqueue send task",
					"error", err, "notification_id", id)
			}
		}
	}

	slog.Info("Successfully completed matching run",
		"domain", payload.Domain,
		"subscriptions", len(subs),
		"matched", matched,
		"queued", queued,
	)
	return nil
}
