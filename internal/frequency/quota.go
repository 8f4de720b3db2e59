package frequency

import (
	"context"
	"fmt"
	"time"
)

// QuotaTracker compares the number of notifications sent to a user during
// the current UTC day against the user's configured daily cap.
//
// The day boundary is UTC midnight, not the user's local midnight. Quiet
// hours are local-time-aware but the quota deliberately is not; the
// simplification is a known product trade-off, not an oversight.
type QuotaTracker struct {
	prefs  PreferenceSource
	counts SentCounter
	now    func() time.Time
}

func NewQuotaTracker(prefs PreferenceSource, counts SentCounter, now func() time.Time) *QuotaTracker {
	if now == nil {
		now = time.Now
	}
	return &QuotaTracker{prefs: prefs, counts: counts, now: now}
}

// CheckDailyLimit returns whether the user may still receive a notification
// today, along with the current sent count and the configured maximum.
func (t *QuotaTracker) CheckDailyLimit(ctx context.Context, userID int64) (allowed bool, current, max int, err error) {
	prefs, err := t.prefs.Preferences(ctx, userID)
	if err != nil {
		return false, 0, 0, fmt.Errorf("failed to load preferences: %w", err)
	}

	now := t.now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	startOfTomorrow := startOfDay.Add(24 * time.Hour)

	current, err = t.counts.CountSentBetween(ctx, userID, startOfDay, startOfTomorrow)
	if err != nil {
		return false, 0, 0, fmt.Errorf("failed to count sent notifications: %w", err)
	}

	max = prefs.MaxDailyNotifications
	return current < max, current, max, nil
}
