package frequency

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"alertflow/internal/models"
)

// Manager composes the admission gates into a single should-send decision.
//
// The minimum match score is intentionally not checked here: the matching
// pipeline applies it before a candidate ever reaches the manager. Checking
// it again would double-filter; dropping it there would not filter at all.
// The division of responsibility is: matching owns relevance, the manager
// owns delivery eligibility.
type Manager struct {
	prefs PreferenceSource
	quiet *QuietHoursEvaluator
	quota *QuotaTracker
	dup   *DuplicateSuppressor
	now   func() time.Time
}

func NewManager(prefs PreferenceSource, counts SentCounter, contentCounts ContentCounter, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		prefs: prefs,
		quiet: NewQuietHoursEvaluator(now),
		quota: NewQuotaTracker(prefs, counts, now),
		dup:   NewDuplicateSuppressor(contentCounts, now),
		now:   now,
	}
}

// ShouldSend runs the sequential admission gate. The order is fixed,
// cheapest and most common rejections first, and a failed gate
// short-circuits the rest:
//
//  1. category toggle for the notification type
//  2. quiet hours
//  3. daily quota
//  4. duplicate suppression (24h window)
//
// Business rejections come back as (false, reason) with a nil error; a
// non-nil error means a datastore failure the caller should retry.
func (m *Manager) ShouldSend(ctx context.Context, userID int64, notificationType, contentID string) (bool, string, error) {
	prefs, err := m.prefs.Preferences(ctx, userID)
	if err != nil {
		return false, "", fmt.Errorf("failed to load preferences: %w", err)
	}

	if enabled, known := prefs.CategoryEnabled(notificationType); known && !enabled {
		return false, fmt.Sprintf("Category %s disabled", notificationType), nil
	}

	quiet, err := m.quiet.Evaluate(prefs, m.now())
	if err != nil {
		slog.Warn("quiet hours check failed open", "user_id", userID, "error", err)
	}
	if quiet {
		return false, "Quiet hours active", nil
	}

	allowed, current, max, err := m.quota.CheckDailyLimit(ctx, userID)
	if err != nil {
		return false, "", err
	}
	if !allowed {
		return false, fmt.Sprintf("Daily limit reached (%d/%d)", current, max), nil
	}

	duplicate, err := m.dup.IsDuplicate(ctx, userID, contentID, DefaultDuplicateWindow)
	if err != nil {
		return false, "", err
	}
	if duplicate {
		return false, "Duplicate notification", nil
	}

	return true, "Allowed", nil
}

// DigestSchedule describes when a user's digest should go out.
type DigestSchedule struct {
	Hour     int           `json:"hour"`
	Minute   int           `json:"minute"`
	Timezone string        `json:"timezone"`
	Weekday  *time.Weekday `json:"weekday,omitempty"`
	Day      *int          `json:"day,omitempty"`
}

// GetDigestSchedule maps the user's digest frequency to a schedule
// descriptor. A nil schedule means digests are off.
func (m *Manager) GetDigestSchedule(ctx context.Context, userID int64) (*DigestSchedule, error) {
	prefs, err := m.prefs.Preferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}

	schedule := &DigestSchedule{Hour: 9, Minute: 0, Timezone: prefs.Timezone}
	switch prefs.DigestFrequency {
	case models.DigestDaily:
		return schedule, nil
	case models.DigestWeekly:
		weekday := time.Monday
		schedule.Weekday = &weekday
		return schedule, nil
	case models.DigestMonthly:
		day := 1
		schedule.Day = &day
		return schedule, nil
	}
	return nil, nil
}

// GetDeadlineReminderSchedule returns the future reminder instants for a
// deadline, one per configured day offset, sorted ascending. Offsets whose
// instant has already passed are dropped.
func (m *Manager) GetDeadlineReminderSchedule(ctx context.Context, userID int64, deadline time.Time) ([]time.Time, error) {
	prefs, err := m.prefs.Preferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}

	now := m.now()
	var reminders []time.Time
	for _, days := range prefs.DeadlineReminderDays {
		at := deadline.AddDate(0, 0, -int(days))
		if at.After(now) {
			reminders = append(reminders, at)
		}
	}

	sort.Slice(reminders, func(i, j int) bool { return reminders[i].Before(reminders[j]) })
	return reminders, nil
}
