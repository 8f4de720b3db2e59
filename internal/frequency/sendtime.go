package frequency

import (
	"context"
	"fmt"
	"time"
)

// SendTimeOptimizer shifts a candidate send instant out of a user's quiet
// window, to the next quiet-hours end in the user's local timezone.
type SendTimeOptimizer struct {
	prefs PreferenceSource
	now   func() time.Time
}

func NewSendTimeOptimizer(prefs PreferenceSource, now func() time.Time) *SendTimeOptimizer {
	if now == nil {
		now = time.Now
	}
	return &SendTimeOptimizer{prefs: prefs, now: now}
}

// OptimalSendTime returns base unchanged when quiet hours are disabled or
// base is outside the window; otherwise it returns the next quiet-hours end
// converted to UTC. A zero base means "now". Timezone errors fail open: the
// returned time is base unmodified and the error wraps ErrBadTimezone so the
// caller can log it as a warning.
func (o *SendTimeOptimizer) OptimalSendTime(ctx context.Context, userID int64, base time.Time) (time.Time, error) {
	if base.IsZero() {
		base = o.now().UTC()
	}

	prefs, err := o.prefs.Preferences(ctx, userID)
	if err != nil {
		return base, fmt.Errorf("failed to load preferences: %w", err)
	}

	if !prefs.QuietHoursEnabled {
		return base, nil
	}

	loc, err := time.LoadLocation(prefs.Timezone)
	if err != nil {
		return base, fmt.Errorf("%w %q: %v", ErrBadTimezone, prefs.Timezone, err)
	}

	local := base.In(loc)
	hour := local.Hour()
	start, end := prefs.QuietHoursStart, prefs.QuietHoursEnd

	if !withinWindow(hour, start, end) {
		return base, nil
	}

	resume := time.Date(local.Year(), local.Month(), local.Day(), end, 0, 0, 0, loc)
	if start > end && hour >= start {
		// Wrap window, still before midnight: the window ends tomorrow.
		resume = resume.AddDate(0, 0, 1)
	}

	return resume.UTC(), nil
}
