package frequency

import (
	"fmt"
	"time"

	"alertflow/internal/models"
)

// ErrBadTimezone is wrapped into errors returned when a preference record
// carries a timezone the runtime cannot load. Callers must treat it as a
// warning: the evaluation has already failed open (not quiet).
var ErrBadTimezone = fmt.Errorf("invalid timezone")

// QuietHoursEvaluator decides whether a given instant falls inside a user's
// do-not-disturb window, in the user's configured timezone.
type QuietHoursEvaluator struct {
	now func() time.Time
}

func NewQuietHoursEvaluator(now func() time.Time) *QuietHoursEvaluator {
	if now == nil {
		now = time.Now
	}
	return &QuietHoursEvaluator{now: now}
}

// Evaluate reports whether at falls inside prefs' quiet window. A zero at
// means "now". When the timezone cannot be loaded the result is false (fail
// open, a config error must never block legitimate sends) and the error
// carries ErrBadTimezone so the caller can log it.
func (e *QuietHoursEvaluator) Evaluate(prefs *models.NotificationPreference, at time.Time) (bool, error) {
	if !prefs.QuietHoursEnabled {
		return false, nil
	}

	if at.IsZero() {
		at = e.now()
	}

	loc, err := time.LoadLocation(prefs.Timezone)
	if err != nil {
		return false, fmt.Errorf("%w %q: %v", ErrBadTimezone, prefs.Timezone, err)
	}

	hour := at.In(loc).Hour()
	return withinWindow(hour, prefs.QuietHoursStart, prefs.QuietHoursEnd), nil
}

// withinWindow implements the half-open window check shared by the quiet
// hours evaluator and the send time optimizer. A start greater than end
// means the window wraps midnight (22 -> 7 covers 22,23,0..6).
func withinWindow(hour, start, end int) bool {
	if start > end {
		return hour >= start || hour < end
	}
	return hour >= start && hour < end
}
