package frequency

import (
	"context"
	"time"

	"alertflow/internal/models"
)

// PreferenceSource yields a user's notification preferences, falling back to
// the default record when the user never saved any. Implementations must
// never return a nil preference together with a nil error.
type PreferenceSource interface {
	Preferences(ctx context.Context, userID int64) (*models.NotificationPreference, error)
}

// SentCounter counts notifications already delivered to a user inside a
// half-open [from, to) window.
type SentCounter interface {
	CountSentBetween(ctx context.Context, userID int64, from, to time.Time) (int, error)
}

// ContentCounter counts notification rows recorded for a (user, content)
// pair inside a half-open [since, until) window, regardless of status.
type ContentCounter interface {
	CountForContentBetween(ctx context.Context, userID int64, contentID string, since, until time.Time) (int, error)
}
