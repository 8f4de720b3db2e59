package frequency

import (
	"context"
	"fmt"
	"time"
)

// DefaultDuplicateWindow is the trailing window inside which a second
// notification for the same (user, content) pair is suppressed.
const DefaultDuplicateWindow = 24 * time.Hour

// DuplicateSuppressor detects repeat notifications for the same content.
type DuplicateSuppressor struct {
	counts ContentCounter
	now    func() time.Time
}

func NewDuplicateSuppressor(counts ContentCounter, now func() time.Time) *DuplicateSuppressor {
	if now == nil {
		now = time.Now
	}
	return &DuplicateSuppressor{counts: counts, now: now}
}

// IsDuplicate reports whether a notification for (userID, contentID) was
// already recorded within the trailing window [now-window, now).
func (s *DuplicateSuppressor) IsDuplicate(ctx context.Context, userID int64, contentID string, window time.Duration) (bool, error) {
	if window <= 0 {
		window = DefaultDuplicateWindow
	}

	now := s.now().UTC()
	count, err := s.counts.CountForContentBetween(ctx, userID, contentID, now.Add(-window), now)
	if err != nil {
		return false, fmt.Errorf("failed to count recent notifications: %w", err)
	}

	return count > 0, nil
}
