package frequency

import (
	"context"
	"fmt"
	"time"
)

// engagementWindow is the trailing period over which recent delivery volume
// feeds the engagement estimate.
const engagementWindow = 30 * 24 * time.Hour

// EngagementScorer estimates how engaged a user is with notifications, as a
// value in [0.0, 1.0]. This is a documented heuristic over enabled channel
// and category counts, not a learned model.
type EngagementScorer struct {
	prefs  PreferenceSource
	counts SentCounter
	now    func() time.Time
}

func NewEngagementScorer(prefs PreferenceSource, counts SentCounter, now func() time.Time) *EngagementScorer {
	if now == nil {
		now = time.Now
	}
	return &EngagementScorer{prefs: prefs, counts: counts, now: now}
}

// Score returns the neutral 0.5 for users with no deliveries in the trailing
// 30 days; otherwise 0.3 plus up to 0.35 each for enabled channels and
// enabled non-marketing categories, clamped at 1.0.
func (s *EngagementScorer) Score(ctx context.Context, userID int64) (float64, error) {
	now := s.now().UTC()
	sent, err := s.counts.CountSentBetween(ctx, userID, now.Add(-engagementWindow), now)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent deliveries: %w", err)
	}
	if sent == 0 {
		return 0.5, nil
	}

	prefs, err := s.prefs.Preferences(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load preferences: %w", err)
	}

	activeChannels := 0
	for _, on := range []bool{prefs.EmailEnabled, prefs.WebEnabled, prefs.PushEnabled, prefs.SMSEnabled} {
		if on {
			activeChannels++
		}
	}

	// Marketing is excluded: opting into promotions says nothing about
	// engagement with the user's own subscriptions.
	activeCategories := 0
	for _, on := range []bool{prefs.NewAnnouncements, prefs.DeadlineReminders, prefs.DigestNotifications, prefs.SystemNotifications} {
		if on {
			activeCategories++
		}
	}

	score := 0.3 + (float64(activeChannels)/4)*0.35 + (float64(activeCategories)/4)*0.35
	if score > 1.0 {
		score = 1.0
	}
	return score, nil
}
