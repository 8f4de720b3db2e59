package frequency

import (
	"context"
	"fmt"
	"strings"
)

// PriorityInput carries the fields that influence a notification's priority.
type PriorityInput struct {
	Type        string
	DaysLeft    int
	Title       string
	Description string
	MatchScore  float64
}

// PriorityScorer derives an integer priority in [1,5] for a candidate
// notification.
type PriorityScorer struct {
	prefs PreferenceSource
}

func NewPriorityScorer(prefs PreferenceSource) *PriorityScorer {
	return &PriorityScorer{prefs: prefs}
}

// Calculate computes the priority. The accumulation is done in floating
// point and truncated (not rounded) at the end; the 0.5 boost for scores in
// [0.7, 0.9) therefore only matters when earlier boosts already left a
// fractional value. That arithmetic is load-bearing for downstream
// consumers and must not be "fixed" to rounding.
func (s *PriorityScorer) Calculate(ctx context.Context, userID int64, in PriorityInput) (int, error) {
	prefs, err := s.prefs.Preferences(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load preferences: %w", err)
	}

	priority := 3.0

	switch in.Type {
	case "deadline_reminder":
		switch {
		case in.DaysLeft <= 1:
			priority = 5
		case in.DaysLeft <= 3:
			priority = 4
		default:
			priority = 3
		}
	case "system_notification":
		priority = 4
	case "marketing_notification":
		priority = 2
	}

	text := strings.ToLower(in.Title + " " + in.Description)
	for _, kw := range prefs.PriorityKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			priority = minFloat(priority+1, 5)
			break
		}
	}

	if in.MatchScore >= 0.9 {
		priority = minFloat(priority+1, 5)
	} else if in.MatchScore >= 0.7 {
		priority = minFloat(priority+0.5, 5)
	}

	result := int(priority)
	if result < 1 {
		result = 1
	}
	return result, nil
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
