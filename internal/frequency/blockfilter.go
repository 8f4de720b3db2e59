package frequency

import (
	"context"
	"fmt"
	"strings"

	"alertflow/internal/models"
)

// ContentBlockFilter rejects content containing any of a user's blocked
// keywords.
type ContentBlockFilter struct {
	prefs PreferenceSource
}

func NewContentBlockFilter(prefs PreferenceSource) *ContentBlockFilter {
	return &ContentBlockFilter{prefs: prefs}
}

// IsBlocked checks the announcement's text against the user's blocked
// keyword set and short-circuits on the first hit.
func (f *ContentBlockFilter) IsBlocked(ctx context.Context, userID int64, content *models.Announcement) (bool, string, error) {
	prefs, err := f.prefs.Preferences(ctx, userID)
	if err != nil {
		return false, "", fmt.Errorf("failed to load preferences: %w", err)
	}

	blocked := normalizeKeywords(prefs.BlockedKeywords)
	if len(blocked) == 0 {
		return false, "No blocked keywords", nil
	}

	haystack := strings.ToLower(strings.Join([]string{
		content.Title,
		content.Description,
		content.Summary,
		strings.Join(content.Keywords, " "),
	}, " "))

	for _, kw := range blocked {
		if strings.Contains(haystack, kw) {
			return true, fmt.Sprintf("Blocked by keyword: %s", kw), nil
		}
	}

	return false, "Content allowed", nil
}

// normalizeKeywords lower-cases and trims the set, discarding empties.
func normalizeKeywords(keywords []string) []string {
	var out []string
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
