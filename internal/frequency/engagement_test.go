package frequency

import (
	"context"
	"math"
	"testing"
	"time"

	"alertflow/internal/models"
)

func TestEngagementScorer_Score(t *testing.T) {
	allOff := models.DefaultPreferences(1)
	allOff.EmailEnabled = false
	allOff.WebEnabled = false
	allOff.NewAnnouncements = false
	allOff.DeadlineReminders = false
	allOff.DigestNotifications = false
	allOff.SystemNotifications = false

	everything := models.DefaultPreferences(1)
	everything.PushEnabled = true
	everything.SMSEnabled = true
	everything.MarketingNotifications = true

	tests := []struct {
		name  string
		prefs *models.NotificationPreference
		sent  int
		want  float64
	}{
		{
			name: "no recent deliveries is neutral",
			sent: 0,
			want: 0.5,
		},
		{
			// Defaults: email+web on (2/4 channels), all four
			// non-marketing categories on. 0.3 + 0.175 + 0.35.
			name: "defaults with recent deliveries",
			sent: 3,
			want: 0.825,
		},
		{
			name:  "everything enabled hits the ceiling",
			prefs: everything,
			sent:  1,
			want:  1.0,
		},
		{
			name:  "everything disabled keeps the floor",
			prefs: allOff,
			sent:  2,
			want:  0.3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scorer := NewEngagementScorer(
				&fakePrefs{prefs: tt.prefs},
				&fakeSentCounter{count: tt.sent},
				nil,
			)
			got, err := scorer.Score(context.Background(), 1)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEngagementScorer_MarketingDoesNotCount(t *testing.T) {
	withMarketing := models.DefaultPreferences(1)
	withMarketing.MarketingNotifications = true

	base := NewEngagementScorer(&fakePrefs{}, &fakeSentCounter{count: 1}, nil)
	boosted := NewEngagementScorer(&fakePrefs{prefs: withMarketing}, &fakeSentCounter{count: 1}, nil)

	a, err := base.Score(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := boosted.Score(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Errorf("marketing toggle changed the score: %v vs %v", a, b)
	}
}

func TestEngagementScorer_CountsTrailing30Days(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	counter := &fakeSentCounter{count: 1}
	scorer := NewEngagementScorer(&fakePrefs{}, counter, fixedNow(now))

	if _, err := scorer.Score(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantFrom := now.Add(-30 * 24 * time.Hour)
	if !counter.lastFrom.Equal(wantFrom) {
		t.Errorf("window start = %v, want %v", counter.lastFrom, wantFrom)
	}
	if !counter.lastTo.Equal(now) {
		t.Errorf("window end = %v, want %v", counter.lastTo, now)
	}
}

func TestEngagementScorer_CounterError(t *testing.T) {
	scorer := NewEngagementScorer(&fakePrefs{}, &fakeSentCounter{err: errStore}, nil)
	if _, err := scorer.Score(context.Background(), 1); err == nil {
		t.Fatal("expected error when the delivery count fails")
	}
}
