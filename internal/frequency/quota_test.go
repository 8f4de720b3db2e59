package frequency

import (
	"context"
	"testing"
	"time"

	"alertflow/internal/models"
)

func TestQuotaTracker_CheckDailyLimit(t *testing.T) {
	tests := []struct {
		name        string
		maxDaily    int
		sentToday   int
		wantAllowed bool
	}{
		{"under limit", 10, 3, true},
		{"one below limit", 10, 9, true},
		{"at limit", 10, 10, false},
		{"over limit", 10, 12, false},
		{"cap of one, none sent", 1, 0, true},
		{"cap of one, one sent", 1, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefs := models.DefaultPreferences(1)
			prefs.MaxDailyNotifications = tt.maxDaily

			counter := &fakeSentCounter{count: tt.sentToday}
			tracker := NewQuotaTracker(&fakePrefs{prefs: prefs}, counter, nil)

			allowed, current, max, err := tracker.CheckDailyLimit(context.Background(), 1)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if allowed != tt.wantAllowed {
				t.Errorf("allowed = %v, want %v", allowed, tt.wantAllowed)
			}
			if current != tt.sentToday {
				t.Errorf("current = %d, want %d", current, tt.sentToday)
			}
			if max != tt.maxDaily {
				t.Errorf("max = %d, want %d", max, tt.maxDaily)
			}
		})
	}
}

func TestQuotaTracker_UTCDayWindow(t *testing.T) {
	// 2025-06-01 23:30 UTC: the window must be [2025-06-01 00:00,
	// 2025-06-02 00:00) in UTC regardless of the user's timezone.
	now := time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC)

	prefs := models.DefaultPreferences(1)
	prefs.Timezone = "America/Los_Angeles"

	counter := &fakeSentCounter{count: 0}
	tracker := NewQuotaTracker(&fakePrefs{prefs: prefs}, counter, fixedNow(now))

	if _, _, _, err := tracker.CheckDailyLimit(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantFrom := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	wantTo := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	if !counter.lastFrom.Equal(wantFrom) || !counter.lastTo.Equal(wantTo) {
		t.Errorf("window = [%v, %v), want [%v, %v)",
			counter.lastFrom, counter.lastTo, wantFrom, wantTo)
	}
}

func TestQuotaTracker_DefaultsWhenNoRecord(t *testing.T) {
	tracker := NewQuotaTracker(&fakePrefs{}, &fakeSentCounter{count: 9}, nil)

	allowed, _, max, err := tracker.CheckDailyLimit(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if max != 10 {
		t.Errorf("max = %d, want default 10", max)
	}
	if !allowed {
		t.Error("allowed = false, want true at 9/10")
	}
}

func TestQuotaTracker_StoreErrorPropagates(t *testing.T) {
	tracker := NewQuotaTracker(&fakePrefs{}, &fakeSentCounter{err: errStore}, nil)

	if _, _, _, err := tracker.CheckDailyLimit(context.Background(), 1); err == nil {
		t.Error("expected error from failing counter")
	}
}
