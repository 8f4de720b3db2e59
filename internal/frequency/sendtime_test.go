package frequency

import (
	"context"
	"errors"
	"testing"
	"time"

	"alertflow/internal/models"
)

func TestSendTimeOptimizer_QuietHoursDisabled(t *testing.T) {
	opt := NewSendTimeOptimizer(&fakePrefs{}, nil)

	base := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	got, err := opt.OptimalSendTime(context.Background(), 1, base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(base) {
		t.Errorf("got %v, want base %v unchanged", got, base)
	}
}

func TestSendTimeOptimizer_Shifting(t *testing.T) {
	window := func(tz string, start, end int) *fakePrefs {
		return &fakePrefs{prefs: quietPrefs(true, start, end, tz)}
	}

	tests := []struct {
		name  string
		prefs *fakePrefs
		base  time.Time
		want  time.Time
	}{
		{
			name:  "outside window passes through",
			prefs: window("UTC", 22, 8),
			base:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name:  "same-day window shifts to its end",
			prefs: window("UTC", 9, 17),
			base:  time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
			want:  time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC),
		},
		{
			name:  "wrap window, small hours, ends same day",
			prefs: window("UTC", 22, 8),
			base:  time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		},
		{
			name:  "wrap window, late evening, ends next day",
			prefs: window("UTC", 22, 8),
			base:  time.Date(2026, 3, 1, 23, 15, 0, 0, time.UTC),
			want:  time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		},
		{
			name:  "window evaluated in the user's timezone",
			prefs: window("Asia/Seoul", 22, 8),
			// 14:00 UTC is 23:00 in Seoul, inside the window; it ends at
			// 08:00 Seoul the next day, which is 23:00 UTC the same day.
			base: time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := NewSendTimeOptimizer(tt.prefs, nil)
			got, err := opt.OptimalSendTime(context.Background(), 1, tt.base)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSendTimeOptimizer_BadTimezoneFailsOpen(t *testing.T) {
	prefs := models.DefaultPreferences(1)
	prefs.QuietHoursEnabled = true
	prefs.Timezone = "Mars/Olympus_Mons"

	opt := NewSendTimeOptimizer(&fakePrefs{prefs: prefs}, nil)

	base := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	got, err := opt.OptimalSendTime(context.Background(), 1, base)
	if !errors.Is(err, ErrBadTimezone) {
		t.Fatalf("error = %v, want ErrBadTimezone", err)
	}
	if !got.Equal(base) {
		t.Errorf("got %v, want base %v on timezone failure", got, base)
	}
}

func TestSendTimeOptimizer_ZeroBaseUsesClock(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	opt := NewSendTimeOptimizer(&fakePrefs{}, fixedNow(now))

	got, err := opt.OptimalSendTime(context.Background(), 1, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(now) {
		t.Errorf("got %v, want injected now %v", got, now)
	}
}
