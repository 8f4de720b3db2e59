package frequency

import (
	"context"
	"errors"
	"time"

	"alertflow/internal/models"
)

// fakePrefs serves a canned preference record, or defaults when none is set.
type fakePrefs struct {
	prefs *models.NotificationPreference
	err   error
}

func (f *fakePrefs) Preferences(ctx context.Context, userID int64) (*models.NotificationPreference, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.prefs != nil {
		return f.prefs, nil
	}
	return models.DefaultPreferences(userID), nil
}

// fakeSentCounter returns a fixed sent count and records the last window it
// was asked about.
type fakeSentCounter struct {
	count    int
	err      error
	lastFrom time.Time
	lastTo   time.Time
}

func (f *fakeSentCounter) CountSentBetween(ctx context.Context, userID int64, from, to time.Time) (int, error) {
	f.lastFrom, f.lastTo = from, to
	return f.count, f.err
}

type fakeContentCounter struct {
	count     int
	err       error
	lastSince time.Time
	lastUntil time.Time
}

func (f *fakeContentCounter) CountForContentBetween(ctx context.Context, userID int64, contentID string, since, until time.Time) (int, error) {
	f.lastSince, f.lastUntil = since, until
	return f.count, f.err
}

var errStore = errors.New("store unavailable")

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
