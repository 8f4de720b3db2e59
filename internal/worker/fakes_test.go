package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	limiterpkg "github.com/ulule/limiter/v3"

	"alertflow/internal/frequency"
	"alertflow/internal/matching"
	"alertflow/internal/models"
)

var errProvider = errors.New("provider unavailable")

// fakeNotifications keeps rows in memory and records status transitions
// instead of mutating the row, so tests can assert exactly one transition.
type fakeNotifications struct {
	rows      map[int64]*models.Notification
	statuses  map[int64]string
	sentCount int
	nextID    int64
	inserted  []*models.Notification
}

func newFakeNotifications(rows ...*models.Notification) *fakeNotifications {
	f := &fakeNotifications{
		rows:     map[int64]*models.Notification{},
		statuses: map[int64]string{},
		nextID:   100,
	}
	for _, n := range rows {
		f.rows[n.ID] = n
	}
	return f
}

func (f *fakeNotifications) Get(ctx context.Context, id int64) (*models.Notification, error) {
	return f.rows[id], nil
}

func (f *fakeNotifications) InsertIfAbsent(ctx context.Context, n *models.Notification) (int64, bool, error) {
	for _, existing := range f.inserted {
		if existing.SubscriptionID == n.SubscriptionID && existing.UserID == n.UserID && existing.ContentID == n.ContentID {
			return 0, false, nil
		}
	}
	f.nextID++
	n.ID = f.nextID
	f.inserted = append(f.inserted, n)
	return n.ID, true, nil
}

func (f *fakeNotifications) CountSentBetween(ctx context.Context, userID int64, from, to time.Time) (int, error) {
	return f.sentCount, nil
}

func (f *fakeNotifications) MarkSent(ctx context.Context, id int64, at time.Time) error {
	f.statuses[id] = models.StatusSent
	return nil
}

func (f *fakeNotifications) MarkFailed(ctx context.Context, id int64, at time.Time) error {
	f.statuses[id] = models.StatusFailed
	return nil
}

func (f *fakeNotifications) MarkSkipped(ctx context.Context, id int64, at time.Time) error {
	f.statuses[id] = models.StatusSkipped
	return nil
}

type fakePreferences struct {
	byUser      map[int64]*models.NotificationPreference
	digestUsers []int64
}

func (f *fakePreferences) Preferences(ctx context.Context, userID int64) (*models.NotificationPreference, error) {
	if prefs, ok := f.byUser[userID]; ok {
		return prefs, nil
	}
	return models.DefaultPreferences(userID), nil
}

func (f *fakePreferences) DigestUserIDs(ctx context.Context, frequency string) ([]int64, error) {
	return f.digestUsers, nil
}

type fakeSubscriptions struct {
	byID        map[int64]*models.Subscription
	byUser      map[int64][]models.Subscription
	legacyUsers []int64
}

func (f *fakeSubscriptions) Get(ctx context.Context, id int64) (*models.Subscription, error) {
	return f.byID[id], nil
}

func (f *fakeSubscriptions) ActiveByFrequency(ctx context.Context, frequency string) ([]models.Subscription, error) {
	var subs []models.Subscription
	for _, list := range f.byUser {
		for _, sub := range list {
			if sub.Frequency == frequency {
				subs = append(subs, sub)
			}
		}
	}
	return subs, nil
}

func (f *fakeSubscriptions) ActiveUserIDsByFrequency(ctx context.Context, frequency string) ([]int64, error) {
	return f.legacyUsers, nil
}

func (f *fakeSubscriptions) ActiveByUser(ctx context.Context, userID int64) ([]models.Subscription, error) {
	return f.byUser[userID], nil
}

type fakeAnnouncements struct {
	byID          map[string]*models.Announcement
	searchResults []matching.ScoredAnnouncement
	deadlines     []models.Announcement
}

func (f *fakeAnnouncements) Search(ctx context.Context, q matching.ContentQuery) ([]matching.ScoredAnnouncement, error) {
	return f.searchResults, nil
}

func (f *fakeAnnouncements) DeadlineWithin(ctx context.Context, domain string, now time.Time, within time.Duration) ([]models.Announcement, error) {
	return f.deadlines, nil
}

func (f *fakeAnnouncements) Get(ctx context.Context, id string) (*models.Announcement, error) {
	return f.byID[id], nil
}

type fakeDeliveryLogs struct {
	entries []*models.DeliveryLog
}

func (f *fakeDeliveryLogs) Append(ctx context.Context, l *models.DeliveryLog) error {
	f.entries = append(f.entries, l)
	return nil
}

type fakeUsers struct{}

func (fakeUsers) EmailByID(ctx context.Context, userID int64) (string, error) {
	return fmt.Sprintf("user%d@example.com", userID), nil
}

type channelCall struct {
	to       string
	template string
	data     map[string]interface{}
}

type fakeChannel struct {
	err   error
	calls []channelCall
}

func (f *fakeChannel) SendTemplated(ctx context.Context, to, template string, data map[string]interface{}) (string, error) {
	f.calls = append(f.calls, channelCall{to: to, template: template, data: data})
	if f.err != nil {
		return "", f.err
	}
	return "msg-1", nil
}

type fakeEnqueuer struct {
	ids []int64
}

func (f *fakeEnqueuer) EnqueueSend(notificationID int64) (string, error) {
	f.ids = append(f.ids, notificationID)
	return fmt.Sprintf("task-%d", notificationID), nil
}

type fakeLimiter struct {
	reached bool
}

func (f *fakeLimiter) Get(ctx context.Context, key string) (limiterpkg.Context, error) {
	return limiterpkg.Context{Reached: f.reached}, nil
}

type fakeAdmitter struct {
	allow  bool
	reason string
}

func (f *fakeAdmitter) ShouldSend(ctx context.Context, userID int64, notificationType, contentID string) (bool, string, error) {
	return f.allow, f.reason, nil
}

type fakeScorer struct {
	priority int
}

func (f *fakeScorer) Calculate(ctx context.Context, userID int64, in frequency.PriorityInput) (int, error) {
	return f.priority, nil
}
