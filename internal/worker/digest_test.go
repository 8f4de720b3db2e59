package worker

import (
	"context"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"alertflow/internal/matching"
	"alertflow/internal/models"
	"alertflow/internal/queue"
)

type digestFixture struct {
	worker        *Worker
	notifications *fakeNotifications
	channel       *fakeChannel
	enqueuer      *fakeEnqueuer
}

func newDigestFixture(prefs *fakePreferences, subs *fakeSubscriptions, anns *fakeAnnouncements) *digestFixture {
	f := &digestFixture{
		notifications: newFakeNotifications(),
		channel:       &fakeChannel{},
		enqueuer:      &fakeEnqueuer{},
	}
	f.worker = NewWorker("127.0.0.1:6379", Deps{
		Notifications: f.notifications,
		Subscriptions: subs,
		Preferences:   prefs,
		Announcements: anns,
		DeliveryLogs:  &fakeDeliveryLogs{},
		Users:         fakeUsers{},
		Manager:       &fakeAdmitter{allow: true, reason: "Allowed"},
		Scorer:        &fakeScorer{priority: 4},
		Channel:       f.channel,
		Queue:         f.enqueuer,
		SendLimiter:   &fakeLimiter{},
		Now: func() time.Time {
			return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
		},
	})
	return f
}

func digestSubscription(userID int64) models.Subscription {
	return models.Subscription{
		ID:             7,
		UserID:         userID,
		Keywords:       []string{"funding"},
		Channels:       []string{"email"},
		Frequency:      "realtime",
		IsActive:       true,
		MatchThreshold: 0.5,
		SubscriptionFilter: models.SubscriptionFilter{
			Domain: "bizinfo",
		},
	}
}

func TestHandleDailyDigest_AudienceEligibilityAndDedupe(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	// User 2 appears only in the legacy daily-frequency audience and has
	// digests switched off; only user 1 should receive mail.
	digestsOff := models.DefaultPreferences(2)
	digestsOff.DigestNotifications = false

	prefs := &fakePreferences{
		byUser:      map[int64]*models.NotificationPreference{2: digestsOff},
		digestUsers: []int64{1},
	}
	subs := &fakeSubscriptions{
		byUser: map[int64][]models.Subscription{
			1: {digestSubscription(1)},
			2: {digestSubscription(2)},
		},
		legacyUsers: []int64{1, 2},
	}

	// ann-1 comes back from both the new-content search and the deadline
	// scan; the digest must list it once. Its deadline is five days out,
	// which is not a reminder offset.
	fiveDaysOut := now.Add(5 * 24 * time.Hour)
	anns := &fakeAnnouncements{
		searchResults: []matching.ScoredAnnouncement{
			{
				Announcement: models.Announcement{ID: "ann-1", Domain: "bizinfo", Title: "Startup funding round"},
				RawScore:     1.5,
			},
			{
				Announcement: models.Announcement{ID: "ann-2", Domain: "bizinfo", Title: "Barely related"},
				RawScore:     0.1,
			},
		},
		deadlines: []models.Announcement{
			{ID: "ann-1", Domain: "bizinfo", Title: "Startup funding round", Deadline: &fiveDaysOut},
		},
	}

	f := newDigestFixture(prefs, subs, anns)

	err := f.worker.HandleDailyDigest(context.Background(), asynq.NewTask(queue.TaskDailyDigest, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.channel.calls) != 1 {
		t.Fatalf("channel calls = %d, want 1", len(f.channel.calls))
	}
	call := f.channel.calls[0]
	if call.to != "user1@example.com" || call.template != "daily_digest" {
		t.Errorf("delivered to %q with template %q", call.to, call.template)
	}
	if got := call.data["item_count"]; got != 1 {
		t.Errorf("item_count = %v, want 1 after threshold filter and dedupe", got)
	}
	if len(f.enqueuer.ids) != 0 {
		t.Errorf("enqueued %v, want no reminders for a 5-day deadline", f.enqueuer.ids)
	}
}

func TestHandleDailyDigest_QueuesDeadlineReminderOnOffsetDay(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	prefs := &fakePreferences{digestUsers: []int64{1}}
	subs := &fakeSubscriptions{
		byUser: map[int64][]models.Subscription{1: {digestSubscription(1)}},
	}

	// Three days before the deadline, one of the default reminder offsets.
	threeDaysOut := now.Add(3 * 24 * time.Hour)
	anns := &fakeAnnouncements{
		deadlines: []models.Announcement{
			{ID: "ann-9", Domain: "bizinfo", Title: "Funding grant closing", Deadline: &threeDaysOut},
		},
	}

	f := newDigestFixture(prefs, subs, anns)

	err := f.worker.HandleDailyDigest(context.Background(), asynq.NewTask(queue.TaskDailyDigest, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.notifications.inserted) != 1 {
		t.Fatalf("inserted %d notifications, want 1", len(f.notifications.inserted))
	}
	reminder := f.notifications.inserted[0]
	if reminder.Type != models.TypeDeadlineReminder || reminder.UserID != 1 || reminder.ContentID != "ann-9" {
		t.Errorf("reminder = %+v, want deadline_reminder for ann-9", reminder)
	}
	if reminder.Priority != 4 {
		t.Errorf("priority = %d, want 4 from the scorer", reminder.Priority)
	}
	if len(f.enqueuer.ids) != 1 || f.enqueuer.ids[0] != reminder.ID {
		t.Errorf("enqueued %v, want the reminder id %d", f.enqueuer.ids, reminder.ID)
	}
}
