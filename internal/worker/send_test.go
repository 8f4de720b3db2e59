package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"alertflow/internal/models"
	"alertflow/internal/queue"
)

type sendFixture struct {
	worker        *Worker
	notifications *fakeNotifications
	logs          *fakeDeliveryLogs
	channel       *fakeChannel
}

// newSendFixture builds a worker around one queued email notification for
// user 1: subscription 7 and announcement ann-1 both exist, the clock is
// fixed at noon UTC, and the global limiter is open.
func newSendFixture(prefs *models.NotificationPreference, mutate func(*sendFixture)) *sendFixture {
	notifications := newFakeNotifications(&models.Notification{
		ID:             1,
		SubscriptionID: 7,
		UserID:         1,
		Domain:         "bizinfo",
		ContentID:      "ann-1",
		Type:           models.TypeNewAnnouncement,
		Channel:        "email",
		Status:         models.StatusQueued,
		Priority:       3,
	})

	byUser := map[int64]*models.NotificationPreference{}
	if prefs != nil {
		byUser[1] = prefs
	}

	f := &sendFixture{
		notifications: notifications,
		logs:          &fakeDeliveryLogs{},
		channel:       &fakeChannel{},
	}

	deps := Deps{
		Notifications: notifications,
		Subscriptions: &fakeSubscriptions{byID: map[int64]*models.Subscription{
			7: {ID: 7, UserID: 1, Keywords: []string{"funding"}},
		}},
		Preferences: &fakePreferences{byUser: byUser},
		Announcements: &fakeAnnouncements{byID: map[string]*models.Announcement{
			"ann-1": {ID: "ann-1", Domain: "bizinfo", Title: "Startup funding round"},
		}},
		DeliveryLogs: f.logs,
		Users:        fakeUsers{},
		Channel:      f.channel,
		Queue:        &fakeEnqueuer{},
		SendLimiter:  &fakeLimiter{},
		Now: func() time.Time {
			return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
		},
	}
	f.worker = NewWorker("127.0.0.1:6379", deps)
	if mutate != nil {
		mutate(f)
	}
	return f
}

func sendTask(t *testing.T, notificationID int64) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(queue.SendPayload{NotificationID: notificationID})
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return asynq.NewTask(queue.TaskSendNotification, payload)
}

func TestHandleSendNotification_Outcomes(t *testing.T) {
	quietNow := models.DefaultPreferences(1)
	quietNow.QuietHoursEnabled = true
	quietNow.Timezone = "UTC"
	quietNow.QuietHoursStart = 11
	quietNow.QuietHoursEnd = 14

	categoryOff := models.DefaultPreferences(1)
	categoryOff.NewAnnouncements = false

	tests := []struct {
		name       string
		prefs      *models.NotificationPreference
		mutate     func(*sendFixture)
		wantErr    bool
		wantStatus string
		wantSends  int
	}{
		{
			name:       "clear path delivers and marks sent",
			wantStatus: models.StatusSent,
			wantSends:  1,
		},
		{
			name:       "category disabled skips without retry",
			prefs:      categoryOff,
			wantStatus: models.StatusSkipped,
		},
		{
			name:  "channel disabled skips without retry",
			prefs: nil,
			mutate: func(f *sendFixture) {
				// Default preferences leave sms off.
				f.notifications.rows[1].Channel = "sms"
			},
			wantStatus: models.StatusSkipped,
		},
		{
			name:    "quiet hours retries, row stays queued",
			prefs:   quietNow,
			wantErr: true,
		},
		{
			name: "daily limit skips without retry",
			mutate: func(f *sendFixture) {
				f.notifications.sentCount = 10
			},
			wantStatus: models.StatusSkipped,
		},
		{
			name: "global rate limit retries, row stays queued",
			mutate: func(f *sendFixture) {
				f.worker.deps.SendLimiter = &fakeLimiter{reached: true}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSendFixture(tt.prefs, tt.mutate)

			err := f.worker.HandleSendNotification(context.Background(), sendTask(t, 1))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected retryable error")
				}
				if errors.Is(err, asynq.SkipRetry) {
					t.Fatalf("error %v skips retry, want retryable", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got := f.notifications.statuses[1]; got != tt.wantStatus {
				t.Errorf("status = %q, want %q", got, tt.wantStatus)
			}
			if len(f.channel.calls) != tt.wantSends {
				t.Errorf("channel calls = %d, want %d", len(f.channel.calls), tt.wantSends)
			}
		})
	}
}

func TestHandleSendNotification_SuccessAppendsAuditRow(t *testing.T) {
	f := newSendFixture(nil, nil)

	if err := f.worker.HandleSendNotification(context.Background(), sendTask(t, 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.logs.entries) != 1 {
		t.Fatalf("delivery logs = %d, want 1", len(f.logs.entries))
	}
	entry := f.logs.entries[0]
	if entry.NotificationID != 1 || entry.Error != nil || entry.ProviderMsgID == nil {
		t.Errorf("audit row = %+v, want success row for notification 1", entry)
	}

	call := f.channel.calls[0]
	if call.to != "user1@example.com" || call.template != "new_announcement" {
		t.Errorf("delivered to %q with template %q", call.to, call.template)
	}
}

func TestHandleSendNotification_ProviderFailure(t *testing.T) {
	f := newSendFixture(nil, func(f *sendFixture) {
		f.channel.err = errProvider
	})

	// Without task retry metadata the attempt counts as the last one, so
	// the row goes terminal failed alongside the returned error.
	err := f.worker.HandleSendNotification(context.Background(), sendTask(t, 1))
	if !errors.Is(err, errProvider) {
		t.Fatalf("err = %v, want provider error", err)
	}
	if got := f.notifications.statuses[1]; got != models.StatusFailed {
		t.Errorf("status = %q, want failed", got)
	}
	if len(f.logs.entries) != 1 || f.logs.entries[0].Error == nil {
		t.Errorf("audit rows = %+v, want one row carrying the error", f.logs.entries)
	}
}

func TestHandleSendNotification_BadPayloadSkipsRetry(t *testing.T) {
	f := newSendFixture(nil, nil)

	task := asynq.NewTask(queue.TaskSendNotification, []byte("{"))
	err := f.worker.HandleSendNotification(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}
}

func TestHandleSendNotification_MissingRowSkipsRetry(t *testing.T) {
	f := newSendFixture(nil, nil)

	err := f.worker.HandleSendNotification(context.Background(), sendTask(t, 99))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}
}

func TestHandleSendNotification_TerminalRowIsNoOp(t *testing.T) {
	f := newSendFixture(nil, func(f *sendFixture) {
		f.notifications.rows[1].Status = models.StatusSent
	})

	if err := f.worker.HandleSendNotification(context.Background(), sendTask(t, 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.channel.calls) != 0 {
		t.Errorf("channel calls = %d, want 0 for a terminal row", len(f.channel.calls))
	}
	if _, moved := f.notifications.statuses[1]; moved {
		t.Error("terminal row transitioned again")
	}
}

func TestHandleSendNotification_MissingDataFailsTerminally(t *testing.T) {
	f := newSendFixture(nil, func(f *sendFixture) {
		f.worker.deps.Subscriptions = &fakeSubscriptions{byID: map[int64]*models.Subscription{}}
	})

	err := f.worker.HandleSendNotification(context.Background(), sendTask(t, 1))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}
	if got := f.notifications.statuses[1]; got != models.StatusFailed {
		t.Errorf("status = %q, want failed", got)
	}
}
