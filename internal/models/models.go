package models

import (
	"time"

	"github.com/lib/pq"
)

// Notification status lifecycle: a row is created queued and moves to
// exactly one terminal state. It never transitions back.
const (
	StatusQueued  = "queued"
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Notification types recognised by the category toggles and the priority
// scorer.
const (
	TypeNewAnnouncement  = "new_announcement"
	TypeDeadlineReminder = "deadline_reminder"
	TypeDigest           = "digest_notification"
	TypeSystem           = "system_notification"
	TypeMarketing        = "marketing_notification"
)

// Digest frequencies.
const (
	DigestDaily   = "daily"
	DigestWeekly  = "weekly"
	DigestMonthly = "monthly"
	DigestOff     = "off"
)

// SubscriptionFilter narrows which announcements a subscription matches.
// All fields are optional; empty slices mean "no constraint".
type SubscriptionFilter struct {
	Domain        string         `db:"domain" json:"domain"`
	Categories    pq.StringArray `db:"categories" json:"categories"`
	Regions       pq.StringArray `db:"regions" json:"regions"`
	Statuses      pq.StringArray `db:"statuses" json:"statuses"`
	PublishedFrom *time.Time     `db:"published_from" json:"published_from"`
	PublishedTo   *time.Time     `db:"published_to" json:"published_to"`
}

type Subscription struct {
	ID       int64          `db:"id" json:"id"`
	UserID   int64          `db:"user_id" json:"user_id"`
	Keywords pq.StringArray `db:"keywords" json:"keywords"`
	SubscriptionFilter
	Channels       pq.StringArray `db:"channels" json:"channels"`
	Frequency      string         `db:"frequency" json:"frequency"`
	IsActive       bool           `db:"is_active" json:"is_active"`
	MatchThreshold float64        `db:"match_threshold" json:"match_threshold"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// NotificationPreference is the one-per-user delivery policy record.
type NotificationPreference struct {
	ID     int64 `db:"id" json:"id"`
	UserID int64 `db:"user_id" json:"user_id"`

	EmailEnabled bool `db:"email_enabled" json:"email_enabled"`
	WebEnabled   bool `db:"web_enabled" json:"web_enabled"`
	PushEnabled  bool `db:"push_enabled" json:"push_enabled"`
	SMSEnabled   bool `db:"sms_enabled" json:"sms_enabled"`

	NewAnnouncements       bool `db:"new_announcements" json:"new_announcements"`
	DeadlineReminders      bool `db:"deadline_reminders" json:"deadline_reminders"`
	DigestNotifications    bool `db:"digest_notifications" json:"digest_notifications"`
	SystemNotifications    bool `db:"system_notifications" json:"system_notifications"`
	MarketingNotifications bool `db:"marketing_notifications" json:"marketing_notifications"`

	DigestFrequency      string        `db:"digest_frequency" json:"digest_frequency"`
	DeadlineReminderDays pq.Int64Array `db:"deadline_reminder_days" json:"deadline_reminder_days"`

	MaxDailyNotifications int `db:"max_daily_notifications" json:"max_daily_notifications"`

	QuietHoursEnabled bool   `db:"quiet_hours_enabled" json:"quiet_hours_enabled"`
	QuietHoursStart   int    `db:"quiet_hours_start" json:"quiet_hours_start"`
	QuietHoursEnd     int    `db:"quiet_hours_end" json:"quiet_hours_end"`
	Timezone          string `db:"timezone" json:"timezone"`

	MinimumMatchScore    float64        `db:"minimum_match_score" json:"minimum_match_score"`
	PriorityKeywords     pq.StringArray `db:"priority_keywords" json:"priority_keywords"`
	BlockedKeywords      pq.StringArray `db:"blocked_keywords" json:"blocked_keywords"`
	AutoSubscribeSimilar bool           `db:"auto_subscribe_similar" json:"auto_subscribe_similar"`

	SubscriptionExpiryDays *int `db:"subscription_expiry_days" json:"subscription_expiry_days"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DefaultPreferences is the record every consumer falls back to when a user
// has never saved preferences. Consumers must never see a nil preference.
func DefaultPreferences(userID int64) *NotificationPreference {
	return &NotificationPreference{
		UserID:                 userID,
		EmailEnabled:           true,
		WebEnabled:             true,
		PushEnabled:            false,
		SMSEnabled:             false,
		NewAnnouncements:       true,
		DeadlineReminders:      true,
		DigestNotifications:    true,
		SystemNotifications:    true,
		MarketingNotifications: false,
		DigestFrequency:        DigestDaily,
		DeadlineReminderDays:   pq.Int64Array{7, 3, 1},
		MaxDailyNotifications:  10,
		QuietHoursEnabled:      false,
		QuietHoursStart:        22,
		QuietHoursEnd:          8,
		Timezone:               "Asia/Seoul",
		MinimumMatchScore:      0.5,
		PriorityKeywords:       pq.StringArray{},
		BlockedKeywords:        pq.StringArray{},
	}
}

// CategoryEnabled reports whether the toggle for the given notification type
// is on, and whether the type maps to a known toggle at all.
func (p *NotificationPreference) CategoryEnabled(notificationType string) (enabled, known bool) {
	switch notificationType {
	case TypeNewAnnouncement:
		return p.NewAnnouncements, true
	case TypeDeadlineReminder:
		return p.DeadlineReminders, true
	case TypeDigest:
		return p.DigestNotifications, true
	case TypeSystem:
		return p.SystemNotifications, true
	case TypeMarketing:
		return p.MarketingNotifications, true
	}
	return false, false
}

// EnabledChannels lists the channel names whose toggle is on, in the fixed
// email/web/push/sms order.
func (p *NotificationPreference) EnabledChannels() []string {
	var channels []string
	if p.EmailEnabled {
		channels = append(channels, "email")
	}
	if p.WebEnabled {
		channels = append(channels, "web")
	}
	if p.PushEnabled {
		channels = append(channels, "push")
	}
	if p.SMSEnabled {
		channels = append(channels, "sms")
	}
	return channels
}

// PreferencePatch carries a partial preference update. Only non-nil fields
// are applied.
type PreferencePatch struct {
	EmailEnabled           *bool    `json:"email_enabled"`
	WebEnabled             *bool    `json:"web_enabled"`
	PushEnabled            *bool    `json:"push_enabled"`
	SMSEnabled             *bool    `json:"sms_enabled"`
	NewAnnouncements       *bool    `json:"new_announcements"`
	DeadlineReminders      *bool    `json:"deadline_reminders"`
	DigestNotifications    *bool    `json:"digest_notifications"`
	SystemNotifications    *bool    `json:"system_notifications"`
	MarketingNotifications *bool    `json:"marketing_notifications"`
	DigestFrequency        *string  `json:"digest_frequency" validate:"omitnil,oneof=daily weekly monthly off"`
	DeadlineReminderDays   []int64  `json:"deadline_reminder_days"`
	MaxDailyNotifications  *int     `json:"max_daily_notifications" validate:"omitnil,min=1,max=100"`
	QuietHoursEnabled      *bool    `json:"quiet_hours_enabled"`
	QuietHoursStart        *int     `json:"quiet_hours_start" validate:"omitnil,min=0,max=23"`
	QuietHoursEnd          *int     `json:"quiet_hours_end" validate:"omitnil,min=0,max=23"`
	Timezone               *string  `json:"timezone"`
	MinimumMatchScore      *float64 `json:"minimum_match_score" validate:"omitnil,min=0,max=1"`
	PriorityKeywords       []string `json:"priority_keywords"`
	BlockedKeywords        []string `json:"blocked_keywords"`
	AutoSubscribeSimilar   *bool    `json:"auto_subscribe_similar"`
	SubscriptionExpiryDays *int     `json:"subscription_expiry_days"`
}

type Notification struct {
	ID             int64      `db:"id" json:"id"`
	SubscriptionID int64      `db:"subscription_id" json:"subscription_id"`
	UserID         int64      `db:"user_id" json:"user_id"`
	Domain         string     `db:"domain" json:"domain"`
	ContentID      string     `db:"content_id" json:"content_id"`
	Type           string     `db:"notification_type" json:"notification_type"`
	Channel        string     `db:"channel" json:"channel"`
	Status         string     `db:"status" json:"status"`
	Priority       int        `db:"priority" json:"priority"`
	Score          *float64   `db:"score" json:"score"`
	SentAt         *time.Time `db:"sent_at" json:"sent_at"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// DeliveryLog is an append-only audit row, one per physical send attempt.
type DeliveryLog struct {
	ID               int64      `db:"id" json:"id"`
	NotificationID   int64      `db:"notification_id" json:"notification_id"`
	Attempt          int        `db:"attempt" json:"attempt"`
	ProviderMsgID    *string    `db:"provider_message_id" json:"provider_message_id"`
	ProviderResponse *string    `db:"provider_response" json:"provider_response"`
	Error            *string    `db:"error" json:"error"`
	NextRetryAt      *time.Time `db:"next_retry_at" json:"next_retry_at"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// Announcement is one content item from an aggregated public-data source.
type Announcement struct {
	ID          string         `db:"id" json:"id"`
	Domain      string         `db:"domain" json:"domain"`
	Title       string         `db:"title" json:"title"`
	Description string         `db:"description" json:"description"`
	Summary     string         `db:"summary" json:"summary"`
	Keywords    pq.StringArray `db:"keywords" json:"keywords"`
	Category    string         `db:"category" json:"category"`
	Region      string         `db:"region" json:"region"`
	Status      string         `db:"status" json:"status"`
	PublishedAt *time.Time     `db:"published_at" json:"published_at"`
	Deadline    *time.Time     `db:"deadline" json:"deadline"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}
