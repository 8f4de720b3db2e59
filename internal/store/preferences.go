package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"alertflow/internal/models"
)

// PreferenceStore reads and writes notification_preferences rows.
type PreferenceStore struct {
	db *sqlx.DB
}

func NewPreferenceStore(db *sqlx.DB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

// Get returns the stored record, or (nil, nil) when the user never saved
// preferences.
func (s *PreferenceStore) Get(ctx context.Context, userID int64) (*models.NotificationPreference, error) {
	var prefs models.NotificationPreference
	err := s.db.GetContext(ctx, &prefs, `
		SELECT * FROM notification_preferences
		WHERE user_id = $1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}
	return &prefs, nil
}

// Preferences returns the stored record or the default one, never nil.
// Implements the preference source contract of the frequency package.
func (s *PreferenceStore) Preferences(ctx context.Context, userID int64) (*models.NotificationPreference, error) {
	prefs, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if prefs == nil {
		return models.DefaultPreferences(userID), nil
	}
	return prefs, nil
}

// Create inserts a full preference record.
func (s *PreferenceStore) Create(ctx context.Context, p *models.NotificationPreference) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notification_preferences (
			user_id, email_enabled, web_enabled, push_enabled, sms_enabled,
			new_announcements, deadline_reminders, digest_notifications,
			system_notifications, marketing_notifications,
			digest_frequency, deadline_reminder_days, max_daily_notifications,
			quiet_hours_enabled, quiet_hours_start, quiet_hours_end, timezone,
			minimum_match_score, priority_keywords, blocked_keywords,
			auto_subscribe_similar, subscription_expiry_days
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		RETURNING id
	`, p.UserID, p.EmailEnabled, p.WebEnabled, p.PushEnabled, p.SMSEnabled,
		p.NewAnnouncements, p.DeadlineReminders, p.DigestNotifications,
		p.SystemNotifications, p.MarketingNotifications,
		p.DigestFrequency, p.DeadlineReminderDays, p.MaxDailyNotifications,
		p.QuietHoursEnabled, p.QuietHoursStart, p.QuietHoursEnd, p.Timezone,
		p.MinimumMatchScore, p.PriorityKeywords, p.BlockedKeywords,
		p.AutoSubscribeSimilar, p.SubscriptionExpiryDays).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create preferences: %w", err)
	}
	return id, nil
}

// Patch applies a partial update, lazily creating the row with defaults
// first so a patch against an absent record works. Only non-nil patch
// fields change.
func (s *PreferenceStore) Patch(ctx context.Context, userID int64, patch *models.PreferencePatch) error {
	// Lazy create on first write intent.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_preferences (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to ensure preferences row: %w", err)
	}

	setClauses := []string{"updated_at = CURRENT_TIMESTAMP"}
	args := []interface{}{userID}
	add := func(column string, value interface{}) {
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.EmailEnabled != nil {
		add("email_enabled", *patch.EmailEnabled)
	}
	if patch.WebEnabled != nil {
		add("web_enabled", *patch.WebEnabled)
	}
	if patch.PushEnabled != nil {
		add("push_enabled", *patch.PushEnabled)
	}
	if patch.SMSEnabled != nil {
		add("sms_enabled", *patch.SMSEnabled)
	}
	if patch.NewAnnouncements != nil {
		add("new_announcements", *patch.NewAnnouncements)
	}
	if patch.DeadlineReminders != nil {
		add("deadline_reminders", *patch.DeadlineReminders)
	}
	if patch.DigestNotifications != nil {
		add("digest_notifications", *patch.DigestNotifications)
	}
	if patch.SystemNotifications != nil {
		add("system_notifications", *patch.SystemNotifications)
	}
	if patch.MarketingNotifications != nil {
		add("marketing_notifications", *patch.MarketingNotifications)
	}
	if patch.DigestFrequency != nil {
		add("digest_frequency", *patch.DigestFrequency)
	}
	if patch.DeadlineReminderDays != nil {
		add("deadline_reminder_days", pq.Int64Array(patch.DeadlineReminderDays))
	}
	if patch.MaxDailyNotifications != nil {
		add("max_daily_notifications", *patch.MaxDailyNotifications)
	}
	if patch.QuietHoursEnabled != nil {
		add("quiet_hours_enabled", *patch.QuietHoursEnabled)
	}
	if patch.QuietHoursStart != nil {
		add("quiet_hours_start", *patch.QuietHoursStart)
	}
	if patch.QuietHoursEnd != nil {
		add("quiet_hours_end", *patch.QuietHoursEnd)
	}
	if patch.Timezone != nil {
		add("timezone", *patch.Timezone)
	}
	if patch.MinimumMatchScore != nil {
		add("minimum_match_score", *patch.MinimumMatchScore)
	}
	if patch.PriorityKeywords != nil {
		add("priority_keywords", pq.StringArray(patch.PriorityKeywords))
	}
	if patch.BlockedKeywords != nil {
		add("blocked_keywords", pq.StringArray(patch.BlockedKeywords))
	}
	if patch.AutoSubscribeSimilar != nil {
		add("auto_subscribe_similar", *patch.AutoSubscribeSimilar)
	}
	if patch.SubscriptionExpiryDays != nil {
		add("subscription_expiry_days", *patch.SubscriptionExpiryDays)
	}

	query := fmt.Sprintf(`
		UPDATE notification_preferences
		SET %s
		WHERE user_id = $1
	`, strings.Join(setClauses, ", "))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		slog.Error("failed to patch preferences", "error", err, "user_id", userID)
		return fmt.Errorf("failed to patch preferences: %w", err)
	}
	return nil
}

// Delete resets the user to defaults by removing their record.
func (s *PreferenceStore) Delete(ctx context.Context, userID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM notification_preferences
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete preferences: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// DigestUserIDs lists users whose stored digest frequency matches. Users
// without a preference row are on the default daily frequency, so the daily
// audience also includes owners of active subscriptions who never saved one.
func (s *PreferenceStore) DigestUserIDs(ctx context.Context, frequency string) ([]int64, error) {
	query := `
		SELECT user_id FROM notification_preferences
		WHERE digest_frequency = $1
	`
	if frequency == models.DigestDaily {
		query += `
		UNION
		SELECT DISTINCT s.user_id FROM alert_subscriptions s
		LEFT JOIN notification_preferences p ON p.user_id = s.user_id
		WHERE s.is_active = TRUE AND p.id IS NULL
	`
	}

	var ids []int64
	err := s.db.SelectContext(ctx, &ids, query, frequency)
	if err != nil {
		return nil, fmt.Errorf("failed to query digest users: %w", err)
	}
	return ids, nil
}
