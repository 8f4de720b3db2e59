package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"alertflow/internal/models"
)

// NotificationStore reads and writes notifications rows. The table carries
// a unique (subscription_id, user_id, content_id) index; InsertIfAbsent
// leans on it so concurrent matching runs race safely to a single row.
type NotificationStore struct {
	db *sqlx.DB
}

func NewNotificationStore(db *sqlx.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// InsertIfAbsent atomically creates the row unless the unique triple already
// exists. Returns (id, true) on insert and (0, false) when the row was
// already there. Never read-then-write: the conflict clause is the
// concurrency control.
func (s *NotificationStore) InsertIfAbsent(ctx context.Context, n *models.Notification) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notifications (
			subscription_id, user_id, domain, content_id,
			notification_type, channel, status, priority, score
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (subscription_id, user_id, content_id) DO NOTHING
		RETURNING id
	`, n.SubscriptionID, n.UserID, n.Domain, n.ContentID,
		n.Type, n.Channel, n.Status, n.Priority, n.Score).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert notification: %w", err)
	}
	return id, true, nil
}

func (s *NotificationStore) Get(ctx context.Context, id int64) (*models.Notification, error) {
	var n models.Notification
	err := s.db.GetContext(ctx, &n, `
		SELECT * FROM notifications
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &n, nil
}

// CountSentBetween counts delivered notifications in [from, to).
func (s *NotificationStore) CountSentBetween(ctx context.Context, userID int64, from, to time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1
		  AND status = 'sent'
		  AND sent_at >= $2
		  AND sent_at < $3
	`, userID, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to count sent notifications: %w", err)
	}
	return count, nil
}

// CountForContentBetween counts rows for a (user, content) pair created in
// [since, until), any status.
func (s *NotificationStore) CountForContentBetween(ctx context.Context, userID int64, contentID string, since, until time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1
		  AND content_id = $2
		  AND created_at >= $3
		  AND created_at < $4
	`, userID, contentID, since, until)
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications for content: %w", err)
	}
	return count, nil
}

// MarkSent transitions a queued row to its terminal sent state.
func (s *NotificationStore) MarkSent(ctx context.Context, id int64, at time.Time) error {
	return s.transition(ctx, id, models.StatusSent, &at)
}

// MarkFailed transitions a queued row to its terminal failed state.
func (s *NotificationStore) MarkFailed(ctx context.Context, id int64, at time.Time) error {
	return s.transition(ctx, id, models.StatusFailed, &at)
}

// MarkSkipped transitions a queued row to its terminal skipped state.
// Skips are expected business outcomes, never errors.
func (s *NotificationStore) MarkSkipped(ctx context.Context, id int64, at time.Time) error {
	return s.transition(ctx, id, models.StatusSkipped, &at)
}

// transition is guarded on status = queued so a terminal row can never move
// to a second terminal state.
func (s *NotificationStore) transition(ctx context.Context, id int64, status string, at *time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = $2, sent_at = $3
		WHERE id = $1 AND status = 'queued'
	`, id, status, at)
	if err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("notification already terminal, status unchanged",
			"notification_id", id, "requested_status", status)
	}
	return nil
}

// History lists a user's notifications newest first.
func (s *NotificationStore) History(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var notifications []models.Notification
	err := s.db.SelectContext(ctx, &notifications, `
		SELECT * FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}
