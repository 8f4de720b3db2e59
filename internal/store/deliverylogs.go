package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"alertflow/internal/models"
)

// DeliveryLogStore appends per-attempt audit rows. Append-only, one row per
// physical send attempt.
type DeliveryLogStore struct {
	db *sqlx.DB
}

func NewDeliveryLogStore(db *sqlx.DB) *DeliveryLogStore {
	return &DeliveryLogStore{db: db}
}

func (s *DeliveryLogStore) Append(ctx context.Context, l *models.DeliveryLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_logs (
			notification_id, attempt, provider_message_id,
			provider_response, error, next_retry_at
		)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, l.NotificationID, l.Attempt, l.ProviderMsgID,
		l.ProviderResponse, l.Error, l.NextRetryAt)
	if err != nil {
		return fmt.Errorf("failed to append delivery log: %w", err)
	}
	return nil
}

// ListByNotification returns the attempt history for one notification,
// oldest first.
func (s *DeliveryLogStore) ListByNotification(ctx context.Context, notificationID int64) ([]models.DeliveryLog, error) {
	var logs []models.DeliveryLog
	err := s.db.SelectContext(ctx, &logs, `
		SELECT * FROM delivery_logs
		WHERE notification_id = $1
		ORDER BY created_at
	`, notificationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery logs: %w", err)
	}
	return logs, nil
}
