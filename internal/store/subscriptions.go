package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"alertflow/internal/models"
)

// SubscriptionStore reads and writes alert_subscriptions rows.
// Subscriptions are never physically deleted; deactivation flips is_active.
type SubscriptionStore struct {
	db *sqlx.DB
}

func NewSubscriptionStore(db *sqlx.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func (s *SubscriptionStore) Create(ctx context.Context, sub *models.Subscription) (int64, error) {
	if len(sub.Channels) == 0 {
		sub.Channels = []string{"email"}
	}
	if sub.Frequency == "" {
		sub.Frequency = "realtime"
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO alert_subscriptions (
			user_id, keywords, domain, categories, regions, statuses,
			published_from, published_to, channels, frequency,
			is_active, match_threshold
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,TRUE,$11)
		RETURNING id
	`, sub.UserID, sub.Keywords, sub.Domain, sub.Categories, sub.Regions,
		sub.Statuses, sub.PublishedFrom, sub.PublishedTo, sub.Channels,
		sub.Frequency, sub.MatchThreshold).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create subscription: %w", err)
	}
	return id, nil
}

func (s *SubscriptionStore) Get(ctx context.Context, id int64) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.GetContext(ctx, &sub, `
		SELECT * FROM alert_subscriptions
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &sub, nil
}

func (s *SubscriptionStore) ListByUser(ctx context.Context, userID int64) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.SelectContext(ctx, &subs, `
		SELECT * FROM alert_subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

// ActiveByFrequency lists all active subscriptions with the given delivery
// frequency, the fan-out set for the batch jobs.
func (s *SubscriptionStore) ActiveByFrequency(ctx context.Context, frequency string) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.SelectContext(ctx, &subs, `
		SELECT * FROM alert_subscriptions
		WHERE frequency = $1 AND is_active = TRUE
		ORDER BY id
	`, frequency)
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}
	return subs, nil
}

// ActiveUserIDsByFrequency lists the distinct owners of active
// subscriptions with the given frequency. The daily variant is the legacy
// path into the digest job.
func (s *SubscriptionStore) ActiveUserIDsByFrequency(ctx context.Context, frequency string) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT user_id FROM alert_subscriptions
		WHERE frequency = $1 AND is_active = TRUE
	`, frequency)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscription users: %w", err)
	}
	return ids, nil
}

// ActiveByUser lists a user's active subscriptions, used by the digest
// aggregation.
func (s *SubscriptionStore) ActiveByUser(ctx context.Context, userID int64) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.SelectContext(ctx, &subs, `
		SELECT * FROM alert_subscriptions
		WHERE user_id = $1 AND is_active = TRUE
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}
	return subs, nil
}

// Update rewrites the mutable subscription fields.
func (s *SubscriptionStore) Update(ctx context.Context, sub *models.Subscription) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE alert_subscriptions
		SET keywords = $2,
		    domain = $3,
		    categories = $4,
		    regions = $5,
		    statuses = $6,
		    published_from = $7,
		    published_to = $8,
		    channels = $9,
		    frequency = $10,
		    match_threshold = $11,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND user_id = $12
	`, sub.ID, sub.Keywords, sub.Domain, sub.Categories, sub.Regions,
		sub.Statuses, sub.PublishedFrom, sub.PublishedTo, sub.Channels,
		sub.Frequency, sub.MatchThreshold, sub.UserID)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no subscription found with id: %d", sub.ID)
	}
	return nil
}

// SetActive flips the is_active flag.
func (s *SubscriptionStore) SetActive(ctx context.Context, id, userID int64, active bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE alert_subscriptions
		SET is_active = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND user_id = $2
	`, id, userID, active)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no subscription found with id: %d", id)
	}
	return nil
}
