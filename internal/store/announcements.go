package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"alertflow/internal/matching"
	"alertflow/internal/models"
)

// AnnouncementStore queries the aggregated content collection. Relevance
// ranking is pushed into Postgres full-text search; Go only assembles the
// clauses.
type AnnouncementStore struct {
	db *sqlx.DB
}

func NewAnnouncementStore(db *sqlx.DB) *AnnouncementStore {
	return &AnnouncementStore{db: db}
}

// Search executes a content query ordered by raw relevance descending.
func (s *AnnouncementStore) Search(ctx context.Context, q matching.ContentQuery) ([]matching.ScoredAnnouncement, error) {
	query, args := buildSearchQuery(q)

	var items []matching.ScoredAnnouncement
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search announcements: %w", err)
	}
	return items, nil
}

func buildSearchQuery(q matching.ContentQuery) (string, []interface{}) {
	args := []interface{}{q.SearchQuery}
	whereConditions := []string{
		"a.search_vector @@ websearch_to_tsquery('simple', $1)",
	}
	add := func(condition string, value interface{}) {
		args = append(args, value)
		whereConditions = append(whereConditions, fmt.Sprintf(condition, len(args)))
	}

	if q.Domain != "" {
		add("a.domain = $%d", q.Domain)
	}
	if !q.UpdatedSince.IsZero() {
		add("a.updated_at >= $%d", q.UpdatedSince)
	}
	if len(q.Categories) > 0 {
		add("a.category = ANY($%d)", pq.StringArray(q.Categories))
	}
	if len(q.Regions) > 0 {
		add("a.region = ANY($%d)", pq.StringArray(q.Regions))
	}
	if len(q.Statuses) > 0 {
		add("a.status = ANY($%d)", pq.StringArray(q.Statuses))
	}
	if q.PublishedGTE != nil {
		add("a.published_at >= $%d", *q.PublishedGTE)
	}
	if q.PublishedLTE != nil {
		add("a.published_at <= $%d", *q.PublishedLTE)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	// search_vector is generated and has no struct field, so columns are
	// listed explicitly.
	query := fmt.Sprintf(`
		SELECT a.id, a.domain, a.title, a.description, a.summary, a.keywords,
		       a.category, a.region, a.status, a.published_at, a.deadline,
		       a.updated_at,
		       ts_rank(a.search_vector, websearch_to_tsquery('simple', $1)) AS raw_score
		FROM announcements a
		WHERE %s
		ORDER BY raw_score DESC
		LIMIT $%d
	`, strings.Join(whereConditions, "\n		  AND "), len(args))

	return query, args
}

// DeadlineWithin lists announcements whose deadline falls inside
// [now, now+within), for deadline reminder aggregation.
func (s *AnnouncementStore) DeadlineWithin(ctx context.Context, domain string, now time.Time, within time.Duration) ([]models.Announcement, error) {
	var items []models.Announcement
	err := s.db.SelectContext(ctx, &items, `
		SELECT id, domain, title, description, summary, keywords,
		       category, region, status, published_at, deadline, updated_at
		FROM announcements
		WHERE domain = $1
		  AND deadline >= $2
		  AND deadline < $3
		ORDER BY deadline
	`, domain, now, now.Add(within))
	if err != nil {
		return nil, fmt.Errorf("failed to list deadline announcements: %w", err)
	}
	return items, nil
}

// Upsert stores one aggregated content item, refreshing mutable fields on
// repeat ingestion.
func (s *AnnouncementStore) Upsert(ctx context.Context, a *models.Announcement) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO announcements (
			id, domain, title, description, summary, keywords,
			category, region, status, published_at, deadline
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE
		SET title = $3,
		    description = $4,
		    summary = $5,
		    keywords = $6,
		    category = $7,
		    region = $8,
		    status = $9,
		    published_at = $10,
		    deadline = $11,
		    updated_at = CURRENT_TIMESTAMP
	`, a.ID, a.Domain, a.Title, a.Description, a.Summary, a.Keywords,
		a.Category, a.Region, a.Status, a.PublishedAt, a.Deadline)
	if err != nil {
		return fmt.Errorf("failed to upsert announcement: %w", err)
	}
	return nil
}

// Get returns one announcement, or nil when unknown.
func (s *AnnouncementStore) Get(ctx context.Context, id string) (*models.Announcement, error) {
	var a models.Announcement
	err := s.db.GetContext(ctx, &a, `
		SELECT id, domain, title, description, summary, keywords,
		       category, region, status, published_at, deadline, updated_at
		FROM announcements
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get announcement: %w", err)
	}
	return &a, nil
}
