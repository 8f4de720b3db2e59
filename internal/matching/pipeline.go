package matching

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"alertflow/internal/frequency"
	"alertflow/internal/models"
)

// ContentQuery is the normalized form of one subscription's content search.
type ContentQuery struct {
	Domain       string
	SearchQuery  string
	Categories   []string
	Regions      []string
	Statuses     []string
	PublishedGTE *time.Time
	PublishedLTE *time.Time
	UpdatedSince time.Time
	Limit        int
}

// ScoredAnnouncement pairs a content item with the raw relevance score the
// text-search engine assigned it.
type ScoredAnnouncement struct {
	models.Announcement
	RawScore float64 `db:"raw_score"`
}

// ContentSearcher executes a content query ordered by relevance descending.
type ContentSearcher interface {
	Search(ctx context.Context, q ContentQuery) ([]ScoredAnnouncement, error)
}

// NotificationSink records an admitted candidate. Insert must be atomic
// insert-if-absent on (subscription_id, user_id, content_id): a repeat match
// is a no-op, never a duplicate row.
type NotificationSink interface {
	InsertIfAbsent(ctx context.Context, n *models.Notification) (int64, bool, error)
}

// Pipeline matches recently updated content against subscriptions, filters
// by match threshold, and queues notifications for candidates that clear
// the admission gate and the content block filter.
type Pipeline struct {
	content   ContentSearcher
	sink      NotificationSink
	manager   *frequency.Manager
	blocklist *frequency.ContentBlockFilter
	scorer    *frequency.PriorityScorer
	now       func() time.Time
}

func NewPipeline(content ContentSearcher, sink NotificationSink, manager *frequency.Manager, blocklist *frequency.ContentBlockFilter, scorer *frequency.PriorityScorer, now func() time.Time) *Pipeline {
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		content:   content,
		sink:      sink,
		manager:   manager,
		blocklist: blocklist,
		scorer:    scorer,
		now:       now,
	}
}

// BuildQuery turns subscription keywords and structured filters into a
// ContentQuery. Multi-word keywords become quoted phrases, single words
// bare terms, OR-joined for the text search engine.
func BuildQuery(domain string, keywords []string, filter models.SubscriptionFilter, since time.Time) (ContentQuery, error) {
	if len(keywords) == 0 {
		return ContentQuery{}, fmt.Errorf("subscription has no keywords")
	}

	var terms []string
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.ContainsAny(kw, " \t") {
			terms = append(terms, `"`+kw+`"`)
		} else {
			terms = append(terms, kw)
		}
	}
	if len(terms) == 0 {
		return ContentQuery{}, fmt.Errorf("subscription keywords are all blank")
	}

	q := ContentQuery{
		Domain:       domain,
		SearchQuery:  strings.Join(terms, " OR "),
		Categories:   filter.Categories,
		Regions:      filter.Regions,
		Statuses:     filter.Statuses,
		PublishedGTE: filter.PublishedFrom,
		PublishedLTE: filter.PublishedTo,
		UpdatedSince: since,
	}
	return q, nil
}

// NormalizeScore maps an unbounded raw text-search score into [0, 1] by
// dividing by the keyword count. A heuristic, but a stable one: zero raw
// score stays zero, and the result is monotone in the raw score.
func NormalizeScore(raw float64, keywordCount int) float64 {
	if keywordCount < 1 {
		keywordCount = 1
	}
	normalized := raw / float64(keywordCount)
	if normalized > 1.0 {
		normalized = 1.0
	}
	if normalized < 0 {
		normalized = 0
	}
	return normalized
}

// Result summarises one subscription's matching run.
type Result struct {
	Matched   int
	Queued    int
	QueuedIDs []int64
}

// MatchSubscription runs the full match-score-admit-queue sequence for one
// subscription over content updated since the lookback window.
func (p *Pipeline) MatchSubscription(ctx context.Context, sub *models.Subscription, since time.Time) (*Result, error) {
	query, err := BuildQuery(sub.Domain, sub.Keywords, sub.SubscriptionFilter, since)
	if err != nil {
		return nil, fmt.Errorf("failed to build query for subscription %d: %w", sub.ID, err)
	}

	items, err := p.content.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search content for subscription %d: %w", sub.ID, err)
	}

	channel := "email"
	if len(sub.Channels) > 0 {
		channel = sub.Channels[0]
	}

	result := &Result{}
	for i := range items {
		item := &items[i]

		score := NormalizeScore(item.RawScore, len(sub.Keywords))
		if score < sub.MatchThreshold {
			continue
		}
		result.Matched++

		admitted, reason, err := p.manager.ShouldSend(ctx, sub.UserID, models.TypeNewAnnouncement, item.ID)
		if err != nil {
			return result, err
		}
		if !admitted {
			slog.Debug("candidate rejected",
				"user_id", sub.UserID, "content_id", item.ID, "reason", reason)
			continue
		}

		blocked, reason, err := p.blocklist.IsBlocked(ctx, sub.UserID, &item.Announcement)
		if err != nil {
			return result, err
		}
		if blocked {
			slog.Debug("candidate blocked",
				"user_id", sub.UserID, "content_id", item.ID, "reason", reason)
			continue
		}

		priority, err := p.scorer.Calculate(ctx, sub.UserID, frequency.PriorityInput{
			Type:        models.TypeNewAnnouncement,
			Title:       item.Title,
			Description: item.Description,
			MatchScore:  score,
		})
		if err != nil {
			return result, err
		}

		scoreCopy := score
		id, created, err := p.sink.InsertIfAbsent(ctx, &models.Notification{
			SubscriptionID: sub.ID,
			UserID:         sub.UserID,
			Domain:         sub.Domain,
			ContentID:      item.ID,
			Type:           models.TypeNewAnnouncement,
			Channel:        channel,
			Status:         models.StatusQueued,
			Priority:       priority,
			Score:          &scoreCopy,
		})
		if err != nil {
			return result, fmt.Errorf("failed to queue notification: %w", err)
		}
		if created {
			result.Queued++
			result.QueuedIDs = append(result.QueuedIDs, id)
		}
	}

	return result, nil
}
