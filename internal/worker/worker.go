package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	limiterpkg "github.com/ulule/limiter/v3"

	"alertflow/internal/delivery"
	"alertflow/internal/frequency"
	"alertflow/internal/matching"
	"alertflow/internal/models"
	"alertflow/internal/queue"
)

// The handlers see their collaborators through narrow interfaces, same as
// the frequency package does with its stores. The internal/store types
// satisfy them in production.

// NotificationStore is the worker's view of the notifications table.
type NotificationStore interface {
	Get(ctx context.Context, id int64) (*models.Notification, error)
	InsertIfAbsent(ctx context.Context, n *models.Notification) (int64, bool, error)
	CountSentBetween(ctx context.Context, userID int64, from, to time.Time) (int, error)
	MarkSent(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, at time.Time) error
	MarkSkipped(ctx context.Context, id int64, at time.Time) error
}

// PreferenceStore yields preference records and the digest audience.
type PreferenceStore interface {
	Preferences(ctx context.Context, userID int64) (*models.NotificationPreference, error)
	DigestUserIDs(ctx context.Context, frequency string) ([]int64, error)
}

// SubscriptionStore lists the subscriptions the jobs fan out over.
type SubscriptionStore interface {
	Get(ctx context.Context, id int64) (*models.Subscription, error)
	ActiveByFrequency(ctx context.Context, frequency string) ([]models.Subscription, error)
	ActiveUserIDsByFrequency(ctx context.Context, frequency string) ([]int64, error)
	ActiveByUser(ctx context.Context, userID int64) ([]models.Subscription, error)
}

// AnnouncementStore reads aggregated content for digests and sends.
type AnnouncementStore interface {
	Search(ctx context.Context, q matching.ContentQuery) ([]matching.ScoredAnnouncement, error)
	DeadlineWithin(ctx context.Context, domain string, now time.Time, within time.Duration) ([]models.Announcement, error)
	Get(ctx context.Context, id string) (*models.Announcement, error)
}

// DeliveryLogStore appends per-attempt audit rows.
type DeliveryLogStore interface {
	Append(ctx context.Context, l *models.DeliveryLog) error
}

// UserEmails resolves the delivery address for a user.
type UserEmails interface {
	EmailByID(ctx context.Context, userID int64) (string, error)
}

// Matcher runs one subscription through the matching pipeline.
type Matcher interface {
	MatchSubscription(ctx context.Context, sub *models.Subscription, since time.Time) (*matching.Result, error)
}

// Admitter is the delivery-eligibility gate.
type Admitter interface {
	ShouldSend(ctx context.Context, userID int64, notificationType, contentID string) (bool, string, error)
}

// PriorityCalculator scores a candidate notification.
type PriorityCalculator interface {
	Calculate(ctx context.Context, userID int64, in frequency.PriorityInput) (int, error)
}

// SendEnqueuer queues delivery tasks for freshly created notifications.
type SendEnqueuer interface {
	EnqueueSend(notificationID int64) (string, error)
}

// RateLimiter is the slice of ulule/limiter the send job consumes.
type RateLimiter interface {
	Get(ctx context.Context, key string) (limiterpkg.Context, error)
}

// Deps carries the collaborators the job handlers need. Everything is
// injected; the worker holds no package-level state.
type Deps struct {
	Notifications NotificationStore
	Subscriptions SubscriptionStore
	Preferences   PreferenceStore
	Announcements AnnouncementStore
	DeliveryLogs  DeliveryLogStore
	Users         UserEmails
	Pipeline      Matcher
	Manager       Admitter
	Scorer        PriorityCalculator
	Channel       delivery.Channel
	Queue         SendEnqueuer
	// SendLimiter is the one resource shared across every concurrent send:
	// a sliding-window limit on outbound deliveries, checked atomically in
	// redis so concurrent workers cannot race past it.
	SendLimiter RateLimiter
	MatchDomain string
	Now         func() time.Time
}

type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler

	deps       Deps
	quiet      *frequency.QuietHoursEvaluator
	quota      *frequency.QuotaTracker
	optimizer  *frequency.SendTimeOptimizer
	engagement *frequency.EngagementScorer
}

func NewWorker(redisAddr string, deps Deps) *Worker {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MatchDomain == "" {
		deps.MatchDomain = "kstartup"
	}

	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				queue.TaskSendNotification: 6,
				queue.TaskMatchAndEnqueue:  3,
				queue.TaskDailyDigest:      1,
			},
			// Bounded exponential backoff for transient failures.
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(1<<uint(n)) * 30 * time.Second
			},
		},
	)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
	})

	return &Worker{
		server:     server,
		scheduler:  scheduler,
		deps:       deps,
		quiet:      frequency.NewQuietHoursEvaluator(deps.Now),
		quota:      frequency.NewQuotaTracker(deps.Preferences, deps.Notifications, deps.Now),
		optimizer:  frequency.NewSendTimeOptimizer(deps.Preferences, deps.Now),
		engagement: frequency.NewEngagementScorer(deps.Preferences, deps.Notifications, deps.Now),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	mux := asynq.NewServeMux()

	mux.HandleFunc(queue.TaskMatchAndEnqueue, w.HandleMatchAndEnqueue)
	mux.HandleFunc(queue.TaskSendNotification, w.HandleSendNotification)
	mux.HandleFunc(queue.TaskDailyDigest, w.HandleDailyDigest)

	if err := w.registerSchedules(); err != nil {
		return err
	}

	slog.Info("Starting worker",
		"queues", []string{queue.TaskSendNotification, queue.TaskMatchAndEnqueue, queue.TaskDailyDigest},
		"concurrency", 10)

	if err := w.scheduler.Start(); err != nil {
		return err
	}

	if err := w.server.Start(mux); err != nil {
		return err
	}

	slog.Info("Worker started successfully")

	<-ctx.Done()

	w.scheduler.Shutdown()
	w.server.Stop()
	slog.Info("Worker stopped")
	return nil
}

func (w *Worker) registerSchedules() error {
	matchTask, err := queue.NewMatchTask(w.deps.MatchDomain, 15)
	if err != nil {
		return err
	}
	if _, err := w.scheduler.Register("@every 15m", matchTask,
		asynq.Queue(queue.TaskMatchAndEnqueue)); err != nil {
		return err
	}

	// 00:00 UTC is 09:00 in Seoul, the digest hour.
	digestTask := asynq.NewTask(queue.TaskDailyDigest, nil)
	if _, err := w.scheduler.Register("0 0 * * *", digestTask,
		asynq.Queue(queue.TaskDailyDigest)); err != nil {
		return err
	}

	return nil
}
