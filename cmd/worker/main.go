package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	libredis "github.com/redis/go-redis/v9"
	limiterpkg "github.com/ulule/limiter/v3"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"

	"alertflow/internal/auth"
	"alertflow/internal/config"
	"alertflow/internal/db"
	"alertflow/internal/delivery"
	"alertflow/internal/frequency"
	"alertflow/internal/matching"
	"alertflow/internal/queue"
	"alertflow/internal/store"
	"alertflow/internal/worker"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		log.Fatalf("Failed to load environment: %v", err)
	}

	conn, err := db.Connect()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	if err := db.MigrateUp(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	redisAddr := config.GetRedisAddr()

	preferences := store.NewPreferenceStore(conn)
	subscriptions := store.NewSubscriptionStore(conn)
	notifications := store.NewNotificationStore(conn)
	announcements := store.NewAnnouncementStore(conn)
	deliveryLogs := store.NewDeliveryLogStore(conn)

	manager := frequency.NewManager(preferences, notifications, notifications, nil)
	blocklist := frequency.NewContentBlockFilter(preferences)
	scorer := frequency.NewPriorityScorer(preferences)

	pipeline := matching.NewPipeline(announcements, notifications, manager, blocklist, scorer, nil)

	queueClient := queue.NewClient(redisAddr)
	defer queueClient.Close()

	sendLimiter, err := newSendLimiter(redisAddr)
	if err != nil {
		log.Fatalf("Failed to initialize send rate limiter: %v", err)
	}

	w := worker.NewWorker(redisAddr, worker.Deps{
		Notifications: notifications,
		Subscriptions: subscriptions,
		Preferences:   preferences,
		Announcements: announcements,
		DeliveryLogs:  deliveryLogs,
		Users:         auth.NewService(conn),
		Pipeline:      pipeline,
		Manager:       manager,
		Scorer:        scorer,
		Channel:       delivery.NewLogChannel(),
		Queue:         queueClient,
		SendLimiter:   sendLimiter,
		MatchDomain:   config.GetEnv("MATCH_DOMAIN", "kstartup"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Start(ctx); err != nil {
		log.Fatalf("Worker failed: %v", err)
	}
}

// newSendLimiter builds the global outbound limit shared by every worker
// process: a sliding window in redis, checked atomically.
func newSendLimiter(redisAddr string) (*limiterpkg.Limiter, error) {
	client := libredis.NewClient(&libredis.Options{Addr: redisAddr})

	limitStore, err := redisstore.NewStoreWithOptions(client, limiterpkg.StoreOptions{
		Prefix: "alertflow:sendlimit",
	})
	if err != nil {
		return nil, err
	}

	rate := limiterpkg.Rate{
		Period: 1 * time.Minute,
		Limit:  120,
	}
	return limiterpkg.New(limitStore, rate), nil
}
