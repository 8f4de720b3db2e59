package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"alertflow/internal/auth"
	"alertflow/internal/config"
	"alertflow/internal/db"
	"alertflow/internal/frequency"
	"alertflow/internal/handlers"
	"alertflow/internal/queue"
	"alertflow/internal/routes"
	"alertflow/internal/store"
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

	auth.InitSecurity()

	preferences := store.NewPreferenceStore(conn)
	subscriptions := store.NewSubscriptionStore(conn)
	notifications := store.NewNotificationStore(conn)
	announcements := store.NewAnnouncementStore(conn)
	deliveryLogs := store.NewDeliveryLogStore(conn)

	manager := frequency.NewManager(preferences, notifications, notifications, nil)

	queueClient := queue.NewClient(config.GetRedisAddr())
	defer queueClient.Close()

	h := handlers.NewHandler(auth.NewService(conn), preferences, subscriptions, notifications, announcements, deliveryLogs, manager, queueClient)

	e := echo.New()
	routes.SetupRoutes(e.Group("/api/v1"), h)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := e.Start(config.GetHTTPAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Fatal(err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}
}
