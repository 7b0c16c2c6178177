package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ankit50/mediMeet/internal/config"
	"github.com/ankit50/mediMeet/internal/repository"
	"github.com/ankit50/mediMeet/internal/repository/postgres"
	"github.com/ankit50/mediMeet/internal/service/notification"
	"github.com/ankit50/mediMeet/pkg/logger"
	redisbroker "github.com/ankit50/mediMeet/pkg/messaging/redis"
	"github.com/ankit50/mediMeet/pkg/metrics"
	"github.com/ankit50/mediMeet/pkg/worker"
)

// retentionWindow controls how long processed outbox rows are kept
// before the cleanup pass deletes them.
const retentionWindow = 7 * 24 * time.Hour

func main() {
	log := logger.NewLogger(nil)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err, "failed to load config")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	broker, err := redisbroker.NewRedisBroker(redisbroker.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &log.ZL)
	if err != nil {
		log.Fatal(err, "failed to connect to redis")
	}
	defer broker.Close()

	outboxRepo := postgres.NewOutboxRepository(db)
	notifier := notification.NewService(cfg.SMTP, log.ZL)
	m := metrics.NewMetrics("medimeet", "worker")

	processor := worker.NewOutboxProcessor(outboxRepo, broker, notifier, m, log.ZL, worker.Config{
		BatchSize:    cfg.Outbox.BatchSize,
		PollInterval: cfg.Outbox.PollInterval,
		MaxRetries:   cfg.Outbox.MaxRetries,
		RetryDelay:   cfg.Outbox.RetryDelay,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Start(ctx)
	go cleanupLoop(ctx, outboxRepo, log)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker")
	cancel()
}

func cleanupLoop(ctx context.Context, outboxRepo repository.OutboxRepository, log *logger.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := outboxRepo.DeleteProcessedBefore(ctx, time.Now().Add(-retentionWindow))
			if err != nil {
				log.Error(err, "failed to clean up processed events")
				continue
			}
			if deleted > 0 {
				log.Info("cleaned up processed events", "deleted", deleted)
			}
		}
	}
}
