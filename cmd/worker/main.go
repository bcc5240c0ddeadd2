package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"hallpass/internal/config"
	"hallpass/internal/ledger"
	"hallpass/internal/logging"
	"hallpass/internal/notify"
	"hallpass/internal/queue"
	"hallpass/internal/store"
)

// activityFeedMax bounds the rolling feed mirrored into redis for the
// dashboard.
const activityFeedMax = 50

// Worker consumes pass events, mirrors them into the redis activity feed,
// and forwards them to the front-office webhook.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "hallpass:events")
	}

	ledgerRepo := ledger.NewRepository(db.Client)
	webhook := notify.New(cfg.NotifyURL, cfg.NotifySkip)

	// Check webhook health on startup
	if !cfg.NotifySkip {
		if err := webhook.Health(ctx); err != nil {
			logger.Warn("front-office webhook not available, will retry per event", zap.Error(err))
		} else {
			logger.Info("front-office webhook connected")
		}
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}

	logger.Info("worker started, waiting for messages")
	for msg := range messages {
		if msg.Type != ledger.TypeSignOut && msg.Type != ledger.TypeSignIn {
			continue
		}

		id := string(msg.Body)
		entry, err := ledgerRepo.Get(ctx, id)
		if err != nil {
			logger.Warn("fetch entry failed", zap.String("id", id), zap.Error(err))
			continue
		}

		payload, _ := json.Marshal(entry)
		if err := redisClient.PushActivity(ctx, string(payload), activityFeedMax); err != nil {
			logger.Warn("activity feed push failed", zap.String("id", id), zap.Error(err))
		}

		evt := notify.Event{
			EntryID:     entry.ID,
			StudentID:   entry.StudentID,
			StudentName: entry.StudentName,
			Type:        entry.Type,
			Destination: entry.Destination,
			Override:    entry.Override,
			OccurredAt:  entry.OccurredAt,
		}
		if err := webhook.Send(ctx, evt); err != nil {
			logger.Warn("webhook delivery failed", zap.String("id", id), zap.Error(err))
			continue
		}

		logger.Info("entry processed",
			zap.String("id", entry.ID),
			zap.String("type", entry.Type),
			zap.String("student", entry.StudentID))

		time.Sleep(10 * time.Millisecond) // Small delay between processing
	}

	logger.Info("worker stopped")
}
