package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"urgify-core/internal/application"
	"urgify-core/internal/application/webhook_handlers"
	"urgify-core/internal/domain"
	"urgify-core/internal/infrastructure/artifact"
	"urgify-core/internal/infrastructure/cache"
	"urgify-core/internal/infrastructure/postgres"
	"urgify-core/internal/infrastructure/queue"
	"urgify-core/internal/infrastructure/repository"
	shopifyinfra "urgify-core/internal/infrastructure/shopify"
)

// ledgerRetention is how long processed-delivery proof rows are kept. The
// platform redelivers within days, not months.
const ledgerRetention = 30 * 24 * time.Hour

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "worker").Logger()
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("No .env file found")
	}

	db, err := postgres.Open(getEnv("DATABASE_URL", "postgres://localhost:5432/urgify?sslmode=disable"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Postgres")
	}
	defer db.Close()

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(getEnv("MONGODB_URI", "mongodb://localhost:27017")))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database(getEnv("MONGODB_DATABASE", "urgify"))

	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer redisClient.Close()

	ledger := postgres.NewLedgerStore(db)
	deadLetters := postgres.NewDeadLetterStore(db)
	gdprStore := postgres.NewGdprStore(db)
	sessions := postgres.NewSessionStore(db)
	widgets := repository.NewMongoWidgetConfigRepository(mongoDB)
	storefrontCache := cache.NewRedisCache(redisClient, logger)
	artifacts := artifact.NewFilesystemStore(getEnv("GDPR_EXPORT_DIR", "./data/exports"))

	adminClient := shopifyinfra.NewGraphQLClient(shopifyinfra.GraphQLClientOptions{
		Tokens:     sessions,
		APIVersion: os.Getenv("SHOPIFY_API_VERSION"),
	}, logger)

	gdprService := application.NewGdprService(gdprStore, deadLetters, sessions, artifacts, widgets, storefrontCache, logger)
	registry := webhook_handlers.BuildRegistry(gdprService, widgets, adminClient, storefrontCache, sessions, logger)
	replayer := application.NewReplayer(deadLetters, registry, logger)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeDeadLetterReplay, func(ctx context.Context, task *asynq.Task) error {
		var payload queue.ReplayTaskPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("failed to decode replay task: %w", err)
		}
		err := replayer.Replay(ctx, payload.DeadLetterID)
		if errors.Is(err, domain.ErrNotFound) {
			// Redacted or manually resolved since scheduling.
			return nil
		}
		if err != nil {
			// The failure is recorded on the dead-letter row; the periodic
			// sweep retries it until the retry cap. No asynq-level retry.
			logger.Warn().Err(err).Str("deadLetterId", payload.DeadLetterID).Msg("Scheduled replay failed")
		}
		return nil
	})
	mux.HandleFunc(queue.TypeDeadLetterSweep, func(ctx context.Context, task *asynq.Task) error {
		_, _, err := replayer.ReplayBatch(ctx, application.DefaultMaxReplayRetries)
		return err
	})
	mux.HandleFunc(queue.TypeLedgerPrune, func(ctx context.Context, task *asynq.Task) error {
		pruned, err := ledger.PruneOlderThan(ctx, time.Now().Add(-ledgerRetention))
		if err != nil {
			return err
		}
		if pruned > 0 {
			logger.Info().Int("pruned", pruned).Msg("Pruned idempotency ledger")
		}
		return nil
	})

	scheduler := asynq.NewScheduler(asynq.RedisClientOpt{Addr: redisAddr}, &asynq.SchedulerOpts{})
	if _, err := scheduler.Register("@every 10m", queue.NewSweepTask(), asynq.Queue(queue.QueueName)); err != nil {
		logger.Fatal().Err(err).Msg("Failed to register sweep schedule")
	}
	if _, err := scheduler.Register("@every 24h", queue.NewLedgerPruneTask(), asynq.Queue(queue.QueueName)); err != nil {
		logger.Fatal().Err(err).Msg("Failed to register prune schedule")
	}
	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Fatal().Err(err).Msg("Scheduler stopped")
		}
	}()

	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: getIntEnv("WORKER_CONCURRENCY", 4),
			Queues:      map[string]int{queue.QueueName: 1},
		},
	)

	logger.Info().Strs("topics", registry.Topics()).Msg("Starting replay worker")
	if err := server.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("Worker stopped")
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
