package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"urgify-core/internal/application"
	"urgify-core/internal/application/webhook_handlers"
	"urgify-core/internal/httpapi"
	"urgify-core/internal/infrastructure/artifact"
	"urgify-core/internal/infrastructure/cache"
	"urgify-core/internal/infrastructure/postgres"
	"urgify-core/internal/infrastructure/queue"
	"urgify-core/internal/infrastructure/repository"
	shopifyinfra "urgify-core/internal/infrastructure/shopify"
	"urgify-core/internal/metrics"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("No .env file found")
	}

	apiKey := os.Getenv("SHOPIFY_API_KEY")
	apiSecret := os.Getenv("SHOPIFY_API_SECRET")
	if apiSecret == "" {
		logger.Fatal().Msg("SHOPIFY_API_SECRET environment variable is required")
	}
	appURL := getEnv("APP_URL", "http://localhost:8080")
	exportDir := getEnv("GDPR_EXPORT_DIR", "./data/exports")

	// Postgres: the reliability tables (ledger, dead letters, gdpr, sessions).
	db, err := postgres.Open(getEnv("DATABASE_URL", "postgres://localhost:5432/urgify?sslmode=disable"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Postgres")
	}
	defer db.Close()
	if err := postgres.EnsureSchema(context.Background(), db); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ensure Postgres schema")
	}

	// MongoDB: the widget configuration documents the storefront reads.
	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(getEnv("MONGODB_URI", "mongodb://localhost:27017")))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database(getEnv("MONGODB_DATABASE", "urgify"))

	// Redis: storefront cache plus the asynq replay queue.
	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer redisClient.Close()
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	defer asynqClient.Close()

	metrics.Register()

	// Stores and adapters
	ledger := postgres.NewLedgerStore(db)
	deadLetters := postgres.NewDeadLetterStore(db)
	gdprStore := postgres.NewGdprStore(db)
	sessions := postgres.NewSessionStore(db)
	widgets := repository.NewMongoWidgetConfigRepository(mongoDB)
	storefrontCache := cache.NewRedisCache(redisClient, logger)
	artifacts := artifact.NewFilesystemStore(exportDir)
	scheduler := queue.NewAsynqScheduler(asynqClient, logger)

	adminClient := shopifyinfra.NewGraphQLClient(shopifyinfra.GraphQLClientOptions{
		Tokens:     sessions,
		APIVersion: os.Getenv("SHOPIFY_API_VERSION"),
	}, logger)
	verifier := shopifyinfra.NewWebhookVerifier(apiSecret)
	registrar := shopifyinfra.NewRegistrar(apiKey, apiSecret, appURL+"/webhooks", sessions, logger)

	// Application services
	gdprService := application.NewGdprService(gdprStore, deadLetters, sessions, artifacts, widgets, storefrontCache, logger)
	sink := application.NewLogSink(logger)
	processor := application.NewProcessor(ledger, deadLetters, sink, scheduler, logger)

	registry := webhook_handlers.BuildRegistry(gdprService, widgets, adminClient, storefrontCache, sessions, logger)
	workers := getIntEnv("WEBHOOK_WORKERS", 8)
	dispatcher := application.NewDispatcher(processor, registry, workers, logger)
	replayer := application.NewReplayer(deadLetters, registry, logger)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Webhooks:  httpapi.NewWebhookHandler(verifier, dispatcher, logger),
		Ops:       httpapi.NewOpsHandler(replayer, gdprStore, logger),
		Topics:    registry.Topics(),
		APIKey:    apiKey,
		APISecret: apiSecret,
		Logger:    logger,
	})

	port := getEnv("PORT", "8080")
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", port).Strs("topics", registry.Topics()).Msg("Starting webhook API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// The registrar needs a live server before subscriptions point at it, so
	// it runs after startup for any shop named in BOOTSTRAP_SHOPS.
	go registerBootstrapShops(registrar, registry.Topics(), logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}
	// Let in-flight deliveries finish before the stores go away.
	dispatcher.Close()
}

// registerBootstrapShops ensures platform-side webhook subscriptions exist
// for the shops listed in BOOTSTRAP_SHOPS (comma separated). Production
// installs register during OAuth; this covers dev stores and re-deploys.
func registerBootstrapShops(registrar *shopifyinfra.Registrar, topics []string, logger zerolog.Logger) {
	shops := os.Getenv("BOOTSTRAP_SHOPS")
	if shops == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, shop := range strings.Split(shops, ",") {
		shop = strings.TrimSpace(shop)
		if shop == "" {
			continue
		}
		created, err := registrar.Register(ctx, shop, topics)
		if err != nil {
			logger.Warn().Err(err).Str("shop", shop).Msg("Webhook registration failed")
			continue
		}
		if len(created) > 0 {
			logger.Info().Str("shop", shop).Strs("created", created).Msg("Registered missing webhook subscriptions")
		}
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
