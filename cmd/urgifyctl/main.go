package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"urgify-core/internal/application"
	"urgify-core/internal/application/webhook_handlers"
	"urgify-core/internal/infrastructure/artifact"
	"urgify-core/internal/infrastructure/cache"
	"urgify-core/internal/infrastructure/postgres"
	"urgify-core/internal/infrastructure/repository"
	shopifyinfra "urgify-core/internal/infrastructure/shopify"
)

// urgifyctl is the operator CLI: inspect and replay dead letters, review the
// compliance audit trail. It talks to the same stores as the server.
func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "urgifyctl",
		Short:         "Operations tooling for the Urgify webhook pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(deadlettersCmd(), gdprCmd(), sessionsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func deadlettersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deadletters",
		Short: "Inspect and replay dead-lettered webhook deliveries",
	}

	var maxRetries int
	list := &cobra.Command{
		Use:   "list",
		Short: "List unresolved dead letters eligible for replay",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			records, err := postgres.NewDeadLetterStore(db).ListUnprocessed(cmd.Context(), maxRetries)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTOPIC\tSHOP\tRETRIES\tCREATED\tERROR")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					rec.ID, rec.Topic, rec.Shop, rec.RetryCount,
					rec.CreatedAt.Format(time.RFC3339), truncate(rec.Error, 60))
			}
			return w.Flush()
		},
	}
	list.Flags().IntVar(&maxRetries, "max-retries", application.DefaultMaxReplayRetries, "retry cap for eligibility")

	var all bool
	replay := &cobra.Command{
		Use:   "replay [id]",
		Short: "Replay one dead letter by id, or all eligible ones with --all",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) != 1 {
				return fmt.Errorf("provide a dead letter id or --all")
			}
			replayer, cleanup, err := buildReplayer()
			if err != nil {
				return err
			}
			defer cleanup()

			if all {
				succeeded, failed, err := replayer.ReplayBatch(cmd.Context(), application.DefaultMaxReplayRetries)
				if err != nil {
					return err
				}
				fmt.Printf("replayed %d, failed %d\n", succeeded, failed)
				return nil
			}
			if err := replayer.Replay(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("replayed", args[0])
			return nil
		},
	}
	replay.Flags().BoolVar(&all, "all", false, "replay every eligible dead letter")

	cmd.AddCommand(list, replay)
	return cmd
}

func gdprCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gdpr",
		Short: "Inspect the compliance audit trail",
	}

	var shop string
	list := &cobra.Command{
		Use:   "list",
		Short: "List compliance requests recorded for a shop",
		RunE: func(cmd *cobra.Command, args []string) error {
			if shop == "" {
				return fmt.Errorf("--shop is required")
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			requests, err := postgres.NewGdprStore(db).ListByShop(cmd.Context(), shop)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(requests)
		},
	}
	list.Flags().StringVar(&shop, "shop", "", "myshopify domain")

	cmd.AddCommand(list)
	return cmd
}

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect stored offline sessions",
	}

	var shop string
	check := &cobra.Command{
		Use:   "check",
		Short: "Check whether a shop's stored offline token is still accepted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if shop == "" {
				return fmt.Errorf("--shop is required")
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
			validator := shopifyinfra.NewTokenValidator(postgres.NewSessionStore(db), logger)
			valid, err := validator.Validate(cmd.Context(), shop)
			if err != nil {
				return err
			}
			if !valid {
				fmt.Printf("token for %s is revoked, shop must reinstall\n", shop)
				os.Exit(1)
			}
			fmt.Printf("token for %s is valid\n", shop)
			return nil
		},
	}
	check.Flags().StringVar(&shop, "shop", "", "myshopify domain")

	cmd.AddCommand(check)
	return cmd
}

// buildReplayer wires the full handler registry so a CLI replay runs exactly
// the logic a live delivery would.
func buildReplayer() (*application.Replayer, func(), error) {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	db, err := openDB()
	if err != nil {
		return nil, nil, err
	}

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(getEnv("MONGODB_URI", "mongodb://localhost:27017")))
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	mongoDB := mongoClient.Database(getEnv("MONGODB_DATABASE", "urgify"))
	redisClient := redis.NewClient(&redis.Options{Addr: getEnv("REDIS_ADDR", "localhost:6379")})

	deadLetters := postgres.NewDeadLetterStore(db)
	sessions := postgres.NewSessionStore(db)
	widgets := repository.NewMongoWidgetConfigRepository(mongoDB)
	storefrontCache := cache.NewRedisCache(redisClient, logger)
	artifacts := artifact.NewFilesystemStore(getEnv("GDPR_EXPORT_DIR", "./data/exports"))
	adminClient := shopifyinfra.NewGraphQLClient(shopifyinfra.GraphQLClientOptions{
		Tokens:     sessions,
		APIVersion: os.Getenv("SHOPIFY_API_VERSION"),
	}, logger)

	gdprService := application.NewGdprService(postgres.NewGdprStore(db), deadLetters, sessions, artifacts, widgets, storefrontCache, logger)
	registry := webhook_handlers.BuildRegistry(gdprService, widgets, adminClient, storefrontCache, sessions, logger)
	replayer := application.NewReplayer(deadLetters, registry, logger)

	cleanup := func() {
		redisClient.Close()
		mongoClient.Disconnect(context.Background())
		db.Close()
	}
	return replayer, cleanup, nil
}

func openDB() (*sql.DB, error) {
	return postgres.Open(getEnv("DATABASE_URL", "postgres://localhost:5432/urgify?sslmode=disable"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
