package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to Postgres with pool settings tuned for many short webhook
// transactions and verifies the connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the webhook reliability tables when they do not exist
// yet. Safe to run on every startup; multiple instances may race it.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS webhook_event (
			id TEXT PRIMARY KEY,
			topic TEXT NOT NULL,
			shop TEXT NOT NULL,
			processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS webhook_event_shop_idx ON webhook_event (shop)`,
		`CREATE TABLE IF NOT EXISTS dead_letter (
			id TEXT PRIMARY KEY,
			topic TEXT NOT NULL,
			shop TEXT NOT NULL,
			payload TEXT NOT NULL,
			error TEXT NOT NULL,
			stack TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			retry_count INTEGER NOT NULL DEFAULT 0,
			retried_at TIMESTAMPTZ,
			last_error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS dead_letter_shop_idx ON dead_letter (shop)`,
		`CREATE INDEX IF NOT EXISTS dead_letter_replay_idx ON dead_letter (created_at) WHERE retried_at IS NULL`,
		`CREATE TABLE IF NOT EXISTS gdpr_request (
			id TEXT PRIMARY KEY,
			shop TEXT NOT NULL,
			topic TEXT NOT NULL,
			customer_id TEXT,
			customer_email_hash TEXT,
			status TEXT NOT NULL,
			artifact_path TEXT,
			details TEXT,
			processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS gdpr_request_shop_idx ON gdpr_request (shop)`,
		`CREATE TABLE IF NOT EXISTS session (
			id TEXT PRIMARY KEY,
			shop TEXT NOT NULL,
			state TEXT,
			is_online BOOLEAN NOT NULL DEFAULT FALSE,
			scopes TEXT,
			access_token TEXT NOT NULL,
			expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS session_shop_idx ON session (shop)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
