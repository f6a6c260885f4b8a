package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"urgify-core/internal/domain"
)

// DeadLetterStore persists failed deliveries in the dead_letter table.
type DeadLetterStore struct {
	db *sql.DB
}

// NewDeadLetterStore creates a new dead-letter store
func NewDeadLetterStore(db *sql.DB) *DeadLetterStore {
	return &DeadLetterStore{db: db}
}

// Add inserts a new dead-letter record. ID and CreatedAt are assigned here
// when the caller left them empty.
func (s *DeadLetterStore) Add(ctx context.Context, rec *domain.DeadLetterRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dead_letter (id, topic, shop, payload, error, stack, created_at, retry_count, retried_at, last_error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.Topic, rec.Shop, string(rec.Payload), rec.Error, nullString(rec.Stack),
		rec.CreatedAt, rec.RetryCount, nullTime(rec.RetriedAt), nullString(rec.LastError))
	if err != nil {
		return fmt.Errorf("failed to insert dead letter: %w", err)
	}
	return nil
}

// GetByID retrieves one dead-letter record, or domain.ErrNotFound.
func (s *DeadLetterStore) GetByID(ctx context.Context, id string) (*domain.DeadLetterRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, topic, shop, payload, error, stack, created_at, retry_count, retried_at, last_error
		 FROM dead_letter WHERE id = $1`, id)
	rec, err := scanDeadLetter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dead letter %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dead letter: %w", err)
	}
	return rec, nil
}

// ListByShop returns every dead-letter record for a shop, oldest first.
func (s *DeadLetterStore) ListByShop(ctx context.Context, shop string) ([]domain.DeadLetterRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic, shop, payload, error, stack, created_at, retry_count, retried_at, last_error
		 FROM dead_letter WHERE shop = $1 ORDER BY created_at ASC`, shop)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var records []domain.DeadLetterRecord
	for rows.Next() {
		rec, err := scanDeadLetter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	return records, nil
}

// ListUnprocessed returns records that never had a successful replay and are
// still under maxRetries attempts, oldest first.
func (s *DeadLetterStore) ListUnprocessed(ctx context.Context, maxRetries int) ([]domain.DeadLetterRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic, shop, payload, error, stack, created_at, retry_count, retried_at, last_error
		 FROM dead_letter
		 WHERE retried_at IS NULL AND retry_count < $1
		 ORDER BY created_at ASC`, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var records []domain.DeadLetterRecord
	for rows.Next() {
		rec, err := scanDeadLetter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	return records, nil
}

// MarkReplayed records a successful replay.
func (s *DeadLetterStore) MarkReplayed(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE dead_letter SET retried_at = $2, retry_count = retry_count + 1 WHERE id = $1",
		id, at)
	if err != nil {
		return fmt.Errorf("failed to mark dead letter replayed: %w", err)
	}
	return requireRowAffected(res, id)
}

// MarkReplayFailed records a failed replay attempt.
func (s *DeadLetterStore) MarkReplayFailed(ctx context.Context, id string, lastError string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE dead_letter SET retry_count = retry_count + 1, last_error = $2 WHERE id = $1",
		id, nullString(lastError))
	if err != nil {
		return fmt.Errorf("failed to mark dead letter replay failure: %w", err)
	}
	return requireRowAffected(res, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeadLetter(row rowScanner) (*domain.DeadLetterRecord, error) {
	var rec domain.DeadLetterRecord
	var payload string
	var stack, lastError sql.NullString
	var retriedAt sql.NullTime
	if err := row.Scan(&rec.ID, &rec.Topic, &rec.Shop, &payload, &rec.Error, &stack,
		&rec.CreatedAt, &rec.RetryCount, &retriedAt, &lastError); err != nil {
		return nil, err
	}
	rec.Payload = []byte(payload)
	rec.Stack = stack.String
	rec.LastError = lastError.String
	if retriedAt.Valid {
		t := retriedAt.Time
		rec.RetriedAt = &t
	}
	return &rec, nil
}

func requireRowAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("dead letter %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
