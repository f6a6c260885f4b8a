package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LedgerStore persists idempotency records in the webhook_event table.
type LedgerStore struct {
	db *sql.DB
}

// NewLedgerStore creates a new ledger store
func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// IsProcessed reports whether a delivery already has a ledger row.
func (s *LedgerStore) IsProcessed(ctx context.Context, deliveryID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM webhook_event WHERE id = $1)", deliveryID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency record: %w", err)
	}
	return exists, nil
}

// MarkProcessed inserts the proof-of-processing row. ON CONFLICT DO NOTHING
// swallows the duplicate-key case: when a concurrent processor won the insert
// race the delivery is still processed exactly once.
func (s *LedgerStore) MarkProcessed(ctx context.Context, deliveryID, topic, shop string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO webhook_event (id, topic, shop, processed_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (id) DO NOTHING`,
		deliveryID, topic, shop)
	if err != nil {
		return fmt.Errorf("failed to insert idempotency record: %w", err)
	}
	return nil
}

// PruneOlderThan removes ledger rows outside the retention window. The
// platform never redelivers that far back, so the rows only cost space.
func (s *LedgerStore) PruneOlderThan(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM webhook_event WHERE processed_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune idempotency records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return int(n), nil
}
