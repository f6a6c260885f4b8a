package ports

import (
	"context"
	"time"

	"urgify-core/internal/domain"
)

// Ledger defines the interface for idempotency-record persistence. A row's
// existence is the proof that a delivery finished processing.
type Ledger interface {
	IsProcessed(ctx context.Context, deliveryID string) (bool, error)

	// MarkProcessed inserts the proof-of-processing row. When a concurrent
	// processor already inserted the same deliveryID the call must succeed
	// silently instead of surfacing the constraint violation.
	MarkProcessed(ctx context.Context, deliveryID, topic, shop string) error

	// PruneOlderThan garbage-collects ledger rows past the retention window
	// and returns how many were removed.
	PruneOlderThan(ctx context.Context, before time.Time) (int, error)
}

// DeadLetterStore defines the interface for failed-delivery persistence.
type DeadLetterStore interface {
	Add(ctx context.Context, rec *domain.DeadLetterRecord) error
	GetByID(ctx context.Context, id string) (*domain.DeadLetterRecord, error)
	ListByShop(ctx context.Context, shop string) ([]domain.DeadLetterRecord, error)

	// ListUnprocessed returns records without a successful replay and with
	// fewer than maxRetries attempts, oldest first.
	ListUnprocessed(ctx context.Context, maxRetries int) ([]domain.DeadLetterRecord, error)

	// MarkReplayed records a successful replay: retriedAt is set and
	// retryCount incremented.
	MarkReplayed(ctx context.Context, id string, at time.Time) error

	// MarkReplayFailed records a failed replay: retryCount is incremented
	// and lastError replaced.
	MarkReplayFailed(ctx context.Context, id string, lastError string) error
}

// DeadLetterSink is the last-resort writer used when the DeadLetterStore
// itself is unreachable. Implementations must never fail or block.
type DeadLetterSink interface {
	Record(rec *domain.DeadLetterRecord)
}

// GdprStore defines the interface for compliance-request persistence,
// including the transactional deletes behind redaction.
type GdprStore interface {
	Insert(ctx context.Context, req *domain.GdprRequest) error
	ListByCustomer(ctx context.Context, shop, customerID string) ([]domain.GdprRequest, error)
	ListByShop(ctx context.Context, shop string) ([]domain.GdprRequest, error)

	// RedactCustomer deletes, in one transaction, dead-letter rows whose
	// payload contains any of matchTerms plus this customer's request rows,
	// then inserts the audit row.
	RedactCustomer(ctx context.Context, shop, customerID string, matchTerms []string, audit *domain.GdprRequest) (*domain.CustomerRedactResult, error)

	// RedactShop deletes, in one transaction, every session, dead-letter,
	// webhook-event and request row for the shop, then inserts the audit row.
	RedactShop(ctx context.Context, shop string, audit *domain.GdprRequest) (*domain.ShopRedactResult, error)
}

// SessionStore defines the interface for OAuth session persistence. Offline
// sessions carry the tokens background jobs authenticate with.
type SessionStore interface {
	Store(ctx context.Context, session *domain.Session) error

	// GetOfflineToken returns the shop's offline access token, or
	// domain.ErrNoOfflineToken when the shop never stored one.
	GetOfflineToken(ctx context.Context, shop string) (string, error)

	DeleteByShop(ctx context.Context, shop string) (int, error)
}
