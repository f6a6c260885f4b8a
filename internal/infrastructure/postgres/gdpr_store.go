package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"urgify-core/internal/domain"
)

// GdprStore persists compliance audit rows and runs the transactional deletes
// behind redaction. Partial redaction is never acceptable, so every multi-table
// delete happens inside one transaction.
type GdprStore struct {
	db *sql.DB
}

// NewGdprStore creates a new GDPR request store
func NewGdprStore(db *sql.DB) *GdprStore {
	return &GdprStore{db: db}
}

// Insert stores one completed compliance request.
func (s *GdprStore) Insert(ctx context.Context, req *domain.GdprRequest) error {
	if err := insertGdprRequest(ctx, s.db, req); err != nil {
		return fmt.Errorf("failed to insert gdpr request: %w", err)
	}
	return nil
}

// ListByCustomer returns the stored requests for one shop customer.
func (s *GdprStore) ListByCustomer(ctx context.Context, shop, customerID string) ([]domain.GdprRequest, error) {
	return s.list(ctx,
		`SELECT id, shop, topic, customer_id, customer_email_hash, status, artifact_path, details, processed_at
		 FROM gdpr_request WHERE shop = $1 AND customer_id = $2 ORDER BY processed_at ASC`,
		shop, customerID)
}

// ListByShop returns every stored request for a shop.
func (s *GdprStore) ListByShop(ctx context.Context, shop string) ([]domain.GdprRequest, error) {
	return s.list(ctx,
		`SELECT id, shop, topic, customer_id, customer_email_hash, status, artifact_path, details, processed_at
		 FROM gdpr_request WHERE shop = $1 ORDER BY processed_at ASC`,
		shop)
}

// RedactCustomer deletes, in one transaction, the dead-letter rows whose
// stored payload contains any of matchTerms, the customer's own request rows,
// and then inserts the audit row.
func (s *GdprStore) RedactCustomer(ctx context.Context, shop, customerID string, matchTerms []string, audit *domain.GdprRequest) (*domain.CustomerRedactResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin redact transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	result := &domain.CustomerRedactResult{}

	if len(matchTerms) > 0 {
		conditions := make([]string, 0, len(matchTerms))
		args := []any{shop}
		for i, term := range matchTerms {
			conditions = append(conditions, fmt.Sprintf("payload LIKE '%%' || $%d || '%%'", i+2))
			args = append(args, term)
		}
		query := "DELETE FROM dead_letter WHERE shop = $1 AND (" + strings.Join(conditions, " OR ") + ")"
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to delete customer dead letters: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to read rows affected: %w", err)
		}
		result.DeletedDeadLetters = int(n)
	}

	res, err := tx.ExecContext(ctx,
		"DELETE FROM gdpr_request WHERE shop = $1 AND customer_id = $2", shop, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete customer gdpr requests: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	result.DeletedRequests = int(n)

	if audit.Details == "" {
		details, _ := json.Marshal(result)
		audit.Details = string(details)
	}
	if err := insertGdprRequest(ctx, tx, audit); err != nil {
		return nil, fmt.Errorf("failed to insert redact audit row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit redact transaction: %w", err)
	}
	committed = true
	return result, nil
}

// RedactShop deletes, in one transaction, every session, dead-letter,
// webhook-event and request row for the shop, then inserts the audit row.
// The audit row is the only row surviving for the shop.
func (s *GdprStore) RedactShop(ctx context.Context, shop string, audit *domain.GdprRequest) (*domain.ShopRedactResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin redact transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	result := &domain.ShopRedactResult{}
	deletes := []struct {
		table string
		count *int
	}{
		{"session", &result.DeletedSessions},
		{"dead_letter", &result.DeletedDeadLetters},
		{"webhook_event", &result.DeletedWebhookEvents},
		{"gdpr_request", &result.DeletedRequests},
	}
	for _, d := range deletes {
		res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE shop = $1", d.table), shop)
		if err != nil {
			return nil, fmt.Errorf("failed to delete %s rows: %w", d.table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to read rows affected: %w", err)
		}
		*d.count = int(n)
	}

	if audit.Details == "" {
		details, _ := json.Marshal(result)
		audit.Details = string(details)
	}
	if err := insertGdprRequest(ctx, tx, audit); err != nil {
		return nil, fmt.Errorf("failed to insert redact audit row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit redact transaction: %w", err)
	}
	committed = true
	return result, nil
}

func (s *GdprStore) list(ctx context.Context, query string, args ...any) ([]domain.GdprRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list gdpr requests: %w", err)
	}
	defer rows.Close()

	var requests []domain.GdprRequest
	for rows.Next() {
		var req domain.GdprRequest
		var customerID, emailHash, artifactPath, details sql.NullString
		if err := rows.Scan(&req.ID, &req.Shop, &req.Topic, &customerID, &emailHash,
			&req.Status, &artifactPath, &details, &req.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan gdpr request: %w", err)
		}
		req.CustomerID = customerID.String
		req.CustomerEmailHash = emailHash.String
		req.ArtifactPath = artifactPath.String
		req.Details = details.String
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list gdpr requests: %w", err)
	}
	return requests, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertGdprRequest(ctx context.Context, ex execer, req *domain.GdprRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.ProcessedAt.IsZero() {
		req.ProcessedAt = time.Now().UTC()
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO gdpr_request (id, shop, topic, customer_id, customer_email_hash, status, artifact_path, details, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		req.ID, req.Shop, req.Topic, nullString(req.CustomerID), nullString(req.CustomerEmailHash),
		req.Status, nullString(req.ArtifactPath), nullString(req.Details), req.ProcessedAt)
	return err
}
