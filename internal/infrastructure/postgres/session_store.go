package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"urgify-core/internal/domain"
)

// SessionStore persists OAuth sessions in the session table. The offline row
// per shop carries the token background jobs use against the Admin API.
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore creates a new session store
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Store upserts a session by ID. Reinstalls overwrite the previous offline
// token for the shop.
func (s *SessionStore) Store(ctx context.Context, session *domain.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session (id, shop, state, is_online, scopes, access_token, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id)
		 DO UPDATE SET shop = EXCLUDED.shop, state = EXCLUDED.state, is_online = EXCLUDED.is_online,
		               scopes = EXCLUDED.scopes, access_token = EXCLUDED.access_token,
		               expires_at = EXCLUDED.expires_at`,
		session.ID, session.Shop, nullString(session.State), session.IsOnline,
		strings.Join(session.Scopes, ","), session.AccessToken,
		sql.NullTime{Time: session.ExpiresAt, Valid: !session.ExpiresAt.IsZero()}, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// GetOfflineToken returns the shop's offline access token. A missing row
// means the shop never completed a background-capable install; callers get
// domain.ErrNoOfflineToken and must not retry.
func (s *SessionStore) GetOfflineToken(ctx context.Context, shop string) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx,
		"SELECT access_token FROM session WHERE id = $1", domain.OfflineSessionID(shop)).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("shop %s: %w", shop, domain.ErrNoOfflineToken)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get offline token: %w", err)
	}
	if token == "" {
		return "", fmt.Errorf("shop %s: %w", shop, domain.ErrNoOfflineToken)
	}
	return token, nil
}

// DeleteByShop removes every session for a shop and returns how many rows
// went away.
func (s *SessionStore) DeleteByShop(ctx context.Context, shop string) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM session WHERE shop = $1", shop)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return int(n), nil
}
