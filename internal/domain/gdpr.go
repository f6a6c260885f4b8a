package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// GDPR request statuses. Everything this service handles completes inline, so
// only "completed" is written today; pending/failed exist for future async flows.
const (
	GdprStatusCompleted = "completed"
	GdprStatusPending   = "pending"
	GdprStatusFailed    = "failed"
)

// GdprRequest is the audit record for one compliance webhook. Customer identity
// is kept only as a SHA-256 hash of the lowercased email so requests can be
// correlated without storing PII.
type GdprRequest struct {
	ID                string    `json:"id"`
	Shop              string    `json:"shop"`
	Topic             string    `json:"topic"`
	CustomerID        string    `json:"customer_id,omitempty"`
	CustomerEmailHash string    `json:"customer_email_hash,omitempty"`
	Status            string    `json:"status"`
	ArtifactPath      string    `json:"artifact_path,omitempty"`
	Details           string    `json:"details,omitempty"`
	ProcessedAt       time.Time `json:"processed_at"`
}

// CustomerRedactResult reports what a customer-level redaction removed.
type CustomerRedactResult struct {
	DeletedDeadLetters int `json:"deleted_dead_letters"`
	DeletedRequests    int `json:"deleted_requests"`
	DeletedExports     int `json:"deleted_exports"`
}

// ShopRedactResult reports what a shop-level redaction removed.
type ShopRedactResult struct {
	DeletedSessions      int `json:"deleted_sessions"`
	DeletedDeadLetters   int `json:"deleted_dead_letters"`
	DeletedWebhookEvents int `json:"deleted_webhook_events"`
	DeletedRequests      int `json:"deleted_requests"`
	DeletedExports       int `json:"deleted_exports"`
}

// HashEmail derives the stored correlation hash for a customer email.
// The raw address must never be persisted anywhere in this service.
func HashEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}
