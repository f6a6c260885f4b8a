package domain

import (
	"encoding/json"
	"time"
)

// DeadLetterRecord is a webhook delivery whose handler failed. The original
// payload is kept verbatim so the delivery can be replayed once the fault is
// fixed. RetryCount only ever grows; a record with RetriedAt set and no later
// failure is considered resolved.
type DeadLetterRecord struct {
	ID         string          `json:"id"`
	Topic      string          `json:"topic"`
	Shop       string          `json:"shop"`
	Payload    json.RawMessage `json:"payload"`
	Error      string          `json:"error"`
	Stack      string          `json:"stack,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	RetryCount int             `json:"retry_count"`
	RetriedAt  *time.Time      `json:"retried_at,omitempty"`
	LastError  string          `json:"last_error,omitempty"`
}

// IdempotencyRecord marks a delivery as fully processed. Existence of a row is
// the proof of processing; rows are inserted once and never updated.
type IdempotencyRecord struct {
	DeliveryID  string    `json:"delivery_id"`
	Topic       string    `json:"topic"`
	Shop        string    `json:"shop"`
	ProcessedAt time.Time `json:"processed_at"`
}
