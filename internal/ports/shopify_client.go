package ports

import (
	"context"
	"encoding/json"
)

// AdminClient defines the interface for outbound Admin API calls. Transient
// failures (429, 5xx) are retried internally; everything the caller sees is
// either data or a terminal error.
type AdminClient interface {
	// Call executes one GraphQL request authenticated with the shop's
	// offline token and returns the raw response data document.
	Call(ctx context.Context, shop, query string, variables map[string]any) (json.RawMessage, error)
}

// WebhookVerifier checks the platform signature header of an inbound webhook
// against the raw request body.
type WebhookVerifier interface {
	// Verify returns domain.ErrSignatureInvalid on a mismatched signature
	// and other errors for infrastructure faults such as timeouts.
	Verify(ctx context.Context, signature string, body []byte) error
}

// WebhookRegistrar subscribes the app's callback endpoints to webhook topics
// on behalf of a shop.
type WebhookRegistrar interface {
	// Register creates subscriptions for the given topics and returns the
	// topics that were newly created (already-registered ones are skipped).
	Register(ctx context.Context, shop string, topics []string) ([]string, error)
}
