package shopify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"urgify-core/internal/domain"
)

// WebhookVerifier validates the X-Shopify-Hmac-Sha256 header against the raw
// request body using the app's shared secret.
type WebhookVerifier struct {
	secret []byte
}

// NewWebhookVerifier creates a new webhook signature verifier
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: []byte(secret)}
}

// Verify returns domain.ErrSignatureInvalid when the signature is missing or
// does not match. Comparison is constant-time.
func (v *WebhookVerifier) Verify(ctx context.Context, signature string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return domain.ErrSignatureInvalid
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return domain.ErrSignatureInvalid
	}
	return nil
}
