package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"urgify-core/internal/application"
	"urgify-core/internal/domain"
	"urgify-core/internal/metrics"
	"urgify-core/internal/ports"
)

// Platform webhook headers.
const (
	headerHmac       = "X-Shopify-Hmac-Sha256"
	headerShopDomain = "X-Shopify-Shop-Domain"
	headerWebhookID  = "X-Shopify-Webhook-Id"
)

// verifyTimeout bounds signature verification so a hung verifier cannot eat
// into the platform's 5-second acknowledgment budget.
const verifyTimeout = 2 * time.Second

// WebhookHandler is the inbound transport: verify the signature, extract the
// delivery identity, detach processing, acknowledge. It never waits for the
// handler; a processing failure surfaces in the dead-letter list, not in the
// HTTP response.
type WebhookHandler struct {
	verifier   ports.WebhookVerifier
	dispatcher *application.Dispatcher
	logger     zerolog.Logger
}

// NewWebhookHandler creates a new webhook transport handler
func NewWebhookHandler(verifier ports.WebhookVerifier, dispatcher *application.Dispatcher, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, dispatcher: dispatcher, logger: logger}
}

// Handle returns the http.HandlerFunc serving one topic's endpoint.
func (h *WebhookHandler) Handle(topic string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			h.logger.Error().Err(err).Str("topic", topic).Msg("Failed to read webhook body")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read request body"})
			return
		}
		defer r.Body.Close()

		verifyCtx, cancel := context.WithTimeout(r.Context(), verifyTimeout)
		err = h.verifier.Verify(verifyCtx, r.Header.Get(headerHmac), body)
		cancel()
		if errors.Is(err, domain.ErrSignatureInvalid) {
			metrics.WebhooksRejectedTotal.Inc()
			h.logger.Warn().Str("topic", topic).Msg("Webhook signature verification failed")
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
			return
		}
		if err != nil {
			// Not provably a bad signature. Acknowledge anyway: a non-2xx here
			// would trigger the platform's retry storm, and the retry-worthy
			// path runs through the dead-letter store instead.
			h.logger.Error().Err(err).Str("topic", topic).Msg("Webhook verification errored, acknowledging anyway")
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
			return
		}

		deliveryID := r.Header.Get(headerWebhookID)
		if deliveryID == "" {
			deliveryID = uuid.NewString()
		}
		shop := r.Header.Get(headerShopDomain)

		metrics.WebhooksReceivedTotal.WithLabelValues(topic).Inc()
		h.dispatcher.Submit(&domain.WebhookDelivery{
			DeliveryID: deliveryID,
			Topic:      topic,
			Shop:       shop,
			Payload:    body,
		})

		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
