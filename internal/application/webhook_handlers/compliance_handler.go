package webhook_handlers

import (
	"context"

	"github.com/rs/zerolog"

	"urgify-core/internal/application"
)

// ComplianceHandler adapts the GDPR lifecycle service to the webhook handler
// shape. Failures propagate unchanged so they dead-letter like any other
// handler error and are retried by the replay worker; a compliance request
// is never allowed to fail silently.
type ComplianceHandler struct {
	gdpr   *application.GdprService
	logger zerolog.Logger
}

// NewComplianceHandler creates a new compliance webhook handler
func NewComplianceHandler(gdpr *application.GdprService, logger zerolog.Logger) *ComplianceHandler {
	return &ComplianceHandler{gdpr: gdpr, logger: logger}
}

// HandleDataRequest processes customers/data_request.
func (h *ComplianceHandler) HandleDataRequest(ctx context.Context, shop string, payload []byte) error {
	return h.gdpr.HandleCustomerDataRequest(ctx, shop, payload)
}

// HandleCustomerRedact processes customers/redact.
func (h *ComplianceHandler) HandleCustomerRedact(ctx context.Context, shop string, payload []byte) error {
	_, err := h.gdpr.HandleCustomerRedact(ctx, shop, payload)
	return err
}

// HandleShopRedact processes shop/redact.
func (h *ComplianceHandler) HandleShopRedact(ctx context.Context, shop string, payload []byte) error {
	_, err := h.gdpr.HandleShopRedact(ctx, shop, payload)
	return err
}
