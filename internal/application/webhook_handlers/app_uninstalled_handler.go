package webhook_handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"urgify-core/internal/application"
	"urgify-core/internal/domain"
	"urgify-core/internal/ports"
)

// AppUninstalledHandler tears down a shop's runtime state when the merchant
// removes the app: sessions go away immediately (the offline token is revoked
// platform-side anyway), cached storefront data and widget documents are
// purged. Audit rows in Postgres survive until shop/redact arrives 48 hours
// later.
type AppUninstalledHandler struct {
	sessions ports.SessionStore
	widgets  ports.WidgetConfigRepository
	cache    ports.StorefrontCache
	logger   zerolog.Logger
}

// NewAppUninstalledHandler creates a new app uninstalled webhook handler
func NewAppUninstalledHandler(
	sessions ports.SessionStore,
	widgets ports.WidgetConfigRepository,
	cache ports.StorefrontCache,
	logger zerolog.Logger,
) *AppUninstalledHandler {
	return &AppUninstalledHandler{
		sessions: sessions,
		widgets:  widgets,
		cache:    cache,
		logger:   logger,
	}
}

// Handle processes an app/uninstalled webhook event.
func (h *AppUninstalledHandler) Handle(ctx context.Context, shop string, payload []byte) error {
	var body application.UninstallPayload
	// The payload is the shop resource; the header shop is authoritative and
	// the body only fills in when the header was missing.
	if err := json.Unmarshal(payload, &body); err == nil && shop == "" {
		shop = body.MyshopifyDomain
		if shop == "" {
			shop = body.Domain
		}
	}
	if shop == "" {
		return &domain.PayloadValidationError{Topic: domain.TopicAppUninstalled, Reason: "missing shop domain"}
	}

	deleted, err := h.sessions.DeleteByShop(ctx, shop)
	if err != nil {
		return fmt.Errorf("failed to delete sessions on uninstall: %w", err)
	}

	if err := h.widgets.DeleteByShop(ctx, shop); err != nil && !errors.Is(err, domain.ErrNotFound) {
		h.logger.Warn().Err(err).Str("shop", shop).Msg("Failed to delete widget config on uninstall")
	}
	if err := h.cache.PurgeShop(ctx, shop); err != nil {
		h.logger.Warn().Err(err).Str("shop", shop).Msg("Failed to purge cache on uninstall")
	}

	h.logger.Info().
		Str("shop", shop).
		Int("deletedSessions", deleted).
		Msg("App uninstalled, shop state cleaned up")
	return nil
}
