package webhook_handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"urgify-core/internal/application"
	"urgify-core/internal/domain"
	"urgify-core/internal/ports"
)

// setPlanMetafieldMutation writes the shop's plan into an app-owned
// metafield so the theme extension can gate features without an API call.
const setPlanMetafieldMutation = `
mutation setPlanMetafield($metafields: [MetafieldsSetInput!]!) {
  metafieldsSet(metafields: $metafields) {
    metafields { id }
    userErrors { field message }
  }
}`

const shopIDQuery = `{ shop { id } }`

// SubscriptionHandler syncs billing state after app_subscriptions/update.
// The sync is a plain overwrite: replaying the same delivery, or receiving
// two deliveries carrying the same status, converges on the same state.
type SubscriptionHandler struct {
	widgets ports.WidgetConfigRepository
	admin   ports.AdminClient
	cache   ports.StorefrontCache
	logger  zerolog.Logger
}

// NewSubscriptionHandler creates a new subscription webhook handler
func NewSubscriptionHandler(
	widgets ports.WidgetConfigRepository,
	admin ports.AdminClient,
	cache ports.StorefrontCache,
	logger zerolog.Logger,
) *SubscriptionHandler {
	return &SubscriptionHandler{widgets: widgets, admin: admin, cache: cache, logger: logger}
}

// Handle processes app_subscriptions/update: the widget profile's plan is
// overwritten and the urgify.plan shop metafield pushed through the Admin
// API so the storefront embed sees the change.
func (h *SubscriptionHandler) Handle(ctx context.Context, shop string, payload []byte) error {
	sub, err := application.DecodeSubscription(payload)
	if err != nil {
		return err
	}
	plan := planForStatus(sub.AppSubscription.Status)

	h.logger.Info().
		Str("shop", shop).
		Str("subscription", sub.AppSubscription.Name).
		Str("status", sub.AppSubscription.Status).
		Str("plan", plan).
		Msg("Processing subscription webhook event")

	if err := h.widgets.SetPlan(ctx, shop, plan); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("failed to update widget plan: %w", err)
	}

	if err := h.pushPlanMetafield(ctx, shop, plan); err != nil {
		return err
	}

	return h.cache.InvalidateWidget(ctx, shop)
}

func (h *SubscriptionHandler) pushPlanMetafield(ctx context.Context, shop, plan string) error {
	data, err := h.admin.Call(ctx, shop, shopIDQuery, nil)
	if err != nil {
		return fmt.Errorf("failed to resolve shop id: %w", err)
	}
	var shopData struct {
		Shop struct {
			ID string `json:"id"`
		} `json:"shop"`
	}
	if err := json.Unmarshal(data, &shopData); err != nil {
		return fmt.Errorf("failed to decode shop id: %w", err)
	}

	variables := map[string]any{
		"metafields": []map[string]any{{
			"namespace": "urgify",
			"key":       "plan",
			"type":      "single_line_text_field",
			"value":     plan,
			"ownerId":   shopData.Shop.ID,
		}},
	}
	if _, err := h.admin.Call(ctx, shop, setPlanMetafieldMutation, variables); err != nil {
		return fmt.Errorf("failed to push plan metafield: %w", err)
	}
	return nil
}

// planForStatus maps the platform's subscription status to the app's plan.
// Anything not actively paid falls back to free.
func planForStatus(status string) string {
	if strings.EqualFold(status, "ACTIVE") {
		return domain.PlanPro
	}
	return domain.PlanFree
}
