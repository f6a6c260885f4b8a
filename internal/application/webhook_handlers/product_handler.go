package webhook_handlers

import (
	"context"

	"github.com/rs/zerolog"

	"urgify-core/internal/application"
	"urgify-core/internal/domain"
	"urgify-core/internal/ports"
)

// ProductHandler keeps the storefront widgets honest after catalog changes:
// stock-alert and scarcity banners render from cached product data, so any
// product mutation invalidates the shop's product cache. The handler is
// overwrite-idempotent; running it twice for the same product is harmless.
type ProductHandler struct {
	cache  ports.StorefrontCache
	logger zerolog.Logger
}

// NewProductHandler creates a new product webhook handler
func NewProductHandler(cache ports.StorefrontCache, logger zerolog.Logger) *ProductHandler {
	return &ProductHandler{cache: cache, logger: logger}
}

// HandleCreate processes products/create.
func (h *ProductHandler) HandleCreate(ctx context.Context, shop string, payload []byte) error {
	return h.handle(ctx, domain.TopicProductsCreate, shop, payload)
}

// HandleUpdate processes products/update.
func (h *ProductHandler) HandleUpdate(ctx context.Context, shop string, payload []byte) error {
	return h.handle(ctx, domain.TopicProductsUpdate, shop, payload)
}

// HandleDelete processes products/delete.
func (h *ProductHandler) HandleDelete(ctx context.Context, shop string, payload []byte) error {
	return h.handle(ctx, domain.TopicProductsDelete, shop, payload)
}

func (h *ProductHandler) handle(ctx context.Context, topic, shop string, payload []byte) error {
	product, err := application.DecodeProduct(topic, payload)
	if err != nil {
		return err
	}

	h.logger.Info().
		Str("topic", topic).
		Str("shop", shop).
		Int64("productId", product.ID).
		Str("title", product.Title).
		Msg("Processing product webhook event")

	return h.cache.InvalidateProducts(ctx, shop)
}
