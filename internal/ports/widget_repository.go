package ports

import (
	"context"

	"urgify-core/internal/domain"
)

// WidgetConfigRepository defines the interface for widget configuration persistence
type WidgetConfigRepository interface {
	// Get retrieves a shop's widget configuration, or domain.ErrNotFound
	Get(ctx context.Context, shop string) (*domain.WidgetConfig, error)

	// Upsert creates or replaces a shop's widget configuration
	Upsert(ctx context.Context, cfg *domain.WidgetConfig) error

	// SetPlan updates only the subscription plan field
	SetPlan(ctx context.Context, shop, plan string) error

	// SetThemePublished updates only the theme-published flag
	SetThemePublished(ctx context.Context, shop string, published bool) error

	// DeleteByShop removes a shop's configuration entirely
	DeleteByShop(ctx context.Context, shop string) error
}
