package ports

import "context"

// StorefrontCache invalidates cached storefront widget data after catalog,
// theme or plan changes. Misses are cheap; staleness is not.
type StorefrontCache interface {
	InvalidateProducts(ctx context.Context, shop string) error
	InvalidateWidget(ctx context.Context, shop string) error

	// PurgeShop drops every cached key for the shop.
	PurgeShop(ctx context.Context, shop string) error
}
