package domain

import "time"

// WidgetConfig holds a shop's urgency-widget settings. It is the document the
// storefront reads on every page view, so webhook handlers keep the derived
// fields (plan, product cache) in sync rather than recomputing per request.
type WidgetConfig struct {
	ID              string    `json:"id"`
	Shop            string    `json:"shop"` // myshopify domain, unique per config
	Enabled         bool      `json:"enabled"`
	Plan            string    `json:"plan"`
	StockThreshold  int       `json:"stock_threshold"`
	MessageTemplate string    `json:"message_template"`
	ThemePublished  bool      `json:"theme_published"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Subscription plans pushed to the shop metafield after app_subscriptions/update.
const (
	PlanFree = "free"
	PlanPro  = "pro"
)
