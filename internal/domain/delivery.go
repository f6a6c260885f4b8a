package domain

import "encoding/json"

// Webhook topics handled by this service. The compliance topics are mandatory
// for every published app; the rest keep the storefront widgets in sync.
const (
	TopicProductsCreate       = "products/create"
	TopicProductsUpdate       = "products/update"
	TopicProductsDelete       = "products/delete"
	TopicThemesPublish        = "themes/publish"
	TopicThemesDelete         = "themes/delete"
	TopicSubscriptionsUpdate  = "app_subscriptions/update"
	TopicAppUninstalled       = "app/uninstalled"
	TopicCustomersDataRequest = "customers/data_request"
	TopicCustomersRedact      = "customers/redact"
	TopicShopRedact           = "shop/redact"
)

// WebhookDelivery identifies one inbound webhook. It is created when the HTTP
// request is accepted, consumed exactly once by the processor, and never mutated.
type WebhookDelivery struct {
	// DeliveryID is the platform's delivery identifier, or a locally generated
	// UUID when the header was absent. Unique per delivery, not per event.
	DeliveryID string          `json:"delivery_id"`
	Topic      string          `json:"topic"`
	Shop       string          `json:"shop"`
	Payload    json.RawMessage `json:"payload"`
}
