package application

import (
	"encoding/json"
	"strconv"

	"urgify-core/internal/domain"
)

// Typed payload shapes per topic, decoded and validated at the handler
// boundary. The platform sends a lot more fields than these; only what the
// handlers actually consume is declared.

// ProductPayload is the body of products/create|update|delete.
type ProductPayload struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Handle string `json:"handle"`
	Status string `json:"status"`
}

// ThemePayload is the body of themes/publish|delete.
type ThemePayload struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// SubscriptionPayload is the body of app_subscriptions/update.
type SubscriptionPayload struct {
	AppSubscription struct {
		AdminGraphQLAPIID string `json:"admin_graphql_api_id"`
		Name              string `json:"name"`
		Status            string `json:"status"`
	} `json:"app_subscription"`
}

// UninstallPayload is the body of app/uninstalled: the shop resource itself.
type UninstallPayload struct {
	Domain          string `json:"domain"`
	MyshopifyDomain string `json:"myshopify_domain"`
}

// ComplianceCustomer identifies the data subject of a compliance webhook.
// ID comes in as a number; it is normalized to a string everywhere else so
// it can key records without float trouble.
type ComplianceCustomer struct {
	ID    json.Number `json:"id"`
	Email string      `json:"email"`
	Phone string      `json:"phone"`
}

// CustomerDataRequestPayload is the body of customers/data_request.
type CustomerDataRequestPayload struct {
	ShopDomain      string             `json:"shop_domain"`
	Customer        ComplianceCustomer `json:"customer"`
	OrdersRequested []int64            `json:"orders_requested"`
	DataRequest     struct {
		ID int64 `json:"id"`
	} `json:"data_request"`
}

// CustomerRedactPayload is the body of customers/redact.
type CustomerRedactPayload struct {
	ShopDomain     string             `json:"shop_domain"`
	Customer       ComplianceCustomer `json:"customer"`
	OrdersToRedact []int64            `json:"orders_to_redact"`
}

// ShopRedactPayload is the body of shop/redact.
type ShopRedactPayload struct {
	ShopID     int64  `json:"shop_id"`
	ShopDomain string `json:"shop_domain"`
}

// CustomerID returns the customer identifier as a decimal string, or "".
func (c ComplianceCustomer) CustomerID() string {
	id := c.ID.String()
	if id == "" || id == "0" {
		return ""
	}
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return ""
	}
	return id
}

// decodePayload unmarshals a payload into its topic's shape and converts
// malformed JSON into a PayloadValidationError so it dead-letters like any
// other handler failure.
func decodePayload(topic string, payload []byte, v any) error {
	if len(payload) == 0 {
		return &domain.PayloadValidationError{Topic: topic, Reason: "empty payload"}
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return &domain.PayloadValidationError{Topic: topic, Reason: err.Error()}
	}
	return nil
}

// DecodeProduct validates a product topic payload.
func DecodeProduct(topic string, payload []byte) (*ProductPayload, error) {
	var p ProductPayload
	if err := decodePayload(topic, payload, &p); err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, &domain.PayloadValidationError{Topic: topic, Reason: "missing product id"}
	}
	return &p, nil
}

// DecodeTheme validates a theme topic payload.
func DecodeTheme(topic string, payload []byte) (*ThemePayload, error) {
	var p ThemePayload
	if err := decodePayload(topic, payload, &p); err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, &domain.PayloadValidationError{Topic: topic, Reason: "missing theme id"}
	}
	return &p, nil
}

// DecodeSubscription validates an app_subscriptions/update payload.
func DecodeSubscription(payload []byte) (*SubscriptionPayload, error) {
	var p SubscriptionPayload
	if err := decodePayload(domain.TopicSubscriptionsUpdate, payload, &p); err != nil {
		return nil, err
	}
	if p.AppSubscription.Status == "" {
		return nil, &domain.PayloadValidationError{
			Topic:  domain.TopicSubscriptionsUpdate,
			Reason: "missing app_subscription.status",
		}
	}
	return &p, nil
}

// DecodeCustomerDataRequest validates a customers/data_request payload.
func DecodeCustomerDataRequest(payload []byte) (*CustomerDataRequestPayload, error) {
	var p CustomerDataRequestPayload
	if err := decodePayload(domain.TopicCustomersDataRequest, payload, &p); err != nil {
		return nil, err
	}
	if p.Customer.CustomerID() == "" {
		return nil, &domain.PayloadValidationError{
			Topic:  domain.TopicCustomersDataRequest,
			Reason: "missing customer.id",
		}
	}
	return &p, nil
}

// DecodeCustomerRedact validates a customers/redact payload.
func DecodeCustomerRedact(payload []byte) (*CustomerRedactPayload, error) {
	var p CustomerRedactPayload
	if err := decodePayload(domain.TopicCustomersRedact, payload, &p); err != nil {
		return nil, err
	}
	if p.Customer.CustomerID() == "" {
		return nil, &domain.PayloadValidationError{
			Topic:  domain.TopicCustomersRedact,
			Reason: "missing customer.id",
		}
	}
	return &p, nil
}

// DecodeShopRedact validates a shop/redact payload. The shop domain may be
// absent; the transport already knows the shop from the header.
func DecodeShopRedact(payload []byte) (*ShopRedactPayload, error) {
	var p ShopRedactPayload
	if err := decodePayload(domain.TopicShopRedact, payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
