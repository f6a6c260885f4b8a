package shopify

import (
	"context"
	"fmt"
	"strings"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/rs/zerolog"

	"urgify-core/internal/ports"
)

// Registrar creates the platform-side webhook subscriptions pointing at this
// app's callback endpoints. Registration is idempotent: topics that already
// have a subscription are skipped.
type Registrar struct {
	app          goshopify.App
	tokens       ports.SessionStore
	callbackBase string
	logger       zerolog.Logger
}

// NewRegistrar creates a new webhook registrar. callbackBase is the public
// URL prefix the topic path is appended to, e.g. "https://app.example.com/webhooks".
func NewRegistrar(apiKey, apiSecret, callbackBase string, tokens ports.SessionStore, logger zerolog.Logger) *Registrar {
	return &Registrar{
		app:          goshopify.App{ApiKey: apiKey, ApiSecret: apiSecret},
		tokens:       tokens,
		callbackBase: strings.TrimRight(callbackBase, "/"),
		logger:       logger,
	}
}

// Register subscribes the shop to the given topics and returns the topics
// newly created.
func (r *Registrar) Register(ctx context.Context, shop string, topics []string) ([]string, error) {
	token, err := r.tokens.GetOfflineToken(ctx, shop)
	if err != nil {
		return nil, err
	}

	client, err := goshopify.NewClient(r.app, shop, token)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	existing, err := client.Webhook.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	subscribed := make(map[string]bool, len(existing))
	for _, hook := range existing {
		subscribed[hook.Topic] = true
	}

	var created []string
	for _, topic := range topics {
		if subscribed[topic] {
			continue
		}
		webhook := goshopify.Webhook{
			Topic:   topic,
			Address: r.callbackBase + "/" + topic,
			Format:  "json",
		}
		if _, err := client.Webhook.Create(ctx, webhook); err != nil {
			return created, fmt.Errorf("failed to create %s webhook: %w", topic, err)
		}
		r.logger.Info().
			Str("shop", shop).
			Str("topic", topic).
			Msg("Registered webhook subscription")
		created = append(created, topic)
	}
	return created, nil
}
