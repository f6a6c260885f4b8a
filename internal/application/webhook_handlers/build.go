package webhook_handlers

import (
	"github.com/rs/zerolog"

	"urgify-core/internal/application"
	"urgify-core/internal/domain"
	"urgify-core/internal/ports"
)

// BuildRegistry binds every webhook topic to its handler. The API server and
// the replay worker build the same registry so a dead letter replays through
// exactly the logic that would handle a live delivery.
func BuildRegistry(
	gdprService *application.GdprService,
	widgets ports.WidgetConfigRepository,
	adminClient ports.AdminClient,
	storefrontCache ports.StorefrontCache,
	sessions ports.SessionStore,
	logger zerolog.Logger,
) *application.Registry {
	products := NewProductHandler(storefrontCache, logger)
	themes := NewThemeHandler(widgets, storefrontCache, logger)
	subscriptions := NewSubscriptionHandler(widgets, adminClient, storefrontCache, logger)
	uninstalls := NewAppUninstalledHandler(sessions, widgets, storefrontCache, logger)
	compliance := NewComplianceHandler(gdprService, logger)

	registry := application.NewRegistry()
	registry.Register(domain.TopicProductsCreate, products.HandleCreate)
	registry.Register(domain.TopicProductsUpdate, products.HandleUpdate)
	registry.Register(domain.TopicProductsDelete, products.HandleDelete)
	registry.Register(domain.TopicThemesPublish, themes.HandlePublish)
	registry.Register(domain.TopicThemesDelete, themes.HandleDelete)
	registry.Register(domain.TopicSubscriptionsUpdate, subscriptions.Handle)
	registry.Register(domain.TopicAppUninstalled, uninstalls.Handle)
	registry.Register(domain.TopicCustomersDataRequest, compliance.HandleDataRequest)
	registry.Register(domain.TopicCustomersRedact, compliance.HandleCustomerRedact)
	registry.Register(domain.TopicShopRedact, compliance.HandleShopRedact)
	return registry
}
