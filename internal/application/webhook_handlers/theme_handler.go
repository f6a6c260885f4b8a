package webhook_handlers

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"urgify-core/internal/application"
	"urgify-core/internal/domain"
	"urgify-core/internal/ports"
)

// ThemeHandler tracks whether the app embed is live on the published theme.
// A theme switch or deletion can silently drop the widgets from the
// storefront, so the widget config records the event and the cached
// storefront settings are invalidated.
type ThemeHandler struct {
	widgets ports.WidgetConfigRepository
	cache   ports.StorefrontCache
	logger  zerolog.Logger
}

// NewThemeHandler creates a new theme webhook handler
func NewThemeHandler(widgets ports.WidgetConfigRepository, cache ports.StorefrontCache, logger zerolog.Logger) *ThemeHandler {
	return &ThemeHandler{widgets: widgets, cache: cache, logger: logger}
}

// HandlePublish processes themes/publish. A newly published theme needs the
// app embed re-verified, so the published flag is reset until the merchant
// confirms it in the dashboard.
func (h *ThemeHandler) HandlePublish(ctx context.Context, shop string, payload []byte) error {
	theme, err := application.DecodeTheme(domain.TopicThemesPublish, payload)
	if err != nil {
		return err
	}

	h.logger.Info().
		Str("shop", shop).
		Int64("themeId", theme.ID).
		Str("name", theme.Name).
		Msg("Theme published, resetting embed verification")

	if err := h.setUnpublished(ctx, shop); err != nil {
		return err
	}
	return h.cache.InvalidateWidget(ctx, shop)
}

// HandleDelete processes themes/delete.
func (h *ThemeHandler) HandleDelete(ctx context.Context, shop string, payload []byte) error {
	theme, err := application.DecodeTheme(domain.TopicThemesDelete, payload)
	if err != nil {
		return err
	}

	h.logger.Info().
		Str("shop", shop).
		Int64("themeId", theme.ID).
		Msg("Theme deleted, invalidating widget cache")

	if err := h.setUnpublished(ctx, shop); err != nil {
		return err
	}
	return h.cache.InvalidateWidget(ctx, shop)
}

// setUnpublished clears the theme-published flag. A shop without a widget
// config has nothing to keep in sync.
func (h *ThemeHandler) setUnpublished(ctx context.Context, shop string) error {
	err := h.widgets.SetThemePublished(ctx, shop, false)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}
