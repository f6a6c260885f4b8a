package shopify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"urgify-core/internal/ports"
)

// TokenValidator checks whether a shop's stored offline token is still
// accepted by the platform. Offline tokens never expire but merchants revoke
// them by uninstalling, which leaves a dead row behind.
type TokenValidator struct {
	tokens     ports.SessionStore
	httpClient *http.Client
	apiVersion string
	baseURL    string
	logger     zerolog.Logger
}

// NewTokenValidator creates a new token validator
func NewTokenValidator(tokens ports.SessionStore, logger zerolog.Logger) *TokenValidator {
	return &TokenValidator{
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiVersion: defaultAPIVersion,
		logger:     logger,
	}
}

// Validate makes a lightweight shop.json call with the stored offline token.
// A 401/403 means the token was revoked. Network errors and other statuses
// report the token as valid with a warning, since they prove nothing about
// the token itself.
func (tv *TokenValidator) Validate(ctx context.Context, shop string) (bool, error) {
	token, err := tv.tokens.GetOfflineToken(ctx, shop)
	if err != nil {
		return false, err
	}

	url := tv.shopEndpoint(shop)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := tv.httpClient.Do(req)
	if err != nil {
		tv.logger.Warn().
			Err(err).
			Str("shop", shop).
			Msg("Token validation network error (assuming token is valid)")
		return true, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		tv.logger.Warn().
			Int("status", resp.StatusCode).
			Str("shop", shop).
			Msg("Token validation failed: token is invalid or revoked")
		return false, nil
	}

	if resp.StatusCode != http.StatusOK {
		tv.logger.Warn().
			Int("status", resp.StatusCode).
			Str("shop", shop).
			Msg("Token validation returned non-OK status (assuming token is valid)")
		return true, nil
	}

	tv.logger.Debug().
		Str("shop", shop).
		Msg("Token validation successful")
	return true, nil
}

func (tv *TokenValidator) shopEndpoint(shop string) string {
	if tv.baseURL != "" {
		return fmt.Sprintf("%s/admin/api/%s/shop.json", tv.baseURL, tv.apiVersion)
	}
	shopURL := shop
	if !strings.Contains(shop, ".") {
		shopURL = shop + ".myshopify.com"
	}
	return fmt.Sprintf("https://%s/admin/api/%s/shop.json", shopURL, tv.apiVersion)
}
