package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
)

type contextKey string

const shopContextKey contextKey = "authenticated_shop"

// SessionTokenClaims are the claims of a Shopify App Bridge session token.
// The dest claim carries the shop the token was minted for.
type SessionTokenClaims struct {
	Dest string `json:"dest"`
	jwt.RegisteredClaims
}

// SessionTokenAuth verifies the embedded dashboard's session token on ops
// routes. Tokens are HS256-signed with the app's API secret and carry the
// API key as audience; anything else gets a 401.
func SessionTokenAuth(apiKey, apiSecret string, logger zerolog.Logger) func(http.Handler) http.Handler {
	secret := []byte(apiSecret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				http.Error(w, "missing session token", http.StatusUnauthorized)
				return
			}

			claims := &SessionTokenClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				logger.Warn().Err(err).Msg("Session token verification failed")
				http.Error(w, "invalid session token", http.StatusUnauthorized)
				return
			}
			if apiKey != "" && !claims.VerifyAudience(apiKey, true) {
				logger.Warn().Msg("Session token audience mismatch")
				http.Error(w, "invalid session token", http.StatusUnauthorized)
				return
			}

			shop := shopFromDest(claims.Dest)
			if shop == "" {
				http.Error(w, "invalid session token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), shopContextKey, shop)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ShopFromContext returns the shop an ops request was authenticated for.
func ShopFromContext(ctx context.Context) string {
	shop, _ := ctx.Value(shopContextKey).(string)
	return shop
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

// shopFromDest extracts the myshopify domain from the dest claim, which
// arrives as "https://{shop}.myshopify.com".
func shopFromDest(dest string) string {
	dest = strings.TrimPrefix(dest, "https://")
	dest = strings.TrimPrefix(dest, "http://")
	if i := strings.IndexByte(dest, '/'); i >= 0 {
		dest = dest[:i]
	}
	return dest
}
