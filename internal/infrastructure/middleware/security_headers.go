package middleware

import "net/http"

// SecurityHeaders sets the response headers an embedded Shopify app needs:
// the frame-ancestors policy lets the admin iframe the dashboard while
// keeping everyone else out.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Content-Security-Policy", "frame-ancestors https://*.myshopify.com https://admin.shopify.com")
			next.ServeHTTP(w, r)
		})
	}
}
