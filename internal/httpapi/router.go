package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"

	securitymiddleware "urgify-core/internal/infrastructure/middleware"
)

// RouterConfig wires the transport's collaborators together.
type RouterConfig struct {
	Webhooks *WebhookHandler
	Ops      *OpsHandler
	Topics   []string

	// APIKey and APISecret drive session-token auth on the ops routes.
	APIKey    string
	APISecret string

	Logger zerolog.Logger
}

// NewRouter builds the chi router: one POST endpoint per registered webhook
// topic, session-token-authed ops routes, health, metrics and swagger.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(securitymiddleware.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	r.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		http.ServeFile(w, r, "./docs/swagger.json")
	})

	// One route per topic; chi answers anything but POST with 405.
	for _, topic := range cfg.Topics {
		r.Post("/webhooks/"+topic, cfg.Webhooks.Handle(topic))
	}

	r.Route("/ops", func(r chi.Router) {
		r.Use(securitymiddleware.SessionTokenAuth(cfg.APIKey, cfg.APISecret, cfg.Logger))
		r.Get("/dead-letters", cfg.Ops.ListDeadLetters)
		r.Post("/dead-letters/replay", cfg.Ops.ReplayBatch)
		r.Post("/dead-letters/{id}/replay", cfg.Ops.ReplayDeadLetter)
		r.Get("/gdpr-requests", cfg.Ops.ListGdprRequests)
	})

	return r
}
