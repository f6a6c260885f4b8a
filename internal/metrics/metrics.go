package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the webhook pipeline and outbound Admin API calls
var (
	WebhooksReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urgify_webhooks_received_total",
			Help: "Inbound webhook deliveries accepted by the transport, per topic",
		},
		[]string{"topic"},
	)

	WebhooksRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "urgify_webhooks_rejected_total",
			Help: "Inbound webhook deliveries rejected with 401 on signature verification",
		},
	)

	WebhooksProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urgify_webhooks_processed_total",
			Help: "Deliveries fully processed and recorded in the idempotency ledger, per topic",
		},
		[]string{"topic"},
	)

	WebhooksDuplicateTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "urgify_webhooks_duplicate_total",
			Help: "Deliveries skipped because their delivery ID was already processed",
		},
	)

	WebhooksDeadLetteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urgify_webhooks_dead_lettered_total",
			Help: "Deliveries whose handler failed and were written to the dead-letter store, per topic",
		},
		[]string{"topic"},
	)

	WebhookProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "urgify_webhook_processing_duration_seconds",
			Help:    "Duration of one delivery through check, handler and ledger write",
			Buckets: prometheus.DefBuckets,
		},
	)

	DeadLetterReplaysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urgify_dead_letter_replays_total",
			Help: "Dead-letter replay attempts by outcome (success, failure)",
		},
		[]string{"outcome"},
	)

	AdminAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "urgify_admin_api_retries_total",
			Help: "Outbound Admin API attempts retried after a 429 or 5xx response",
		},
	)

	AdminAPIRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "urgify_admin_api_request_duration_seconds",
			Help:    "Duration of outbound Admin API calls including retries",
			Buckets: prometheus.DefBuckets,
		},
	)

	GdprRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urgify_gdpr_requests_total",
			Help: "Compliance operations completed, per topic",
		},
		[]string{"topic"},
	)
)

// Register registers all Prometheus metrics
func Register() {
	prometheus.MustRegister(WebhooksReceivedTotal)
	prometheus.MustRegister(WebhooksRejectedTotal)
	prometheus.MustRegister(WebhooksProcessedTotal)
	prometheus.MustRegister(WebhooksDuplicateTotal)
	prometheus.MustRegister(WebhooksDeadLetteredTotal)
	prometheus.MustRegister(WebhookProcessingDuration)
	prometheus.MustRegister(DeadLetterReplaysTotal)
	prometheus.MustRegister(AdminAPIRetriesTotal)
	prometheus.MustRegister(AdminAPIRequestDuration)
	prometheus.MustRegister(GdprRequestsTotal)
}
