package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "walletledger"

// Webhook delivery results
const (
	WebhookApplied      = "applied"
	WebhookDuplicate    = "duplicate"
	WebhookInvalid      = "invalid"
	WebhookFailed       = "failed"
	WebhookUnknownOrder = "unknown_order"
)

var (
	LedgerEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_entries_total",
			Help:      "Ledger entries written or moved to a status",
		},
		[]string{"type", "status"},
	)

	Webhooks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Provider webhook deliveries by result",
		},
		[]string{"provider", "result"},
	)

	ProviderCalls = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Duration of payment provider calls",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"provider", "operation"},
	)

	OrderIDCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_id_collisions_total",
			Help:      "Generated order ids found already taken",
		},
	)

	OrderIDFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_id_fallbacks_total",
			Help:      "Order ids minted by the random fallback after retries ran out",
		},
	)

	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "status_stream_subscribers",
			Help:      "Clients subscribed to payment status streams",
		},
	)
)

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
