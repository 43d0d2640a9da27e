package obs

import "github.com/prometheus/client_golang/prometheus"

// CheckoutMetrics groups Prometheus collectors describing checkout outcomes.
type CheckoutMetrics struct {
	// Requests counts checkout decisions by tier and result (ok, unauthorized, invalid).
	Requests *prometheus.CounterVec
	// Totals records the amount due of authorized checkouts.
	Totals *prometheus.HistogramVec
}

// NewCheckoutMetrics registers and returns checkout collectors. A nil registerer
// falls back to the default Prometheus registry.
func NewCheckoutMetrics(namespace string, reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &CheckoutMetrics{
		Requests: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_requests_total",
			Help:      "Count of checkout decisions by tier and result.",
		}, []string{"tier", "result"})),
		Totals: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_total_amount",
			Help:      "Distribution of amounts due for authorized checkouts.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}, []string{"tier"})),
	}
}

// Observe records a single checkout outcome. Safe to call on a nil receiver.
func (m *CheckoutMetrics) Observe(tier, result string, total float64) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(tierLabel(tier), result).Inc()
	if result == "ok" {
		m.Totals.WithLabelValues(tierLabel(tier)).Observe(total)
	}
}

// tierLabel bounds label cardinality; tiers are caller supplied free text.
func tierLabel(tier string) string {
	switch tier {
	case "premium", "regular":
		return tier
	default:
		return "other"
	}
}
