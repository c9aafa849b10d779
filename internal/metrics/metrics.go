package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "numerology"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	orderTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Order status transitions by target status.",
		},
		[]string{"status"},
	)

	providerSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_submissions_total",
			Help:      "Report generation submissions by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Report deliveries by outcome.",
		},
		[]string{"outcome"},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_submit_seconds",
			Help:      "Time spent in provider submit calls.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 180},
		},
		[]string{"provider"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, orderTransitions, providerSubmissions, deliveries, generationDuration)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncOrderTransition(status string) {
	orderTransitions.WithLabelValues(status).Inc()
}

func ObserveSubmission(provider, outcome string, seconds float64) {
	providerSubmissions.WithLabelValues(provider, outcome).Inc()
	generationDuration.WithLabelValues(provider).Observe(seconds)
}

func IncDelivery(outcome string) {
	deliveries.WithLabelValues(outcome).Inc()
}
