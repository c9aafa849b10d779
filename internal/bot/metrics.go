package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics структура для метрик Prometheus
type Metrics struct {
	MessagesProcessed    prometheus.Counter
	CommandsProcessed    *prometheus.CounterVec
	ErrorsTotal          prometheus.Counter
	UpdateProcessingTime prometheus.Histogram
	OrdersCreated        *prometheus.CounterVec
	PaymentsStarted      *prometheus.CounterVec
}

// NewMetrics создает новые метрики. Вызывать один раз на процесс.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MessagesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "telegram_bot_messages_processed_total",
			Help: "Total number of processed messages",
		}),

		CommandsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telegram_bot_commands_processed_total",
			Help: "Total number of processed commands",
		}, []string{"command"}),

		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "telegram_bot_errors_total",
			Help: "Total number of handler errors and recovered panics",
		}),

		UpdateProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "telegram_bot_update_processing_time_seconds",
			Help:    "Time spent processing updates",
			Buckets: prometheus.DefBuckets,
		}),

		OrdersCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telegram_bot_orders_created_total",
			Help: "Total number of orders created",
		}, []string{"tariff"}),

		PaymentsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telegram_bot_payments_started_total",
			Help: "Total number of payment flows started",
		}, []string{"method"}),
	}
}
