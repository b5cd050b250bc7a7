package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkwise_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parkwise_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Session lifecycle metrics
	EntriesRegistered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkwise_entries_registered_total",
			Help: "Total vehicle entries registered",
		},
		[]string{"vehicle_class"},
	)

	ExitsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkwise_exits_processed_total",
			Help: "Total vehicle exits processed",
		},
		[]string{"payment_method"},
	)

	AmountCharged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkwise_amount_charged_total",
			Help: "Money charged at checkout",
		},
		[]string{"payment_method"},
	)

	DebtCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "parkwise_debt_created_total",
			Help: "Debt left unpaid at checkout",
		},
	)

	// Backend metrics
	BackendRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkwise_backend_retries_total",
			Help: "Backend calls retried after a transient failure",
		},
		[]string{"operation"},
	)

	BackendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkwise_backend_failures_total",
			Help: "Backend calls that failed after exhausting retries",
		},
		[]string{"operation"},
	)

	// Cache metrics
	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkwise_cache_hits_total",
			Help: "Session cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkwise_cache_misses_total",
			Help: "Session cache misses",
		},
		[]string{"cache"},
	)

	// Conflict metrics
	OpenConflicts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "parkwise_open_plate_conflicts",
			Help: "Plates with more than one active session at the last scan",
		},
	)

	PendingConflicts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "parkwise_pending_register_conflicts",
			Help: "Registrations waiting for an operator decision",
		},
	)

	// Live event metrics
	EventSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "parkwise_event_subscribers",
			Help: "Connected websocket event subscribers",
		},
	)

	ShiftsClosed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "parkwise_shifts_closed_total",
			Help: "Total shift closures",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		EntriesRegistered,
		ExitsProcessed,
		AmountCharged,
		DebtCreated,
		BackendRetries,
		BackendFailures,
		CacheHits,
		CacheMisses,
		OpenConflicts,
		PendingConflicts,
		EventSubscribers,
		ShiftsClosed,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
