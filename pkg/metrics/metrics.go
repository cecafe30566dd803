package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet metrics
	SlotsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "colony_slots_total",
			Help: "Number of worker slots in the fleet",
		},
	)

	SlotsWithInstance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "colony_slots_with_instance",
			Help: "Number of worker slots with a recorded instance id",
		},
	)

	EnsureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colony_ensure_total",
			Help: "Total number of ensure-worker calls by outcome",
		},
		[]string{"outcome"},
	)

	EnsureErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colony_ensure_errors_total",
			Help: "Total number of failed ensure-worker calls by error kind",
		},
		[]string{"kind"},
	)

	EnsureDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "colony_ensure_duration_seconds",
			Help:    "Time taken by one ensure-worker call in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Relay metrics
	MessagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colony_messages_sent_total",
			Help: "Total number of messages sent by direction",
		},
		[]string{"direction"},
	)

	MessagesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colony_messages_received_total",
			Help: "Total number of messages received by direction",
		},
		[]string{"direction"},
	)

	QueueErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colony_queue_errors_total",
			Help: "Total number of queue failures by direction and error kind",
		},
		[]string{"direction", "kind"},
	)

	// Object store metrics
	ObjectTransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colony_object_transfers_total",
			Help: "Total number of object store transfers by operation and status",
		},
		[]string{"operation", "status"},
	)

	// Reconciler metrics
	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "colony_reconciliation_cycles_total",
			Help: "Total number of fleet reconciliation cycles",
		},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "colony_reconciliation_duration_seconds",
			Help:    "Time taken by one fleet reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(SlotsTotal)
	prometheus.MustRegister(SlotsWithInstance)
	prometheus.MustRegister(EnsureTotal)
	prometheus.MustRegister(EnsureErrorsTotal)
	prometheus.MustRegister(EnsureDuration)
	prometheus.MustRegister(MessagesSentTotal)
	prometheus.MustRegister(MessagesReceivedTotal)
	prometheus.MustRegister(QueueErrorsTotal)
	prometheus.MustRegister(ObjectTransfersTotal)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(ReconciliationDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewServeMux mounts the metrics and health endpoints
func NewServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", DefaultHealth.HealthHandler())
	mux.HandleFunc("/ready", DefaultHealth.ReadyHandler())
	mux.HandleFunc("/live", DefaultHealth.LivenessHandler())
	return mux
}
