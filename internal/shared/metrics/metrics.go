package metrics

import (
	"database/sql"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rateshop-backend/internal/shared/telemetry"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rateshop_jobs_total",
		Help: "Jobs by lifecycle event",
	}, []string{"status"})

	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rateshop_job_duration_seconds",
		Help:    "Wall time of job processing",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	shipmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rateshop_shipments_processed_total",
		Help: "Processed shipments by outcome",
	}, []string{"outcome"})

	carrierRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rateshop_carrier_requests_total",
		Help: "Carrier rating requests by outcome",
	}, []string{"carrier", "outcome"})

	carrierLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rateshop_carrier_request_duration_seconds",
		Help:    "Carrier rating request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"carrier"})

	negotiatedSavings = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rateshop_negotiated_savings_amount",
		Help:    "Published minus negotiated amount per quote",
		Buckets: []float64{0, 0.5, 1, 2, 5, 10, 25, 50, 100},
	}, []string{"carrier"})

	persistFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rateshop_persist_flushes_total",
		Help: "Result batch writes by trigger and result",
	}, []string{"trigger", "result"})

	workerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rateshop_worker_messages_total",
		Help: "Queue messages handled by the worker by outcome",
	}, []string{"outcome"})
)

// JobEvent counts a job lifecycle event (submitted, started, completed, failed).
func JobEvent(status string) {
	jobsTotal.WithLabelValues(status).Inc()
}

// ObserveJobDuration records job processing time in seconds.
func ObserveJobDuration(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	jobDuration.Observe(seconds)
}

// ShipmentProcessed counts one shipment outcome (priced, orphaned).
func ShipmentProcessed(outcome string) {
	shipmentsTotal.WithLabelValues(outcome).Inc()
}

// CarrierRequest records one carrier call.
func CarrierRequest(carrier, outcome string, seconds float64) {
	carrierRequests.WithLabelValues(carrier, outcome).Inc()
	carrierLatency.WithLabelValues(carrier).Observe(seconds)
}

// NegotiatedSavings records published-minus-negotiated for one quote.
func NegotiatedSavings(carrier string, amount float64) {
	negotiatedSavings.WithLabelValues(carrier).Observe(amount)
}

// PersistFlush counts one batch write attempt.
func PersistFlush(trigger, result string) {
	persistFlushes.WithLabelValues(trigger, result).Inc()
}

// WorkerMessage counts a queue message outcome (received, completed, failed, dropped).
func WorkerMessage(outcome string) {
	workerMessages.WithLabelValues(outcome).Inc()
}

// RegisterDBStats exports connection pool statistics of db labeled with
// name. A second registration under the same name is ignored.
func RegisterDBStats(db *sql.DB, name string) {
	err := prometheus.Register(collectors.NewDBStatsCollector(db, name))
	var already prometheus.AlreadyRegisteredError
	if err != nil && !errors.As(err, &already) {
		telemetry.Warn("metrics.db_stats_register_failed", map[string]any{"db": name, "error": err})
	}
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
