// Package metrics registers the Prometheus instrumentation shared by the
// three binaries.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionsIngested counts sessions accepted onto the stream.
	SessionsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hivetrace_sessions_ingested_total",
		Help: "Sessions accepted by the ingestion API and published to the stream.",
	})

	// IngestRejected counts rejected ingestion requests by reason.
	IngestRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hivetrace_ingest_rejected_total",
		Help: "Ingestion requests rejected, by reason.",
	}, []string{"reason"})

	// PublishErrors counts failed stream publishes.
	PublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hivetrace_stream_publish_errors_total",
		Help: "Failed XADD attempts against the session stream.",
	})

	// SessionsProcessed counts worker pipeline outcomes.
	SessionsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hivetrace_sessions_processed_total",
		Help: "Sessions processed by the analytics worker, by outcome.",
	}, []string{"outcome"})

	// BatchDuration observes end-to-end batch processing time.
	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hivetrace_worker_batch_duration_seconds",
		Help:    "Time to process and persist one stream batch.",
		Buckets: prometheus.DefBuckets,
	})

	// RiskScores observes the score distribution of processed sessions.
	RiskScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hivetrace_session_risk_score",
		Help:    "Risk scores of processed sessions.",
		Buckets: []float64{15, 30, 50, 70, 85, 100},
	})

	// AlertsGenerated counts alert-level sessions by level.
	AlertsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hivetrace_alerts_generated_total",
		Help: "Sessions written to alert files, by level.",
	}, []string{"level"})

	// QueryRequests counts query API requests by endpoint and status class.
	QueryRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hivetrace_query_requests_total",
		Help: "Query API requests, by endpoint and status class.",
	}, []string{"endpoint", "status"})
)

// Processing outcomes for SessionsProcessed.
const (
	OutcomeOK        = "ok"
	OutcomeInputErr  = "input_error"
	OutcomeTransient = "transient_error"
	OutcomePanic     = "panic"
)

// Handler exposes the default registry for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
