package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "intake_portal"

var (
	analysisStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analysis_started_total",
		Help:      "Total analyses started",
	})
	analysisCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analysis_completed_total",
		Help:      "Total analyses completed",
	})
	analysisFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analysis_failed_total",
		Help:      "Total analyses failed, by error code",
	}, []string{"code"})
	analysisCanceledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analysis_canceled_total",
		Help:      "Total analyses canceled",
	})
	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "analysis_duration_ms",
		Help:      "Analysis duration in milliseconds",
		Buckets:   []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000},
	})
	uploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploads_total",
		Help:      "Total client uploads stored",
	})
	signedLinksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signed_links_total",
		Help:      "Total signed download links minted",
	})
	queueJobsReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_jobs_received_total",
		Help:      "Analysis queue messages received by workers",
	})
)

// IncAnalysisStarted increments the started counter.
func IncAnalysisStarted() { analysisStartedTotal.Inc() }

// IncAnalysisCompleted increments the completed counter.
func IncAnalysisCompleted() { analysisCompletedTotal.Inc() }

// IncAnalysisFailed increments the failed counter for an error code.
func IncAnalysisFailed(code string) { analysisFailedTotal.WithLabelValues(code).Inc() }

// IncAnalysisCanceled increments the canceled counter.
func IncAnalysisCanceled() { analysisCanceledTotal.Inc() }

// ObserveAnalysisDurationMs records an analysis duration in milliseconds.
func ObserveAnalysisDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	analysisDuration.Observe(value)
}

// IncUploads increments the uploads counter.
func IncUploads() { uploadsTotal.Inc() }

// AddSignedLinks adds n minted links.
func AddSignedLinks(n int) { signedLinksTotal.Add(float64(n)) }

// IncQueueJobsReceived increments the worker receive counter.
func IncQueueJobsReceived() { queueJobsReceivedTotal.Inc() }

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
