// Package metrics provides Prometheus instrumentation for wallet analysis and the HTTP API.
package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewired-gh/polysleuth/internal/models"
)

const namespace = "polysleuth"

var (
	// WalletsAnalyzedTotal counts analyzed wallets by resulting risk tier.
	WalletsAnalyzedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallets_analyzed_total",
			Help:      "Total wallets analyzed by risk level.",
		},
		[]string{"risk"},
	)

	// CompositeScore observes the distribution of composite scores.
	CompositeScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "composite_score",
		Help:      "Distribution of wallet composite risk scores.",
		Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.85, 1},
	})

	// SignalScore observes raw signal scores by signal name.
	SignalScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "signal_score",
			Help:      "Distribution of raw signal scores by signal.",
			Buckets:   []float64{0, 0.1, 0.3, 0.4, 0.6, 0.7, 1},
		},
		[]string{"signal"},
	)

	// AnalysisDuration observes per-wallet analysis latency, store reads included.
	AnalysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "analysis_duration_seconds",
		Help:      "Time to analyze one wallet in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	// AnalysisErrorsTotal counts wallets whose analysis failed on a store read.
	AnalysisErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analysis_errors_total",
		Help:      "Total wallet analyses that failed.",
	})

	// IndexedRecordsTotal counts records inserted by the indexer, by kind.
	IndexedRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexed_records_total",
			Help:      "Total records inserted into the activity store by kind.",
		},
		[]string{"kind"},
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(
		WalletsAnalyzedTotal,
		CompositeScore,
		SignalScore,
		AnalysisDuration,
		AnalysisErrorsTotal,
		IndexedRecordsTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// ObserveReport records one finished wallet analysis.
func ObserveReport(r *models.WalletReport, elapsed time.Duration) {
	WalletsAnalyzedTotal.WithLabelValues(string(r.RiskLevel)).Inc()
	CompositeScore.Observe(r.CompositeScore)
	for _, s := range r.Signals {
		SignalScore.WithLabelValues(s.Name).Observe(s.Score)
	}
	AnalysisDuration.Observe(elapsed.Seconds())
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for the /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
