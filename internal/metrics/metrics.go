package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/snapp-incubator/conformer/internal/logging"
)

const namespace = "conformer"

var (
	// HTTPReqCounter counts requests sent to the upstreams by status code
	HTTPReqCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_requests_total",
		Help:      "Number of requests sent to the upstreams",
	}, []string{"status", "method", "upstream"})

	// HTTPReqDuration observes upstream round-trip latency
	HTTPReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upstream_request_duration_seconds",
		Help:      "Latency of requests sent to the upstreams",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "upstream"})

	// ComparisonResults counts the outcome of every executed case
	ComparisonResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "comparison_results_total",
		Help:      "Outcome of shape comparisons per route",
	}, []string{"route", "method", "result"})

	// RouteSkipCounter counts cases that were not dispatched
	RouteSkipCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "route_skipped_total",
		Help:      "Number of cases skipped without dispatching",
	}, []string{"route", "method", "reason"})
)

// InitializeHTTP serves the default registry on bind under /metrics. It blocks.
func InitializeHTTP(bind string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	logging.L.Info("Starting metrics server", zap.String("address", bind))
	if err := http.ListenAndServe(bind, mux); err != nil && err != http.ErrServerClosed {
		logging.L.Error("Metrics server stopped", zap.Error(err))
	}
}
