package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Container metrics
	ContainersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aisu_containers_total",
			Help: "Total number of user containers by status",
		},
		[]string{"status"},
	)

	ContainerProvisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aisu_container_provisions_total",
			Help: "Total number of container provisions by outcome",
		},
		[]string{"outcome"},
	)

	// Filesystem metrics
	FSOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aisu_fs_operations_total",
			Help: "Total number of filesystem operations by verb and outcome",
		},
		[]string{"verb", "outcome"},
	)

	FSOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aisu_fs_operation_duration_seconds",
			Help:    "In-container filesystem operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"verb"},
	)

	// Terminal metrics
	TerminalSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aisu_terminal_sessions_active",
			Help: "Number of currently attached terminal sessions",
		},
	)

	TerminalSessionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aisu_terminal_sessions_total",
			Help: "Total number of terminal sessions opened",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aisu_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aisu_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Rate limit metrics
	RateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aisu_ratelimit_rejections_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"route"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ContainersTotal)
	prometheus.MustRegister(ContainerProvisionsTotal)
	prometheus.MustRegister(FSOperationsTotal)
	prometheus.MustRegister(FSOperationDuration)
	prometheus.MustRegister(TerminalSessionsActive)
	prometheus.MustRegister(TerminalSessionsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(RateLimitRejections)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures a duration for histogram observation
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time on a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Observer) {
	histogram.Observe(t.Duration().Seconds())
}
