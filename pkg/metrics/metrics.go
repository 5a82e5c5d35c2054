package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Inventory metrics
	DrivesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "backy_drives_total",
			Help: "Number of block devices in the current snapshot after exclusions",
		},
	)

	PoolsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "backy_pools_total",
			Help: "Number of pool records in metadata",
		},
	)

	DriveRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backy_drive_refreshes_total",
			Help: "Total drive snapshot refreshes by outcome",
		},
		[]string{"outcome"},
	)

	// Command metrics
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backy_commands_total",
			Help: "Total external commands executed by binary and outcome",
		},
		[]string{"binary", "outcome"},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backy_command_duration_seconds",
			Help:    "External command duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"binary"},
	)

	// Operation metrics
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backy_operations_total",
			Help: "Total pool lifecycle operations by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	OperationsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "backy_operations_active",
			Help: "Pool lifecycle operations currently in flight",
		},
	)

	// Reconciliation metrics
	ReconcileFixedEntriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "backy_reconcile_fixed_entries_total",
			Help: "Total metadata entries whose md device name was corrected",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backy_api_requests_total",
			Help: "Total API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backy_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

var registerOnce sync.Once

// Register registers all metrics with the default prometheus registry.
// Safe to call more than once.
func Register() {
	registerOnce.Do(register)
}

func register() {
	prometheus.MustRegister(
		DrivesTotal,
		PoolsTotal,
		DriveRefreshesTotal,
		CommandsTotal,
		CommandDuration,
		OperationsTotal,
		OperationsActive,
		ReconcileFixedEntriesTotal,
		APIRequestsTotal,
		APIRequestDuration,
	)
}

// Handler returns the prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed time for histogram observation
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer starting now
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
