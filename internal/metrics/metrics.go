package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forestmonitor_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forestmonitor_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	bulkOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forestmonitor_bulk_operations_total",
		Help: "Count of bulk operations by action and result",
	}, []string{"action", "result"})

	bulkRowsAffected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forestmonitor_bulk_rows_affected_total",
		Help: "Total rows touched by committed bulk operations",
	}, []string{"action"})

	realtimeSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "forestmonitor_realtime_subscribers",
		Help: "Number of attached realtime subscribers (websocket + SSE)",
	})

	eventsBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forestmonitor_events_broadcast_total",
		Help: "Count of realtime events broadcast by type",
	}, []string{"type"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveBulkOperation records the outcome of one bulk call.
func ObserveBulkOperation(action, result string, rows int64) {
	bulkOperations.WithLabelValues(action, result).Inc()
	if result == "ok" && rows > 0 {
		bulkRowsAffected.WithLabelValues(action).Add(float64(rows))
	}
}

// SetRealtimeSubscribers updates the subscriber gauge.
func SetRealtimeSubscribers(n int) {
	realtimeSubscribers.Set(float64(n))
}

// ObserveEventBroadcast counts one broadcast event.
func ObserveEventBroadcast(typ string) {
	eventsBroadcast.WithLabelValues(typ).Inc()
}
