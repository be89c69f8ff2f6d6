package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(httpRequestsTotal, httpRequestDuration, adminActionsTotal)
}

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route pattern and status code.",
		},
		[]string{"route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP handler latency in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
		},
		[]string{"route"},
	)

	adminActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_actions_total",
			Help: "Tracks attempts to use admin endpoints.",
		},
		[]string{"action", "status"}, // status: 'ok', 'unauthorized', 'error'
	)
)

func ObserveHTTP(route, status string, seconds float64) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(route, status).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(seconds)
}

func IncAdminAction(action, status string) {
	adminActionsTotal.WithLabelValues(norm(action), norm(status)).Inc()
}
