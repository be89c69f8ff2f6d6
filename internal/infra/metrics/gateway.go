package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		gatewayRequestsTotal,
		gatewayRequestDuration,
		gatewayTokenRefreshTotal,
	)
}

var (
	// op: grant|refresh|create|execute|query|refund
	// result: ok|rejected|transport
	gatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Outbound payment gateway calls by operation and result.",
		},
		[]string{"op", "result"},
	)

	gatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Latency of outbound payment gateway calls in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		},
		[]string{"op"},
	)

	// source: shared|refresh|grant
	gatewayTokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_token_refresh_total",
			Help: "Gateway token acquisitions by source and result.",
		},
		[]string{"source", "result"},
	)
)

func ObserveGatewayRequest(op, result string, seconds float64) {
	gatewayRequestsTotal.WithLabelValues(norm(op), norm(result)).Inc()
	gatewayRequestDuration.WithLabelValues(norm(op)).Observe(seconds)
}

func IncTokenRefresh(source, result string) {
	gatewayTokenRefreshTotal.WithLabelValues(norm(source), norm(result)).Inc()
}
