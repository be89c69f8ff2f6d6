package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		paymentInitiationsTotal,
		callbacksTotal,
		callbackDuration,
		refundsTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment records by the status they reached (pending/successful/failed/refunded).",
		},
		[]string{"status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total monetary value of successful payments, labeled by currency.",
		},
		[]string{"currency"},
	)

	// result: ok or a bounded error code (user_not_found, coupon_invalid, gateway_rejected, ...)
	paymentInitiationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_initiations_total",
			Help: "Payment initiation attempts by result.",
		},
		[]string{"result"},
	)

	// outcome: completed|failed|already_processed|unknown_payment|error
	callbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_callbacks_total",
			Help: "Gateway callbacks by outcome.",
		},
		[]string{"outcome"},
	)

	callbackDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_callback_duration_seconds",
			Help:    "Duration of callback handling, including gateway confirmation, in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"outcome"},
	)

	refundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_refunds_total",
			Help: "Refund attempts by result.",
		},
		[]string{"result"},
	)
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func AddPaymentRevenue(currency string, amount decimal.Decimal) {
	f, _ := amount.Float64()
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(f)
}

func IncInitiation(result string) {
	paymentInitiationsTotal.WithLabelValues(norm(result)).Inc()
}

func ObserveCallback(outcome string, seconds float64) {
	callbacksTotal.WithLabelValues(norm(outcome)).Inc()
	callbackDuration.WithLabelValues(norm(outcome)).Observe(seconds)
}

func IncRefund(result string) {
	refundsTotal.WithLabelValues(norm(result)).Inc()
}
