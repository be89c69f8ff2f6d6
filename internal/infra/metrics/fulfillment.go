package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(fulfillmentTotal, workerJobsTotal, reconcilerRunsTotal)
}

var (
	// step: enrollment|email
	// result: created|exists|sent|dropped|error
	fulfillmentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_total",
			Help: "Post-payment fulfillment steps by result.",
		},
		[]string{"step", "result"},
	)

	workerJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_total",
			Help: "Background jobs processed by the worker pool, labeled by status.",
		},
		[]string{"status"}, // 'completed', 'failed', 'rejected'
	)

	reconcilerRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_reconciler_runs_total",
			Help: "Stale pending sweeps by result.",
		},
		[]string{"result"}, // 'ok', 'empty', 'skipped', 'error'
	)
)

func IncFulfillment(step, result string) {
	fulfillmentTotal.WithLabelValues(norm(step), norm(result)).Inc()
}

func IncWorkerJob(status string) {
	workerJobsTotal.WithLabelValues(norm(status)).Inc()
}

func IncReconcilerRun(result string) {
	reconcilerRunsTotal.WithLabelValues(norm(result)).Inc()
}
