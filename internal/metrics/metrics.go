// Package metrics exposes the Prometheus instrumentation for a running
// pool: queue depth, worker utilization, and ack/nack/failure-mode
// counters.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the collectors a pool registers against a single
// Prometheus registry.
type Metrics struct {
	QueueDepth            *prometheus.GaugeVec
	WorkersTotal          *prometheus.GaugeVec
	WorkersBusy           *prometheus.GaugeVec
	JobsAckedTotal        *prometheus.CounterVec
	JobsNackedTotal       *prometheus.CounterVec
	FailureModeInvocations *prometheus.CounterVec
}

// New creates and registers the pool's collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jobpool_queue_depth",
			Help: "Backend-reported queue depth per pool.",
		}, []string{"pool"}),
		WorkersTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jobpool_workers_total",
			Help: "Registered worker monitors per pool.",
		}, []string{"pool"}),
		WorkersBusy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jobpool_workers_busy",
			Help: "Worker monitors currently holding a job, per pool.",
		}, []string{"pool"}),
		JobsAckedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobpool_jobs_acked_total",
			Help: "Jobs acknowledged after successful execution, per pool.",
		}, []string{"pool"}),
		JobsNackedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobpool_jobs_nacked_total",
			Help: "Jobs negatively acknowledged, per pool and reason.",
		}, []string{"pool", "reason"}),
		FailureModeInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobpool_failure_mode_invocations_total",
			Help: "Failure mode invocations after a worker died holding a job.",
		}, []string{"pool"}),
	}

	reg.MustRegister(
		m.QueueDepth,
		m.WorkersTotal,
		m.WorkersBusy,
		m.JobsAckedTotal,
		m.JobsNackedTotal,
		m.FailureModeInvocations,
	)

	return m
}
