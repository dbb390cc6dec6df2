// Package metrics exposes Prometheus collectors for the spool and scheduler.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Job outcome labels.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	cyclesTotal   prometheus.Counter
	dequeuedTotal *prometheus.CounterVec
	finishedTotal *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	runningJobs   *prometheus.GaugeVec
	chainedTotal  *prometheus.CounterVec
	corruptTotal  *prometheus.CounterVec
	prunedTotal   prometheus.Counter
}

// New creates the collectors and registers them on reg. A nil reg uses the
// default registerer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		cyclesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduler_cycles_total",
				Help:      "Number of scheduler cycle ticks",
			},
		),
		dequeuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_dequeued_total",
				Help:      "Jobs moved from pending to ongoing",
			},
			[]string{"namespace"},
		),
		finishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_finished_total",
				Help:      "Job executions by outcome",
			},
			[]string{"namespace", "status"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Duration of job processes",
				Buckets:   []float64{.05, .1, .5, 1, 5, 10, 30, 60, 300, 1800},
			},
			[]string{"namespace", "status"},
		),
		runningJobs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "jobs_running",
				Help:      "Job processes currently running",
			},
			[]string{"namespace"},
		),
		chainedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_chained_total",
				Help:      "Follow-up jobs enqueued by action lines",
			},
			[]string{"namespace"},
		),
		corruptTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "spool_corrupt_records_total",
				Help:      "Corrupt records discarded on fetch",
			},
			[]string{"state", "namespace"},
		),
		prunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "spool_pruned_records_total",
				Help:      "Records removed by the done janitor",
			},
		),
	}

	reg.MustRegister(
		m.cyclesTotal,
		m.dequeuedTotal,
		m.finishedTotal,
		m.jobDuration,
		m.runningJobs,
		m.chainedTotal,
		m.corruptTotal,
		m.prunedTotal,
	)

	return m
}

func (m *Metrics) RecordCycle() {
	if m == nil {
		return
	}
	m.cyclesTotal.Inc()
}

func (m *Metrics) RecordDequeued(namespace string) {
	if m == nil {
		return
	}
	m.dequeuedTotal.WithLabelValues(namespace).Inc()
}

// JobStarted marks a process as running; call JobFinished when it exits.
func (m *Metrics) JobStarted(namespace string) {
	if m == nil {
		return
	}
	m.runningJobs.WithLabelValues(namespace).Inc()
}

func (m *Metrics) JobFinished(namespace, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runningJobs.WithLabelValues(namespace).Dec()
	m.finishedTotal.WithLabelValues(namespace, status).Inc()
	m.jobDuration.WithLabelValues(namespace, status).Observe(duration.Seconds())
}

func (m *Metrics) RecordChained(namespace string) {
	if m == nil {
		return
	}
	m.chainedTotal.WithLabelValues(namespace).Inc()
}

// RecordCorrupt satisfies spool.Observer.
func (m *Metrics) RecordCorrupt(state, namespace string) {
	if m == nil {
		return
	}
	m.corruptTotal.WithLabelValues(state, namespace).Inc()
}

func (m *Metrics) RecordPruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.prunedTotal.Add(float64(n))
}
