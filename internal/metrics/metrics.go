// Package metrics defines the Prometheus collectors of the engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "voucher_pools"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	SagaSteps        *prometheus.CounterVec
	SagaRuns         *prometheus.CounterVec
	Flows            *prometheus.CounterVec
	SnapshotDuration *prometheus.HistogramVec
	BatchSize        *prometheus.HistogramVec
	Notifications    *prometheus.CounterVec
}

// New builds the collectors and registers them with reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SagaSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deploy_steps_total",
			Help:      "Deployment saga steps by step and status.",
		}, []string{"step", "status"}),
		SagaRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deploy_runs_total",
			Help:      "Deployment saga runs by terminal status.",
		}, []string{"status"}),
		Flows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sequencer_flows_total",
			Help:      "Transaction sequencer flows by flow and outcome.",
		}, []string{"flow", "outcome"}),
		SnapshotDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_duration_seconds",
			Help:      "Time to aggregate one pool snapshot.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		BatchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_calls",
			Help:      "Calls per batched read round trip.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"stage"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Best-effort notifications by outcome.",
		}, []string{"outcome"}),
	}

	if reg != nil {
		reg.MustRegister(m.SagaSteps, m.SagaRuns, m.Flows, m.SnapshotDuration, m.BatchSize, m.Notifications)
	}
	return m
}

func (m *Metrics) Step(step, status string) {
	if m == nil {
		return
	}
	m.SagaSteps.WithLabelValues(step, status).Inc()
}

func (m *Metrics) Run(status string) {
	if m == nil {
		return
	}
	m.SagaRuns.WithLabelValues(status).Inc()
}

func (m *Metrics) Flow(flow, outcome string) {
	if m == nil {
		return
	}
	m.Flows.WithLabelValues(flow, outcome).Inc()
}

func (m *Metrics) Snapshot(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SnapshotDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) Batch(stage string, calls int) {
	if m == nil {
		return
	}
	m.BatchSize.WithLabelValues(stage).Observe(float64(calls))
}

func (m *Metrics) Notification(outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(outcome).Inc()
}
