// Package telemetry exposes the control plane's ambient Prometheus
// counters/gauges: routing decisions, heartbeat phase transitions,
// remediation outcomes, and pattern-mining activity. Grounded on the
// jordigilh-kubernaut example's client_golang registry-and-handler wiring,
// since the teacher repo carries no metrics package of its own.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the control plane's exported series under one registry so
// a test can construct an isolated instance instead of touching globals.
type Metrics struct {
	Registry *prometheus.Registry

	RoutingDecisions   *prometheus.CounterVec
	HeartbeatPhase     *prometheus.CounterVec
	RemediationOutcome *prometheus.CounterVec
	PatternsDetected   *prometheus.CounterVec
	AllocationTokens   prometheus.Histogram
	WorkerHealthScore  *prometheus.GaugeVec
}

// New constructs a Metrics bundle registered against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		RoutingDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cortex",
			Subsystem: "router",
			Name:      "decisions_total",
			Help:      "Routing decisions by selected master and task type.",
		}, []string{"master", "task_type"}),
		HeartbeatPhase: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cortex",
			Subsystem: "heartbeat",
			Name:      "phase_transitions_total",
			Help:      "Heartbeat phase transitions by worker type and phase.",
		}, []string{"worker_type", "phase"}),
		RemediationOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cortex",
			Subsystem: "remediator",
			Name:      "executions_total",
			Help:      "Remediation playbook executions by playbook and status.",
		}, []string{"playbook_id", "status"}),
		PatternsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cortex",
			Subsystem: "patterns",
			Name:      "detected_total",
			Help:      "Mined failure patterns by category and confidence band.",
		}, []string{"category", "confidence_band"}),
		AllocationTokens: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cortex",
			Subsystem: "allocator",
			Name:      "token_budget",
			Help:      "Distribution of token budgets assigned to worker allocations.",
			Buckets:   []float64{2000, 5000, 10000, 25000, 50000, 100000},
		}),
		WorkerHealthScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cortex",
			Subsystem: "heartbeat",
			Name:      "health_score",
			Help:      "Most recent health score (0-100) per worker.",
		}, []string{"worker_id"}),
	}
}

// Handler returns the /metrics text-exposition HTTP handler for this
// registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// RecordRoutingDecision increments the routing counter.
func (m *Metrics) RecordRoutingDecision(master, taskType string) {
	m.RoutingDecisions.WithLabelValues(master, taskType).Inc()
}

// RecordHeartbeatPhase increments the phase-transition counter.
func (m *Metrics) RecordHeartbeatPhase(workerType, phase string) {
	m.HeartbeatPhase.WithLabelValues(workerType, phase).Inc()
}

// RecordRemediationOutcome increments the remediation-execution counter.
func (m *Metrics) RecordRemediationOutcome(playbookID, status string) {
	m.RemediationOutcome.WithLabelValues(playbookID, status).Inc()
}

// RecordPatternDetected increments the pattern-mining counter.
func (m *Metrics) RecordPatternDetected(category, confidenceBand string) {
	m.PatternsDetected.WithLabelValues(category, confidenceBand).Inc()
}

// ObserveAllocationTokens records one allocation's token budget.
func (m *Metrics) ObserveAllocationTokens(tokens int) {
	m.AllocationTokens.Observe(float64(tokens))
}

// SetWorkerHealthScore records the most recent health score for a worker.
func (m *Metrics) SetWorkerHealthScore(workerID string, score int) {
	m.WorkerHealthScore.WithLabelValues(workerID).Set(float64(score))
}
