package interpreter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the engine's Prometheus collectors.
type Metrics struct {
	acts            *prometheus.CounterVec
	jobs            *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec
	toolPreventions *prometheus.CounterVec
}

// NewMetrics registers the engine collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		acts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auditor",
			Name:      "acts_total",
			Help:      "Acts executed, by act type and outcome.",
		}, []string{"type", "outcome"}),
		jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auditor",
			Name:      "jobs_total",
			Help:      "Jobs executed, by outcome.",
		}, []string{"outcome"}),
		toolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "auditor",
			Name:      "tool_duration_seconds",
			Help:      "Time spent in tool sub-executions.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 45, 60, 150},
		}, []string{"tool"}),
		toolPreventions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auditor",
			Name:      "tool_preventions_total",
			Help:      "Tool invocations that produced no result, by reason.",
		}, []string{"tool", "reason"}),
	}
}

func (m *Metrics) recordAct(actType, outcome string) {
	if m != nil {
		m.acts.WithLabelValues(actType, outcome).Inc()
	}
}

func (m *Metrics) recordJob(outcome string) {
	if m != nil {
		m.jobs.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) recordTool(tool string, seconds float64) {
	if m != nil {
		m.toolDuration.WithLabelValues(tool).Observe(seconds)
	}
}

func (m *Metrics) recordPrevention(tool, reason string) {
	if m != nil {
		m.toolPreventions.WithLabelValues(tool, reason).Inc()
	}
}
