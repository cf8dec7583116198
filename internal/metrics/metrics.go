// Package metrics exposes Prometheus instrumentation for planning and
// workflow execution. All observation methods are nil-receiver safe so
// callers can run without a registry wired in.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "planmux"

type Metrics struct {
	plansTotal       *prometheus.CounterVec
	fallbacksTotal   prometheus.Counter
	planningFailures *prometheus.CounterVec
	stepsTotal       *prometheus.CounterVec
	stepDuration     *prometheus.HistogramVec
}

// New registers the instrument set on reg. Pass
// prometheus.DefaultRegisterer for the process-wide registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		plansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_total",
			Help:      "Plans produced, labeled by planning method.",
		}, []string{"method"}),
		fallbacksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Hybrid plans where the secondary strategy overrode the primary.",
		}),
		planningFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "planning_failures_total",
			Help:      "Planning attempts that produced no plan, labeled by failure kind.",
		}, []string{"kind"}),
		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Executed workflow steps, labeled by agent and outcome.",
		}, []string{"agent", "outcome"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time of individual workflow steps.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"agent"}),
	}
}

func (m *Metrics) ObservePlan(method string, fallback bool) {
	if m == nil {
		return
	}
	m.plansTotal.WithLabelValues(method).Inc()
	if fallback {
		m.fallbacksTotal.Inc()
	}
}

func (m *Metrics) ObservePlanningFailure(kind string) {
	if m == nil {
		return
	}
	m.planningFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveStep(agent string, failed bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.stepsTotal.WithLabelValues(agent, outcome).Inc()
	m.stepDuration.WithLabelValues(agent).Observe(elapsed.Seconds())
}
