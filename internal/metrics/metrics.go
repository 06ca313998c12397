// Package metrics exposes run progress as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/settle/internal/harness"
	"github.com/roach88/settle/internal/verdict"
)

const Namespace = "settle"

// Metrics holds the collectors of one process on a private registry, so
// tests and parallel runs never share global state.
//
// Thread-safety: Metrics and the observers it returns are safe for
// concurrent use.
type Metrics struct {
	reg *prometheus.Registry

	verdictsTotal    *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	caseDuration     *prometheus.HistogramVec
	runCases         *prometheus.GaugeVec
	runAborted       *prometheus.GaugeVec
	runsTotal        *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		verdictsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "verdicts_total",
			Help:      "Count of case verdicts",
		}, []string{
			"target",
			"suite",
			"outcome",
		}),
		transitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "state_transitions_total",
			Help:      "Count of runner state entries",
		}, []string{
			"target",
			"state",
		}),
		caseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "case_duration_seconds",
			Help:      "Time from reset to verdict per case",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 8, 13, 21},
		}, []string{
			"target",
			"suite",
		}),
		runCases: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_cases",
			Help:      "Cases per outcome in the last finished run",
		}, []string{
			"target",
			"outcome",
		}),
		runAborted: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_aborted",
			Help:      "1 if the last run against the target was aborted",
		}, []string{
			"target",
		}),
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Count of finished runs",
		}, []string{
			"target",
			"result",
		}),
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ForTarget returns an observer labelling everything with target.
// It matches the signature harness.WithTargetObserver expects.
func (m *Metrics) ForTarget(target string) harness.Observer {
	return &observer{m: m, target: target}
}

// RecordRun publishes the totals of a finished or aborted run.
func (m *Metrics) RecordRun(rep *harness.Report) {
	s := rep.Summary
	counts := map[verdict.Outcome]int{
		verdict.OutcomePass:        s.Passed,
		verdict.OutcomeFail:        s.Failed,
		verdict.OutcomeTimeout:     s.Timeouts,
		verdict.OutcomeDriverError: s.DriverErrors,
	}
	for _, o := range verdict.Outcomes {
		m.runCases.WithLabelValues(rep.TargetURL, string(o)).Set(float64(counts[o]))
	}

	aborted := 0.0
	result := "passed"
	switch {
	case rep.Aborted:
		aborted = 1
		result = "aborted"
	case !rep.Passed():
		result = "failed"
	}
	m.runAborted.WithLabelValues(rep.TargetURL).Set(aborted)
	m.runsTotal.WithLabelValues(rep.TargetURL, result).Inc()
}

type observer struct {
	m      *Metrics
	target string
}

func (o *observer) OnTransition(_ string, s verdict.State, _ time.Duration) {
	o.m.transitionsTotal.WithLabelValues(o.target, string(s)).Inc()
}

func (o *observer) OnVerdict(v verdict.Verdict) {
	o.m.verdictsTotal.WithLabelValues(o.target, v.Suite, string(v.Outcome)).Inc()
	o.m.caseDuration.WithLabelValues(o.target, v.Suite).Observe(v.Elapsed.Seconds())
}
