package planner

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/guimove/fleetfit/internal/model"
)

// Metrics records solver and cache activity for one planner. Each instance
// owns a private registry so concurrent runs and tests don't collide.
type Metrics struct {
	registry *prometheus.Registry

	solves        *prometheus.CounterVec
	solveDuration *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	evaluations   *prometheus.CounterVec
}

// NewMetrics creates and registers the planner metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		solves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetfit_solver_invocations_total",
				Help: "Optimizer invocations, by solver and resulting packing status.",
			},
			[]string{"solver", "status"},
		),
		solveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleetfit_solve_duration_seconds",
				Help:    "Wall-clock time of a single optimizer invocation.",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 12),
			},
			[]string{"solver"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetfit_solution_cache_lookups_total",
				Help: "Solution cache lookups by result (hit or miss).",
			},
			[]string{"result"},
		),
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetfit_node_type_evaluations_total",
				Help: "Evaluated node types by outcome (selectable, provisional, excluded).",
			},
			[]string{"outcome"},
		),
	}
	m.registry.MustRegister(m.solves, m.solveDuration, m.cacheLookups, m.evaluations)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeSolve(p *model.Packing) {
	if m == nil || p == nil {
		return
	}
	m.solves.WithLabelValues(p.Solver, string(p.Status)).Inc()
	m.solveDuration.WithLabelValues(p.Solver).Observe(p.SolveDuration.Seconds())
}

func (m *Metrics) observeLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) observeEvaluation(r model.EvaluationResult) {
	if m == nil {
		return
	}
	outcome := "selectable"
	switch {
	case r.Excluded:
		outcome = "excluded"
	case r.Provisional:
		outcome = "provisional"
	}
	m.evaluations.WithLabelValues(outcome).Inc()
}

// WriteFile writes all metrics to path in the Prometheus text format, suitable
// for the node-exporter textfile collector.
func (m *Metrics) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
