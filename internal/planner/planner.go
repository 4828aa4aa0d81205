// Package planner evaluates every candidate node type against a workload set
// and selects the cheapest homogeneous fleet.
package planner

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/guimove/fleetfit/internal/catalog"
	"github.com/guimove/fleetfit/internal/model"
	"github.com/guimove/fleetfit/internal/packing"
	"github.com/guimove/fleetfit/internal/solutioncache"
)

// Planner runs the search over candidate node types.
type Planner struct {
	Solver packing.Solver

	// Cache memoizes packings by effective capacity. Keys do not cover the
	// workload set, so it must only be shared between runs over the same
	// workloads. When nil, each Plan call starts from an empty cache.
	Cache *solutioncache.Cache

	// Workers bounds concurrent evaluations. Defaults to runtime.NumCPU().
	Workers int

	// Budget applies to each optimizer invocation.
	Budget packing.Budget

	// AllowBestEffort lets packings that were not proven optimal win
	// selection. They are flagged Provisional either way.
	AllowBestEffort bool

	// RunTimeout bounds the whole run. Invocations still running when it
	// expires are cancelled and their node types treated as infeasible.
	RunTimeout time.Duration

	Metrics *Metrics
}

// New creates a planner with default settings.
func New(solver packing.Solver) *Planner {
	return &Planner{
		Solver:          solver,
		Workers:         runtime.NumCPU(),
		AllowBestEffort: true,
		Metrics:         NewMetrics(),
	}
}

// Plan evaluates nodeTypes against workloads and returns one result per
// feasible candidate, in catalog order, plus the cheapest selectable one.
//
// Invalid demands, a catalog where no node type can host the largest unit,
// and solver faults abort the run. When every candidate was evaluated but
// none is selectable, the result is returned together with an error wrapping
// model.ErrNoFeasibleConfiguration.
func (p *Planner) Plan(ctx context.Context, workloads model.WorkloadSet, nodeTypes []model.NodeType) (*model.PlanResult, error) {
	start := time.Now()

	if p.Solver == nil {
		return nil, fmt.Errorf("planner has no solver")
	}
	if err := workloads.Validate(); err != nil {
		return nil, err
	}

	largest := workloads.Largest()
	candidates, excluded, err := catalog.Feasible(nodeTypes, largest)
	for _, e := range excluded {
		klog.V(3).InfoS("Node type excluded", "nodeType", e.NodeType.ID, "reason", e.Reason)
	}
	if err != nil {
		return nil, err
	}
	klog.InfoS("Detected suitable node types", "suitable", len(candidates), "total", len(nodeTypes))

	// Run-scoped unless the caller supplied one.
	cache := p.Cache
	if cache == nil {
		cache = solutioncache.New()
	}
	computedBefore := cache.Stats().Computations

	runCtx := ctx
	if p.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.RunTimeout)
		defer cancel()
	}

	results := make([]model.EvaluationResult, len(candidates))

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(p.workers())
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			r, err := p.evaluate(gctx, cache, workloads, c)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("planning interrupted: %w", err)
	}

	result := &model.PlanResult{
		Results:           results,
		Excluded:          excluded,
		WorkloadCount:     len(workloads),
		TotalDemand:       workloads.Total(),
		LargestDemand:     largest,
		SolverInvocations: int(cache.Stats().Computations - computedBefore),
	}

	// Reduce after all evaluations so scheduling order cannot affect the
	// winner: lowest cost, then earliest in the catalog.
	for i := range results {
		r := results[i]
		p.Metrics.observeEvaluation(r)
		if !r.Selectable() {
			continue
		}
		if result.Best == nil || model.CheaperThan(r, *result.Best) {
			best := r
			result.Best = &best
		}
	}
	result.Duration = time.Since(start)

	if result.Best == nil {
		return result, fmt.Errorf("%w: %d node types evaluated", model.ErrNoFeasibleConfiguration, len(results))
	}

	klog.InfoS("Best configuration",
		"nodeType", result.Best.NodeType.ID,
		"nodes", result.Best.BinsUsed,
		"cost", result.Best.TotalCost,
		"provisional", result.Best.Provisional,
		"solverInvocations", result.SolverInvocations,
		"duration", result.Duration)
	return result, nil
}

func (p *Planner) workers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return runtime.NumCPU()
}

// evaluate produces the immutable result for one candidate.
func (p *Planner) evaluate(ctx context.Context, cache *solutioncache.Cache, units model.WorkloadSet, c catalog.Candidate) (model.EvaluationResult, error) {
	nt := c.NodeType
	capacity := nt.Capacity()

	klog.V(2).InfoS("Solving for", "nodeType", nt.ID, "cpu", capacity.CPUMillis, "memory", capacity.MemoryMB)

	pk, hit, err := cache.GetOrCompute(ctx, capacity, func(ctx context.Context) (*model.Packing, error) {
		pk, err := p.Solver.Solve(ctx, units, capacity, p.Budget)
		if err != nil {
			return nil, err
		}
		if err := packing.Verify(units, pk); err != nil {
			return nil, err
		}
		p.Metrics.observeSolve(pk)
		return pk, nil
	})
	if err != nil {
		return model.EvaluationResult{}, &model.EvaluationError{NodeType: nt, Capacity: capacity, Err: err}
	}
	p.Metrics.observeLookup(hit)
	if hit {
		klog.V(2).InfoS("Reusing solution for", "nodeType", nt.ID, "key", solutioncache.Key(capacity))
	}

	r := model.EvaluationResult{
		NodeType: nt,
		Index:    c.Index,
		Packing:  pk,
		CacheHit: hit,
	}

	if !pk.Feasible() {
		r.Excluded = true
		r.ExcludeReason = fmt.Sprintf("no packing: %s", pk.Status)
		klog.InfoS("No solution found for", "nodeType", nt.ID, "status", pk.Status)
		return r, nil
	}

	r.BinsUsed = pk.BinCount()
	r.TotalCost = float64(r.BinsUsed) * nt.UnitCost
	r.Provisional = pk.Status == model.StatusBestEffort
	if r.Provisional && !p.AllowBestEffort {
		r.Excluded = true
		r.ExcludeReason = "best-effort packing not accepted"
	}

	klog.V(1).InfoS("Solution for", "nodeType", nt.ID,
		"nodes", r.BinsUsed, "cost", r.TotalCost, "status", pk.Status)
	return r, nil
}
