package packing

import (
	"context"
	"math"
	"time"

	"github.com/guimove/fleetfit/internal/model"
)

const defaultCheckInterval = 1024

// BranchAndBound solves the vector bin-packing problem exactly by depth-first
// search over unit-to-bin assignments.
//
// The search starts from the better of the best-fit and first-fit decreasing
// packings and only explores assignments that could beat it. It stops as soon
// as the incumbent meets the lower bound. When the budget runs out first, the
// incumbent is returned as a best-effort packing.
type BranchAndBound struct {
	// CheckInterval is the number of search nodes explored between budget
	// and cancellation checks. Defaults to 1024.
	CheckInterval int64
}

// Name returns the strategy name.
func (s *BranchAndBound) Name() string { return "branch-and-bound" }

// Solve returns a minimum-bin packing or the best packing found within budget.
func (s *BranchAndBound) Solve(ctx context.Context, units model.WorkloadSet, capacity model.ResourceQuantity, budget Budget) (*model.Packing, error) {
	start := time.Now()

	p, err := newProblem(units, capacity)
	if err != nil {
		return nil, err
	}

	finish := func(packing *model.Packing, nodes int64) *model.Packing {
		packing.Solver = s.Name()
		packing.ExploredNodes = nodes
		packing.SolveDuration = time.Since(start)
		return packing
	}

	if p.oversized() >= 0 {
		return finish(p.infeasible(model.StatusInfeasible), 0), nil
	}

	lb := lowerBound(p)

	// Incumbent from the greedy heuristics
	assign, bins, ok := bestFit(ctx, p)
	if !ok {
		return finish(p.infeasible(model.StatusCancelled), 0), nil
	}
	ffAssign, ffBins, ok := firstFit(ctx, p)
	if !ok {
		return finish(p.infeasible(model.StatusCancelled), 0), nil
	}
	if ffBins < bins {
		assign, bins = ffAssign, ffBins
	}

	if bins <= lb {
		packing := p.packingFrom(assign, bins, model.StatusOptimal)
		packing.LowerBound = bins
		return finish(packing, 0), nil
	}

	srch := newSearch(ctx, p, budget, s.interval())
	srch.best = bins
	copy(srch.bestAssign, assign)
	srch.lb = lb

	var status model.PackingStatus
	switch srch.run() {
	case outcomeComplete:
		status = model.StatusOptimal
		lb = srch.best
	case outcomeBudget:
		status = model.StatusBestEffort
	default:
		return finish(p.infeasible(model.StatusCancelled), srch.nodes), nil
	}

	packing := p.packingFrom(srch.bestAssign, srch.best, status)
	packing.LowerBound = lb
	return finish(packing, srch.nodes), nil
}

func (s *BranchAndBound) interval() int64 {
	if s.CheckInterval > 0 {
		return s.CheckInterval
	}
	return defaultCheckInterval
}

type outcome int

const (
	outcomeRunning outcome = iota
	outcomeComplete
	outcomeBudget
	outcomeCancelled
)

// search holds the mutable state of one depth-first exploration.
type search struct {
	p   *problem
	ctx context.Context

	deadline  time.Time
	nodeLimit int64
	interval  int64

	// Normalized demand of units k..n-1 and the smallest raw single demand
	// among them, indexed by k (length n+1).
	suffixCPU, suffixMem []float64
	minCPU, minMem       []float64

	// Raw usage of open bins.
	usedCPU, usedMem []float64
	open             int

	assign     []int
	best       int
	bestAssign []int
	lb         int

	nodes int64
	stop  outcome
}

func newSearch(ctx context.Context, p *problem, budget Budget, interval int64) *search {
	n := len(p.order)
	s := &search{
		p:          p,
		ctx:        ctx,
		nodeLimit:  budget.NodeLimit,
		interval:   interval,
		suffixCPU:  make([]float64, n+1),
		suffixMem:  make([]float64, n+1),
		minCPU:     make([]float64, n+1),
		minMem:     make([]float64, n+1),
		usedCPU:    make([]float64, n),
		usedMem:    make([]float64, n),
		assign:     make([]int, n),
		bestAssign: make([]int, n),
	}
	if budget.TimeLimit > 0 {
		s.deadline = time.Now().Add(budget.TimeLimit)
	}
	s.minCPU[n], s.minMem[n] = math.Inf(1), math.Inf(1)
	for k := n - 1; k >= 0; k-- {
		s.suffixCPU[k] = s.suffixCPU[k+1] + p.cpu[k]
		s.suffixMem[k] = s.suffixMem[k+1] + p.mem[k]
		s.minCPU[k] = math.Min(s.minCPU[k+1], p.rawCPU[k])
		s.minMem[k] = math.Min(s.minMem[k+1], p.rawMem[k])
	}
	return s
}

// run explores the search tree and reports why it stopped.
func (s *search) run() outcome {
	s.checkLimits()
	if s.stop != outcomeRunning {
		return s.stop
	}
	s.dfs(0)
	if s.stop == outcomeRunning {
		// Tree exhausted: the incumbent is optimal.
		return outcomeComplete
	}
	return s.stop
}

func (s *search) checkLimits() {
	if s.ctx.Err() != nil {
		s.stop = outcomeCancelled
		return
	}
	if !s.deadline.IsZero() && time.Now().After(s.deadline) {
		s.stop = outcomeBudget
	}
}

func (s *search) dfs(k int) {
	s.nodes++
	if s.nodes%s.interval == 0 {
		s.checkLimits()
		if s.stop != outcomeRunning {
			return
		}
	}
	if s.nodeLimit > 0 && s.nodes >= s.nodeLimit {
		s.stop = outcomeBudget
		return
	}

	if k == len(s.p.order) {
		if s.open < s.best {
			s.best = s.open
			copy(s.bestAssign, s.assign)
			if s.best <= s.lb {
				s.stop = outcomeComplete
			}
		}
		return
	}

	if s.bound(k) >= s.best {
		return
	}

	// Identical units are placed in non-decreasing bin order.
	minBin := 0
	if s.p.identical(k) {
		minBin = s.assign[k-1]
	}

	for j := minBin; j < s.open; j++ {
		if !s.p.fits(s.usedCPU[j], s.usedMem[j], k) {
			continue
		}
		if s.sameUsageBefore(j, minBin) {
			continue
		}

		// Restored by assignment so backtracking leaves no rounding behind.
		prevCPU, prevMem := s.usedCPU[j], s.usedMem[j]
		s.usedCPU[j] += s.p.rawCPU[k]
		s.usedMem[j] += s.p.rawMem[k]
		s.assign[k] = j

		s.dfs(k + 1)

		s.usedCPU[j], s.usedMem[j] = prevCPU, prevMem

		if s.stop != outcomeRunning {
			return
		}
	}

	if s.open+1 >= s.best {
		return
	}

	j := s.open
	s.usedCPU[j] = s.p.rawCPU[k]
	s.usedMem[j] = s.p.rawMem[k]
	s.open++
	s.assign[k] = j

	s.dfs(k + 1)

	s.open--
}

// bound returns a lower bound on the bins needed to complete the current
// partial assignment from unit k on. Demand that cannot go into open bins
// needs new ones; a bin too small for every remaining unit contributes no
// usable residual.
func (s *search) bound(k int) int {
	capCPU, capMem := s.p.capacity.CPUMillis, s.p.capacity.MemoryMB
	var usableCPU, usableMem float64
	for j := 0; j < s.open; j++ {
		if s.usedCPU[j]+s.minCPU[k] > capCPU || s.usedMem[j]+s.minMem[k] > capMem {
			continue
		}
		usableCPU += (capCPU - s.usedCPU[j]) / capCPU
		usableMem += (capMem - s.usedMem[j]) / capMem
	}
	return s.open + maxInt(
		ceilTol(s.suffixCPU[k]-usableCPU),
		ceilTol(s.suffixMem[k]-usableMem),
	)
}

// sameUsageBefore reports whether a bin in [from, j) has exactly the same
// usage as bin j. Such bins are interchangeable for the remaining units, so
// only the first one needs exploring.
func (s *search) sameUsageBefore(j, from int) bool {
	for i := from; i < j; i++ {
		if s.usedCPU[i] == s.usedCPU[j] && s.usedMem[i] == s.usedMem[j] {
			return true
		}
	}
	return false
}
