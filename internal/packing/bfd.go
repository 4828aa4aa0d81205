package packing

import (
	"context"
	"math"
	"time"

	"github.com/guimove/fleetfit/internal/model"
)

// BestFitDecreasing is a multi-dimensional best-fit-decreasing heuristic.
// It never proves optimality on its own; its packings are best-effort unless
// they meet the lower bound.
type BestFitDecreasing struct{}

// Name returns the strategy name.
func (b *BestFitDecreasing) Name() string { return "best-fit-decreasing" }

// Solve packs units with BFD. The budget is not consulted: the heuristic
// runs in O(n·bins) and only checks ctx between units.
func (b *BestFitDecreasing) Solve(ctx context.Context, units model.WorkloadSet, capacity model.ResourceQuantity, _ Budget) (*model.Packing, error) {
	start := time.Now()

	p, err := newProblem(units, capacity)
	if err != nil {
		return nil, err
	}
	if p.oversized() >= 0 {
		packing := p.infeasible(model.StatusInfeasible)
		packing.Solver = b.Name()
		return packing, nil
	}

	assign, bins, ok := bestFit(ctx, p)
	if !ok {
		packing := p.infeasible(model.StatusCancelled)
		packing.Solver = b.Name()
		return packing, nil
	}

	lb := lowerBound(p)
	status := model.StatusBestEffort
	if bins <= lb {
		status = model.StatusOptimal
	}

	packing := p.packingFrom(assign, bins, status)
	packing.LowerBound = lb
	packing.Solver = b.Name()
	packing.SolveDuration = time.Since(start)
	return packing, nil
}

// binState tracks the raw usage of a bin during packing.
type binState struct {
	usedCPU float64
	usedMem float64
}

func (n *binState) place(p *problem, k int) {
	n.usedCPU += p.rawCPU[k]
	n.usedMem += p.rawMem[k]
}

// compositeRemaining returns a scalar measuring how tightly packed a bin would
// be after placing unit k. Lower = tighter fit = preferred.
func compositeRemaining(p *problem, n *binState, k int) float64 {
	cpuAfter := (p.capacity.CPUMillis - n.usedCPU - p.rawCPU[k]) / p.capacity.CPUMillis
	memAfter := (p.capacity.MemoryMB - n.usedMem - p.rawMem[k]) / p.capacity.MemoryMB
	// Euclidean distance from origin: penalizes imbalance
	return math.Sqrt(cpuAfter*cpuAfter + memAfter*memAfter)
}

// bestFit places units (already in decreasing dominance order) into the bin
// that leaves the least composite remaining capacity, opening a new bin when
// none fits. Returns false if ctx was cancelled.
func bestFit(ctx context.Context, p *problem) ([]int, int, bool) {
	assign := make([]int, len(p.order))
	var bins []binState

	for k := range p.order {
		if k%256 == 0 && ctx.Err() != nil {
			return nil, 0, false
		}

		bestIdx := -1
		bestScore := math.MaxFloat64

		for j := range bins {
			if !p.fits(bins[j].usedCPU, bins[j].usedMem, k) {
				continue
			}
			score := compositeRemaining(p, &bins[j], k)
			if score < bestScore {
				bestScore = score
				bestIdx = j
			}
		}

		if bestIdx < 0 {
			// No existing bin fits: open a new one
			bins = append(bins, binState{})
			bestIdx = len(bins) - 1
		}

		bins[bestIdx].place(p, k)
		assign[k] = bestIdx
	}

	return assign, len(bins), true
}

// firstFit places each unit into the lowest-indexed bin that can hold it.
func firstFit(ctx context.Context, p *problem) ([]int, int, bool) {
	assign := make([]int, len(p.order))
	var bins []binState

	for k := range p.order {
		if k%256 == 0 && ctx.Err() != nil {
			return nil, 0, false
		}

		idx := -1
		for j := range bins {
			if p.fits(bins[j].usedCPU, bins[j].usedMem, k) {
				idx = j
				break
			}
		}
		if idx < 0 {
			bins = append(bins, binState{})
			idx = len(bins) - 1
		}

		bins[idx].place(p, k)
		assign[k] = idx
	}

	return assign, len(bins), true
}
