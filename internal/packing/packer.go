package packing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/guimove/fleetfit/internal/model"
)

// ErrInvalidCapacity is returned when the capacity pair is not a finite number.
var ErrInvalidCapacity = errors.New("invalid capacity")

// Solver packs a fixed workload set onto the fewest bins of a single capacity.
type Solver interface {
	// Solve returns a packing for units under capacity within the budget.
	// Infeasibility, budget exhaustion and cancellation are reported through
	// Packing.Status; an error means the problem could not be attempted.
	Solve(ctx context.Context, units model.WorkloadSet, capacity model.ResourceQuantity, budget Budget) (*model.Packing, error)

	// Name returns the solver name.
	Name() string
}

// Budget bounds a single solver invocation. Zero values mean unlimited.
type Budget struct {
	TimeLimit time.Duration
	NodeLimit int64
}

// epsilon absorbs floating-point drift when rounding normalized sums in the
// lower bounds. Fit decisions never use it.
const epsilon = 1e-9

// problem is a workload set normalized against one capacity and sorted
// so the most demanding units come first.
type problem struct {
	capacity model.ResourceQuantity
	units    model.WorkloadSet

	// Indexed by position in the sorted order.
	order  []int     // original index of each sorted unit
	cpu    []float64 // cpu demand as a fraction of capacity
	mem    []float64 // memory demand as a fraction of capacity
	rawCPU []float64 // cpu demand in millis
	rawMem []float64 // memory demand in MB
}

func newProblem(units model.WorkloadSet, capacity model.ResourceQuantity) (*problem, error) {
	if math.IsNaN(capacity.CPUMillis) || math.IsNaN(capacity.MemoryMB) ||
		math.IsInf(capacity.CPUMillis, 0) || math.IsInf(capacity.MemoryMB, 0) {
		return nil, fmt.Errorf("%w: cpu=%g mem=%g", ErrInvalidCapacity, capacity.CPUMillis, capacity.MemoryMB)
	}

	n := len(units)
	p := &problem{
		capacity: capacity,
		units:    units,
		order:    make([]int, n),
		cpu:      make([]float64, n),
		mem:      make([]float64, n),
		rawCPU:   make([]float64, n),
		rawMem:   make([]float64, n),
	}
	for i := range p.order {
		p.order[i] = i
	}

	cpuFrac := func(i int) float64 { return fraction(units[i].CPUMillis, capacity.CPUMillis) }
	memFrac := func(i int) float64 { return fraction(units[i].MemoryMB, capacity.MemoryMB) }

	// Sort by dominance (largest first), then by combined size.
	sort.SliceStable(p.order, func(a, b int) bool {
		ia, ib := p.order[a], p.order[b]
		da := math.Max(cpuFrac(ia), memFrac(ia))
		db := math.Max(cpuFrac(ib), memFrac(ib))
		if da != db {
			return da > db
		}
		return cpuFrac(ia)+memFrac(ia) > cpuFrac(ib)+memFrac(ib)
	})

	for k, i := range p.order {
		p.cpu[k] = cpuFrac(i)
		p.mem[k] = memFrac(i)
		p.rawCPU[k] = units[i].CPUMillis
		p.rawMem[k] = units[i].MemoryMB
	}
	return p, nil
}

// fraction returns demand/capacity, treating a non-positive capacity as
// unable to hold any positive demand.
func fraction(demand, capacity float64) float64 {
	if capacity <= 0 {
		return math.Inf(1)
	}
	return demand / capacity
}

// fits reports whether sorted unit k can join a bin already holding the
// given raw usage. The comparison is exact: a bin is never filled past its
// capacity, not even by rounding.
func (p *problem) fits(usedCPU, usedMem float64, k int) bool {
	return usedCPU+p.rawCPU[k] <= p.capacity.CPUMillis &&
		usedMem+p.rawMem[k] <= p.capacity.MemoryMB
}

// fitsEmpty reports whether sorted unit k fits on an empty bin.
func (p *problem) fitsEmpty(k int) bool {
	return p.fits(0, 0, k)
}

// oversized returns the first unit that cannot fit on an empty bin, or -1.
func (p *problem) oversized() int {
	for k := range p.order {
		if !p.fitsEmpty(k) {
			return k
		}
	}
	return -1
}

// identical reports whether sorted units k and k-1 have the same demand.
func (p *problem) identical(k int) bool {
	return k > 0 && p.rawCPU[k] == p.rawCPU[k-1] && p.rawMem[k] == p.rawMem[k-1]
}

// packingFrom converts a per-sorted-unit bin assignment into a Packing.
// Bins are numbered 0..bins-1. Units within a bin are listed in placement
// order, so summing them in that order reproduces the sums the fit checks saw.
func (p *problem) packingFrom(assign []int, bins int, status model.PackingStatus) *model.Packing {
	byBin := make([][]int, bins)
	for k, b := range assign {
		byBin[b] = append(byBin[b], k)
	}

	packing := &model.Packing{
		Capacity: p.capacity,
		Status:   status,
		Bins:     make([]model.Bin, 0, bins),
	}
	for _, members := range byBin {
		if len(members) == 0 {
			continue
		}
		var bin model.Bin
		for _, k := range members {
			u := &p.units[p.order[k]]
			bin.Units = append(bin.Units, u.ID)
			bin.UsedCPU += u.CPUMillis
			bin.UsedMem += u.MemoryMB
		}
		if p.capacity.CPUMillis > 0 {
			bin.CPUUtilization = bin.UsedCPU / p.capacity.CPUMillis
		}
		if p.capacity.MemoryMB > 0 {
			bin.MemUtilization = bin.UsedMem / p.capacity.MemoryMB
		}
		packing.Bins = append(packing.Bins, bin)
	}
	return packing
}

// infeasible builds an empty packing with the given status.
func (p *problem) infeasible(status model.PackingStatus) *model.Packing {
	return &model.Packing{Capacity: p.capacity, Status: status, Bins: []model.Bin{}}
}
