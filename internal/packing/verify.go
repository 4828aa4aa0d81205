package packing

import (
	"errors"
	"fmt"

	"github.com/guimove/fleetfit/internal/model"
)

// ErrInvalidPacking is returned by Verify when a packing breaks an invariant.
var ErrInvalidPacking = errors.New("invalid packing")

// Verify checks that a feasible packing places every unit exactly once,
// has no empty bins, and respects capacity in both dimensions. Capacity is
// compared exactly, summing each bin in the order its units are listed.
// Infeasible and cancelled packings must carry no bins.
func Verify(units model.WorkloadSet, p *model.Packing) error {
	if p == nil {
		return fmt.Errorf("%w: nil packing", ErrInvalidPacking)
	}
	if !p.Feasible() {
		if len(p.Bins) != 0 {
			return fmt.Errorf("%w: %s packing has %d bins", ErrInvalidPacking, p.Status, len(p.Bins))
		}
		return nil
	}

	byID := make(map[string]*model.WorkloadUnit, len(units))
	for i := range units {
		byID[units[i].ID] = &units[i]
	}

	placed := make(map[string]int, len(units))
	for j, b := range p.Bins {
		if len(b.Units) == 0 {
			return fmt.Errorf("%w: bin %d is empty", ErrInvalidPacking, j)
		}
		var cpu, mem float64
		for _, id := range b.Units {
			u, ok := byID[id]
			if !ok {
				return fmt.Errorf("%w: bin %d holds unknown unit %q", ErrInvalidPacking, j, id)
			}
			if prev, dup := placed[id]; dup {
				return fmt.Errorf("%w: unit %q placed in bins %d and %d", ErrInvalidPacking, id, prev, j)
			}
			placed[id] = j
			cpu += u.CPUMillis
			mem += u.MemoryMB
		}
		if cpu > p.Capacity.CPUMillis || mem > p.Capacity.MemoryMB {
			return fmt.Errorf("%w: bin %d uses cpu=%g mem=%g over capacity cpu=%g mem=%g",
				ErrInvalidPacking, j, cpu, mem, p.Capacity.CPUMillis, p.Capacity.MemoryMB)
		}
	}

	if len(placed) != len(units) {
		return fmt.Errorf("%w: %d of %d units placed", ErrInvalidPacking, len(placed), len(units))
	}
	return nil
}
