package model

import (
	"fmt"
	"math"
)

// ResourceQuantity represents a CPU/memory quantity.
type ResourceQuantity struct {
	CPUMillis float64 `json:"cpu_millis"` // CPU in millicores (1000 = 1 vCPU)
	MemoryMB  float64 `json:"memory_mb"`  // Memory in megabytes (1 MB = 1e6 bytes)
}

// Add returns the sum of two ResourceQuantity values.
func (r ResourceQuantity) Add(other ResourceQuantity) ResourceQuantity {
	return ResourceQuantity{
		CPUMillis: r.CPUMillis + other.CPUMillis,
		MemoryMB:  r.MemoryMB + other.MemoryMB,
	}
}

// Sub returns the difference of two ResourceQuantity values.
func (r ResourceQuantity) Sub(other ResourceQuantity) ResourceQuantity {
	return ResourceQuantity{
		CPUMillis: r.CPUMillis - other.CPUMillis,
		MemoryMB:  r.MemoryMB - other.MemoryMB,
	}
}

// Max returns the component-wise maximum of two quantities.
func (r ResourceQuantity) Max(other ResourceQuantity) ResourceQuantity {
	return ResourceQuantity{
		CPUMillis: math.Max(r.CPUMillis, other.CPUMillis),
		MemoryMB:  math.Max(r.MemoryMB, other.MemoryMB),
	}
}

// FitsIn returns true if this quantity fits within the given capacity.
func (r ResourceQuantity) FitsIn(capacity ResourceQuantity) bool {
	return r.CPUMillis <= capacity.CPUMillis && r.MemoryMB <= capacity.MemoryMB
}

// IsZero returns true if both dimensions are zero.
func (r ResourceQuantity) IsZero() bool {
	return r.CPUMillis == 0 && r.MemoryMB == 0
}

// WorkloadUnit is a single schedulable pod with a fixed CPU and memory demand.
type WorkloadUnit struct {
	// Identity
	ID        string `json:"id"`
	Namespace string `json:"namespace,omitempty"`
	Name      string `json:"name,omitempty"`
	OwnerKind string `json:"owner_kind,omitempty"` // Deployment, StatefulSet, Job, ...
	OwnerName string `json:"owner_name,omitempty"`

	// Demand used for packing
	CPUMillis float64 `json:"cpu_millis"`
	MemoryMB  float64 `json:"memory_mb"`
}

// Demand returns the unit's demand as a ResourceQuantity.
func (w WorkloadUnit) Demand() ResourceQuantity {
	return ResourceQuantity{CPUMillis: w.CPUMillis, MemoryMB: w.MemoryMB}
}

// Label returns a human-readable identifier for the unit.
func (w WorkloadUnit) Label() string {
	switch {
	case w.Namespace != "" && w.Name != "":
		return w.Namespace + "/" + w.Name
	case w.Name != "":
		return w.Name
	default:
		return w.ID
	}
}

// WorkloadSet is the ordered, fixed set of units packed in one planning run.
type WorkloadSet []WorkloadUnit

// Validate rejects sets containing a unit with a non-positive or non-finite demand.
// Units are never dropped here: packing semantics depend on the complete set.
func (ws WorkloadSet) Validate() error {
	if len(ws) == 0 {
		return fmt.Errorf("%w: workload set is empty", ErrInvalidDemand)
	}
	seen := make(map[string]struct{}, len(ws))
	for i := range ws {
		w := &ws[i]
		if !(w.CPUMillis > 0) || !(w.MemoryMB > 0) ||
			math.IsInf(w.CPUMillis, 0) || math.IsInf(w.MemoryMB, 0) {
			return fmt.Errorf("%w: unit %q (index %d) has cpu=%g mem=%g",
				ErrInvalidDemand, w.ID, i, w.CPUMillis, w.MemoryMB)
		}
		if _, dup := seen[w.ID]; dup {
			return fmt.Errorf("%w: duplicate unit id %q", ErrInvalidDemand, w.ID)
		}
		seen[w.ID] = struct{}{}
	}
	return nil
}

// Largest returns the component-wise maximum demand over all units.
func (ws WorkloadSet) Largest() ResourceQuantity {
	var largest ResourceQuantity
	for i := range ws {
		largest = largest.Max(ws[i].Demand())
	}
	return largest
}

// Total returns the summed demand over all units.
func (ws WorkloadSet) Total() ResourceQuantity {
	var total ResourceQuantity
	for i := range ws {
		total = total.Add(ws[i].Demand())
	}
	return total
}
