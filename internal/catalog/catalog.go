// Package catalog turns raw instance catalogs into the effective node types
// offered to the planner.
package catalog

import (
	"fmt"
	"math"
	"strings"

	"github.com/guimove/fleetfit/internal/model"
)

// RawNodeType is a catalog entry before per-node overhead is subtracted.
type RawNodeType struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	CPUMillis float64            `json:"cpu_millis"`
	MemoryMB  float64            `json:"memory_mb"`
	UnitCost  float64            `json:"unit_cost"` // hourly
	Family    string             `json:"family,omitempty"`
	Arch      model.Architecture `json:"arch,omitempty"`
}

// VCPUs returns the whole vCPU count.
func (r RawNodeType) VCPUs() int {
	return int(r.CPUMillis / 1000)
}

// Filter constrains which raw node types are considered. Zero values match
// everything.
type Filter struct {
	Families      []string
	Architectures []model.Architecture
	MinVCPUs      int
	MaxVCPUs      int
	// Unpriced entries carry no usable cost and are dropped unless set.
	IncludeUnpriced bool
}

// Apply returns the entries that pass the filter, preserving order.
func (f Filter) Apply(raw []RawNodeType) []RawNodeType {
	families := make(map[string]bool, len(f.Families))
	for _, fam := range f.Families {
		families[strings.ToLower(fam)] = true
	}
	archs := make(map[model.Architecture]bool, len(f.Architectures))
	for _, a := range f.Architectures {
		archs[a] = true
	}

	var out []RawNodeType
	for _, r := range raw {
		if len(families) > 0 && !families[strings.ToLower(r.Family)] {
			continue
		}
		if len(archs) > 0 && r.Arch != "" && !archs[r.Arch] {
			continue
		}
		if f.MinVCPUs > 0 && r.VCPUs() < f.MinVCPUs {
			continue
		}
		if f.MaxVCPUs > 0 && r.VCPUs() > f.MaxVCPUs {
			continue
		}
		if !f.IncludeUnpriced && r.UnitCost <= 0 {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Build converts raw entries into node types with effective capacity,
// subtracting the fixed per-node overhead exactly once. Entries whose
// capacity drops to zero or below are kept; the feasibility pre-filter
// rejects them with a reason.
func Build(raw []RawNodeType, overhead model.ResourceQuantity) []model.NodeType {
	out := make([]model.NodeType, len(raw))
	for i, r := range raw {
		out[i] = model.NodeType{
			ID:          r.ID,
			Name:        r.Name,
			CPUCapacity: r.CPUMillis - overhead.CPUMillis,
			MemCapacity: r.MemoryMB - overhead.MemoryMB,
			UnitCost:    r.UnitCost,
		}
	}
	return out
}

// Candidate is a node type that passed the pre-filter, with its position in
// the original catalog.
type Candidate struct {
	NodeType model.NodeType
	Index    int
}

// Feasible partitions node types into those that can host the single largest
// workload unit and those that cannot. Catalog order is preserved. When no
// node type qualifies it returns model.ErrNoFeasibleNodeType together with the
// exclusions.
func Feasible(nodeTypes []model.NodeType, largest model.ResourceQuantity) ([]Candidate, []model.ExcludedNodeType, error) {
	var candidates []Candidate
	var excluded []model.ExcludedNodeType

	for i, nt := range nodeTypes {
		if reason := rejectReason(nt, largest); reason != "" {
			excluded = append(excluded, model.ExcludedNodeType{NodeType: nt, Reason: reason})
			continue
		}
		candidates = append(candidates, Candidate{NodeType: nt, Index: i})
	}

	if len(candidates) == 0 {
		return nil, excluded, fmt.Errorf("%w: largest unit needs cpu=%gm mem=%gMB, %d node types rejected",
			model.ErrNoFeasibleNodeType, largest.CPUMillis, largest.MemoryMB, len(excluded))
	}
	return candidates, excluded, nil
}

func rejectReason(nt model.NodeType, largest model.ResourceQuantity) string {
	switch {
	case !finite(nt.CPUCapacity) || !finite(nt.MemCapacity):
		return fmt.Sprintf("non-finite capacity cpu=%g mem=%g", nt.CPUCapacity, nt.MemCapacity)
	case !finite(nt.UnitCost):
		return fmt.Sprintf("non-finite unit cost %g", nt.UnitCost)
	case nt.UnitCost < 0:
		return fmt.Sprintf("negative unit cost %g", nt.UnitCost)
	case nt.CPUCapacity <= 0 || nt.MemCapacity <= 0:
		return "no capacity left after overhead"
	case nt.CPUCapacity < largest.CPUMillis:
		return fmt.Sprintf("cpu capacity %gm below largest unit %gm", nt.CPUCapacity, largest.CPUMillis)
	case nt.MemCapacity < largest.MemoryMB:
		return fmt.Sprintf("memory capacity %gMB below largest unit %gMB", nt.MemCapacity, largest.MemoryMB)
	}
	return ""
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
