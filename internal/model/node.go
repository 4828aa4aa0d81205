package model

// Architecture represents the CPU architecture.
type Architecture string

const (
	ArchAMD64 Architecture = "amd64"
	ArchARM64 Architecture = "arm64"
)

// NodeType is a candidate machine class offered to the optimizer.
//
// CPUCapacity and MemCapacity are effective capacities: raw catalog capacity
// minus the fixed per-node overhead reserved for system daemons.
type NodeType struct {
	ID          string  `json:"id"`   // e.g. "m5.xlarge"
	Name        string  `json:"name"` // display name, e.g. "M5 General Purpose Extra Large"
	CPUCapacity float64 `json:"cpu_capacity"`
	MemCapacity float64 `json:"mem_capacity"`
	UnitCost    float64 `json:"unit_cost"` // per node, per billing period
}

// Capacity returns the effective capacity pair used as the optimizer input
// and the solution cache key.
func (n NodeType) Capacity() ResourceQuantity {
	return ResourceQuantity{CPUMillis: n.CPUCapacity, MemoryMB: n.MemCapacity}
}

// DisplayName returns the display name, falling back to the ID.
func (n NodeType) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

// CanHost reports whether a single unit with the given demand fits on an
// empty node of this type.
func (n NodeType) CanHost(demand ResourceQuantity) bool {
	return demand.FitsIn(n.Capacity())
}

// HoursPerMonth is the standard number of hours used for monthly cost estimates.
const HoursPerMonth = 730.0
