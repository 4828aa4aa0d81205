package model

import "time"

// PackingStatus describes how much the optimizer can vouch for a packing.
type PackingStatus string

const (
	// StatusOptimal means the bin count is proven minimal.
	StatusOptimal PackingStatus = "optimal"
	// StatusBestEffort means the budget ran out before optimality was proven;
	// the packing is feasible but possibly uses more bins than necessary.
	StatusBestEffort PackingStatus = "best-effort"
	// StatusInfeasible means no assignment exists under the capacity.
	StatusInfeasible PackingStatus = "infeasible"
	// StatusCancelled means the computation was stopped before a packing was
	// reported. Treated as infeasible within budget.
	StatusCancelled PackingStatus = "cancelled"
)

// Bin is one node instance within a packing.
type Bin struct {
	Units   []string `json:"units"` // WorkloadUnit IDs
	UsedCPU float64  `json:"used_cpu_millis"`
	UsedMem float64  `json:"used_memory_mb"`

	// Derived metrics
	CPUUtilization float64 `json:"cpu_utilization"` // 0.0 - 1.0
	MemUtilization float64 `json:"mem_utilization"` // 0.0 - 1.0
}

// Packing is the read-only result of one optimizer invocation.
type Packing struct {
	Capacity ResourceQuantity `json:"capacity"`
	Bins     []Bin            `json:"bins"`
	Status   PackingStatus    `json:"status"`

	// LowerBound is the best proven lower bound on the bin count.
	LowerBound int `json:"lower_bound"`

	// Search statistics
	ExploredNodes int64         `json:"explored_nodes"`
	SolveDuration time.Duration `json:"solve_duration"`
	Solver        string        `json:"solver"`
}

// Feasible reports whether the packing places every unit.
func (p *Packing) Feasible() bool {
	return p != nil && (p.Status == StatusOptimal || p.Status == StatusBestEffort) && len(p.Bins) > 0
}

// BinCount returns the number of used bins.
func (p *Packing) BinCount() int {
	if p == nil {
		return 0
	}
	return len(p.Bins)
}

// EvaluationResult is the outcome of evaluating one candidate node type.
type EvaluationResult struct {
	NodeType  NodeType `json:"node_type"`
	Index     int      `json:"catalog_index"`
	BinsUsed  int      `json:"bins_used"`
	TotalCost float64  `json:"total_cost"`
	Packing   *Packing `json:"packing,omitempty"`

	// CacheHit is true when the packing was reused from another node type
	// with the same effective capacity.
	CacheHit bool `json:"cache_hit"`

	// Provisional is true when the packing is best-effort (not proven optimal).
	Provisional bool `json:"provisional"`

	// Excluded results never take part in minimum-cost selection.
	Excluded      bool   `json:"excluded"`
	ExcludeReason string `json:"exclude_reason,omitempty"`
}

// Selectable reports whether the result may win minimum-cost selection.
func (r EvaluationResult) Selectable() bool {
	return !r.Excluded && r.BinsUsed > 0
}

// ExcludedNodeType is a catalog entry removed by the feasibility pre-filter.
type ExcludedNodeType struct {
	NodeType NodeType `json:"node_type"`
	Reason   string   `json:"reason"`
}

// PlanResult is the complete output of a planning run.
type PlanResult struct {
	// One result per evaluated node type, in catalog order.
	Results []EvaluationResult `json:"results"`

	// Best is the minimum-cost selectable result; nil when none exists.
	Best *EvaluationResult `json:"best,omitempty"`

	// Node types rejected before optimization.
	Excluded []ExcludedNodeType `json:"excluded,omitempty"`

	WorkloadCount int              `json:"workload_count"`
	TotalDemand   ResourceQuantity `json:"total_demand"`
	LargestDemand ResourceQuantity `json:"largest_demand"`

	// Optimizer invocations actually performed (cache misses).
	SolverInvocations int           `json:"solver_invocations"`
	Duration          time.Duration `json:"duration"`
}

// Ranked returns the selectable results ordered by total cost, with ties
// resolved by catalog order.
func (pr *PlanResult) Ranked() []EvaluationResult {
	var ranked []EvaluationResult
	for _, r := range pr.Results {
		if r.Selectable() {
			ranked = append(ranked, r)
		}
	}
	sortByCost(ranked)
	return ranked
}

// ProvisionalCount returns how many evaluated results are best-effort.
func (pr *PlanResult) ProvisionalCount() int {
	n := 0
	for _, r := range pr.Results {
		if r.Provisional {
			n++
		}
	}
	return n
}
