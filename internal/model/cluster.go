package model

import (
	"sort"
	"time"
)

// Snapshot is a point-in-time view of the workloads to plan for,
// serving as input to the planner.
type Snapshot struct {
	// When the snapshot was taken
	CollectedAt time.Time `json:"collected_at"`

	// All workload units to pack (DaemonSet pods excluded)
	Workloads WorkloadSet `json:"workloads"`

	// Per-node overhead consumed by DaemonSets (runs on every node)
	DaemonSetOverhead ResourceQuantity `json:"daemon_set_overhead"`
	DaemonSetCount    int              `json:"daemon_set_count"`

	// Where the snapshot came from
	Source      string `json:"source"`
	ClusterName string `json:"cluster_name,omitempty"`
	Region      string `json:"region,omitempty"`
}

// WorkloadCount returns the number of workload units.
func (s Snapshot) WorkloadCount() int {
	return len(s.Workloads)
}

// CheaperThan orders evaluation results by total cost, then catalog index.
// It is the single tie-break rule used for selection and ranking.
func CheaperThan(a, b EvaluationResult) bool {
	if a.TotalCost != b.TotalCost {
		return a.TotalCost < b.TotalCost
	}
	return a.Index < b.Index
}

func sortByCost(results []EvaluationResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return CheaperThan(results[i], results[j])
	})
}
