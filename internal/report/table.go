package report

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/guimove/fleetfit/internal/model"
)

// TableReporter outputs the plan as a formatted terminal table.
type TableReporter struct {
	w io.Writer
}

func (r *TableReporter) Report(ctx context.Context, result *model.PlanResult, meta Meta) error {
	// Header
	fmt.Fprintf(r.w, "\n")
	fmt.Fprintf(r.w, "fleetfit plan\n")
	fmt.Fprintf(r.w, "%s\n", strings.Repeat("=", 60))
	if meta.ClusterName != "" {
		fmt.Fprintf(r.w, "Cluster:     %s\n", meta.ClusterName)
	}
	if meta.Region != "" {
		fmt.Fprintf(r.w, "Region:      %s\n", meta.Region)
	}
	fmt.Fprintf(r.w, "Workloads:   %d pods from %s (+ %d DaemonSets)\n", result.WorkloadCount, meta.Source, meta.DaemonSetCount)
	if meta.Percentile > 0 {
		fmt.Fprintf(r.w, "Sizing:      max(request, p%g usage)\n", meta.Percentile*100)
	}
	fmt.Fprintf(r.w, "Demand:      %s total, %s largest\n", formatQuantity(result.TotalDemand), formatQuantity(result.LargestDemand))
	fmt.Fprintf(r.w, "Overhead:    %s per node\n", formatQuantity(meta.Overhead))
	fmt.Fprintf(r.w, "Catalog:     %s, %d evaluated, %d rejected before solving\n", meta.CatalogName, len(result.Results), len(result.Excluded))
	fmt.Fprintf(r.w, "Solver:      %s, %d invocations in %s\n", meta.Solver, result.SolverInvocations, result.Duration.Round(time.Millisecond))
	fmt.Fprintf(r.w, "%s\n\n", strings.Repeat("=", 60))

	rows := rankedRows(result, meta.TopN)
	if len(rows) == 0 {
		fmt.Fprintf(r.w, "No feasible configuration.\n")
		writeExcluded(r.w, result, "  - ")
		return nil
	}

	// Column headers
	fmt.Fprintf(r.w, "%-4s %-16s %9s %10s %6s %9s %9s %6s %6s %s\n",
		"Rank", "Node type", "CPU (m)", "Mem (MB)", "Nodes", "$/hour", "$/month", "CPU%", "Mem%", "Notes")
	fmt.Fprintf(r.w, "%s\n", strings.Repeat("-", 100))

	for _, row := range rows {
		fmt.Fprintf(r.w, "#%-3d %-16s %9.0f %10.0f %6d %9.3f %9.0f %5.1f%% %5.1f%% %s\n",
			row.Rank,
			truncate(row.NodeType, 16),
			row.CPU,
			row.Memory,
			row.Nodes,
			row.HourlyCost,
			row.MonthlyCost,
			row.CPUUtil*100,
			row.MemUtil*100,
			row.Notes,
		)
	}

	fmt.Fprintf(r.w, "%s\n", strings.Repeat("-", 100))

	best := result.Best
	fmt.Fprintf(r.w, "\nBest configuration: %d x %s\n", best.BinsUsed, best.NodeType.DisplayName())
	fmt.Fprintf(r.w, "  Hourly cost:    $%.3f\n", best.TotalCost)
	fmt.Fprintf(r.w, "  Monthly cost:   $%.0f\n", best.TotalCost*model.HoursPerMonth)
	fmt.Fprintf(r.w, "  Status:         %s\n", best.Packing.Status)
	if best.Provisional {
		fmt.Fprintf(r.w, "\n  Warning: the search budget ran out before this packing was proven minimal;\n")
		fmt.Fprintf(r.w, "  at least %d nodes are needed.\n", best.Packing.LowerBound)
	}

	if len(result.Excluded) > 0 || len(excludedRows(result)) > 0 {
		fmt.Fprintf(r.w, "\nNot selectable:\n")
		writeExcluded(r.w, result, "  - ")
	}

	if meta.ShowPlacement {
		fmt.Fprintf(r.w, "\nPod placement:\n")
		writePlacement(r.w, best, "")
	}

	fmt.Fprintf(r.w, "\n")
	return nil
}

func writeExcluded(w io.Writer, result *model.PlanResult, prefix string) {
	for _, e := range result.Excluded {
		fmt.Fprintf(w, "%s%s: %s\n", prefix, e.NodeType.ID, e.Reason)
	}
	for _, e := range excludedRows(result) {
		reason := e.ExcludeReason
		if reason == "" {
			reason = "no nodes used"
		}
		fmt.Fprintf(w, "%s%s: %s\n", prefix, e.NodeType.ID, reason)
	}
}

// writePlacement lists the units of every node in the best packing with its
// utilization.
func writePlacement(w io.Writer, best *model.EvaluationResult, prefix string) {
	for i, bin := range best.Packing.Bins {
		fmt.Fprintf(w, "%sNode %d: %s\n", prefix, i, strings.Join(bin.Units, ", "))
		fmt.Fprintf(w, "%s  Utilization: cpu: %.2f%%, memory: %.2f%%\n", prefix, bin.CPUUtilization*100, bin.MemUtilization*100)
	}
}

func formatQuantity(q model.ResourceQuantity) string {
	return fmt.Sprintf("%.0fm cpu / %.0f MB", q.CPUMillis, q.MemoryMB)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
