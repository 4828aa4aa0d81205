package report

import (
	"context"
	"fmt"
	"io"

	"github.com/guimove/fleetfit/internal/model"
)

// MarkdownReporter outputs the plan as a Markdown document, e.g. for pull
// request comments.
type MarkdownReporter struct {
	w io.Writer
}

func (r *MarkdownReporter) Report(ctx context.Context, result *model.PlanResult, meta Meta) error {
	fmt.Fprintf(r.w, "## fleetfit plan\n\n")
	if meta.ClusterName != "" {
		fmt.Fprintf(r.w, "- **Cluster:** %s\n", meta.ClusterName)
	}
	if meta.Region != "" {
		fmt.Fprintf(r.w, "- **Region:** %s\n", meta.Region)
	}
	fmt.Fprintf(r.w, "- **Workloads:** %d pods from %s (+ %d DaemonSets)\n", result.WorkloadCount, meta.Source, meta.DaemonSetCount)
	fmt.Fprintf(r.w, "- **Demand:** %s total, %s largest\n", formatQuantity(result.TotalDemand), formatQuantity(result.LargestDemand))
	fmt.Fprintf(r.w, "- **Solver:** %s, %d invocations\n\n", meta.Solver, result.SolverInvocations)

	rows := rankedRows(result, meta.TopN)
	if len(rows) == 0 {
		fmt.Fprintf(r.w, "**No feasible configuration.**\n\n")
		writeExcluded(r.w, result, "- ")
		return nil
	}

	fmt.Fprintf(r.w, "| Rank | Node type | CPU (m) | Mem (MB) | Nodes | $/hour | $/month | CPU %% | Mem %% | Notes |\n")
	fmt.Fprintf(r.w, "|---:|---|---:|---:|---:|---:|---:|---:|---:|---|\n")
	for _, row := range rows {
		fmt.Fprintf(r.w, "| %d | `%s` | %.0f | %.0f | %d | %.3f | %.0f | %.1f | %.1f | %s |\n",
			row.Rank, row.NodeType, row.CPU, row.Memory, row.Nodes,
			row.HourlyCost, row.MonthlyCost, row.CPUUtil*100, row.MemUtil*100, row.Notes)
	}

	best := result.Best
	fmt.Fprintf(r.w, "\n**Best configuration:** %d x `%s` at $%.3f/hour", best.BinsUsed, best.NodeType.ID, best.TotalCost)
	if best.Provisional {
		fmt.Fprintf(r.w, " _(provisional, lower bound %d nodes)_", best.Packing.LowerBound)
	}
	fmt.Fprintf(r.w, "\n")

	if meta.ShowPlacement {
		fmt.Fprintf(r.w, "\n<details><summary>Pod placement</summary>\n\n```\n")
		writePlacement(r.w, best, "")
		fmt.Fprintf(r.w, "```\n\n</details>\n")
	}
	return nil
}
