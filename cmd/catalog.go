package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guimove/fleetfit/internal/catalog"
	"github.com/guimove/fleetfit/internal/model"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the candidate node types with their effective capacity",
	Long: `Lists the node types of the configured catalog after filtering, with the
per-node overhead subtracted.

With --workloads the configured source is loaded as well: its DaemonSet
overhead is included and every node type is checked against the largest unit.`,
	RunE: runCatalog,
}

func init() {
	catalogCmd.Flags().Bool("workloads", false, "load workloads to check feasibility and DaemonSet overhead")
	rootCmd.AddCommand(catalogCmd)
}

func runCatalog(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var snap *model.Snapshot
	if withWorkloads, _ := cmd.Flags().GetBool("workloads"); withWorkloads {
		var err error
		if _, snap, err = loadSnapshot(ctx); err != nil {
			return err
		}
	}

	raw, err := loadRawCatalog(ctx)
	if err != nil {
		return err
	}
	overhead := nodeOverhead(snap)
	nodeTypes := catalog.Build(raw, overhead)

	reasons := make(map[string]string)
	if snap != nil {
		// An empty candidate list is reported per row below.
		_, excluded, _ := catalog.Feasible(nodeTypes, snap.Workloads.Largest())
		for _, e := range excluded {
			reasons[e.NodeType.ID] = e.Reason
		}
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Catalog: %s, %d node types\n", cfg.Catalog.Source, len(nodeTypes))
	fmt.Fprintf(w, "Overhead: %.0fm cpu / %.0f MB per node\n\n", overhead.CPUMillis, overhead.MemoryMB)
	fmt.Fprintf(w, "%-16s %-8s %-6s %10s %10s %10s %10s  %s\n",
		"NODE TYPE", "FAMILY", "ARCH", "CPU(m)", "MEM(MB)", "EFF CPU", "EFF MEM", "$/HOUR")
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 90))

	for i, r := range raw {
		nt := nodeTypes[i]
		fmt.Fprintf(w, "%-16s %-8s %-6s %10.0f %10.0f %10.0f %10.0f  %.4f",
			truncate(r.ID, 16), r.Family, r.Arch, r.CPUMillis, r.MemoryMB, nt.CPUCapacity, nt.MemCapacity, r.UnitCost)
		if reason, ok := reasons[nt.ID]; ok {
			fmt.Fprintf(w, "  (infeasible: %s)", reason)
		}
		fmt.Fprintln(w)
	}
	return nil
}
