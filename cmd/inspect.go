package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/guimove/fleetfit/internal/kube"
	"github.com/guimove/fleetfit/internal/model"
	"github.com/guimove/fleetfit/internal/workload"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Load and display the workloads fleetfit would plan for",
	Long: `Loads the workloads from the configured source and displays them with
their packing demand. Useful for checking what a plan is based on.

--export-snapshot writes a JSON snapshot that '--source static' reads back;
--export-pods writes the per-pod records as pods.csv for '--source csv'.`,
	RunE: runInspect,
}

func init() {
	f := inspectCmd.Flags()
	f.String("output", "table", "output format: table, json")
	f.String("sort-by", "cpu", "sort workloads by: cpu, memory, name")
	f.String("output-file", "", "write output to file")
	f.String("export-snapshot", "", "write the snapshot as JSON to this file")
	f.String("export-pods", "", "write the pod records as pods.csv to this file")
	f.Bool("node-groups", false, "list the cluster's node groups")

	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if groups, _ := cmd.Flags().GetBool("node-groups"); groups {
		return printNodeGroups(ctx, cmd.OutOrStdout())
	}

	src, cleanup, err := openSource(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := src.Ping(ctx); err != nil {
		return err
	}

	opts := loadOptions()
	snap, err := src.Load(ctx, opts)
	if err != nil {
		return fmt.Errorf("loading workloads from %s: %w", src.Name(), err)
	}
	if snap.ClusterName == "" {
		snap.ClusterName = cfg.Cluster.Name
	}
	if snap.Region == "" {
		snap.Region = cfg.Cluster.Region
	}

	if path, _ := cmd.Flags().GetString("export-snapshot"); path != "" {
		if err := workload.WriteSnapshot(path, snap); err != nil {
			return err
		}
		klog.InfoS("Wrote snapshot", "path", path, "units", len(snap.Workloads))
	}
	if path, _ := cmd.Flags().GetString("export-pods"); path != "" {
		if err := exportPods(ctx, src, opts, path); err != nil {
			return err
		}
	}

	sortBy, _ := cmd.Flags().GetString("sort-by")
	sortUnits(snap.Workloads, sortBy)

	w, closeOut, err := outputWriter(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	if outputFmt, _ := cmd.Flags().GetString("output"); outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	printSnapshot(w, snap)
	return nil
}

func exportPods(ctx context.Context, src workload.Source, opts workload.LoadOptions, path string) error {
	rs, ok := src.(workload.RecordSource)
	if !ok {
		return fmt.Errorf("source %s has no per-pod records to export", src.Name())
	}
	records, err := rs.Records(ctx, opts)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating pods export: %w", err)
	}
	defer f.Close()
	if err := workload.WritePodsCSV(f, records); err != nil {
		return err
	}
	klog.InfoS("Wrote pod records", "path", path, "records", len(records))
	return nil
}

func printSnapshot(w io.Writer, snap *model.Snapshot) {
	fmt.Fprintf(w, "Cluster: %s (%s)\n", snap.ClusterName, snap.Region)
	fmt.Fprintf(w, "Source: %s, collected %s\n", snap.Source, snap.CollectedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Workloads: %d | DaemonSets: %d (%.0fm cpu / %.0f MB per node)\n\n",
		len(snap.Workloads), snap.DaemonSetCount, snap.DaemonSetOverhead.CPUMillis, snap.DaemonSetOverhead.MemoryMB)

	fmt.Fprintf(w, "%-40s %-24s %8s %10s\n", "POD", "OWNER", "CPU(m)", "MEM(MB)")
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 85))

	for _, u := range snap.Workloads {
		owner := ""
		if u.OwnerKind != "" {
			owner = u.OwnerKind + "/" + u.OwnerName
		}
		fmt.Fprintf(w, "%-40s %-24s %8.0f %10.0f\n",
			truncate(u.Label(), 40),
			truncate(owner, 24),
			u.CPUMillis,
			u.MemoryMB,
		)
	}

	total, largest := snap.Workloads.Total(), snap.Workloads.Largest()
	fmt.Fprintf(w, "\nTotal demand:   CPU=%.0fm MEM=%.0fMB\n", total.CPUMillis, total.MemoryMB)
	fmt.Fprintf(w, "Largest demand: CPU=%.0fm MEM=%.0fMB\n", largest.CPUMillis, largest.MemoryMB)
}

func printNodeGroups(ctx context.Context, w io.Writer) error {
	client, err := kubeClient()
	if err != nil {
		return err
	}
	_, groups, err := kube.NodeGroupIndex(ctx, client.Clientset)
	if err != nil {
		return err
	}
	for _, g := range groups {
		fmt.Fprintf(w, "Node group %s: %d nodes\n", g.ID, len(g.Nodes))
		fmt.Fprintf(w, "  Labels: %s\n", g.Signature)
		fmt.Fprintf(w, "  Nodes:  %s\n", strings.Join(g.Nodes, ", "))
	}
	return nil
}

func sortUnits(units model.WorkloadSet, by string) {
	switch by {
	case "memory":
		sort.SliceStable(units, func(i, j int) bool {
			return units[i].MemoryMB > units[j].MemoryMB
		})
	case "name":
		sort.SliceStable(units, func(i, j int) bool {
			return units[i].Label() < units[j].Label()
		})
	default: // cpu
		sort.SliceStable(units, func(i, j int) bool {
			return units[i].CPUMillis > units[j].CPUMillis
		})
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
