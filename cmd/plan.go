package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/guimove/fleetfit/internal/catalog"
	"github.com/guimove/fleetfit/internal/model"
	"github.com/guimove/fleetfit/internal/packing"
	"github.com/guimove/fleetfit/internal/planner"
	"github.com/guimove/fleetfit/internal/report"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Find the cheapest node type for the current workloads",
	Long: `Loads the workloads, builds the node catalog with the per-node overhead
subtracted, packs the workloads onto every feasible node type and ranks the
resulting fleets by cost.

Packings not proven minimal within the search budget are marked provisional.`,
	RunE: runPlan,
}

func init() {
	f := planCmd.Flags()
	f.String("input", "", "plan from a JSON snapshot written by inspect (same as --source static --source-path)")
	f.String("solver", "exact", "packing solver: exact, heuristic")
	f.Duration("time-limit", 10*time.Second, "search time budget per node type capacity")
	f.Int64("node-limit", 0, "search node budget per node type capacity, 0 = unlimited")
	f.Duration("run-timeout", 0, "bound on the whole run, 0 = unlimited")
	f.Int("workers", 0, "concurrent evaluations, 0 = number of CPUs")
	f.Bool("strict", false, "never select packings that were not proven optimal")
	f.Int("top", 5, "number of configurations to show")
	f.String("output", "table", "output format: table, json, markdown, csv")
	f.String("output-file", "", "write output to file")
	f.Bool("show-placement", false, "list the pods of every node of the best configuration")
	f.String("metrics-file", "", "write run metrics in Prometheus text format to this file")

	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Apply flag overrides
	f := cmd.Flags()
	if in, _ := f.GetString("input"); in != "" {
		cfg.Source.Kind = "static"
		cfg.Source.Path = in
	}
	if s, _ := f.GetString("solver"); f.Changed("solver") {
		cfg.Solver.Kind = s
	}
	if d, _ := f.GetDuration("time-limit"); f.Changed("time-limit") {
		cfg.Solver.TimeLimit = d
	}
	if n, _ := f.GetInt64("node-limit"); f.Changed("node-limit") {
		cfg.Solver.NodeLimit = n
	}
	if d, _ := f.GetDuration("run-timeout"); f.Changed("run-timeout") {
		cfg.Solver.RunTimeout = d
	}
	if n, _ := f.GetInt("workers"); f.Changed("workers") {
		cfg.Solver.Workers = n
	}
	if strict, _ := f.GetBool("strict"); strict {
		cfg.Solver.AllowBestEffort = false
	}
	if n, _ := f.GetInt("top"); f.Changed("top") {
		cfg.Output.TopN = n
	}
	if o, _ := f.GetString("output"); f.Changed("output") {
		cfg.Output.Format = o
	}
	if p, _ := f.GetBool("show-placement"); p {
		cfg.Output.ShowPlacement = true
	}
	if m, _ := f.GetString("metrics-file"); f.Changed("metrics-file") {
		cfg.Output.MetricsFile = m
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	src, snap, err := loadSnapshot(ctx)
	if err != nil {
		return err
	}

	raw, err := loadRawCatalog(ctx)
	if err != nil {
		return err
	}
	overhead := nodeOverhead(snap)
	nodeTypes := catalog.Build(raw, overhead)
	klog.V(2).InfoS("Per-node overhead", "cpuMillis", overhead.CPUMillis, "memoryMB", overhead.MemoryMB)

	p := newPlanner()
	result, planErr := p.Plan(ctx, snap.Workloads, nodeTypes)
	if planErr != nil && !errors.Is(planErr, model.ErrNoFeasibleConfiguration) {
		return planErr
	}

	if cfg.Output.MetricsFile != "" {
		if err := p.Metrics.WriteFile(cfg.Output.MetricsFile); err != nil {
			klog.ErrorS(err, "Could not write run metrics", "path", cfg.Output.MetricsFile)
		}
	}

	w, closeOut, err := outputWriter(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	meta := report.Meta{
		ClusterName:    snap.ClusterName,
		Region:         snap.Region,
		Source:         src.Name(),
		CatalogName:    cfg.Catalog.Source,
		CollectedAt:    snap.CollectedAt,
		DaemonSetCount: snap.DaemonSetCount,
		Overhead:       overhead,
		Percentile:     cfg.Source.Percentile,
		Solver:         p.Solver.Name(),
		TopN:           cfg.Output.TopN,
		ShowPlacement:  cfg.Output.ShowPlacement,
	}
	if err := report.NewReporter(cfg.Output.Format, w).Report(ctx, result, meta); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	// Still exit non-zero after reporting why nothing was selectable.
	return planErr
}

func newSolver(kind string) packing.Solver {
	if kind == "heuristic" {
		return &packing.BestFitDecreasing{}
	}
	return &packing.BranchAndBound{}
}

func newPlanner() *planner.Planner {
	p := planner.New(newSolver(cfg.Solver.Kind))
	if cfg.Solver.Workers > 0 {
		p.Workers = cfg.Solver.Workers
	}
	p.Budget = packing.Budget{
		TimeLimit: cfg.Solver.TimeLimit,
		NodeLimit: cfg.Solver.NodeLimit,
	}
	p.AllowBestEffort = cfg.Solver.AllowBestEffort
	p.RunTimeout = cfg.Solver.RunTimeout
	return p
}

// outputWriter returns stdout or the --output-file destination.
func outputWriter(cmd *cobra.Command) (io.Writer, func(), error) {
	outFile, _ := cmd.Flags().GetString("output-file")
	if outFile == "" {
		return cmd.OutOrStdout(), noop, nil
	}
	f, err := os.Create(outFile)
	if err != nil {
		return nil, noop, fmt.Errorf("creating output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}
