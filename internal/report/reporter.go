package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/guimove/fleetfit/internal/model"
	"github.com/guimove/fleetfit/internal/packing"
)

// Reporter formats and writes a planning result to an output destination.
type Reporter interface {
	Report(ctx context.Context, result *model.PlanResult, meta Meta) error
}

// Meta contains contextual metadata for the report.
type Meta struct {
	ClusterName string    `json:"cluster_name,omitempty"`
	Region      string    `json:"region,omitempty"`
	Source      string    `json:"source"`
	CatalogName string    `json:"catalog"`
	CollectedAt time.Time `json:"collected_at"`

	DaemonSetCount int                    `json:"daemon_set_count"`
	Overhead       model.ResourceQuantity `json:"overhead"`
	Percentile     float64                `json:"percentile,omitempty"`
	Solver         string                 `json:"solver"`

	// TopN limits ranked rows in human-readable formats. Zero means all.
	TopN int `json:"-"`

	// ShowPlacement adds the per-node unit list of the best configuration.
	ShowPlacement bool `json:"-"`
}

// NewReporter creates a reporter for the given format writing to w.
func NewReporter(format string, w io.Writer) Reporter {
	switch format {
	case "json":
		return &JSONReporter{w: w}
	case "markdown":
		return &MarkdownReporter{w: w}
	case "csv":
		return &CSVReporter{w: w}
	default:
		return &TableReporter{w: w}
	}
}

// row is one ranked configuration as shown to users.
type row struct {
	Rank        int     `json:"rank"`
	NodeType    string  `json:"node_type"`
	CPU         float64 `json:"cpu_millis"`
	Memory      float64 `json:"memory_mb"`
	Nodes       int     `json:"nodes"`
	HourlyCost  float64 `json:"hourly_cost"`
	MonthlyCost float64 `json:"monthly_cost"`
	CPUUtil     float64 `json:"avg_cpu_utilization"`
	MemUtil     float64 `json:"avg_mem_utilization"`
	Status      string  `json:"status"`
	Notes       string  `json:"notes,omitempty"`
}

func rankedRows(result *model.PlanResult, topN int) []row {
	ranked := result.Ranked()
	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}

	rows := make([]row, len(ranked))
	for i, r := range ranked {
		frag := packing.AnalyzeFragmentation(r.Packing)
		rows[i] = row{
			Rank:        i + 1,
			NodeType:    r.NodeType.ID,
			CPU:         r.NodeType.CPUCapacity,
			Memory:      r.NodeType.MemCapacity,
			Nodes:       r.BinsUsed,
			HourlyCost:  r.TotalCost,
			MonthlyCost: r.TotalCost * model.HoursPerMonth,
			CPUUtil:     frag.AvgCPUUtilization,
			MemUtil:     frag.AvgMemUtilization,
			Status:      string(r.Packing.Status),
			Notes:       notes(r),
		}
	}
	return rows
}

func notes(r model.EvaluationResult) string {
	var n string
	if r.Provisional {
		n = "provisional"
		if lb := r.Packing.LowerBound; lb > 0 && lb < r.BinsUsed {
			n += fmt.Sprintf(" (lower bound %d)", lb)
		}
	}
	if r.CacheHit {
		if n != "" {
			n += ", "
		}
		n += "reused"
	}
	return n
}

// excludedRows lists evaluated node types that could not be selected.
func excludedRows(result *model.PlanResult) []model.EvaluationResult {
	var out []model.EvaluationResult
	for _, r := range result.Results {
		if !r.Selectable() {
			out = append(out, r)
		}
	}
	return out
}
