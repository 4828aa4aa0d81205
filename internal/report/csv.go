package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/guimove/fleetfit/internal/model"
)

// CSVReporter writes one row per evaluated node type with the columns
// name, cpu, memory, num_nodes and cost (hourly). Selectable results come
// first in rank order; the rest follow in catalog order. Infeasible ones
// carry zero nodes and cost, while best-effort packings rejected by strict
// mode keep their counts.
type CSVReporter struct {
	w io.Writer
}

func (r *CSVReporter) Report(ctx context.Context, result *model.PlanResult, meta Meta) error {
	cw := csv.NewWriter(r.w)
	if err := cw.Write([]string{"name", "cpu", "memory", "num_nodes", "cost"}); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}

	write := func(nt model.NodeType, nodes int, cost float64) error {
		return cw.Write([]string{
			nt.ID,
			strconv.FormatFloat(nt.CPUCapacity, 'f', -1, 64),
			strconv.FormatFloat(nt.MemCapacity, 'f', -1, 64),
			strconv.Itoa(nodes),
			strconv.FormatFloat(cost, 'f', -1, 64),
		})
	}

	for _, res := range result.Ranked() {
		if err := write(res.NodeType, res.BinsUsed, res.TotalCost); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}
	for _, res := range excludedRows(result) {
		if err := write(res.NodeType, res.BinsUsed, res.TotalCost); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
