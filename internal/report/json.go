package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/guimove/fleetfit/internal/model"
)

// JSONReporter outputs the full planning result as JSON.
type JSONReporter struct {
	w io.Writer
}

type jsonOutput struct {
	Meta   Meta              `json:"meta"`
	Ranked []row             `json:"ranked"`
	Result *model.PlanResult `json:"result"`
}

func (r *JSONReporter) Report(ctx context.Context, result *model.PlanResult, meta Meta) error {
	output := jsonOutput{
		Meta:   meta,
		Ranked: rankedRows(result, 0),
		Result: result,
	}

	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(output); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
