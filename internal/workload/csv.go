package workload

import (
	"context"
	"fmt"
	"os"

	"github.com/guimove/fleetfit/internal/model"
)

// CSVSource reads a pods.csv export.
type CSVSource struct {
	filePath string
}

// NewCSVSource creates a source backed by a pods.csv file.
func NewCSVSource(filePath string) *CSVSource {
	return &CSVSource{filePath: filePath}
}

// Name returns "csv".
func (c *CSVSource) Name() string {
	return "csv"
}

// Ping checks that the file exists.
func (c *CSVSource) Ping(ctx context.Context) error {
	if _, err := os.Stat(c.filePath); err != nil {
		return fmt.Errorf("%w: pods export: %v", ErrSourceUnreachable, err)
	}
	return nil
}

// Records parses the export.
func (c *CSVSource) Records(ctx context.Context, opts LoadOptions) ([]PodRecord, error) {
	f, err := os.Open(c.filePath)
	if err != nil {
		return nil, fmt.Errorf("opening pods export: %w", err)
	}
	defer func() { _ = f.Close() }()

	records, err := ReadPodsCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.filePath, err)
	}
	if opts.HashNames {
		HashRecords(records)
	}
	return records, nil
}

// Load parses the export and builds a snapshot.
func (c *CSVSource) Load(ctx context.Context, opts LoadOptions) (*model.Snapshot, error) {
	records, err := c.Records(ctx, opts)
	if err != nil {
		return nil, err
	}
	return BuildSnapshot(records, opts, c.Name())
}
