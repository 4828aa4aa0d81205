package workload

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/guimove/fleetfit/internal/model"
)

// StaticSource loads a snapshot from a JSON file.
// Used for testing, offline analysis, and CI pipelines.
type StaticSource struct {
	filePath string
	snapshot *model.Snapshot
}

// NewStaticSource creates a source that reads from a JSON file.
func NewStaticSource(filePath string) *StaticSource {
	return &StaticSource{filePath: filePath}
}

// NewStaticSourceFromSnapshot creates a source from a pre-built snapshot.
func NewStaticSourceFromSnapshot(s *model.Snapshot) *StaticSource {
	return &StaticSource{snapshot: s}
}

// Ping checks that the file exists.
func (s *StaticSource) Ping(ctx context.Context) error {
	if s.snapshot != nil {
		return nil
	}
	if _, err := os.Stat(s.filePath); err != nil {
		return fmt.Errorf("%w: static snapshot: %v", ErrSourceUnreachable, err)
	}
	return nil
}

// Name returns "static".
func (s *StaticSource) Name() string {
	return "static"
}

// Load reads the snapshot and applies the namespace filters. The stored
// DaemonSet overhead is kept as is.
func (s *StaticSource) Load(ctx context.Context, opts LoadOptions) (*model.Snapshot, error) {
	snap := s.snapshot
	if snap == nil {
		data, err := os.ReadFile(s.filePath)
		if err != nil {
			return nil, fmt.Errorf("reading static snapshot: %w", err)
		}
		var decoded model.Snapshot
		if err := json.Unmarshal(data, &decoded); err != nil {
			return nil, fmt.Errorf("parsing static snapshot: %w", err)
		}
		snap = &decoded
	}

	include := toSet(opts.Namespaces)
	exclude := toSet(opts.ExcludeNamespaces)

	out := *snap
	out.Workloads = nil
	for _, w := range snap.Workloads {
		if len(include) > 0 && !include[w.Namespace] {
			continue
		}
		if exclude[w.Namespace] {
			continue
		}
		out.Workloads = append(out.Workloads, w)
	}
	if len(out.Workloads) == 0 {
		return nil, ErrNoWorkloads
	}
	if out.Source == "" {
		out.Source = s.Name()
	}
	return &out, nil
}

// WriteSnapshot writes s as indented JSON, the format StaticSource reads.
func WriteSnapshot(path string, s *model.Snapshot) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}
