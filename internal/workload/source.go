// Package workload loads the set of pods to plan for from a cluster, a
// Prometheus backend or an offline export.
package workload

import (
	"context"
	"errors"
	"time"

	"github.com/guimove/fleetfit/internal/model"
)

var (
	ErrSourceUnreachable = errors.New("workload source unreachable")
	ErrNoWorkloads       = errors.New("no workloads found for the specified criteria")
)

// Source abstracts where workload units come from.
type Source interface {
	// Load builds a snapshot of the workloads matching opts.
	Load(ctx context.Context, opts LoadOptions) (*model.Snapshot, error)

	// Ping validates that the source can be read.
	Ping(ctx context.Context) error

	// Name identifies the source kind ("static", "csv", "prometheus", "kubernetes").
	Name() string
}

// RecordSource is implemented by sources that can return the raw per-pod
// records behind a snapshot, for export to pods.csv.
type RecordSource interface {
	Records(ctx context.Context, opts LoadOptions) ([]PodRecord, error)
}

// LoadOptions configures workload loading.
type LoadOptions struct {
	Namespaces        []string // Empty = all namespaces
	ExcludeNamespaces []string

	// NodeGroup restricts the snapshot to pods scheduled on one node group.
	NodeGroup string

	// HashNames replaces pod and owner names with their md5 digest.
	HashNames bool

	// Percentile of observed usage to size units with (Prometheus only).
	// Zero sizes by requests alone.
	Percentile float64
	Window     time.Duration
	Step       time.Duration

	// At is the evaluation time for instant queries. Zero means now.
	At time.Time
}

func (o LoadOptions) at() time.Time {
	if o.At.IsZero() {
		return time.Now()
	}
	return o.At
}
