package workload

import (
	"crypto/md5"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/guimove/fleetfit/internal/model"
)

const (
	ownerKindDaemonSet = "DaemonSet"
	ownerSeparator     = "|"
	bytesPerMB         = 1e6
)

// Column layout of the pods export.
var podsHeader = []string{
	"pod_name",
	"node_name",
	"node_group",
	"namespace",
	"owner_kind",
	"owner_name",
	"req_cpu_milli_core",
	"req_mem_byte",
	"limit_cpu_mili_core",
	"limit_mem_bytes",
}

var requiredPodColumns = []string{
	"pod_name", "namespace", "owner_kind", "owner_name", "req_cpu_milli_core", "req_mem_byte",
}

// ErrMalformedRecord is returned when a pods export cannot be parsed.
var ErrMalformedRecord = errors.New("malformed pod record")

// PodRecord is one pod as exported to pods.csv. Requests and limits are
// summed over the pod's containers. Owner kinds and names of pods with
// several owners are joined with "|".
type PodRecord struct {
	PodName   string
	NodeName  string
	NodeGroup string
	Namespace string
	OwnerKind string
	OwnerName string

	ReqCPUMilli   int64
	ReqMemBytes   int64
	LimitCPUMilli int64
	LimitMemBytes int64
}

// IsDaemonSet reports whether any owner of the pod is a DaemonSet.
func (r PodRecord) IsDaemonSet() bool {
	return slices.Contains(strings.Split(r.OwnerKind, ownerSeparator), ownerKindDaemonSet)
}

// HashRecords replaces pod and owner names with their hex md5 digest so an
// export can be shared without leaking names.
func HashRecords(records []PodRecord) {
	for i := range records {
		records[i].PodName = hashName(records[i].PodName)
		records[i].OwnerName = hashName(records[i].OwnerName)
	}
}

func hashName(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}

// sortRecords orders records by namespace then pod name so snapshots built
// from unordered API responses are reproducible.
func sortRecords(records []PodRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Namespace != records[j].Namespace {
			return records[i].Namespace < records[j].Namespace
		}
		return records[i].PodName < records[j].PodName
	})
}

// BuildSnapshot turns pod records into a planning snapshot.
//
// Records outside the selected namespaces or node group are skipped.
// DaemonSet pods are not packed: their per-node overhead is the mean request
// of each DaemonSet, summed over DaemonSets. Other pods with a non-positive
// CPU or memory request are skipped. Memory is converted from bytes to MB.
func BuildSnapshot(records []PodRecord, opts LoadOptions, source string) (*model.Snapshot, error) {
	include := toSet(opts.Namespaces)
	exclude := toSet(opts.ExcludeNamespaces)

	type dsAgg struct {
		cpu, mem float64
		pods     int
	}
	daemonSets := make(map[string]*dsAgg)
	var dsOrder []string

	var units model.WorkloadSet
	seen := make(map[string]int)
	skipped := 0

	for _, r := range records {
		if len(include) > 0 && !include[r.Namespace] {
			continue
		}
		if exclude[r.Namespace] {
			continue
		}
		if opts.NodeGroup != "" && r.NodeGroup != opts.NodeGroup {
			continue
		}

		if r.IsDaemonSet() {
			key := r.Namespace + "/" + r.OwnerName
			agg, ok := daemonSets[key]
			if !ok {
				agg = &dsAgg{}
				daemonSets[key] = agg
				dsOrder = append(dsOrder, key)
			}
			agg.cpu += float64(r.ReqCPUMilli)
			agg.mem += float64(r.ReqMemBytes)
			agg.pods++
			continue
		}

		if r.ReqCPUMilli <= 0 || r.ReqMemBytes <= 0 {
			klog.V(4).InfoS("Skipping pod without requests", "namespace", r.Namespace, "pod", r.PodName,
				"cpu", r.ReqCPUMilli, "memory", r.ReqMemBytes)
			skipped++
			continue
		}

		id := r.Namespace + "/" + r.PodName
		if n := seen[id]; n > 0 {
			seen[id] = n + 1
			id = fmt.Sprintf("%s#%d", id, n+1)
		} else {
			seen[id] = 1
		}

		units = append(units, model.WorkloadUnit{
			ID:        id,
			Namespace: r.Namespace,
			Name:      r.PodName,
			OwnerKind: r.OwnerKind,
			OwnerName: r.OwnerName,
			CPUMillis: float64(r.ReqCPUMilli),
			MemoryMB:  float64(r.ReqMemBytes) / bytesPerMB,
		})
	}

	if skipped > 0 {
		klog.V(2).InfoS("Pods without requests skipped", "count", skipped)
	}
	if len(units) == 0 {
		return nil, ErrNoWorkloads
	}

	var overhead model.ResourceQuantity
	for _, key := range dsOrder {
		agg := daemonSets[key]
		n := float64(agg.pods)
		overhead.CPUMillis += agg.cpu / n
		overhead.MemoryMB += agg.mem / n / bytesPerMB
	}

	return &model.Snapshot{
		CollectedAt:       time.Now(),
		Workloads:         units,
		DaemonSetOverhead: overhead,
		DaemonSetCount:    len(dsOrder),
		Source:            source,
	}, nil
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// WritePodsCSV writes records in the pods.csv export layout.
func WritePodsCSV(w io.Writer, records []PodRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(podsHeader); err != nil {
		return fmt.Errorf("writing pods header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.PodName,
			r.NodeName,
			r.NodeGroup,
			r.Namespace,
			r.OwnerKind,
			r.OwnerName,
			strconv.FormatInt(r.ReqCPUMilli, 10),
			strconv.FormatInt(r.ReqMemBytes, 10),
			strconv.FormatInt(r.LimitCPUMilli, 10),
			strconv.FormatInt(r.LimitMemBytes, 10),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing pod %s/%s: %w", r.Namespace, r.PodName, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadPodsCSV parses a pods.csv export. Columns are matched by header name;
// node and limit columns are optional.
func ReadPodsCSV(r io.Reader) ([]PodRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading pods header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	for _, want := range requiredPodColumns {
		if _, ok := cols[want]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformedRecord, want)
		}
	}

	var records []PodRecord
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reading pods line %d: %w", line, err)
		}

		cell := func(col string) string {
			i, ok := cols[col]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		num := func(col string) (int64, error) {
			s := cell(col)
			if s == "" {
				return 0, nil
			}
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				// Float exports (e.g. "512.0") are accepted when integral.
				f, ferr := strconv.ParseFloat(s, 64)
				if ferr != nil || f != float64(int64(f)) {
					return 0, fmt.Errorf("%w: line %d column %s: %q", ErrMalformedRecord, line, col, s)
				}
				v = int64(f)
			}
			return v, nil
		}

		rec := PodRecord{
			PodName:   cell("pod_name"),
			NodeName:  cell("node_name"),
			NodeGroup: cell("node_group"),
			Namespace: cell("namespace"),
			OwnerKind: cell("owner_kind"),
			OwnerName: cell("owner_name"),
		}
		for col, dst := range map[string]*int64{
			"req_cpu_milli_core":  &rec.ReqCPUMilli,
			"req_mem_byte":        &rec.ReqMemBytes,
			"limit_cpu_mili_core": &rec.LimitCPUMilli,
			"limit_mem_bytes":     &rec.LimitMemBytes,
		} {
			v, err := num(col)
			if err != nil {
				return nil, err
			}
			*dst = v
		}
		records = append(records, rec)
	}
	return records, nil
}
