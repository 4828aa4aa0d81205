package workload

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	promapi "github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	prommodel "github.com/prometheus/common/model"
	"k8s.io/klog/v2"

	"github.com/guimove/fleetfit/internal/model"
)

const (
	defaultWindow = 7 * 24 * time.Hour
	defaultStep   = 5 * time.Minute
)

// PrometheusSource reads pod requests from kube-state-metrics series in
// Prometheus, Thanos or Cortex, optionally sizing pods by observed usage.
type PrometheusSource struct {
	api        promv1.API
	endpoint   string
	backend    string
	timeout    time.Duration
	nodeGroups map[string]string
}

// PrometheusOption configures the Prometheus source.
type PrometheusOption func(*PrometheusSource)

// WithTimeout sets the query timeout.
func WithTimeout(d time.Duration) PrometheusOption {
	return func(s *PrometheusSource) { s.timeout = d }
}

// WithNodeGroups sets the node name to node group mapping used to tag pods,
// usually from kube.NodeGroupIndex.
func WithNodeGroups(index map[string]string) PrometheusOption {
	return func(s *PrometheusSource) { s.nodeGroups = index }
}

// NewPrometheusSource creates a source connected to the given endpoint.
func NewPrometheusSource(endpoint string, opts ...PrometheusOption) (*PrometheusSource, error) {
	client, err := promapi.NewClient(promapi.Config{Address: endpoint})
	if err != nil {
		return nil, fmt.Errorf("creating prometheus client: %w", err)
	}
	s := NewPrometheusSourceFromAPI(promv1.NewAPI(client), opts...)
	s.endpoint = endpoint
	return s, nil
}

// NewPrometheusSourceFromAPI creates a source over an existing API client.
func NewPrometheusSourceFromAPI(api promv1.API, opts ...PrometheusOption) *PrometheusSource {
	s := &PrometheusSource{
		api:     api,
		backend: "prometheus",
		timeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns "prometheus".
func (s *PrometheusSource) Name() string {
	return "prometheus"
}

// Backend returns the detected backend flavour after Ping.
func (s *PrometheusSource) Backend() string {
	return s.backend
}

// Ping checks connectivity and detects Thanos or Cortex.
func (s *PrometheusSource) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, _, err := s.api.Query(ctx, "up", time.Now()); err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
	}
	s.detectBackend(ctx)
	return nil
}

func (s *PrometheusSource) detectBackend(ctx context.Context) {
	for _, probe := range []struct{ backend, query string }{
		{"thanos", "thanos_store_nodes_total"},
		{"cortex", "cortex_ingester_active_series"},
	} {
		v, _, err := s.api.Query(ctx, probe.query, time.Now())
		if err == nil && hasSamples(v) {
			s.backend = probe.backend
			return
		}
	}
}

func hasSamples(v prommodel.Value) bool {
	vec, ok := v.(prommodel.Vector)
	return ok && len(vec) > 0
}

type podKey struct {
	Namespace string
	Pod       string
}

// Records returns one record per running pod with requests summed per pod.
func (s *PrometheusSource) Records(ctx context.Context, opts LoadOptions) ([]PodRecord, error) {
	records, err := s.records(ctx, opts)
	if err != nil {
		return nil, err
	}
	if opts.HashNames {
		HashRecords(records)
	}
	return records, nil
}

func (s *PrometheusSource) records(ctx context.Context, opts LoadOptions) ([]PodRecord, error) {
	data, err := s.query(ctx, opts, map[string]string{
		"cpu_requests": queryPodResourceRequests("cpu"),
		"mem_requests": queryPodResourceRequests("memory"),
		"cpu_limits":   queryPodResourceLimits("cpu"),
		"mem_limits":   queryPodResourceLimits("memory"),
		"running":      queryRunningPods(),
		"pod_owner":    queryPodOwner(),
		"pod_node":     queryPodNode(),
	}, "cpu_requests", "mem_requests")
	if err != nil {
		return nil, err
	}

	cpuReq := extractVector(data["cpu_requests"])
	memReq := extractVector(data["mem_requests"])
	cpuLim := extractVector(data["cpu_limits"])
	memLim := extractVector(data["mem_limits"])
	owners := extractOwners(data["pod_owner"])
	nodes := extractLabel(data["pod_node"], "node")

	pods := make(map[podKey]bool)
	for k := range cpuReq {
		pods[k] = true
	}
	for k := range memReq {
		pods[k] = true
	}
	// Restrict to running pods when kube-state-metrics reports phases.
	if running := extractVector(data["running"]); len(running) > 0 {
		for k := range pods {
			if _, ok := running[k]; !ok {
				delete(pods, k)
			}
		}
	}

	records := make([]PodRecord, 0, len(pods))
	for k := range pods {
		node := nodes[k]
		r := PodRecord{
			PodName:       k.Pod,
			NodeName:      node,
			NodeGroup:     s.nodeGroups[node],
			Namespace:     k.Namespace,
			ReqCPUMilli:   int64(math.Round(cpuReq[k] * 1000)),
			ReqMemBytes:   int64(memReq[k]),
			LimitCPUMilli: int64(math.Round(cpuLim[k] * 1000)),
			LimitMemBytes: int64(memLim[k]),
		}
		if o, ok := owners[k]; ok {
			r.OwnerKind = strings.Join(o.kinds, ownerSeparator)
			r.OwnerName = strings.Join(o.names, ownerSeparator)
		}
		records = append(records, r)
	}
	sortRecords(records)
	return records, nil
}

// Load builds a snapshot from requests. With a non-zero percentile, each
// pod is sized as the larger of its request and its observed usage at that
// percentile over the window.
func (s *PrometheusSource) Load(ctx context.Context, opts LoadOptions) (*model.Snapshot, error) {
	records, err := s.records(ctx, opts)
	if err != nil {
		return nil, err
	}
	if opts.Percentile > 0 {
		if err := s.applyUsage(ctx, opts, records); err != nil {
			return nil, err
		}
	}
	if opts.HashNames {
		HashRecords(records)
	}
	snap, err := BuildSnapshot(records, opts, s.Name())
	if err != nil {
		return nil, err
	}
	snap.CollectedAt = opts.at()
	return snap, nil
}

func (s *PrometheusSource) applyUsage(ctx context.Context, opts LoadOptions, records []PodRecord) error {
	window := opts.Window
	if window == 0 {
		window = defaultWindow
	}
	step := opts.Step
	if step == 0 {
		step = defaultStep
	}
	windowStr, stepStr := formatDuration(window), formatDuration(step)

	data, err := s.query(ctx, opts, map[string]string{
		"cpu_usage": queryCPUPercentile(opts.Percentile, windowStr, stepStr),
		"mem_usage": queryMemoryPercentile(opts.Percentile, windowStr, stepStr),
	})
	if err != nil {
		return err
	}
	cpuUse := extractVector(data["cpu_usage"])
	memUse := extractVector(data["mem_usage"])

	resized := 0
	for i := range records {
		k := podKey{records[i].Namespace, records[i].PodName}
		cpu := int64(math.Ceil(cpuUse[k] * 1000))
		mem := int64(math.Ceil(memUse[k]))
		if cpu > records[i].ReqCPUMilli || mem > records[i].ReqMemBytes {
			resized++
		}
		records[i].ReqCPUMilli = max(records[i].ReqCPUMilli, cpu)
		records[i].ReqMemBytes = max(records[i].ReqMemBytes, mem)
	}
	klog.V(2).InfoS("Sized pods by observed usage", "percentile", opts.Percentile,
		"window", windowStr, "resized", resized, "pods", len(records))
	return nil
}

// query runs the queries concurrently. Failures of the required queries are
// fatal; others are logged and their series treated as absent.
func (s *PrometheusSource) query(ctx context.Context, opts LoadOptions, queries map[string]string, required ...string) (map[string]prommodel.Value, error) {
	type queryResult struct {
		name string
		data prommodel.Value
		err  error
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	at := opts.at()
	results := make(chan queryResult, len(queries))
	for name, q := range queries {
		name, q := name, q
		go func() {
			data, warnings, err := s.api.Query(queryCtx, q, at)
			for _, w := range warnings {
				klog.V(3).InfoS("Prometheus warning", "query", name, "warning", w)
			}
			results <- queryResult{name: name, data: data, err: err}
		}()
	}

	collected := make(map[string]prommodel.Value, len(queries))
	var failed []string
	for range queries {
		r := <-results
		if r.err != nil {
			if slices.Contains(required, r.name) {
				failed = append(failed, fmt.Sprintf("%s: %v", r.name, r.err))
			} else {
				klog.V(2).InfoS("Optional query failed", "query", r.name, "err", r.err)
			}
			continue
		}
		collected[r.name] = r.data
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		return nil, fmt.Errorf("%w: %s", ErrSourceUnreachable, strings.Join(failed, "; "))
	}
	return collected, nil
}

// extractVector maps (namespace, pod) to the sample value.
func extractVector(v prommodel.Value) map[podKey]float64 {
	result := make(map[podKey]float64)
	vec, ok := v.(prommodel.Vector)
	if !ok {
		return result
	}
	for _, sample := range vec {
		ns := string(sample.Metric["namespace"])
		pod := string(sample.Metric["pod"])
		if ns == "" || pod == "" {
			continue
		}
		result[podKey{ns, pod}] = float64(sample.Value)
	}
	return result
}

// extractLabel maps (namespace, pod) to the value of label.
func extractLabel(v prommodel.Value, label prommodel.LabelName) map[podKey]string {
	result := make(map[podKey]string)
	vec, ok := v.(prommodel.Vector)
	if !ok {
		return result
	}
	for _, sample := range vec {
		ns := string(sample.Metric["namespace"])
		pod := string(sample.Metric["pod"])
		if ns == "" || pod == "" {
			continue
		}
		result[podKey{ns, pod}] = string(sample.Metric[label])
	}
	return result
}

type podOwners struct {
	kinds, names []string
}

// extractOwners collects the owner references of each pod from kube_pod_owner.
func extractOwners(v prommodel.Value) map[podKey]*podOwners {
	result := make(map[podKey]*podOwners)
	vec, ok := v.(prommodel.Vector)
	if !ok {
		return result
	}
	for _, sample := range vec {
		ns := string(sample.Metric["namespace"])
		pod := string(sample.Metric["pod"])
		kind := string(sample.Metric["owner_kind"])
		if ns == "" || pod == "" || kind == "" || kind == "<none>" {
			continue
		}
		k := podKey{ns, pod}
		o, ok := result[k]
		if !ok {
			o = &podOwners{}
			result[k] = o
		}
		o.kinds = append(o.kinds, kind)
		o.names = append(o.names, string(sample.Metric["owner_name"]))
	}
	return result
}

// formatDuration formats d as a Prometheus duration string.
func formatDuration(d time.Duration) string {
	if d == 0 {
		return ""
	}
	hours := int(d.Hours())
	if hours >= 24 && hours%24 == 0 {
		return fmt.Sprintf("%dd", hours/24)
	}
	if hours > 0 && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	minutes := int(d.Minutes())
	if minutes > 0 && d%time.Minute == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
