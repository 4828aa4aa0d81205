package cmd

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	awspkg "github.com/guimove/fleetfit/internal/aws"
	"github.com/guimove/fleetfit/internal/catalog"
	"github.com/guimove/fleetfit/internal/kube"
	"github.com/guimove/fleetfit/internal/model"
	"github.com/guimove/fleetfit/internal/workload"
)

func noop() {}

// openSource creates the workload source selected by cfg.Source.Kind.
//
// For Prometheus sources the endpoint is either --prometheus-url or
// discovered in the cluster. Outside the cluster a port-forward tunnel is
// opened to the discovered service; the returned cleanup closes it and is
// never nil.
func openSource(ctx context.Context) (workload.Source, func(), error) {
	switch cfg.Source.Kind {
	case "static":
		return workload.NewStaticSource(cfg.Source.Path), noop, nil
	case "csv":
		return workload.NewCSVSource(cfg.Source.Path), noop, nil
	case "kubernetes":
		client, err := kubeClient()
		if err != nil {
			return nil, noop, err
		}
		return workload.NewKubernetesSource(client.Clientset), noop, nil
	case "prometheus":
		return openPrometheus(ctx)
	}
	return nil, noop, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
}

func kubeClient() (*kube.Client, error) {
	client, err := kube.NewClient(cfg.Kubernetes.Kubeconfig, cfg.Kubernetes.Context)
	if err != nil {
		return nil, fmt.Errorf("connecting to Kubernetes: %w", err)
	}
	// Auto-detect cluster name from kube context if not set
	if cfg.Cluster.Name == "" && client.Context != "" {
		cfg.Cluster.Name = client.Context
	}
	return client, nil
}

func openPrometheus(ctx context.Context) (workload.Source, func(), error) {
	opts := []workload.PrometheusOption{workload.WithTimeout(cfg.Prometheus.Timeout)}

	// The cluster is needed to discover the endpoint and to map nodes to
	// node groups.
	var client *kube.Client
	if cfg.Kubernetes.Discover || cfg.Source.NodeGroup != "" {
		var err error
		if client, err = kubeClient(); err != nil {
			return nil, noop, err
		}
		index, groups, err := kube.NodeGroupIndex(ctx, client.Clientset)
		switch {
		case err != nil && cfg.Source.NodeGroup != "":
			return nil, noop, fmt.Errorf("indexing node groups: %w", err)
		case err != nil:
			klog.ErrorS(err, "Could not index node groups, pods stay untagged")
		default:
			klog.V(2).InfoS("Indexed node groups", "groups", len(groups), "nodes", len(index))
			opts = append(opts, workload.WithNodeGroups(index))
		}
	}

	// Explicit URL takes precedence
	if cfg.Prometheus.URL != "" {
		src, err := workload.NewPrometheusSource(cfg.Prometheus.URL, opts...)
		return src, noop, err
	}
	if client == nil {
		return nil, noop, fmt.Errorf("provide --prometheus-url or use --discover to auto-detect the metrics endpoint")
	}

	ep, err := kube.Discover(ctx, client.Clientset, kube.DiscoveryOptions{
		Namespace: cfg.Kubernetes.DiscoveryNamespace,
	})
	if err != nil {
		return nil, noop, err
	}
	klog.InfoS("Discovered metrics backend", "backend", ep.Backend, "url", ep.URL(),
		"service", klog.KRef(ep.Namespace, ep.Service))

	promURL := ep.URL()
	cleanup := noop
	if !client.InCluster {
		session, err := kube.PortForward(ctx, client.RestConfig, client.Clientset, ep)
		if err != nil {
			return nil, noop, fmt.Errorf("starting port-forward: %w", err)
		}
		promURL = session.URL()
		cleanup = session.Close
	}

	src, err := workload.NewPrometheusSource(promURL, opts...)
	if err != nil {
		cleanup()
		return nil, noop, err
	}
	return src, cleanup, nil
}

// loadOptions maps the source section of the config onto load options.
func loadOptions() workload.LoadOptions {
	return workload.LoadOptions{
		Namespaces:        cfg.Source.Namespaces,
		ExcludeNamespaces: cfg.Source.ExcludeNamespaces,
		NodeGroup:         cfg.Source.NodeGroup,
		HashNames:         cfg.Source.HashNames,
		Percentile:        cfg.Source.Percentile,
		Window:            cfg.Source.Window,
		Step:              cfg.Source.Step,
	}
}

// loadSnapshot opens the configured source, checks it and loads a snapshot.
func loadSnapshot(ctx context.Context) (workload.Source, *model.Snapshot, error) {
	src, cleanup, err := openSource(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer cleanup()

	if err := src.Ping(ctx); err != nil {
		return nil, nil, err
	}
	snap, err := src.Load(ctx, loadOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("loading workloads from %s: %w", src.Name(), err)
	}
	if snap.ClusterName == "" {
		snap.ClusterName = cfg.Cluster.Name
	}
	if snap.Region == "" {
		snap.Region = cfg.Cluster.Region
	}
	klog.InfoS("Loaded workloads", "source", src.Name(), "units", len(snap.Workloads),
		"daemonSets", snap.DaemonSetCount)
	return src, snap, nil
}

// loadRawCatalog returns the filtered raw node types of the configured
// catalog, before overhead is subtracted.
func loadRawCatalog(ctx context.Context) ([]catalog.RawNodeType, error) {
	filter := catalog.Filter{
		Families:        cfg.Catalog.Families,
		MinVCPUs:        cfg.Catalog.MinVCPUs,
		MaxVCPUs:        cfg.Catalog.MaxVCPUs,
		IncludeUnpriced: cfg.Catalog.IncludeUnpriced,
	}
	for _, a := range cfg.Catalog.Architectures {
		filter.Architectures = append(filter.Architectures, model.Architecture(a))
	}

	var raw []catalog.RawNodeType
	switch cfg.Catalog.Source {
	case "builtin":
		raw = filter.Apply(catalog.Builtin())
	case "csv":
		loaded, err := catalog.LoadCSVFile(cfg.Catalog.Path)
		if err != nil {
			return nil, err
		}
		raw = filter.Apply(loaded)
	case "aws":
		provider, err := awspkg.NewProvider(ctx, cfg.Cluster.Region, cfg.Catalog.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("creating AWS provider: %w", err)
		}
		if refreshCatalog {
			if err := provider.ClearCache(); err != nil {
				klog.ErrorS(err, "Could not clear catalog cache", "dir", cfg.Catalog.CacheDir)
			}
		}
		raw, err = provider.GetNodeTypes(ctx, awspkg.Options{
			Filter:                filter,
			PriceKind:             awspkg.PriceKind(cfg.Catalog.PriceKind),
			CurrentGenerationOnly: cfg.Catalog.CurrentGenerationOnly,
			ExcludeBareMetal:      cfg.Catalog.ExcludeBareMetal,
			ExcludeBurstable:      cfg.Catalog.ExcludeBurstable,
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown catalog source %q", cfg.Catalog.Source)
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf("catalog %s: no node types match the filters", cfg.Catalog.Source)
	}
	klog.InfoS("Loaded node catalog", "source", cfg.Catalog.Source, "nodeTypes", len(raw))
	return raw, nil
}

// nodeOverhead is the capacity withheld on every node: the configured system
// reservation plus, when enabled, the DaemonSet requests of the snapshot.
func nodeOverhead(snap *model.Snapshot) model.ResourceQuantity {
	overhead := model.ResourceQuantity{
		CPUMillis: cfg.Overhead.CPUMillis,
		MemoryMB:  cfg.Overhead.MemoryMB,
	}
	if cfg.Overhead.IncludeDaemonSets && snap != nil {
		overhead = overhead.Add(snap.DaemonSetOverhead)
	}
	return overhead
}
