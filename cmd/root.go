package cmd

import (
	goflag "flag"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"

	"github.com/guimove/fleetfit/internal/config"
)

var (
	cfgFile        string
	cfg            config.Config
	verbose        bool
	refreshCatalog bool

	klogFlags = goflag.NewFlagSet("klog", goflag.ExitOnError)
)

var rootCmd = &cobra.Command{
	Use:   "fleetfit",
	Short: "Cheapest homogeneous node fleet for a set of Kubernetes workloads",
	Long: `fleetfit packs the resource requests of your pods onto every candidate
node type of a catalog and picks the type whose fleet is cheapest.

Workloads come from a live cluster, Prometheus (kube-state-metrics), a pods.csv
export or a JSON snapshot. Node types come from the built-in catalog, a CSV
file or the EC2 API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			_ = klogFlags.Set("v", "2")
		}
		return loadConfig()
	},
}

// Execute runs the root command.
func Execute() {
	defer klog.Flush()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	klog.InitFlags(klogFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)

	defaults := config.Default()
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&cfgFile, "config", "", "config file (default: fleetfit.yaml)")
	pf.BoolVar(&verbose, "verbose", false, "enable verbose logging (same as -v=2)")

	pf.String("cluster-name", "", "cluster name shown in reports")
	pf.String("region", defaults.Cluster.Region, "AWS region")

	// Workload source
	pf.String("source", defaults.Source.Kind, "workload source: static, csv, prometheus, kubernetes")
	pf.String("source-path", "", "snapshot (static) or pods.csv (csv) file")
	pf.StringSlice("namespaces", nil, "only consider these namespaces")
	pf.StringSlice("exclude-namespaces", defaults.Source.ExcludeNamespaces, "namespaces to exclude")
	pf.String("node-group", "", "only consider pods scheduled on this node group")
	pf.Bool("hash-names", false, "replace pod and owner names with their md5 digest")
	pf.Float64("percentile", defaults.Source.Percentile, "size units by max(request, usage percentile), 0 disables (prometheus only)")
	pf.Duration("window", defaults.Source.Window, "usage lookback window")
	pf.String("prometheus-url", "", "Prometheus/Thanos endpoint URL")
	pf.String("kubeconfig", "", "path to kubeconfig file")
	pf.String("kube-context", "", "Kubernetes context name")
	pf.BoolP("discover", "d", false, "auto-discover the Prometheus endpoint from Kubernetes")
	pf.String("discovery-namespace", "", "limit service discovery to a namespace")

	// Node catalog
	pf.String("catalog", defaults.Catalog.Source, "node catalog: builtin, csv, aws")
	pf.String("catalog-path", "", "instances.csv file for the csv catalog")
	pf.StringSlice("families", nil, "instance families to consider")
	pf.StringSlice("architectures", nil, "CPU architectures (amd64, arm64)")
	pf.Int("min-vcpus", 0, "minimum vCPUs per node")
	pf.Int("max-vcpus", 0, "maximum vCPUs per node")
	pf.String("price-kind", defaults.Catalog.PriceKind, "price used as node cost: on-demand, spot")
	pf.Bool("include-unpriced", false, "keep node types without a price")
	pf.BoolVar(&refreshCatalog, "refresh-catalog", false, "ignore cached EC2 instance and price lookups")
	pf.Float64("overhead-cpu", 0, "CPU millis reserved per node for the system")
	pf.Float64("overhead-memory", 0, "memory MB reserved per node for the system")
	pf.Bool("daemonset-overhead", defaults.Overhead.IncludeDaemonSets, "reserve the DaemonSet requests on every node")

	bindings := map[string]string{
		"cluster.name":                   "cluster-name",
		"cluster.region":                 "region",
		"source.kind":                    "source",
		"source.path":                    "source-path",
		"source.namespaces":              "namespaces",
		"source.exclude_namespaces":      "exclude-namespaces",
		"source.node_group":              "node-group",
		"source.hash_names":              "hash-names",
		"source.percentile":              "percentile",
		"source.window":                  "window",
		"prometheus.url":                 "prometheus-url",
		"kubernetes.kubeconfig":          "kubeconfig",
		"kubernetes.context":             "kube-context",
		"kubernetes.discover":            "discover",
		"kubernetes.discovery_namespace": "discovery-namespace",
		"catalog.source":                 "catalog",
		"catalog.path":                   "catalog-path",
		"catalog.families":               "families",
		"catalog.architectures":          "architectures",
		"catalog.min_vcpus":              "min-vcpus",
		"catalog.max_vcpus":              "max-vcpus",
		"catalog.price_kind":             "price-kind",
		"catalog.include_unpriced":       "include-unpriced",
		"overhead.cpu_millis":            "overhead-cpu",
		"overhead.memory_mb":             "overhead-memory",
		"overhead.include_daemon_sets":   "daemonset-overhead",
	}
	for key, flag := range bindings {
		_ = viper.BindPFlag(key, pf.Lookup(flag))
	}
}

func loadConfig() error {
	// Start with defaults
	cfg = config.Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("fleetfit")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.fleetfit")
	}

	// Environment variable overrides, e.g. FLEETFIT_SOURCE_KIND
	viper.SetEnvPrefix("FLEETFIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file (not an error if missing)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return fmt.Errorf("reading config file: %w", err)
		}
	} else {
		klog.V(2).InfoS("Loaded config file", "path", viper.ConfigFileUsed())
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	return cfg.Validate()
}
