package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the top-level configuration for fleetfit.
type Config struct {
	Cluster    ClusterConfig    `yaml:"cluster" mapstructure:"cluster"`
	Source     SourceConfig     `yaml:"source" mapstructure:"source"`
	Prometheus PrometheusConfig `yaml:"prometheus" mapstructure:"prometheus"`
	Kubernetes KubernetesConfig `yaml:"kubernetes" mapstructure:"kubernetes"`
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	Overhead   OverheadConfig   `yaml:"overhead" mapstructure:"overhead"`
	Solver     SolverConfig     `yaml:"solver" mapstructure:"solver"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
}

type ClusterConfig struct {
	Name   string `yaml:"name" mapstructure:"name"`
	Region string `yaml:"region" mapstructure:"region"`
}

// SourceConfig selects where workloads are loaded from.
type SourceConfig struct {
	Kind              string        `yaml:"kind" mapstructure:"kind"` // static, csv, prometheus, kubernetes
	Path              string        `yaml:"path" mapstructure:"path"` // static and csv
	Namespaces        []string      `yaml:"namespaces" mapstructure:"namespaces"`
	ExcludeNamespaces []string      `yaml:"exclude_namespaces" mapstructure:"exclude_namespaces"`
	NodeGroup         string        `yaml:"node_group" mapstructure:"node_group"`
	HashNames         bool          `yaml:"hash_names" mapstructure:"hash_names"`
	Percentile        float64       `yaml:"percentile" mapstructure:"percentile"` // 0 = size by requests only
	Window            time.Duration `yaml:"window" mapstructure:"window"`
	Step              time.Duration `yaml:"step" mapstructure:"step"`
}

type PrometheusConfig struct {
	URL     string        `yaml:"url" mapstructure:"url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type KubernetesConfig struct {
	Kubeconfig         string `yaml:"kubeconfig" mapstructure:"kubeconfig"`
	Context            string `yaml:"context" mapstructure:"context"`
	Discover           bool   `yaml:"discover" mapstructure:"discover"`
	DiscoveryNamespace string `yaml:"discovery_namespace" mapstructure:"discovery_namespace"` // empty = all namespaces
}

// CatalogConfig selects and filters the candidate node types.
type CatalogConfig struct {
	Source                string   `yaml:"source" mapstructure:"source"` // builtin, csv, aws
	Path                  string   `yaml:"path" mapstructure:"path"`
	Families              []string `yaml:"families" mapstructure:"families"`
	Architectures         []string `yaml:"architectures" mapstructure:"architectures"`
	MinVCPUs              int      `yaml:"min_vcpus" mapstructure:"min_vcpus"`
	MaxVCPUs              int      `yaml:"max_vcpus" mapstructure:"max_vcpus"`
	IncludeUnpriced       bool     `yaml:"include_unpriced" mapstructure:"include_unpriced"`
	PriceKind             string   `yaml:"price_kind" mapstructure:"price_kind"` // on-demand, spot
	CurrentGenerationOnly bool     `yaml:"current_generation_only" mapstructure:"current_generation_only"`
	ExcludeBareMetal      bool     `yaml:"exclude_bare_metal" mapstructure:"exclude_bare_metal"`
	ExcludeBurstable      bool     `yaml:"exclude_burstable" mapstructure:"exclude_burstable"`
	CacheDir              string   `yaml:"cache_dir" mapstructure:"cache_dir"`
}

// OverheadConfig is the per-node capacity withheld from workloads.
type OverheadConfig struct {
	CPUMillis float64 `yaml:"cpu_millis" mapstructure:"cpu_millis"`
	MemoryMB  float64 `yaml:"memory_mb" mapstructure:"memory_mb"`

	// Add the DaemonSet requests found by the workload source.
	IncludeDaemonSets bool `yaml:"include_daemon_sets" mapstructure:"include_daemon_sets"`
}

type SolverConfig struct {
	Kind            string        `yaml:"kind" mapstructure:"kind"` // exact, heuristic
	TimeLimit       time.Duration `yaml:"time_limit" mapstructure:"time_limit"`
	NodeLimit       int64         `yaml:"node_limit" mapstructure:"node_limit"`
	RunTimeout      time.Duration `yaml:"run_timeout" mapstructure:"run_timeout"`
	Workers         int           `yaml:"workers" mapstructure:"workers"`
	AllowBestEffort bool          `yaml:"allow_best_effort" mapstructure:"allow_best_effort"`
}

type OutputConfig struct {
	Format        string `yaml:"format" mapstructure:"format"`
	TopN          int    `yaml:"top_n" mapstructure:"top_n"`
	ShowPlacement bool   `yaml:"show_placement" mapstructure:"show_placement"`
	MetricsFile   string `yaml:"metrics_file" mapstructure:"metrics_file"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Cluster: ClusterConfig{
			Region: detectRegion(),
		},
		Source: SourceConfig{
			Kind:   "kubernetes",
			Window: 7 * 24 * time.Hour,
			Step:   5 * time.Minute,
			ExcludeNamespaces: []string{
				"kube-node-lease",
			},
		},
		Prometheus: PrometheusConfig{
			Timeout: 60 * time.Second,
		},
		Catalog: CatalogConfig{
			Source:                "builtin",
			PriceKind:             "on-demand",
			CurrentGenerationOnly: true,
			ExcludeBareMetal:      true,
			ExcludeBurstable:      true,
			CacheDir:              defaultCacheDir(),
		},
		Overhead: OverheadConfig{
			IncludeDaemonSets: true,
		},
		Solver: SolverConfig{
			Kind:            "exact",
			TimeLimit:       10 * time.Second,
			AllowBestEffort: true,
		},
		Output: OutputConfig{
			Format: "table",
			TopN:   5,
		},
	}
}

// Validate checks the config for consistency.
func (c *Config) Validate() error {
	validSources := map[string]bool{"static": true, "csv": true, "prometheus": true, "kubernetes": true}
	if !validSources[c.Source.Kind] {
		return fmt.Errorf("source kind must be static, csv, prometheus, or kubernetes, got %q", c.Source.Kind)
	}
	if (c.Source.Kind == "static" || c.Source.Kind == "csv") && c.Source.Path == "" {
		return fmt.Errorf("source path is required for %s sources", c.Source.Kind)
	}
	if c.Source.Percentile < 0 || c.Source.Percentile > 1.0 {
		return fmt.Errorf("percentile must be between 0 and 1.0, got %v", c.Source.Percentile)
	}
	if c.Source.Percentile > 0 && c.Source.Window <= 0 {
		return fmt.Errorf("usage window must be positive, got %v", c.Source.Window)
	}

	validCatalogs := map[string]bool{"builtin": true, "csv": true, "aws": true}
	if !validCatalogs[c.Catalog.Source] {
		return fmt.Errorf("catalog source must be builtin, csv, or aws, got %q", c.Catalog.Source)
	}
	if c.Catalog.Source == "csv" && c.Catalog.Path == "" {
		return fmt.Errorf("catalog path is required for csv catalogs")
	}
	if c.Catalog.PriceKind != "on-demand" && c.Catalog.PriceKind != "spot" {
		return fmt.Errorf("price kind must be on-demand or spot, got %q", c.Catalog.PriceKind)
	}
	if c.Catalog.MinVCPUs < 0 || c.Catalog.MaxVCPUs < 0 ||
		(c.Catalog.MaxVCPUs > 0 && c.Catalog.MinVCPUs > c.Catalog.MaxVCPUs) {
		return fmt.Errorf("invalid vCPU range %d..%d", c.Catalog.MinVCPUs, c.Catalog.MaxVCPUs)
	}
	for _, a := range c.Catalog.Architectures {
		if a != "amd64" && a != "arm64" {
			return fmt.Errorf("architecture must be amd64 or arm64, got %q", a)
		}
	}

	if c.Overhead.CPUMillis < 0 || c.Overhead.MemoryMB < 0 {
		return fmt.Errorf("overhead must be non-negative, got cpu=%v memory=%v", c.Overhead.CPUMillis, c.Overhead.MemoryMB)
	}

	if c.Solver.Kind != "exact" && c.Solver.Kind != "heuristic" {
		return fmt.Errorf("solver kind must be exact or heuristic, got %q", c.Solver.Kind)
	}
	if c.Solver.TimeLimit < 0 || c.Solver.NodeLimit < 0 || c.Solver.RunTimeout < 0 || c.Solver.Workers < 0 {
		return fmt.Errorf("solver limits must be non-negative")
	}

	validFormats := map[string]bool{"table": true, "json": true, "markdown": true, "csv": true}
	if !validFormats[c.Output.Format] {
		return fmt.Errorf("output format must be table, json, markdown, or csv, got %q", c.Output.Format)
	}
	if c.Output.TopN <= 0 {
		c.Output.TopN = 5
	}
	return nil
}

// detectRegion checks environment variables for the AWS region.
func detectRegion() string {
	if r := os.Getenv("AWS_REGION"); r != "" {
		return r
	}
	if r := os.Getenv("AWS_DEFAULT_REGION"); r != "" {
		return r
	}
	return "us-east-1"
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "fleetfit")
}
