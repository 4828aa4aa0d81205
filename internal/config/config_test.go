package config

import (
	"testing"
)

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown source", func(c *Config) { c.Source.Kind = "sql" }},
		{"csv source without path", func(c *Config) { c.Source.Kind = "csv" }},
		{"static source without path", func(c *Config) { c.Source.Kind = "static" }},
		{"percentile above 1", func(c *Config) { c.Source.Percentile = 1.5 }},
		{"negative percentile", func(c *Config) { c.Source.Percentile = -0.1 }},
		{"percentile without window", func(c *Config) { c.Source.Percentile = 0.95; c.Source.Window = 0 }},
		{"unknown catalog", func(c *Config) { c.Catalog.Source = "gcp" }},
		{"csv catalog without path", func(c *Config) { c.Catalog.Source = "csv" }},
		{"unknown price kind", func(c *Config) { c.Catalog.PriceKind = "reserved" }},
		{"inverted vcpu range", func(c *Config) { c.Catalog.MinVCPUs = 8; c.Catalog.MaxVCPUs = 4 }},
		{"unknown architecture", func(c *Config) { c.Catalog.Architectures = []string{"riscv"} }},
		{"negative overhead", func(c *Config) { c.Overhead.MemoryMB = -1 }},
		{"unknown solver", func(c *Config) { c.Solver.Kind = "milp" }},
		{"negative node limit", func(c *Config) { c.Solver.NodeLimit = -1 }},
		{"invalid format", func(c *Config) { c.Output.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidate_Accepts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"csv source", func(c *Config) { c.Source.Kind = "csv"; c.Source.Path = "pods.csv" }},
		{"prometheus percentile", func(c *Config) { c.Source.Kind = "prometheus"; c.Source.Percentile = 0.99 }},
		{"aws spot", func(c *Config) { c.Catalog.Source = "aws"; c.Catalog.PriceKind = "spot" }},
		{"open vcpu range", func(c *Config) { c.Catalog.MinVCPUs = 4 }},
		{"heuristic solver", func(c *Config) { c.Solver.Kind = "heuristic" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidate_TopN_FixesZero(t *testing.T) {
	cfg := Default()
	cfg.Output.TopN = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Output.TopN != 5 {
		t.Errorf("expected TopN to be fixed to 5, got %d", cfg.Output.TopN)
	}
}

func TestDetectRegion(t *testing.T) {
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_DEFAULT_REGION", "eu-west-3")
	if got := detectRegion(); got != "eu-west-3" {
		t.Errorf("detectRegion() = %q, want eu-west-3", got)
	}

	t.Setenv("AWS_REGION", "ap-south-1")
	if got := detectRegion(); got != "ap-south-1" {
		t.Errorf("detectRegion() = %q, want ap-south-1", got)
	}
}
