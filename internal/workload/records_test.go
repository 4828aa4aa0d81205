package workload

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleRecords() []PodRecord {
	return []PodRecord{
		{PodName: "web-1", NodeName: "n1", NodeGroup: "3", Namespace: "prod", OwnerKind: "ReplicaSet", OwnerName: "web-7d9", ReqCPUMilli: 500, ReqMemBytes: 1_000_000_000},
		{PodName: "web-2", NodeName: "n2", NodeGroup: "3", Namespace: "prod", OwnerKind: "ReplicaSet", OwnerName: "web-7d9", ReqCPUMilli: 500, ReqMemBytes: 1_000_000_000},
		{PodName: "batch-1", NodeName: "n9", NodeGroup: "1", Namespace: "batch", OwnerKind: "Job", OwnerName: "nightly", ReqCPUMilli: 2000, ReqMemBytes: 4_000_000_000},
		{PodName: "idle", NodeName: "n1", NodeGroup: "3", Namespace: "prod", OwnerKind: "ReplicaSet", OwnerName: "idle-1", ReqCPUMilli: 0, ReqMemBytes: 100_000_000},
		{PodName: "fluent-a", NodeName: "n1", NodeGroup: "3", Namespace: "logging", OwnerKind: "DaemonSet", OwnerName: "fluent", ReqCPUMilli: 100, ReqMemBytes: 200_000_000},
		{PodName: "fluent-b", NodeName: "n2", NodeGroup: "3", Namespace: "logging", OwnerKind: "DaemonSet", OwnerName: "fluent", ReqCPUMilli: 300, ReqMemBytes: 400_000_000},
		{PodName: "exporter-a", NodeName: "n1", NodeGroup: "3", Namespace: "monitoring", OwnerKind: "DaemonSet", OwnerName: "node-exporter", ReqCPUMilli: 50, ReqMemBytes: 50_000_000},
	}
}

func TestBuildSnapshot(t *testing.T) {
	snap, err := BuildSnapshot(sampleRecords(), LoadOptions{}, "csv")
	if err != nil {
		t.Fatal(err)
	}

	var ids []string
	for _, w := range snap.Workloads {
		ids = append(ids, w.ID)
	}
	want := []string{"prod/web-1", "prod/web-2", "batch/batch-1"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("workload ids mismatch (-want +got):\n%s", diff)
	}

	web := snap.Workloads[0]
	if web.CPUMillis != 500 || web.MemoryMB != 1000 {
		t.Errorf("web-1 demand = (%v, %v), want (500, 1000)", web.CPUMillis, web.MemoryMB)
	}

	// fluent: mean(100, 300) = 200m, mean(200, 400) = 300 MB; node-exporter: 50m, 50 MB.
	if snap.DaemonSetOverhead.CPUMillis != 250 {
		t.Errorf("overhead cpu = %v, want 250", snap.DaemonSetOverhead.CPUMillis)
	}
	if snap.DaemonSetOverhead.MemoryMB != 350 {
		t.Errorf("overhead memory = %v, want 350", snap.DaemonSetOverhead.MemoryMB)
	}
	if snap.DaemonSetCount != 2 {
		t.Errorf("DaemonSetCount = %d, want 2", snap.DaemonSetCount)
	}
	if snap.Source != "csv" {
		t.Errorf("Source = %q", snap.Source)
	}
}

func TestBuildSnapshot_Filters(t *testing.T) {
	tests := []struct {
		name    string
		opts    LoadOptions
		wantIDs []string
		wantDS  int
		wantErr error
	}{
		{
			name:    "node group",
			opts:    LoadOptions{NodeGroup: "3"},
			wantIDs: []string{"prod/web-1", "prod/web-2"},
			wantDS:  2,
		},
		{
			name:    "namespaces",
			opts:    LoadOptions{Namespaces: []string{"batch", "logging"}},
			wantIDs: []string{"batch/batch-1"},
			wantDS:  1,
		},
		{
			name:    "exclude namespaces",
			opts:    LoadOptions{ExcludeNamespaces: []string{"prod", "monitoring"}},
			wantIDs: []string{"batch/batch-1"},
			wantDS:  1,
		},
		{
			name:    "nothing left",
			opts:    LoadOptions{NodeGroup: "42"},
			wantErr: ErrNoWorkloads,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := BuildSnapshot(sampleRecords(), tt.opts, "csv")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			var ids []string
			for _, w := range snap.Workloads {
				ids = append(ids, w.ID)
			}
			if diff := cmp.Diff(tt.wantIDs, ids); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
			if snap.DaemonSetCount != tt.wantDS {
				t.Errorf("DaemonSetCount = %d, want %d", snap.DaemonSetCount, tt.wantDS)
			}
		})
	}
}

func TestBuildSnapshot_DuplicateNames(t *testing.T) {
	records := []PodRecord{
		{PodName: "x", Namespace: "a", ReqCPUMilli: 1, ReqMemBytes: 1},
		{PodName: "x", Namespace: "a", ReqCPUMilli: 1, ReqMemBytes: 1},
	}
	snap, err := BuildSnapshot(records, LoadOptions{}, "csv")
	if err != nil {
		t.Fatal(err)
	}
	if err := snap.Workloads.Validate(); err != nil {
		t.Errorf("expected unique ids, got %v", err)
	}
	if snap.Workloads[1].ID != "a/x#2" {
		t.Errorf("second id = %q, want a/x#2", snap.Workloads[1].ID)
	}
}

func TestPodRecord_IsDaemonSet(t *testing.T) {
	tests := []struct {
		kind string
		want bool
	}{
		{"DaemonSet", true},
		{"Node|DaemonSet", true},
		{"ReplicaSet", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := (PodRecord{OwnerKind: tt.kind}).IsDaemonSet(); got != tt.want {
			t.Errorf("IsDaemonSet(%q) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestHashRecords(t *testing.T) {
	records := []PodRecord{{PodName: "web", OwnerName: "web-rs"}}
	HashRecords(records)

	// md5("web")
	if records[0].PodName != "2567a5ec9705eb7ac2c984033e06189d" {
		t.Errorf("PodName = %q", records[0].PodName)
	}
	if len(records[0].OwnerName) != 32 || records[0].OwnerName == "web-rs" {
		t.Errorf("OwnerName not hashed: %q", records[0].OwnerName)
	}
}

func TestPodsCSV_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePodsCSV(&buf, sampleRecords()); err != nil {
		t.Fatal(err)
	}

	header, _, _ := strings.Cut(buf.String(), "\n")
	if header != strings.Join(podsHeader, ",") {
		t.Errorf("header = %q", header)
	}

	got, err := ReadPodsCSV(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(sampleRecords(), got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestReadPodsCSV(t *testing.T) {
	input := `namespace,pod_name,owner_kind,owner_name,req_cpu_milli_core,req_mem_byte,extra
prod,web,ReplicaSet,web-rs,250,512000000.0,x
`
	got, err := ReadPodsCSV(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	want := []PodRecord{{PodName: "web", Namespace: "prod", OwnerKind: "ReplicaSet", OwnerName: "web-rs", ReqCPUMilli: 250, ReqMemBytes: 512_000_000}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestReadPodsCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing column", "pod_name,namespace\nweb,prod\n"},
		{"bad number", "pod_name,namespace,owner_kind,owner_name,req_cpu_milli_core,req_mem_byte\nweb,prod,RS,web,abc,1\n"},
		{"fractional", "pod_name,namespace,owner_kind,owner_name,req_cpu_milli_core,req_mem_byte\nweb,prod,RS,web,1.5,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadPodsCSV(strings.NewReader(tt.input))
			if !errors.Is(err, ErrMalformedRecord) {
				t.Errorf("expected ErrMalformedRecord, got %v", err)
			}
		})
	}
}
