package model

import (
	"errors"
	"math"
	"testing"
)

func TestResourceQuantity_Add(t *testing.T) {
	a := ResourceQuantity{CPUMillis: 500, MemoryMB: 1024}
	b := ResourceQuantity{CPUMillis: 300, MemoryMB: 2048}
	result := a.Add(b)

	if result.CPUMillis != 800 {
		t.Errorf("CPUMillis: got %v, want 800", result.CPUMillis)
	}
	if result.MemoryMB != 3072 {
		t.Errorf("MemoryMB: got %v, want 3072", result.MemoryMB)
	}
}

func TestResourceQuantity_Sub(t *testing.T) {
	a := ResourceQuantity{CPUMillis: 500, MemoryMB: 2048}
	b := ResourceQuantity{CPUMillis: 300, MemoryMB: 1024}
	result := a.Sub(b)

	if result.CPUMillis != 200 {
		t.Errorf("CPUMillis: got %v, want 200", result.CPUMillis)
	}
	if result.MemoryMB != 1024 {
		t.Errorf("MemoryMB: got %v, want 1024", result.MemoryMB)
	}
}

func TestResourceQuantity_FitsIn(t *testing.T) {
	tests := []struct {
		name     string
		r        ResourceQuantity
		capacity ResourceQuantity
		want     bool
	}{
		{"exact fit", ResourceQuantity{1000, 1024}, ResourceQuantity{1000, 1024}, true},
		{"smaller", ResourceQuantity{500, 512}, ResourceQuantity{1000, 1024}, true},
		{"cpu exceeds", ResourceQuantity{1500, 512}, ResourceQuantity{1000, 1024}, false},
		{"mem exceeds", ResourceQuantity{500, 2048}, ResourceQuantity{1000, 1024}, false},
		{"both exceed", ResourceQuantity{1500, 2048}, ResourceQuantity{1000, 1024}, false},
		{"zero fits anything", ResourceQuantity{0, 0}, ResourceQuantity{1000, 1024}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.FitsIn(tt.capacity); got != tt.want {
				t.Errorf("FitsIn() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResourceQuantity_IsZero(t *testing.T) {
	if !(ResourceQuantity{0, 0}).IsZero() {
		t.Error("expected zero to be zero")
	}
	if (ResourceQuantity{1, 0}).IsZero() {
		t.Error("expected non-zero CPU to not be zero")
	}
	if (ResourceQuantity{0, 1}).IsZero() {
		t.Error("expected non-zero memory to not be zero")
	}
}

func TestWorkloadSet_Validate(t *testing.T) {
	tests := []struct {
		name    string
		set     WorkloadSet
		wantErr bool
	}{
		{"valid", WorkloadSet{{ID: "a", CPUMillis: 100, MemoryMB: 10}, {ID: "b", CPUMillis: 1, MemoryMB: 1}}, false},
		{"empty", nil, true},
		{"zero cpu", WorkloadSet{{ID: "a", CPUMillis: 0, MemoryMB: 10}}, true},
		{"negative mem", WorkloadSet{{ID: "a", CPUMillis: 10, MemoryMB: -1}}, true},
		{"nan cpu", WorkloadSet{{ID: "a", CPUMillis: math.NaN(), MemoryMB: 1}}, true},
		{"inf mem", WorkloadSet{{ID: "a", CPUMillis: 1, MemoryMB: math.Inf(1)}}, true},
		{"duplicate id", WorkloadSet{{ID: "a", CPUMillis: 1, MemoryMB: 1}, {ID: "a", CPUMillis: 2, MemoryMB: 2}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidDemand) {
				t.Errorf("expected ErrInvalidDemand, got %v", err)
			}
		})
	}
}

func TestWorkloadSet_Totals(t *testing.T) {
	ws := WorkloadSet{
		{ID: "a", CPUMillis: 500, MemoryMB: 1024},
		{ID: "b", CPUMillis: 300, MemoryMB: 2048},
	}

	if got := ws.Total(); got != (ResourceQuantity{800, 3072}) {
		t.Errorf("Total() = %+v, want {800, 3072}", got)
	}
	if got := ws.Largest(); got != (ResourceQuantity{500, 2048}) {
		t.Errorf("Largest() = %+v, want {500, 2048}", got)
	}
}

func TestWorkloadUnit_Label(t *testing.T) {
	if got := (WorkloadUnit{ID: "x", Namespace: "prod", Name: "web"}).Label(); got != "prod/web" {
		t.Errorf("Label() = %q", got)
	}
	if got := (WorkloadUnit{ID: "x"}).Label(); got != "x" {
		t.Errorf("Label() = %q", got)
	}
}

func TestNodeType_CanHost(t *testing.T) {
	n := NodeType{ID: "m5.large", CPUCapacity: 1900, MemCapacity: 7000}
	if !n.CanHost(ResourceQuantity{1900, 7000}) {
		t.Error("expected exact fit to be hostable")
	}
	if n.CanHost(ResourceQuantity{1901, 10}) {
		t.Error("expected cpu overflow to be rejected")
	}
}

func TestPacking_Feasible(t *testing.T) {
	var nilPacking *Packing
	if nilPacking.Feasible() || nilPacking.BinCount() != 0 {
		t.Error("nil packing must be infeasible with zero bins")
	}

	p := &Packing{Status: StatusBestEffort, Bins: []Bin{{Units: []string{"a"}}}}
	if !p.Feasible() {
		t.Error("best-effort packing with bins should be feasible")
	}

	p = &Packing{Status: StatusInfeasible}
	if p.Feasible() {
		t.Error("infeasible packing reported feasible")
	}
}

func TestPlanResult_Ranked(t *testing.T) {
	pr := PlanResult{
		Results: []EvaluationResult{
			{Index: 0, NodeType: NodeType{ID: "a"}, BinsUsed: 3, TotalCost: 30},
			{Index: 1, NodeType: NodeType{ID: "b"}, BinsUsed: 0, TotalCost: 0, Excluded: true},
			{Index: 2, NodeType: NodeType{ID: "c"}, BinsUsed: 1, TotalCost: 20},
			{Index: 3, NodeType: NodeType{ID: "d"}, BinsUsed: 2, TotalCost: 20, Provisional: true},
		},
	}

	ranked := pr.Ranked()
	if len(ranked) != 3 {
		t.Fatalf("expected 3 ranked results, got %d", len(ranked))
	}
	want := []string{"c", "d", "a"}
	for i, id := range want {
		if ranked[i].NodeType.ID != id {
			t.Errorf("rank %d: got %s, want %s", i, ranked[i].NodeType.ID, id)
		}
	}
	if pr.ProvisionalCount() != 1 {
		t.Errorf("ProvisionalCount() = %d, want 1", pr.ProvisionalCount())
	}
}

func TestEvaluationError_Unwrap(t *testing.T) {
	err := &EvaluationError{NodeType: NodeType{ID: "m5.large"}, Err: ErrCacheComputation}
	if !errors.Is(err, ErrCacheComputation) {
		t.Error("expected EvaluationError to unwrap to its cause")
	}
}
