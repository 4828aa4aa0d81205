package packing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/guimove/fleetfit/internal/model"
)

func TestBranchAndBound_ThreeUnitsScenarios(t *testing.T) {
	units := makeUnits("pod", 3, 400, 1000)

	tests := []struct {
		name     string
		capacity model.ResourceQuantity
		wantBins int
	}{
		{"one unit per bin", capacity(500, 1200), 3},
		{"all units in one bin", capacity(1200, 3000), 1},
		{"two then one", capacity(800, 2000), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			solver := &BranchAndBound{}
			result, err := solver.Solve(context.Background(), units, tt.capacity, Budget{})
			if err != nil {
				t.Fatal(err)
			}
			if result.Status != model.StatusOptimal {
				t.Errorf("expected optimal, got %s", result.Status)
			}
			if got := len(result.Bins); got != tt.wantBins {
				t.Errorf("bins = %d, want %d", got, tt.wantBins)
			}
			if err := Verify(units, result); err != nil {
				t.Error(err)
			}
		})
	}
}

// ffdTrap is the classic instance where first-fit decreasing uses 11 bins
// while 9 suffice: 6×(½+ε), 6×(¼+2ε), 6×(¼+ε), 12×(¼−2ε).
func ffdTrap() model.WorkloadSet {
	var units model.WorkloadSet
	add := func(prefix string, n int, size float64) {
		for i := 0; i < n; i++ {
			units = append(units, makeUnit(fmt.Sprintf("%s-%d", prefix, i), size, size))
		}
	}
	add("a", 6, 510)
	add("b", 6, 270)
	add("c", 6, 260)
	add("d", 12, 230)
	return units
}

func TestBranchAndBound_BeatsGreedy(t *testing.T) {
	units := ffdTrap()
	nodeCap := capacity(1000, 1000)

	greedy, err := (&BestFitDecreasing{}).Solve(context.Background(), units, nodeCap, Budget{})
	if err != nil {
		t.Fatal(err)
	}
	if len(greedy.Bins) != 11 {
		t.Fatalf("greedy bins = %d, want 11", len(greedy.Bins))
	}
	if greedy.Status != model.StatusBestEffort {
		t.Errorf("greedy status = %s, want best-effort", greedy.Status)
	}

	exact, err := (&BranchAndBound{}).Solve(context.Background(), units, nodeCap, Budget{})
	if err != nil {
		t.Fatal(err)
	}
	if exact.Status != model.StatusOptimal {
		t.Fatalf("exact status = %s, want optimal", exact.Status)
	}
	if len(exact.Bins) != 9 {
		t.Errorf("exact bins = %d, want 9", len(exact.Bins))
	}
	if exact.LowerBound != 9 {
		t.Errorf("lower bound = %d, want 9", exact.LowerBound)
	}
	if err := Verify(units, exact); err != nil {
		t.Error(err)
	}
}

func TestBranchAndBound_NodeLimitYieldsBestEffort(t *testing.T) {
	units := ffdTrap()

	result, err := (&BranchAndBound{}).Solve(context.Background(), units, capacity(1000, 1000), Budget{NodeLimit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != model.StatusBestEffort {
		t.Fatalf("status = %s, want best-effort", result.Status)
	}
	// Incumbent from the heuristics is still a valid packing
	if len(result.Bins) != 11 {
		t.Errorf("bins = %d, want 11", len(result.Bins))
	}
	if result.LowerBound != 9 {
		t.Errorf("lower bound = %d, want 9", result.LowerBound)
	}
	if err := Verify(units, result); err != nil {
		t.Error(err)
	}
}

func TestBranchAndBound_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := (&BranchAndBound{}).Solve(ctx, ffdTrap(), capacity(1000, 1000), Budget{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != model.StatusCancelled {
		t.Errorf("status = %s, want cancelled", result.Status)
	}
	if len(result.Bins) != 0 {
		t.Errorf("cancelled packing must not report bins, got %d", len(result.Bins))
	}
	if result.Feasible() {
		t.Error("cancelled packing must not be feasible")
	}
}

func TestBranchAndBound_Infeasible(t *testing.T) {
	units := model.WorkloadSet{
		makeUnit("small", 100, 100),
		makeUnit("wide", 100, 5000),
	}

	result, err := (&BranchAndBound{}).Solve(context.Background(), units, capacity(1000, 4000), Budget{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != model.StatusInfeasible || len(result.Bins) != 0 {
		t.Errorf("expected empty infeasible packing, got %s with %d bins", result.Status, len(result.Bins))
	}
}

func TestBranchAndBound_InvalidCapacity(t *testing.T) {
	_, err := (&BranchAndBound{}).Solve(context.Background(), makeUnits("a", 1, 1, 1), capacity(1, math.Inf(1)), Budget{})
	if !errors.Is(err, ErrInvalidCapacity) {
		t.Errorf("expected ErrInvalidCapacity, got %v", err)
	}
}

func TestBranchAndBound_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	nodeCap := capacity(1000, 4000)

	for trial := 0; trial < 50; trial++ {
		n := 1 + rng.Intn(8)
		units := make(model.WorkloadSet, n)
		for i := range units {
			units[i] = makeUnit(fmt.Sprintf("u%d", i),
				float64(50+rng.Intn(700)),
				float64(100+rng.Intn(2800)))
		}

		result, err := (&BranchAndBound{}).Solve(context.Background(), units, nodeCap, Budget{})
		if err != nil {
			t.Fatal(err)
		}
		if result.Status != model.StatusOptimal {
			t.Fatalf("trial %d: status = %s, want optimal", trial, result.Status)
		}
		if err := Verify(units, result); err != nil {
			t.Fatalf("trial %d: %v", trial, err)
		}
		if want := bruteForceBins(units, nodeCap); len(result.Bins) != want {
			t.Errorf("trial %d: bins = %d, brute force = %d", trial, len(result.Bins), want)
		}
	}
}

func TestBranchAndBound_MonotonicFeasibility(t *testing.T) {
	units := model.WorkloadSet{
		makeUnit("a", 700, 1500),
		makeUnit("b", 300, 2500),
		makeUnit("c", 500, 500),
		makeUnit("d", 250, 3000),
	}

	caps := []model.ResourceQuantity{
		capacity(700, 3000),
		capacity(800, 3000),
		capacity(1000, 4000),
		capacity(2000, 8000),
		capacity(4000, 16000),
	}

	prevBins := -1
	for _, c := range caps {
		result, err := (&BranchAndBound{}).Solve(context.Background(), units, c, Budget{})
		if err != nil {
			t.Fatal(err)
		}
		if !result.Feasible() {
			t.Fatalf("capacity %+v: expected feasible packing", c)
		}
		// Optimal bin counts never grow with capacity
		if prevBins >= 0 && len(result.Bins) > prevBins {
			t.Errorf("capacity %+v: bins grew from %d to %d", c, prevBins, len(result.Bins))
		}
		prevBins = len(result.Bins)
	}
	if prevBins != 1 {
		t.Errorf("largest capacity should hold everything on one bin, got %d", prevBins)
	}
}

// bruteForceBins enumerates every set partition of units (restricted growth
// strings) and returns the fewest bins that respect capacity.
func bruteForceBins(units model.WorkloadSet, c model.ResourceQuantity) int {
	n := len(units)
	best := n
	cpu := make([]float64, n)
	mem := make([]float64, n)

	var rec func(i, open int)
	rec = func(i, open int) {
		if open >= best {
			return
		}
		if i == n {
			best = open
			return
		}
		u := units[i]
		for j := 0; j <= open && j < n; j++ {
			if cpu[j]+u.CPUMillis > c.CPUMillis || mem[j]+u.MemoryMB > c.MemoryMB {
				continue
			}
			cpu[j] += u.CPUMillis
			mem[j] += u.MemoryMB
			next := open
			if j == open {
				next++
			}
			rec(i+1, next)
			cpu[j] -= u.CPUMillis
			mem[j] -= u.MemoryMB
		}
	}
	rec(0, 0)
	return best
}

func TestSolvers_NeverOverfillAtCapacityBoundary(t *testing.T) {
	nodeCap := capacity(1000, 4000)
	tests := []struct {
		name     string
		units    model.WorkloadSet
		wantBins int
	}{
		{
			name:     "just over half each",
			units:    model.WorkloadSet{makeUnit("a", 500.0000001, 100), makeUnit("b", 500.0000001, 100)},
			wantBins: 2,
		},
		{
			name:     "memory just over",
			units:    model.WorkloadSet{makeUnit("a", 100, 2000), makeUnit("b", 100, 2000.000001)},
			wantBins: 2,
		},
		{
			name:     "exact fill",
			units:    model.WorkloadSet{makeUnit("a", 500, 2000), makeUnit("b", 500, 2000)},
			wantBins: 1,
		},
	}

	solvers := []Solver{&BranchAndBound{}, &BestFitDecreasing{}}
	for _, tt := range tests {
		for _, s := range solvers {
			t.Run(tt.name+"/"+s.Name(), func(t *testing.T) {
				result, err := s.Solve(context.Background(), tt.units, nodeCap, Budget{})
				if err != nil {
					t.Fatal(err)
				}
				if len(result.Bins) != tt.wantBins {
					t.Errorf("bins = %d, want %d", len(result.Bins), tt.wantBins)
				}
				for i, b := range result.Bins {
					if b.UsedCPU > nodeCap.CPUMillis || b.UsedMem > nodeCap.MemoryMB {
						t.Errorf("bin %d over capacity: cpu=%v mem=%v", i, b.UsedCPU, b.UsedMem)
					}
				}
				if err := Verify(tt.units, result); err != nil {
					t.Error(err)
				}
			})
		}
	}
}
