package solutioncache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/guimove/fleetfit/internal/model"
)

func capacity(cpu, mem float64) model.ResourceQuantity {
	return model.ResourceQuantity{CPUMillis: cpu, MemoryMB: mem}
}

func packing(c model.ResourceQuantity, status model.PackingStatus, bins int) *model.Packing {
	p := &model.Packing{Capacity: c, Status: status}
	for i := 0; i < bins; i++ {
		p.Bins = append(p.Bins, model.Bin{Units: []string{"u"}})
	}
	return p
}

func TestKey(t *testing.T) {
	tests := []struct {
		name  string
		a, b  model.ResourceQuantity
		equal bool
	}{
		{"identical", capacity(1930, 7168), capacity(1930, 7168), true},
		{"cpu differs", capacity(1930, 7168), capacity(1931, 7168), false},
		{"mem differs by rounding", capacity(1930, 7168), capacity(1930, 7168.000000001), false},
		{"swapped dims", capacity(1, 2), capacity(2, 1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.a) == Key(tt.b); got != tt.equal {
				t.Errorf("Key(%+v) == Key(%+v) = %v, want %v", tt.a, tt.b, got, tt.equal)
			}
		})
	}
}

func TestGetOrCompute_MissThenHit(t *testing.T) {
	cache := New()
	c := capacity(2000, 8000)
	var calls int

	compute := func(ctx context.Context) (*model.Packing, error) {
		calls++
		return packing(c, model.StatusOptimal, 2), nil
	}

	first, hit, err := cache.GetOrCompute(context.Background(), c, compute)
	if err != nil {
		t.Fatal(err)
	}
	if hit {
		t.Error("first lookup should be a miss")
	}

	second, hit, err := cache.GetOrCompute(context.Background(), c, compute)
	if err != nil {
		t.Fatal(err)
	}
	if !hit {
		t.Error("second lookup should be a hit")
	}
	if first != second {
		t.Error("hit should return the stored packing")
	}
	if calls != 1 {
		t.Errorf("compute called %d times, want 1", calls)
	}

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Computations != 1 || stats.Entries != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestGetOrCompute_DistinctKeys(t *testing.T) {
	cache := New()
	var calls int
	compute := func(c model.ResourceQuantity) ComputeFunc {
		return func(ctx context.Context) (*model.Packing, error) {
			calls++
			return packing(c, model.StatusOptimal, 1), nil
		}
	}

	for _, c := range []model.ResourceQuantity{capacity(1000, 4000), capacity(1000, 4001), capacity(1000, 4000)} {
		if _, _, err := cache.GetOrCompute(context.Background(), c, compute(c)); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 2 {
		t.Errorf("compute called %d times, want 2", calls)
	}
}

func TestGetOrCompute_ConcurrentCallersShareOneComputation(t *testing.T) {
	cache := New()
	c := capacity(4000, 16000)

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(ctx context.Context) (*model.Packing, error) {
		calls.Add(1)
		<-release
		return packing(c, model.StatusOptimal, 3), nil
	}

	const callers = 16
	var wg sync.WaitGroup
	results := make([]*model.Packing, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = cache.GetOrCompute(context.Background(), c, compute)
		}(i)
	}

	// Let the callers pile up on the in-flight computation
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("compute called %d times, want 1", n)
	}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Errorf("caller %d got a different packing", i)
		}
	}
	if s := cache.Stats(); s.Misses != 1 || s.Hits != callers-1 {
		t.Errorf("stats = %+v, want 1 miss and %d hits", s, callers-1)
	}
}

func TestGetOrCompute_FailureReachesEveryWaiterAndIsNotStored(t *testing.T) {
	cache := New()
	c := capacity(1000, 1000)
	boom := errors.New("solver exploded")

	release := make(chan struct{})
	var calls atomic.Int32
	failing := func(ctx context.Context) (*model.Packing, error) {
		calls.Add(1)
		<-release
		return nil, boom
	}

	const callers = 4
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = cache.GetOrCompute(context.Background(), c, failing)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, model.ErrCacheComputation) {
			t.Errorf("caller %d: expected ErrCacheComputation, got %v", i, err)
		}
		if !errors.Is(err, boom) {
			t.Errorf("caller %d: cause not wrapped: %v", i, err)
		}
	}
	if _, ok := cache.Get(c); ok {
		t.Fatal("failed computation must not be stored")
	}

	// The key is retried on the next call
	p, hit, err := cache.GetOrCompute(context.Background(), c, func(ctx context.Context) (*model.Packing, error) {
		return packing(c, model.StatusOptimal, 1), nil
	})
	if err != nil || hit || p.BinCount() != 1 {
		t.Errorf("retry: packing=%v hit=%v err=%v", p, hit, err)
	}
}

func TestGetOrCompute_NilPackingIsFailure(t *testing.T) {
	cache := New()
	_, _, err := cache.GetOrCompute(context.Background(), capacity(1, 1), func(ctx context.Context) (*model.Packing, error) {
		return nil, nil
	})
	if !errors.Is(err, model.ErrCacheComputation) {
		t.Errorf("expected ErrCacheComputation, got %v", err)
	}
}

func TestGetOrCompute_CancelledNotStored(t *testing.T) {
	cache := New()
	c := capacity(2000, 2000)

	p, _, err := cache.GetOrCompute(context.Background(), c, func(ctx context.Context) (*model.Packing, error) {
		return packing(c, model.StatusCancelled, 0), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != model.StatusCancelled {
		t.Errorf("status = %s, want cancelled", p.Status)
	}
	if _, ok := cache.Get(c); ok {
		t.Error("cancelled packing must not be stored")
	}
}

func TestGetOrCompute_InfeasibleIsStored(t *testing.T) {
	cache := New()
	c := capacity(100, 100)
	var calls int
	compute := func(ctx context.Context) (*model.Packing, error) {
		calls++
		return packing(c, model.StatusInfeasible, 0), nil
	}

	for i := 0; i < 3; i++ {
		if _, _, err := cache.GetOrCompute(context.Background(), c, compute); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Errorf("compute called %d times, want 1", calls)
	}
}
