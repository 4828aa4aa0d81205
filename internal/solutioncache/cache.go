// Package solutioncache memoizes packings by effective node capacity for the
// lifetime of one planning run.
package solutioncache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/guimove/fleetfit/internal/model"
)

var errNilPacking = errors.New("solver returned no packing")

// ComputeFunc produces the packing for one capacity on a cache miss.
type ComputeFunc func(ctx context.Context) (*model.Packing, error)

// Stats counts cache activity.
type Stats struct {
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	Computations int64 `json:"computations"`
	Entries      int   `json:"entries"`
}

// Cache maps a capacity pair to the packing computed for it.
//
// Keys use exact float equality: two capacities that differ by any amount are
// distinct problems. Entries are never evicted. At most one computation runs
// per key; concurrent callers for the same key share its outcome.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*model.Packing
	group   singleflight.Group

	hits         atomic.Int64
	misses       atomic.Int64
	computations atomic.Int64
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*model.Packing)}
}

// Key returns the cache key for a capacity pair. FormatFloat with the
// shortest representation round-trips exactly, so equal keys mean equal
// float64 values.
func Key(capacity model.ResourceQuantity) string {
	return strconv.FormatFloat(capacity.CPUMillis, 'g', -1, 64) + "/" +
		strconv.FormatFloat(capacity.MemoryMB, 'g', -1, 64)
}

// Get returns the stored packing for capacity, if any.
func (c *Cache) Get(capacity model.ResourceQuantity) (*model.Packing, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.entries[Key(capacity)]
	return p, ok
}

// GetOrCompute returns the packing for capacity, running compute at most once
// per key across concurrent callers. The boolean reports a hit: the packing
// was already stored or computed by another caller's flight.
//
// When compute fails every waiter receives an error wrapping
// model.ErrCacheComputation and nothing is stored. Cancelled packings are
// returned to the callers that shared the computation but are not stored.
func (c *Cache) GetOrCompute(ctx context.Context, capacity model.ResourceQuantity, compute ComputeFunc) (*model.Packing, bool, error) {
	key := Key(capacity)

	if p, ok := c.Get(capacity); ok {
		c.hits.Add(1)
		return p, true, nil
	}

	computed := false
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another flight may have stored the key between our lookup and Do.
		if p, ok := c.Get(capacity); ok {
			return p, nil
		}

		computed = true
		c.computations.Add(1)
		p, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, errNilPacking
		}

		if p.Status != model.StatusCancelled {
			c.mu.Lock()
			c.entries[key] = p
			c.mu.Unlock()
		}
		return p, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: capacity %s: %w", model.ErrCacheComputation, key, err)
	}

	if !computed {
		c.hits.Add(1)
		return v.(*model.Packing), true, nil
	}
	c.misses.Add(1)
	return v.(*model.Packing), false, nil
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Computations: c.computations.Load(),
		Entries:      n,
	}
}
