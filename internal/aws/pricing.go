package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/guimove/fleetfit/internal/catalog"
)

const (
	// pricingAPIBase is the public EC2 pricing API (no auth required).
	pricingAPIBase = "https://go.runs-on.com/api/instances"

	// pricingHTTPTimeout is the timeout for each pricing HTTP request.
	pricingHTTPTimeout = 10 * time.Second

	pricingConcurrency = 8
)

// instancePricing holds the resolved on-demand and spot prices for one instance type.
type instancePricing struct {
	OnDemandPrice float64 `json:"on_demand"`
	SpotPrice     float64 `json:"spot"`
}

func (ip instancePricing) price(kind PriceKind) float64 {
	if kind == PriceSpot {
		return ip.SpotPrice
	}
	return ip.OnDemandPrice
}

// pricingAPIResult maps the runs-on API response fields we need.
type pricingAPIResult struct {
	InstanceType  string  `json:"instanceType"`
	OnDemandPrice float64 `json:"onDemandPrice"`
	SpotPrice     float64 `json:"spotPrice"`
}

type pricingAPIResponse struct {
	Results []pricingAPIResult `json:"results"`
}

type priceClient struct {
	http    *http.Client
	baseURL string
}

func priceKindOrDefault(kind PriceKind) PriceKind {
	if kind == "" {
		return PriceOnDemand
	}
	return kind
}

// applyPrices sets UnitCost on each entry from the pricing API, reusing
// cached prices of the region. Lookups that fail leave the entry unpriced.
// Returns the number of entries that got a price.
func (p *Provider) applyPrices(ctx context.Context, raw []catalog.RawNodeType, kind PriceKind) (int, error) {
	key := "prices-" + p.region
	cached := make(map[string]instancePricing)
	if p.cache != nil {
		p.cache.Get(key, p.cacheTTL, &cached)
	}

	var mu sync.Mutex
	fetched := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pricingConcurrency)
	for i := range raw {
		id := raw[i].ID
		if _, ok := cached[id]; ok {
			continue
		}
		g.Go(func() error {
			pr, err := p.prices.fetch(gctx, id, p.region)
			if err != nil {
				klog.V(3).InfoS("No price for instance type", "instanceType", id, "err", err)
				return nil
			}
			mu.Lock()
			cached[id] = *pr
			fetched++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("pricing instance types: %w", err)
	}

	if fetched > 0 && p.cache != nil {
		if err := p.cache.Set(key, cached); err != nil {
			klog.V(2).InfoS("Caching prices failed", "err", err)
		}
	}

	priced := 0
	kind = priceKindOrDefault(kind)
	for i := range raw {
		if pr, ok := cached[raw[i].ID]; ok && pr.price(kind) > 0 {
			raw[i].UnitCost = pr.price(kind)
			priced++
		}
	}
	return priced, nil
}

// fetch queries the pricing API for a single instance type.
// Returns both on-demand and lowest spot price across AZs.
func (c *priceClient) fetch(ctx context.Context, instanceType, region string) (*instancePricing, error) {
	q := url.Values{"region": {region}, "platform": {"Linux/UNIX"}}
	u := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(instanceType), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pricing API returned %d for %s", resp.StatusCode, instanceType)
	}

	var pr pricingAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, err
	}

	if len(pr.Results) == 0 {
		return nil, fmt.Errorf("no pricing data for %s in %s", instanceType, region)
	}

	// On-demand is the same across AZs; for spot, pick the lowest
	result := &instancePricing{
		OnDemandPrice: pr.Results[0].OnDemandPrice,
		SpotPrice:     pr.Results[0].SpotPrice,
	}
	for _, r := range pr.Results[1:] {
		if r.SpotPrice > 0 && (result.SpotPrice == 0 || r.SpotPrice < result.SpotPrice) {
			result.SpotPrice = r.SpotPrice
		}
	}

	return result, nil
}
