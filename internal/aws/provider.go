// Package aws builds a node catalog from the EC2 instance types offered in a
// region, priced from a public pricing API.
package aws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/guimove/fleetfit/internal/catalog"
)

const (
	credentialCheckTimeout = 3 * time.Second

	// DefaultCacheTTL bounds how long instance and price lookups are reused.
	DefaultCacheTTL = 24 * time.Hour
)

var (
	ErrAWSCredentials  = errors.New("AWS credentials not found; set AWS_PROFILE, run 'aws sso login', or configure ~/.aws/credentials")
	ErrNoInstanceTypes = errors.New("no instance types match the specified filters")
)

// PriceKind selects which hourly price becomes the node cost.
type PriceKind string

const (
	PriceOnDemand PriceKind = "on-demand"
	PriceSpot     PriceKind = "spot"
)

// Options constrains which instance types are listed.
type Options struct {
	Filter                catalog.Filter
	PriceKind             PriceKind
	CurrentGenerationOnly bool
	ExcludeBareMetal      bool
	ExcludeBurstable      bool
}

// ec2API is a minimal interface for the EC2 calls we need.
type ec2API interface {
	DescribeInstanceTypes(ctx context.Context, params *ec2.DescribeInstanceTypesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceTypesOutput, error)
}

// Provider lists EC2 instance types as raw catalog entries.
type Provider struct {
	ec2Client ec2API
	region    string
	cache     *FileCache
	cacheTTL  time.Duration
	prices    *priceClient
}

// NewProvider creates a provider using the default AWS SDK config chain.
// IMDS (EC2 metadata) is disabled to avoid long timeouts when running locally.
// On EC2, use environment variables or instance profile via AWS_PROFILE.
func NewProvider(ctx context.Context, region string, cacheDir string) (*Provider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithEC2IMDSClientEnableState(imds.ClientDisabled),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAWSCredentials, err)
	}

	// Verify credentials are available before making any API calls
	credCtx, cancel := context.WithTimeout(ctx, credentialCheckTimeout)
	defer cancel()
	if _, err := cfg.Credentials.Retrieve(credCtx); err != nil {
		return nil, ErrAWSCredentials
	}

	var cache *FileCache
	if cacheDir != "" {
		cache = NewFileCache(cacheDir)
	}
	return newProvider(ec2.NewFromConfig(cfg), region, cache, newPriceClient(pricingAPIBase)), nil
}

func newProvider(client ec2API, region string, cache *FileCache, prices *priceClient) *Provider {
	return &Provider{
		ec2Client: client,
		region:    region,
		cache:     cache,
		cacheTTL:  DefaultCacheTTL,
		prices:    prices,
	}
}

// ClearCache drops cached instance and price lookups so the next call
// queries EC2 and the pricing API again.
func (p *Provider) ClearCache() error {
	if p.cache == nil {
		return nil
	}
	return p.cache.Clear()
}

// Region returns the AWS region.
func (p *Provider) Region() string {
	return p.region
}

func newPriceClient(baseURL string) *priceClient {
	return &priceClient{
		http:    &http.Client{Timeout: pricingHTTPTimeout},
		baseURL: baseURL,
	}
}
