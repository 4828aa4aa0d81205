package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"k8s.io/klog/v2"

	"github.com/guimove/fleetfit/internal/catalog"
	"github.com/guimove/fleetfit/internal/model"
)

const bytesPerMB = 1e6

// instanceInfo is the part of an EC2 instance type we keep, cached as JSON.
type instanceInfo struct {
	InstanceType string             `json:"instance_type"`
	VCPUs        int32              `json:"vcpus"`
	MemoryMiB    int64              `json:"memory_mib"`
	Arch         model.Architecture `json:"arch"`
}

// GetNodeTypes lists instance types matching opts, prices them and returns
// raw catalog entries sized by kubelet allocatable capacity. Entries without
// a price are kept with zero cost; catalog.Filter drops them unless asked
// not to.
func (p *Provider) GetNodeTypes(ctx context.Context, opts Options) ([]catalog.RawNodeType, error) {
	infos, err := p.instanceTypes(ctx, opts)
	if err != nil {
		return nil, err
	}

	raw := make([]catalog.RawNodeType, 0, len(infos))
	for _, info := range infos {
		raw = append(raw, toRawNodeType(info))
	}

	// Filter before pricing so only the candidates cost a lookup.
	priceFilter := opts.Filter
	priceFilter.IncludeUnpriced = true
	raw = priceFilter.Apply(raw)
	if len(raw) == 0 {
		return nil, ErrNoInstanceTypes
	}

	priced, err := p.applyPrices(ctx, raw, opts.PriceKind)
	if err != nil {
		return nil, err
	}
	klog.V(1).InfoS("Priced instance types", "region", p.region, "priced", priced, "total", len(raw))

	raw = opts.Filter.Apply(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: none of the matching instance types has a %s price", ErrNoInstanceTypes, priceKindOrDefault(opts.PriceKind))
	}
	return raw, nil
}

// instanceTypes returns the EC2 instance types of the region, from cache when
// fresh.
func (p *Provider) instanceTypes(ctx context.Context, opts Options) ([]instanceInfo, error) {
	key := fmt.Sprintf("instances-%s-%t-%t-%t", p.region,
		opts.CurrentGenerationOnly, opts.ExcludeBareMetal, opts.ExcludeBurstable)

	var infos []instanceInfo
	if p.cache != nil && p.cache.Get(key, p.cacheTTL, &infos) {
		klog.V(2).InfoS("Using cached instance types", "region", p.region, "count", len(infos))
		return infos, nil
	}

	var filters []ec2types.Filter
	if opts.CurrentGenerationOnly {
		filters = append(filters, ec2types.Filter{
			Name:   aws.String("current-generation"),
			Values: []string{"true"},
		})
	}
	if opts.ExcludeBareMetal {
		filters = append(filters, ec2types.Filter{
			Name:   aws.String("bare-metal"),
			Values: []string{"false"},
		})
	}
	if opts.ExcludeBurstable {
		filters = append(filters, ec2types.Filter{
			Name:   aws.String("burstable-performance-supported"),
			Values: []string{"false"},
		})
	}

	var nextToken *string
	for {
		output, err := p.ec2Client.DescribeInstanceTypes(ctx, &ec2.DescribeInstanceTypesInput{
			Filters:    filters,
			NextToken:  nextToken,
			MaxResults: aws.Int32(100),
		})
		if err != nil {
			return nil, fmt.Errorf("describing instance types: %w", err)
		}
		for _, it := range output.InstanceTypes {
			if info, ok := convertInstanceType(it); ok {
				infos = append(infos, info)
			}
		}
		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	if p.cache != nil {
		if err := p.cache.Set(key, infos); err != nil {
			klog.V(2).InfoS("Caching instance types failed", "err", err)
		}
	}
	return infos, nil
}

// convertInstanceType keeps the fields we need; entries without CPU or
// memory information are skipped.
func convertInstanceType(it ec2types.InstanceTypeInfo) (instanceInfo, bool) {
	info := instanceInfo{InstanceType: string(it.InstanceType)}

	if it.VCpuInfo != nil && it.VCpuInfo.DefaultVCpus != nil {
		info.VCPUs = *it.VCpuInfo.DefaultVCpus
	}
	if it.MemoryInfo != nil && it.MemoryInfo.SizeInMiB != nil {
		info.MemoryMiB = *it.MemoryInfo.SizeInMiB
	}
	if it.ProcessorInfo != nil {
		for _, arch := range it.ProcessorInfo.SupportedArchitectures {
			switch arch {
			case ec2types.ArchitectureTypeX8664:
				info.Arch = model.ArchAMD64
			case ec2types.ArchitectureTypeArm64:
				info.Arch = model.ArchARM64
			}
		}
	}
	return info, info.VCPUs > 0 && info.MemoryMiB > 0
}

// toRawNodeType sizes the entry by what the kubelet leaves allocatable.
func toRawNodeType(info instanceInfo) catalog.RawNodeType {
	family, _ := parseInstanceType(info.InstanceType)
	return catalog.RawNodeType{
		ID:        info.InstanceType,
		CPUMillis: float64(computeAllocatableCPU(info.VCPUs)),
		MemoryMB:  float64(computeAllocatableMemory(info.MemoryMiB)) / bytesPerMB,
		Family:    family,
		Arch:      info.Arch,
	}
}

// computeAllocatableCPU applies the EKS kubelet CPU reservation formula.
// Reserve: 60m for first core, 10m for next, 5m for next 2, 2.5m for rest.
func computeAllocatableCPU(vcpus int32) int64 {
	totalMillis := int64(vcpus) * 1000

	var reserved int64
	remaining := int64(vcpus)

	if remaining > 0 {
		reserved += 60
		remaining--
	}
	if remaining > 0 {
		reserved += 10
		remaining--
	}
	if remaining > 0 {
		cores := min(remaining, 2)
		reserved += cores * 5
		remaining -= cores
	}
	if remaining > 0 {
		reserved += remaining * 2 // 2.5m rounded down per core
	}

	return totalMillis - reserved
}

// computeAllocatableMemory applies the EKS kubelet memory reservation formula
// and returns bytes.
// 255MiB base + 25% of first 4GiB + 20% of next 4GiB + 10% of next 8GiB + 6% of next 112GiB + 2% above.
func computeAllocatableMemory(memoryMiB int64) int64 {
	const mib = 1024 * 1024
	totalBytes := memoryMiB * mib

	reserved := int64(255 * mib)
	remainMiB := memoryMiB

	for _, tier := range []struct{ size, pct int64 }{
		{4096, 25},
		{4096, 20},
		{8192, 10},
		{112 * 1024, 6},
	} {
		chunk := min(remainMiB, tier.size)
		reserved += chunk * mib * tier.pct / 100
		remainMiB -= chunk
	}
	if remainMiB > 0 {
		reserved += remainMiB * mib * 2 / 100
	}

	return max(totalBytes-reserved, 0)
}

// parseInstanceType splits an instance type name into family and size,
// e.g. "m7g.large" → ("m7g", "large").
func parseInstanceType(instanceType string) (family, size string) {
	family, size, ok := strings.Cut(instanceType, ".")
	if !ok {
		return instanceType, ""
	}
	return family, size
}
