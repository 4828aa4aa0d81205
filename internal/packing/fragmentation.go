package packing

import (
	"math"

	"github.com/guimove/fleetfit/internal/model"
)

// Utilization thresholds used by fragmentation analysis.
const (
	HighUtilThreshold = 0.85
	LowUtilThreshold  = 0.50
)

// FragmentationReport details resource waste patterns in a packing.
type FragmentationReport struct {
	// Stranded: one dimension nearly full, the other underused
	StrandedCPUMillis float64 `json:"stranded_cpu_millis"`
	StrandedMemoryMB  float64 `json:"stranded_memory_mb"`

	// Fraction of bins below 50% utilization on either dimension
	UnderutilizedBinFraction float64 `json:"underutilized_bin_fraction"`

	// 1.0 = perfectly balanced CPU/mem ratio across bins
	ResourceBalanceScore float64 `json:"resource_balance_score"`

	AvgCPUUtilization float64 `json:"avg_cpu_utilization"`
	AvgMemUtilization float64 `json:"avg_mem_utilization"`
}

// AnalyzeFragmentation computes fragmentation metrics for a packing.
func AnalyzeFragmentation(p *model.Packing) FragmentationReport {
	if p.BinCount() == 0 {
		return FragmentationReport{ResourceBalanceScore: 1.0}
	}

	var report FragmentationReport
	var underutilized int

	for i := range p.Bins {
		b := &p.Bins[i]
		cpuUtil, memUtil := b.CPUUtilization, b.MemUtilization

		if cpuUtil > HighUtilThreshold && memUtil < LowUtilThreshold {
			report.StrandedMemoryMB += p.Capacity.MemoryMB - b.UsedMem
		}
		if memUtil > HighUtilThreshold && cpuUtil < LowUtilThreshold {
			report.StrandedCPUMillis += p.Capacity.CPUMillis - b.UsedCPU
		}

		if cpuUtil < LowUtilThreshold || memUtil < LowUtilThreshold {
			underutilized++
		}

		report.ResourceBalanceScore += 1.0 - math.Abs(cpuUtil-memUtil)
		report.AvgCPUUtilization += cpuUtil
		report.AvgMemUtilization += memUtil
	}

	n := float64(len(p.Bins))
	report.UnderutilizedBinFraction = float64(underutilized) / n
	report.ResourceBalanceScore /= n
	report.AvgCPUUtilization /= n
	report.AvgMemUtilization /= n

	return report
}
