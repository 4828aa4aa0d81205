package packing

import "math"

// lowerBound returns a lower bound on the number of bins for the problem:
// the larger of the per-dimension continuous bound and the count of units
// that take more than half a bin in some dimension (no two of those that
// exceed half in the same dimension can share a bin).
func lowerBound(p *problem) int {
	var sumCPU, sumMem float64
	var bigCPU, bigMem int
	for k := range p.order {
		sumCPU += p.cpu[k]
		sumMem += p.mem[k]
		if p.cpu[k] > 0.5+epsilon {
			bigCPU++
		}
		if p.mem[k] > 0.5+epsilon {
			bigMem++
		}
	}

	lb := maxInt(ceilTol(sumCPU), ceilTol(sumMem))
	lb = maxInt(lb, maxInt(bigCPU, bigMem))
	if lb == 0 && len(p.order) > 0 {
		lb = 1
	}
	return lb
}

// ceilTol is math.Ceil that ignores floating-point drift just above an integer.
func ceilTol(x float64) int {
	if x <= 0 {
		return 0
	}
	return int(math.Ceil(x - epsilon))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
