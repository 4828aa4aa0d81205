package catalog

import "github.com/guimove/fleetfit/internal/model"

// mibToMB converts MiB sizes into the planner's MB unit.
const mibToMB = 1024.0 * 1024.0 / 1e6

// Builtin returns a set of common EC2 instance types with us-east-1
// on-demand hourly prices, for offline planning.
func Builtin() []RawNodeType {
	types := []struct {
		name   string
		family string
		vcpus  int
		memMiB int
		price  float64
		arch   model.Architecture
	}{
		{"m5.large", "m5", 2, 8192, 0.096, model.ArchAMD64},
		{"m5.xlarge", "m5", 4, 16384, 0.192, model.ArchAMD64},
		{"m5.2xlarge", "m5", 8, 32768, 0.384, model.ArchAMD64},
		{"m5.4xlarge", "m5", 16, 65536, 0.768, model.ArchAMD64},
		{"c5.large", "c5", 2, 4096, 0.085, model.ArchAMD64},
		{"c5.xlarge", "c5", 4, 8192, 0.170, model.ArchAMD64},
		{"c5.2xlarge", "c5", 8, 16384, 0.340, model.ArchAMD64},
		{"r5.large", "r5", 2, 16384, 0.126, model.ArchAMD64},
		{"r5.xlarge", "r5", 4, 32768, 0.252, model.ArchAMD64},
		{"r5.2xlarge", "r5", 8, 65536, 0.504, model.ArchAMD64},
		{"m6i.large", "m6i", 2, 8192, 0.096, model.ArchAMD64},
		{"m6i.xlarge", "m6i", 4, 16384, 0.192, model.ArchAMD64},
		{"m6i.2xlarge", "m6i", 8, 32768, 0.384, model.ArchAMD64},
		{"m7g.large", "m7g", 2, 8192, 0.0816, model.ArchARM64},
		{"m7g.xlarge", "m7g", 4, 16384, 0.1632, model.ArchARM64},
		{"m7g.2xlarge", "m7g", 8, 32768, 0.3264, model.ArchARM64},
	}

	out := make([]RawNodeType, len(types))
	for i, t := range types {
		out[i] = RawNodeType{
			ID:        t.name,
			CPUMillis: float64(t.vcpus) * 1000,
			MemoryMB:  float64(t.memMiB) * mibToMB,
			UnitCost:  t.price,
			Family:    t.family,
			Arch:      t.arch,
		}
	}
	return out
}
