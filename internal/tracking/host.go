package tracking

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// HostInfo describes the machine a run executes on. It is added to the
// hyperparameters so runs on different hardware can be told apart.
func HostInfo() map[string]interface{} {
	return map[string]interface{}{
		"host_cpu":            cpuid.CPU.BrandName,
		"host_physical_cores": cpuid.CPU.PhysicalCores,
		"host_logical_cores":  cpuid.CPU.LogicalCores,
		"host_avx2":           cpuid.CPU.Supports(cpuid.AVX2),
		"host_os":             runtime.GOOS,
		"host_arch":           runtime.GOARCH,
		"go_version":          runtime.Version(),
	}
}
