package recorder

import (
	"fmt"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// Host describes the machine a run trained on.
type Host struct {
	CPU           string
	PhysicalCores int
	LogicalCores  int
	Features      []string
}

// reportedFeatures are the SIMD extensions relevant to the float32
// kernels.
var reportedFeatures = []struct {
	id   cpuid.FeatureID
	name string
}{
	{cpuid.SSE42, "sse4.2"},
	{cpuid.AVX, "avx"},
	{cpuid.AVX2, "avx2"},
	{cpuid.FMA3, "fma3"},
	{cpuid.AVX512F, "avx512f"},
	{cpuid.ASIMD, "asimd"},
}

// DescribeHost reads the CPU of the current machine.
func DescribeHost() Host {
	h := Host{
		CPU:           cpuid.CPU.BrandName,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
	}
	if h.CPU == "" {
		h.CPU = cpuid.CPU.VendorString
	}
	if h.CPU == "" {
		h.CPU = "unknown"
	}
	for _, f := range reportedFeatures {
		if cpuid.CPU.Supports(f.id) {
			h.Features = append(h.Features, f.name)
		}
	}
	return h
}

// FeatureList joins the features with commas.
func (h Host) FeatureList() string { return strings.Join(h.Features, ",") }

func (h Host) String() string {
	s := h.CPU
	if h.LogicalCores > 0 {
		s += fmt.Sprintf(" (%d cores, %d threads)", h.PhysicalCores, h.LogicalCores)
	}
	if len(h.Features) > 0 {
		s += " [" + h.FeatureList() + "]"
	}
	return s
}
