package types

import (
	"fmt"

	"k8s.io/apimachinery/pkg/api/resource"
)

const bytesPerGiB = 1 << 30

// ParseCPU converts a Kubernetes-style CPU quantity ("500m", "2") to cores
func ParseCPU(s string) (float64, error) {
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0, fmt.Errorf("parse cpu %q: %w", s, err)
	}
	return float64(q.MilliValue()) / 1000, nil
}

// ParseMemory converts a Kubernetes-style memory quantity ("512Mi", "4Gi") to GiB
func ParseMemory(s string) (float64, error) {
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0, fmt.Errorf("parse memory %q: %w", s, err)
	}
	return float64(q.Value()) / bytesPerGiB, nil
}

// CPUQuantity renders cores as a millicore quantity
func CPUQuantity(cores float64) resource.Quantity {
	return *resource.NewMilliQuantity(int64(cores*1000+0.5), resource.DecimalSI)
}

// MemoryQuantity renders GiB as a binary byte quantity
func MemoryQuantity(gib float64) resource.Quantity {
	return *resource.NewQuantity(int64(gib*bytesPerGiB), resource.BinarySI)
}
