// Package monitoring collects deployment metric samples and aggregates them
// into cost and performance views.
package monitoring

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/tsanders-rh/modelctl/pkg/types"
)

// Hourly cost model
const (
	CPUHourly         = 0.04
	MemoryGiBHourly   = 0.01
	GPUHourly         = 0.5
	StorageHourly     = 0.01
	NetworkPerRequest = 0.0001
)

// MetricSource observes a running deployment
type MetricSource interface {
	Sample(ctx context.Context, d *types.Deployment, now time.Time) (types.MetricSample, error)
}

// HourlyCost prices one hour of a deployment serving requests
func HourlyCost(r types.ResourceRequirements, requests int64) types.CostBreakdown {
	c := types.CostBreakdown{
		Compute: r.CPU*CPUHourly + r.MemoryGiB*MemoryGiBHourly + r.GPU*GPUHourly,
		Storage: StorageHourly,
		Network: float64(requests) * NetworkPerRequest,
	}
	c.Total = c.Compute + c.Storage + c.Network
	return c
}

// HibernatedCost is the storage-only cost of one hour of a hibernated deployment
func HibernatedCost() types.CostBreakdown {
	return types.CostBreakdown{Storage: StorageHourly, Total: StorageHourly}
}

// Simulated produces seeded pseudo-random samples for development and tests
type Simulated struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated creates a simulated source; equal seeds yield equal sequences
func NewSimulated(seed uint64) *Simulated {
	return &Simulated{rng: rand.New(rand.NewPCG(seed, seed^0x5bd1e995))}
}

// Sample implements MetricSource
func (s *Simulated) Sample(_ context.Context, d *types.Deployment, now time.Time) (types.MetricSample, error) {
	s.mu.Lock()
	cpu := s.uniform(10, 90)
	mem := s.uniform(10, 90)
	requests := int64(10 + s.rng.IntN(991))
	latency := s.uniform(10, 500)
	errorRate := s.uniform(0, 0.05)
	s.mu.Unlock()

	return types.MetricSample{
		DeploymentID:      d.ID,
		Timestamp:         now,
		Status:            d.Status,
		CPUUtilization:    cpu,
		MemoryUtilization: mem,
		RequestCount:      requests,
		AvgLatencyMs:      latency,
		ErrorCount:        int64(float64(requests) * errorRate),
		Cost:              HourlyCost(d.Resources, requests),
	}, nil
}

func (s *Simulated) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

// Fixed returns the same utilization and traffic for every deployment
type Fixed struct {
	CPUUtilization    float64
	MemoryUtilization float64
	RequestCount      int64
	AvgLatencyMs      float64
	ErrorCount        int64
}

// Sample implements MetricSource
func (f Fixed) Sample(_ context.Context, d *types.Deployment, now time.Time) (types.MetricSample, error) {
	return types.MetricSample{
		DeploymentID:      d.ID,
		Timestamp:         now,
		Status:            d.Status,
		CPUUtilization:    f.CPUUtilization,
		MemoryUtilization: f.MemoryUtilization,
		RequestCount:      f.RequestCount,
		AvgLatencyMs:      f.AvgLatencyMs,
		ErrorCount:        f.ErrorCount,
		Cost:              HourlyCost(d.Resources, f.RequestCount),
	}, nil
}
