package monitoring

import (
	"fmt"
	"math"
	"time"

	"github.com/tsanders-rh/modelctl/pkg/types"
	"gonum.org/v1/gonum/stat"
)

// Anomaly thresholds
const (
	AnomalyWindow    = 24 * time.Hour
	MaxErrorRate     = 5.0 // percent
	MaxZScore        = 3.0
	minZScoreSamples = 3
)

// Anomaly types
const (
	AnomalyErrorRate = "high_error_rate"
	AnomalyLatency   = "latency_spike"
	AnomalyCost      = "cost_spike"
)

// AggregateCost sums the cost of samples
func AggregateCost(d *types.Deployment, samples []types.MetricSample) types.CostMetrics {
	m := types.CostMetrics{
		DeploymentID:   d.ID,
		DeploymentName: d.Name,
		Venue:          d.Venue,
		Samples:        len(samples),
	}
	for _, s := range samples {
		m.Breakdown.Compute += s.Cost.Compute
		m.Breakdown.Storage += s.Cost.Storage
		m.Breakdown.Network += s.Cost.Network
		m.Breakdown.Total += s.Cost.Total
	}
	m.TotalCost = m.Breakdown.Total
	return m
}

// AggregatePerformance sums traffic of samples. Latency is weighted by
// request count.
func AggregatePerformance(d *types.Deployment, samples []types.MetricSample) types.PerformanceMetrics {
	m := types.PerformanceMetrics{
		DeploymentID:   d.ID,
		DeploymentName: d.Name,
		Venue:          d.Venue,
		Samples:        len(samples),
	}
	var latency float64
	var errs int64
	for _, s := range samples {
		m.TotalRequests += s.RequestCount
		latency += s.AvgLatencyMs * float64(s.RequestCount)
		errs += s.ErrorCount
	}
	if m.TotalRequests > 0 {
		m.AvgLatencyMs = latency / float64(m.TotalRequests)
		m.ErrorRate = float64(errs) / float64(m.TotalRequests) * 100
	}
	return m
}

// DetectAnomalies flags a window error rate above MaxErrorRate and any
// sample whose latency or cost lies more than MaxZScore standard deviations
// from the window mean. Only active samples are considered.
func DetectAnomalies(deploymentID string, samples []types.MetricSample) []types.Anomaly {
	var active []types.MetricSample
	for _, s := range samples {
		if s.Status == "" || s.Status == types.DeploymentStatusActive {
			active = append(active, s)
		}
	}
	if len(active) == 0 {
		return nil
	}

	var out []types.Anomaly
	var requests, errs int64
	for _, s := range active {
		requests += s.RequestCount
		errs += s.ErrorCount
	}
	if requests > 0 {
		rate := float64(errs) / float64(requests) * 100
		if rate > MaxErrorRate {
			out = append(out, types.Anomaly{
				DeploymentID: deploymentID,
				Type:         AnomalyErrorRate,
				Message:      fmt.Sprintf("error rate %.2f%% exceeds %.0f%%", rate, MaxErrorRate),
				Value:        rate,
				Threshold:    MaxErrorRate,
				Timestamp:    active[len(active)-1].Timestamp,
			})
		}
	}

	out = append(out, zScoreOutliers(deploymentID, AnomalyLatency, "latency", active, func(s types.MetricSample) float64 {
		return s.AvgLatencyMs
	})...)
	out = append(out, zScoreOutliers(deploymentID, AnomalyCost, "cost", active, func(s types.MetricSample) float64 {
		return s.Cost.Total
	})...)
	return out
}

func zScoreOutliers(deploymentID, kind, label string, samples []types.MetricSample, value func(types.MetricSample) float64) []types.Anomaly {
	if len(samples) < minZScoreSamples {
		return nil
	}
	xs := make([]float64, len(samples))
	for i, s := range samples {
		xs[i] = value(s)
	}
	mean, std := stat.MeanStdDev(xs, nil)
	if std == 0 || math.IsNaN(std) {
		return nil
	}

	var out []types.Anomaly
	for i, x := range xs {
		z := stat.StdScore(x, mean, std)
		if math.Abs(z) > MaxZScore {
			out = append(out, types.Anomaly{
				DeploymentID: deploymentID,
				Type:         kind,
				Message:      fmt.Sprintf("%s %.2f is %.1f standard deviations from the mean %.2f", label, x, z, mean),
				Value:        x,
				Threshold:    MaxZScore,
				Timestamp:    samples[i].Timestamp,
			})
		}
	}
	return out
}
