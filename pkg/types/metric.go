package types

import "time"

// CostBreakdown splits the hourly cost of a deployment
type CostBreakdown struct {
	Compute float64 `json:"compute"`
	Storage float64 `json:"storage"`
	Network float64 `json:"network"`
	Total   float64 `json:"total"`
}

// MetricSample is one collected observation of a deployment
type MetricSample struct {
	DeploymentID      string           `json:"deployment_id"`
	Timestamp         time.Time        `json:"timestamp"`
	Status            DeploymentStatus `json:"status"`
	CPUUtilization    float64          `json:"cpu_utilization"`    // percent
	MemoryUtilization float64          `json:"memory_utilization"` // percent
	RequestCount      int64            `json:"request_count"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	ErrorCount        int64            `json:"error_count"`
	Cost              CostBreakdown    `json:"cost"`
	HibernatedSince   *time.Time       `json:"hibernated_since,omitempty"`
}

// CostMetrics aggregates the cost samples of a deployment over a window
type CostMetrics struct {
	DeploymentID   string        `json:"deployment_id"`
	DeploymentName string        `json:"deployment_name"`
	Venue          Venue         `json:"venue"`
	TotalCost      float64       `json:"total_cost"`
	Breakdown      CostBreakdown `json:"cost_breakdown"`
	Samples        int           `json:"samples"`
}

// PerformanceMetrics aggregates request samples of a deployment over a window
type PerformanceMetrics struct {
	DeploymentID   string  `json:"deployment_id"`
	DeploymentName string  `json:"deployment_name"`
	Venue          Venue   `json:"venue"`
	TotalRequests  int64   `json:"total_requests"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
	ErrorRate      float64 `json:"error_rate"` // percent
	Samples        int     `json:"samples"`
}

// Anomaly is a metric excursion detected for a deployment
type Anomaly struct {
	DeploymentID string    `json:"deployment_id"`
	Type         string    `json:"type"`
	Message      string    `json:"message"`
	Value        float64   `json:"value"`
	Threshold    float64   `json:"threshold"`
	Timestamp    time.Time `json:"timestamp"`
}
