package analytics

import (
	"time"

	"github.com/tsanders-rh/modelctl/pkg/types"
)

// Report kinds, stored under analytics/<kind>
const (
	KindCost        = "cost"
	KindPerformance = "performance"
	KindForecast    = "forecast"
	KindSuggestions = "suggestions"
)

// Window bounds a report; zero times are open
type Window struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// DeploymentCost is one deployment's share of a cost report
type DeploymentCost struct {
	DeploymentID   string  `json:"deployment_id"`
	DeploymentName string  `json:"deployment_name"`
	TotalCost      float64 `json:"total_cost"`
}

// CostReport summarizes spend across deployments
type CostReport struct {
	GeneratedAt     time.Time               `json:"generated_at"`
	Window          Window                  `json:"window"`
	TotalCost       float64                 `json:"total_cost"`
	Breakdown       types.CostBreakdown     `json:"cost_breakdown"`
	ByVenue         map[types.Venue]float64 `json:"cost_by_venue"`
	ByDeployment    []DeploymentCost        `json:"cost_by_deployment"` // descending cost
	Recommendations []string                `json:"recommendations"`
}

// VenuePerformance aggregates traffic for one venue
type VenuePerformance struct {
	Requests     int64   `json:"requests"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	ErrorRate    float64 `json:"error_rate"`
}

// PerformanceReport summarizes traffic across deployments
type PerformanceReport struct {
	GeneratedAt     time.Time                         `json:"generated_at"`
	Window          Window                            `json:"window"`
	TotalRequests   int64                             `json:"total_requests"`
	AvgLatencyMs    float64                           `json:"avg_latency_ms"`
	ErrorRate       float64                           `json:"error_rate"`
	ByVenue         map[types.Venue]*VenuePerformance `json:"performance_by_venue"`
	ByDeployment    []types.PerformanceMetrics        `json:"performance_by_deployment"` // descending requests
	Recommendations []string                          `json:"recommendations"`
	Anomalies       []types.Anomaly                   `json:"anomalies"`
}

// Trend names how a forecast was projected
type Trend string

const (
	TrendRegression Trend = "regression"
	TrendGrowth     Trend = "growth"
)

// DeploymentForecast projects one deployment's daily requests and cost
type DeploymentForecast struct {
	DeploymentID    string    `json:"deployment_id"`
	DeploymentName  string    `json:"deployment_name"`
	Trend           Trend     `json:"trend"`
	CurrentRequests float64   `json:"current_requests"`
	CurrentCost     float64   `json:"current_cost"`
	Requests        []float64 `json:"requests_forecast"`
	Cost            []float64 `json:"cost_forecast"`
}

// Forecast projects usage for the next Days days
type Forecast struct {
	GeneratedAt   time.Time            `json:"generated_at"`
	Window        Window               `json:"window"`
	Days          int                  `json:"days"`
	TotalRequests []float64            `json:"total_requests_forecast"`
	TotalCost     []float64            `json:"total_cost_forecast"`
	ByDeployment  []DeploymentForecast `json:"forecast_by_deployment"`
}

// SuggestionKind groups suggestions
type SuggestionKind string

const (
	SuggestResource    SuggestionKind = "resource"
	SuggestCost        SuggestionKind = "cost"
	SuggestPerformance SuggestionKind = "performance"
)

// Suggestion is one recommended change to a deployment
type Suggestion struct {
	Kind    SuggestionKind `json:"kind"`
	Message string         `json:"message"`
}

// DeploymentSuggestions lists the suggestions for one deployment
type DeploymentSuggestions struct {
	DeploymentID   string       `json:"deployment_id"`
	DeploymentName string       `json:"deployment_name"`
	Suggestions    []Suggestion `json:"suggestions"`
}

// SuggestionsReport lists suggestions for every deployment that has any
type SuggestionsReport struct {
	GeneratedAt  time.Time               `json:"generated_at"`
	ByDeployment []DeploymentSuggestions `json:"suggestions_by_deployment"`
}
