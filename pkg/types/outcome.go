package types

import "time"

// CheckName identifies one optimizer rule
type CheckName string

const (
	CheckHibernation        CheckName = "hibernation"
	CheckDiscountedCapacity CheckName = "discounted_capacity"
	CheckResourceSizing     CheckName = "resource_sizing"
	CheckArbitrage          CheckName = "arbitrage"
)

// CheckStatus is the result tag of one optimizer rule
type CheckStatus string

const (
	CheckStatusEvaluated            CheckStatus = "evaluated"
	CheckStatusSkipped              CheckStatus = "skipped"
	CheckStatusError                CheckStatus = "error"
	CheckStatusHibernated           CheckStatus = "hibernated"
	CheckStatusActive               CheckStatus = "active"
	CheckStatusConverted            CheckStatus = "converted"
	CheckStatusNotBeneficial        CheckStatus = "not_beneficial"
	CheckStatusAlreadyOptimized     CheckStatus = "already_optimized"
	CheckStatusResized              CheckStatus = "resized"
	CheckStatusOptimal              CheckStatus = "optimal"
	CheckStatusArbitrageOpportunity CheckStatus = "arbitrage_opportunity"
	CheckStatusMigrated             CheckStatus = "migrated"
)

// HibernationResult is the evidence of the hibernation check
type HibernationResult struct {
	Status                  CheckStatus `json:"status"`
	Reason                  string      `json:"reason,omitempty"`
	IdleSeconds             float64     `json:"idle_time_seconds"`
	ThresholdSeconds        float64     `json:"hibernation_threshold_seconds"`
	EstimatedMonthlySavings float64     `json:"estimated_savings,omitempty"`
}

// DiscountedCapacityResult is the evidence of the spot conversion check
type DiscountedCapacityResult struct {
	Status            CheckStatus `json:"status"`
	Reason            string      `json:"reason,omitempty"`
	Available         bool        `json:"spot_available"`
	SpotPrice         float64     `json:"spot_price,omitempty"`
	OnDemandPrice     float64     `json:"on_demand_price,omitempty"`
	SavingsPercentage float64     `json:"savings_percentage,omitempty"`
}

// ResourceAdjustment records one resized resource
type ResourceAdjustment struct {
	Before            float64 `json:"before"`
	After             float64 `json:"after"`
	Utilization       float64 `json:"utilization"`
	SavingsPercentage float64 `json:"savings_percentage"`
}

// SizingResult is the evidence of the right-sizing check
type SizingResult struct {
	Status            CheckStatus         `json:"status"`
	Reason            string              `json:"reason,omitempty"`
	CPUUtilization    float64             `json:"cpu_utilization"`
	MemoryUtilization float64             `json:"memory_utilization"`
	CPU               *ResourceAdjustment `json:"cpu,omitempty"`
	Memory            *ResourceAdjustment `json:"memory,omitempty"`
}

// ArbitrageResult is the evidence of the cross-provider check
type ArbitrageResult struct {
	Status             CheckStatus `json:"status"`
	Reason             string      `json:"reason,omitempty"`
	CurrentProvider    Provider    `json:"current_provider"`
	CurrentRegion      string      `json:"current_region"`
	CurrentPrice       float64     `json:"current_price"` // cheapest region of the current provider
	CurrentRegionPrice float64     `json:"current_region_price"`
	CheapestProvider   Provider    `json:"cheapest_provider"`
	CheapestRegion     string      `json:"cheapest_region"`
	CheapestPrice      float64     `json:"cheapest_price"`
	SavingsPercentage  float64     `json:"savings_percentage,omitempty"`
}

// OptimizationOutcome is the audit record of one optimizer pass over a deployment.
// It is written once and never modified.
type OptimizationOutcome struct {
	ID                 string                    `json:"id"`
	DeploymentID       string                    `json:"deployment_id"`
	DeploymentName     string                    `json:"deployment_name"`
	EvaluatedAt        time.Time                 `json:"evaluated_at"`
	Status             CheckStatus               `json:"status"` // evaluated, or skipped when the deployment was not active
	Reason             string                    `json:"reason,omitempty"`
	Hibernation        *HibernationResult        `json:"hibernation,omitempty"`
	DiscountedCapacity *DiscountedCapacityResult `json:"discounted_capacity,omitempty"`
	Sizing             *SizingResult             `json:"resource_sizing,omitempty"`
	Arbitrage          *ArbitrageResult          `json:"arbitrage,omitempty"`
}

// Checks returns the status of every check that ran
func (o *OptimizationOutcome) Checks() map[CheckName]CheckStatus {
	out := make(map[CheckName]CheckStatus, 4)
	if o.Hibernation != nil {
		out[CheckHibernation] = o.Hibernation.Status
	}
	if o.DiscountedCapacity != nil {
		out[CheckDiscountedCapacity] = o.DiscountedCapacity.Status
	}
	if o.Sizing != nil {
		out[CheckResourceSizing] = o.Sizing.Status
	}
	if o.Arbitrage != nil {
		out[CheckArbitrage] = o.Arbitrage.Status
	}
	return out
}

// MigrationResult reports a provider/region relocation
type MigrationResult struct {
	Status            CheckStatus `json:"status"`
	Reason            string      `json:"reason,omitempty"`
	FromProvider      Provider    `json:"from_provider,omitempty"`
	FromRegion        string      `json:"from_region,omitempty"`
	ToProvider        Provider    `json:"to_provider,omitempty"`
	ToRegion          string      `json:"to_region,omitempty"`
	FromPrice         float64     `json:"from_price,omitempty"`
	ToPrice           float64     `json:"to_price,omitempty"`
	SavingsPercentage float64     `json:"savings_percentage,omitempty"`
}
