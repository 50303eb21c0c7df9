package optimizer

import (
	"context"
	"fmt"
	"math"

	"github.com/tsanders-rh/modelctl/internal/logger"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

// Sizing thresholds
const (
	OverProvisionedUtilization = 30.0 // percent
	SizingReduction            = 0.25
	MinCPU                     = 0.25
	MinMemoryGiB               = 0.5
)

// MinArbitrageSavings is the fraction a cheaper provider must save to be worth a move
const MinArbitrageSavings = 0.10

// priceEpsilon absorbs float rounding at the arbitrage boundary
const priceEpsilon = 1e-9

// monthlyRates are per-unit monthly costs used to estimate hibernation savings
type monthlyRates struct {
	CPU, Memory, GPU float64
}

// hibernationRates are per venue; idle function capacity is mostly unbilled
var hibernationRates = map[types.Venue]monthlyRates{
	types.VenueCluster: {CPU: 30, Memory: 5, GPU: 300},
	types.VenueFaaS:    {CPU: 5, Memory: 1, GPU: 0},
}

// EstimateHibernationSavings returns the estimated monthly savings of hibernating d
func EstimateHibernationSavings(d *types.Deployment) float64 {
	r := hibernationRates[d.Venue]
	return d.Resources.CPU*r.CPU + d.Resources.MemoryGiB*r.Memory + d.Resources.GPU*r.GPU
}

func (o *Optimizer) checkHibernation(ctx context.Context, id string) *types.HibernationResult {
	d, reason, err := o.active(ctx, id)
	if err != nil {
		return &types.HibernationResult{Status: types.CheckStatusError, Reason: err.Error()}
	}
	if d == nil {
		return &types.HibernationResult{Status: types.CheckStatusSkipped, Reason: reason}
	}
	if !d.CostPolicy.HibernationEnabled {
		return &types.HibernationResult{Status: types.CheckStatusSkipped, Reason: "hibernation disabled by cost policy"}
	}

	idle := o.now().Sub(d.LastActive()).Seconds()
	threshold := float64(d.CostPolicy.HibernationIdleTimeout)
	result := &types.HibernationResult{IdleSeconds: idle, ThresholdSeconds: threshold}

	if idle <= threshold {
		result.Status = types.CheckStatusActive
		return result
	}

	if err := o.act(ctx); err != nil {
		result.Status = types.CheckStatusError
		result.Reason = err.Error()
		return result
	}
	hibernated, err := o.deployments.Hibernate(ctx, id)
	if err != nil {
		logger.Log.Errorw("hibernation failed", "deployment_id", id, "error", err)
		result.Status = types.CheckStatusError
		result.Reason = err.Error()
		return result
	}
	if hibernated.Status != types.DeploymentStatusHibernated {
		result.Status = types.CheckStatusSkipped
		result.Reason = fmt.Sprintf("deployment is %s", hibernated.Status)
		return result
	}

	result.Status = types.CheckStatusHibernated
	result.EstimatedMonthlySavings = EstimateHibernationSavings(d)
	logger.Log.Infow("deployment hibernated by optimizer",
		"deployment_id", id,
		"idle_seconds", idle,
		"estimated_monthly_savings", result.EstimatedMonthlySavings,
	)
	return result
}

func (o *Optimizer) checkDiscountedCapacity(ctx context.Context, id string) *types.DiscountedCapacityResult {
	d, reason, err := o.active(ctx, id)
	if err != nil {
		return &types.DiscountedCapacityResult{Status: types.CheckStatusError, Reason: err.Error()}
	}
	if d == nil {
		return &types.DiscountedCapacityResult{Status: types.CheckStatusSkipped, Reason: reason}
	}
	switch {
	case !d.CostPolicy.UseDiscountedCapacity:
		return &types.DiscountedCapacityResult{Status: types.CheckStatusSkipped, Reason: "discounted capacity disabled by cost policy"}
	case d.Venue == types.VenueFaaS:
		return &types.DiscountedCapacityResult{Status: types.CheckStatusSkipped, Reason: "not applicable to faas deployments"}
	case d.DiscountedCapacity:
		return &types.DiscountedCapacityResult{Status: types.CheckStatusAlreadyOptimized, Reason: "already on discounted capacity"}
	}

	quote, err := o.spot.SpotQuote(ctx, d.Provider, d.Region, d.Resources.Shape())
	if err != nil {
		return &types.DiscountedCapacityResult{Status: types.CheckStatusError, Reason: err.Error()}
	}
	result := &types.DiscountedCapacityResult{
		Available:     quote.Available,
		SpotPrice:     quote.SpotPrice,
		OnDemandPrice: quote.OnDemandPrice,
	}
	if !quote.Available || quote.SpotPrice >= quote.OnDemandPrice {
		result.Status = types.CheckStatusNotBeneficial
		result.Reason = "discounted capacity is unavailable or not cheaper"
		return result
	}

	if err := o.act(ctx); err != nil {
		result.Status = types.CheckStatusError
		result.Reason = err.Error()
		return result
	}
	enabled := true
	if _, err := o.deployments.Update(ctx, id, &types.UpdateRequest{DiscountedCapacity: &enabled}); err != nil {
		logger.Log.Errorw("discounted capacity conversion failed", "deployment_id", id, "error", err)
		result.Status = types.CheckStatusError
		result.Reason = err.Error()
		return result
	}

	result.Status = types.CheckStatusConverted
	result.SavingsPercentage = (quote.OnDemandPrice - quote.SpotPrice) / quote.OnDemandPrice * 100
	return result
}

func (o *Optimizer) checkResourceSizing(ctx context.Context, id string) *types.SizingResult {
	d, reason, err := o.active(ctx, id)
	if err != nil {
		return &types.SizingResult{Status: types.CheckStatusError, Reason: err.Error()}
	}
	if d == nil {
		return &types.SizingResult{Status: types.CheckStatusSkipped, Reason: reason}
	}

	samples, err := o.store.Metrics.Latest(ctx, id, o.config.UtilizationSamples)
	if err != nil {
		return &types.SizingResult{Status: types.CheckStatusError, Reason: err.Error()}
	}
	var active []types.MetricSample
	for _, s := range samples {
		if s.Status == "" || s.Status == types.DeploymentStatusActive {
			active = append(active, s)
		}
	}
	if len(active) == 0 {
		return &types.SizingResult{Status: types.CheckStatusSkipped, Reason: "no utilization samples"}
	}

	var cpuSum, memSum float64
	for _, s := range active {
		cpuSum += s.CPUUtilization
		memSum += s.MemoryUtilization
	}
	result := &types.SizingResult{
		CPUUtilization:    cpuSum / float64(len(active)),
		MemoryUtilization: memSum / float64(len(active)),
	}

	resources := d.Resources
	if result.CPUUtilization < OverProvisionedUtilization {
		result.CPU = shrink(d.Resources.CPU, MinCPU, result.CPUUtilization)
		resources.CPU = result.CPU.After
	}
	if result.MemoryUtilization < OverProvisionedUtilization {
		result.Memory = shrink(d.Resources.MemoryGiB, MinMemoryGiB, result.MemoryUtilization)
		resources.MemoryGiB = result.Memory.After
	}

	if result.CPU == nil && result.Memory == nil {
		result.Status = types.CheckStatusOptimal
		return result
	}
	if resources == d.Resources {
		result.Status = types.CheckStatusOptimal
		result.Reason = "over-provisioned resources are already at their minimum"
		return result
	}

	if err := o.act(ctx); err != nil {
		result.Status = types.CheckStatusError
		result.Reason = err.Error()
		return result
	}
	if _, err := o.deployments.Update(ctx, id, &types.UpdateRequest{Resources: &resources}); err != nil {
		logger.Log.Errorw("resource resize failed", "deployment_id", id, "error", err)
		result.Status = types.CheckStatusError
		result.Reason = err.Error()
		return result
	}

	result.Status = types.CheckStatusResized
	return result
}

// shrink reduces an over-provisioned quantity by SizingReduction, floored at min
func shrink(current, floor, utilization float64) *types.ResourceAdjustment {
	after := math.Max(floor, current*(1-SizingReduction))
	if after > current {
		after = current
	}
	adj := &types.ResourceAdjustment{Before: current, After: after, Utilization: utilization}
	if current > 0 {
		adj.SavingsPercentage = (current - after) / current * 100
	}
	return adj
}

func (o *Optimizer) checkArbitrage(ctx context.Context, id string) *types.ArbitrageResult {
	d, reason, err := o.active(ctx, id)
	if err != nil {
		return &types.ArbitrageResult{Status: types.CheckStatusError, Reason: err.Error()}
	}
	if d == nil {
		return &types.ArbitrageResult{Status: types.CheckStatusSkipped, Reason: reason}
	}
	if !d.CostPolicy.ArbitrageEnabled {
		return &types.ArbitrageResult{Status: types.CheckStatusSkipped, Reason: "arbitrage disabled by cost policy"}
	}

	shape := d.Resources.Shape()
	result := &types.ArbitrageResult{CurrentProvider: d.Provider, CurrentRegion: d.Region}

	// A provider's price is its cheapest region, the same basis as Cheapest
	own, err := o.prices.Quote(d.Provider, shape)
	if err != nil {
		result.Status = types.CheckStatusError
		result.Reason = err.Error()
		return result
	}
	cheapest, err := o.prices.Cheapest(shape)
	if err != nil {
		result.Status = types.CheckStatusError
		result.Reason = err.Error()
		return result
	}
	current := own.Price

	result.CurrentPrice = current
	if regional, err := o.prices.Price(d.Provider, d.Region, shape); err == nil {
		result.CurrentRegionPrice = regional
	}
	result.CheapestProvider = cheapest.Provider
	result.CheapestRegion = cheapest.Region
	result.CheapestPrice = cheapest.Price

	// Savings of exactly MinArbitrageSavings qualify
	worthIt := cheapest.Provider != d.Provider &&
		cheapest.Price <= current*(1-MinArbitrageSavings)+priceEpsilon
	if !worthIt {
		result.Status = types.CheckStatusOptimal
		if cheapest.Provider == d.Provider {
			result.Reason = "current provider is the cheapest"
		} else {
			result.Reason = fmt.Sprintf("savings below %.0f%%", MinArbitrageSavings*100)
		}
		return result
	}

	if err := o.act(ctx); err != nil {
		result.Status = types.CheckStatusError
		result.Reason = err.Error()
		return result
	}
	migration, err := o.deployments.Migrate(ctx, id, cheapest.Provider, cheapest.Region)
	if err != nil {
		logger.Log.Errorw("arbitrage migration failed", "deployment_id", id, "error", err)
		result.Status = types.CheckStatusError
		result.Reason = err.Error()
		return result
	}

	result.Status = types.CheckStatusArbitrageOpportunity
	result.SavingsPercentage = (current - cheapest.Price) / current * 100
	logger.Log.Infow("arbitrage opportunity recorded",
		"deployment_id", id,
		"from", fmt.Sprintf("%s/%s", migration.FromProvider, migration.FromRegion),
		"to", fmt.Sprintf("%s/%s", migration.ToProvider, migration.ToRegion),
		"savings_percentage", result.SavingsPercentage,
	)
	return result
}
