package worker

import (
	"context"
	"fmt"

	"github.com/tsanders-rh/modelctl/internal/logger"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

// PassType names one periodic pass
type PassType string

const (
	PassCollection   PassType = "collection"
	PassOptimization PassType = "optimization"
	PassPriceRefresh PassType = "price_refresh"
	PassTiering      PassType = "tiering"
	PassReconcile    PassType = "reconcile"
)

// Collector samples deployment metrics
type Collector interface {
	Collect(ctx context.Context) ([]types.MetricSample, error)
}

// Optimizer evaluates every deployment's cost policy
type Optimizer interface {
	RunBatch(ctx context.Context) ([]*types.OptimizationOutcome, error)
}

// PriceTracker refreshes its table once the refresh interval has passed
type PriceTracker interface {
	RefreshIfDue() bool
}

// StorageTiering relocates artifacts between tiers
type StorageTiering interface {
	RunBatch(ctx context.Context) ([]*types.StorageResult, error)
}

// Reconciler fails deployments stuck in a transitional status
type Reconciler interface {
	Sweep(ctx context.Context) ([]string, error)
}

// Components are the services the worker drives. A nil component disables
// its pass.
type Components struct {
	Collector  Collector
	Optimizer  Optimizer
	Prices     PriceTracker
	Tiering    StorageTiering
	Reconciler Reconciler
}

// PassProcessor runs passes by type
type PassProcessor struct {
	components Components
}

// NewPassProcessor creates a new pass processor
func NewPassProcessor(c Components) *PassProcessor {
	return &PassProcessor{components: c}
}

// Enabled reports whether the component behind a pass is configured
func (p *PassProcessor) Enabled(t PassType) bool {
	switch t {
	case PassCollection:
		return p.components.Collector != nil
	case PassOptimization:
		return p.components.Optimizer != nil
	case PassPriceRefresh:
		return p.components.Prices != nil
	case PassTiering:
		return p.components.Tiering != nil
	case PassReconcile:
		return p.components.Reconciler != nil
	default:
		return false
	}
}

// Process runs one pass based on its type
func (p *PassProcessor) Process(ctx context.Context, t PassType) error {
	if !p.Enabled(t) {
		return fmt.Errorf("pass %s is not configured", t)
	}

	switch t {
	case PassCollection:
		samples, err := p.components.Collector.Collect(ctx)
		if err != nil {
			return err
		}
		logger.Log.Debugw("collection pass complete", "samples", len(samples))

	case PassOptimization:
		outcomes, err := p.components.Optimizer.RunBatch(ctx)
		if err != nil {
			return err
		}
		logger.Log.Infow("optimization pass complete", "outcomes", len(outcomes))

	case PassPriceRefresh:
		if p.components.Prices.RefreshIfDue() {
			logger.Log.Info("price table refreshed")
		}

	case PassTiering:
		results, err := p.components.Tiering.RunBatch(ctx)
		if err != nil {
			return err
		}
		moved, failed := 0, 0
		for _, r := range results {
			switch r.Status {
			case types.StorageOptimized:
				moved++
			case types.StorageError:
				failed++
			}
		}
		logger.Log.Infow("tiering pass complete", "artifacts", len(results), "moved", moved, "failed", failed)

	case PassReconcile:
		if _, err := p.components.Reconciler.Sweep(ctx); err != nil {
			return err
		}
	}
	return nil
}
