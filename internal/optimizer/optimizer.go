// Package optimizer runs the cost optimization pass over deployments.
//
// Each pass evaluates four checks in a fixed order: hibernation, discounted
// capacity, resource sizing and cross-provider arbitrage. Every check
// re-reads the deployment and skips unless it is still active, so a
// hibernation earlier in the pass makes the later checks no-ops. A failing
// check is recorded as an error outcome and never stops the pass or the batch.
package optimizer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tsanders-rh/modelctl/internal/deployment"
	"github.com/tsanders-rh/modelctl/internal/events"
	"github.com/tsanders-rh/modelctl/internal/logger"
	"github.com/tsanders-rh/modelctl/internal/metrics"
	"github.com/tsanders-rh/modelctl/internal/pricing"
	"github.com/tsanders-rh/modelctl/internal/store"
	"github.com/tsanders-rh/modelctl/pkg/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// StateMachine is the deployment surface the optimizer drives
type StateMachine interface {
	Get(ctx context.Context, id string) (*types.Deployment, error)
	List(ctx context.Context, f deployment.ListFilter) ([]*types.Deployment, error)
	Hibernate(ctx context.Context, id string) (*types.Deployment, error)
	Update(ctx context.Context, id string, req *types.UpdateRequest) (*types.Deployment, error)
	Migrate(ctx context.Context, id string, provider types.Provider, region string) (*types.MigrationResult, error)
}

// Prices answers on-demand price queries
type Prices interface {
	Price(provider types.Provider, region string, shape types.ResourceShape) (float64, error)
	Quote(provider types.Provider, shape types.ResourceShape) (types.Quote, error)
	Cheapest(shape types.ResourceShape) (types.Quote, error)
}

// Config holds optimizer configuration
type Config struct {
	// Concurrency bounds how many deployments are evaluated at once
	Concurrency int
	// ActionRate and ActionBurst limit provisioner-mutating actions across the batch
	ActionRate  rate.Limit
	ActionBurst int
	// UtilizationSamples is how many recent samples the sizing check averages
	UtilizationSamples int
}

// DefaultConfig returns default optimizer configuration
func DefaultConfig() *Config {
	return &Config{
		Concurrency:        4,
		ActionRate:         rate.Limit(2),
		ActionBurst:        5,
		UtilizationSamples: 10,
	}
}

// Optimizer evaluates and applies cost optimizations
type Optimizer struct {
	config      *Config
	deployments StateMachine
	prices      Prices
	spot        pricing.SpotSource
	store       *store.Store
	publisher   events.Publisher
	limiter     *rate.Limiter
	now         func() time.Time
}

// Option configures an Optimizer
type Option func(*Optimizer)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(o *Optimizer) { o.now = now }
}

// WithPublisher sets the event publisher for outcomes
func WithPublisher(p events.Publisher) Option {
	return func(o *Optimizer) { o.publisher = p }
}

// New creates an optimizer. Outcomes and utilization history are read from
// and written to st.
func New(config *Config, deployments StateMachine, prices Prices, spot pricing.SpotSource, st *store.Store, opts ...Option) *Optimizer {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.ActionRate <= 0 {
		config.ActionRate = rate.Inf
	}
	if config.ActionBurst < 1 {
		config.ActionBurst = 1
	}
	if config.UtilizationSamples < 1 {
		config.UtilizationSamples = 10
	}

	o := &Optimizer{
		config:      config,
		deployments: deployments,
		prices:      prices,
		spot:        spot,
		store:       st,
		publisher:   events.Nop{},
		limiter:     rate.NewLimiter(config.ActionRate, config.ActionBurst),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Optimize runs one pass over a deployment and records its outcome.
// The returned error covers only lookup and persistence failures; check
// failures are part of the outcome.
func (o *Optimizer) Optimize(ctx context.Context, id string) (*types.OptimizationOutcome, error) {
	d, err := o.deployments.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	outcome := &types.OptimizationOutcome{
		ID:             types.GenerateOutcomeID(),
		DeploymentID:   d.ID,
		DeploymentName: d.Name,
		EvaluatedAt:    o.now(),
	}

	if d.Status != types.DeploymentStatusActive {
		outcome.Status = types.CheckStatusSkipped
		outcome.Reason = fmt.Sprintf("deployment is %s, not active", d.Status)
	} else {
		outcome.Status = types.CheckStatusEvaluated
		outcome.Hibernation = o.checkHibernation(ctx, id)
		outcome.DiscountedCapacity = o.checkDiscountedCapacity(ctx, id)
		outcome.Sizing = o.checkResourceSizing(ctx, id)
		outcome.Arbitrage = o.checkArbitrage(ctx, id)
	}

	for check, status := range outcome.Checks() {
		metrics.OptimizerCheck(string(check), string(status))
	}

	if err := o.store.Outcomes.Record(context.WithoutCancel(ctx), outcome); err != nil {
		return outcome, fmt.Errorf("record outcome: %w", err)
	}
	if err := o.publisher.Publish(ctx, events.New(events.TypeOutcome, outcome.DeploymentID, outcome)); err != nil {
		logger.Log.Warnw("failed to publish optimization outcome", "deployment_id", id, "error", err)
	}

	logger.Log.Infow("optimization pass complete",
		"deployment_id", id,
		"status", outcome.Status,
		"checks", outcome.Checks(),
	)
	return outcome, nil
}

// RunBatch optimizes every deployment, evaluating up to Concurrency
// deployments at once. Outcomes are returned in deployment id order; a
// deployment whose pass could not be recorded is logged and left out.
func (o *Optimizer) RunBatch(ctx context.Context) ([]*types.OptimizationOutcome, error) {
	all, err := o.deployments.List(ctx, deployment.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}

	results := make([]*types.OptimizationOutcome, len(all))
	var (
		mu     sync.Mutex
		failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Concurrency)
	for i, d := range all {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcome, err := o.Optimize(gctx, d.ID)
			if err != nil {
				logger.Log.Errorw("optimization pass failed", "deployment_id", d.ID, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
			results[i] = outcome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*types.OptimizationOutcome, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}

	metrics.OptimizerPass()
	logger.Log.Infow("optimization batch complete", "deployments", len(all), "outcomes", len(out), "failed", failed)
	return out, nil
}

// active re-reads a deployment and reports whether a check should proceed
func (o *Optimizer) active(ctx context.Context, id string) (*types.Deployment, string, error) {
	d, err := o.deployments.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if d.Status != types.DeploymentStatusActive {
		return nil, fmt.Sprintf("deployment is %s", d.Status), nil
	}
	return d, "", nil
}

// act waits for the action limiter before a provisioner-mutating call
func (o *Optimizer) act(ctx context.Context) error {
	if err := o.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("action rate limit: %w", err)
	}
	return nil
}
