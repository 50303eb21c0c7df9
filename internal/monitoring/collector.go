package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/tsanders-rh/modelctl/internal/deployment"
	"github.com/tsanders-rh/modelctl/internal/logger"
	"github.com/tsanders-rh/modelctl/internal/metrics"
	"github.com/tsanders-rh/modelctl/internal/store"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

// Deployments is the deployment surface the collector reads and stamps
type Deployments interface {
	Get(ctx context.Context, id string) (*types.Deployment, error)
	List(ctx context.Context, f deployment.ListFilter) ([]*types.Deployment, error)
	Touch(ctx context.Context, id string, at time.Time) error
}

// Collector samples deployments into the metric store
type Collector struct {
	deployments Deployments
	source      MetricSource
	store       *store.Store
	now         func() time.Time
}

// CollectorOption configures a Collector
type CollectorOption func(*Collector)

// WithClock overrides the time source
func WithClock(now func() time.Time) CollectorOption {
	return func(c *Collector) { c.now = now }
}

// NewCollector creates a collector writing samples to st
func NewCollector(deployments Deployments, source MetricSource, st *store.Store, opts ...CollectorOption) *Collector {
	c := &Collector{
		deployments: deployments,
		source:      source,
		store:       st,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect samples every deployment. Active deployments are observed through
// the source, hibernated ones accrue storage cost only and the rest are
// skipped. A failing deployment is logged and does not stop the pass.
func (c *Collector) Collect(ctx context.Context) ([]types.MetricSample, error) {
	all, err := c.deployments.List(ctx, deployment.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}

	var out []types.MetricSample
	for _, d := range all {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		sample, ok, err := c.collect(ctx, d)
		if err != nil {
			logger.Log.Errorw("metric collection failed", "deployment_id", d.ID, "error", err)
			continue
		}
		if ok {
			out = append(out, sample)
		}
	}

	logger.Log.Infow("metric collection complete", "deployments", len(all), "samples", len(out))
	return out, nil
}

// CollectDeployment samples one deployment. ok is false when the deployment's
// status is neither active nor hibernated.
func (c *Collector) CollectDeployment(ctx context.Context, id string) (types.MetricSample, bool, error) {
	d, err := c.deployments.Get(ctx, id)
	if err != nil {
		return types.MetricSample{}, false, err
	}
	return c.collect(ctx, d)
}

func (c *Collector) collect(ctx context.Context, d *types.Deployment) (types.MetricSample, bool, error) {
	now := c.now()

	var sample types.MetricSample
	switch d.Status {
	case types.DeploymentStatusActive:
		s, err := c.source.Sample(ctx, d, now)
		if err != nil {
			return types.MetricSample{}, false, fmt.Errorf("sample: %w", err)
		}
		sample = s
	case types.DeploymentStatusHibernated:
		since := d.UpdatedAt
		sample = types.MetricSample{
			DeploymentID:    d.ID,
			Timestamp:       now,
			Status:          d.Status,
			Cost:            HibernatedCost(),
			HibernatedSince: &since,
		}
	default:
		return types.MetricSample{}, false, nil
	}

	if err := c.store.Metrics.Append(ctx, sample); err != nil {
		return types.MetricSample{}, false, fmt.Errorf("append sample: %w", err)
	}
	metrics.Sample(string(d.Status))

	if d.Status == types.DeploymentStatusActive && sample.RequestCount > 0 {
		if err := c.deployments.Touch(ctx, d.ID, now); err != nil {
			logger.Log.Warnw("failed to stamp last activity", "deployment_id", d.ID, "error", err)
		}
	}
	return sample, true, nil
}

// History returns the samples of a deployment in [since, until]; zero
// bounds are open
func (c *Collector) History(ctx context.Context, id string, since, until time.Time) ([]types.MetricSample, error) {
	if _, err := c.deployments.Get(ctx, id); err != nil {
		return nil, err
	}
	return c.store.Metrics.History(ctx, id, since, until)
}

// CostMetrics aggregates cost per deployment over [since, until]
func (c *Collector) CostMetrics(ctx context.Context, since, until time.Time) ([]types.CostMetrics, error) {
	all, err := c.deployments.List(ctx, deployment.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	out := make([]types.CostMetrics, 0, len(all))
	for _, d := range all {
		samples, err := c.store.Metrics.History(ctx, d.ID, since, until)
		if err != nil {
			return nil, fmt.Errorf("load metrics for %s: %w", d.ID, err)
		}
		out = append(out, AggregateCost(d, samples))
	}
	return out, nil
}

// PerformanceMetrics aggregates traffic per deployment over [since, until]
func (c *Collector) PerformanceMetrics(ctx context.Context, since, until time.Time) ([]types.PerformanceMetrics, error) {
	all, err := c.deployments.List(ctx, deployment.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	out := make([]types.PerformanceMetrics, 0, len(all))
	for _, d := range all {
		samples, err := c.store.Metrics.History(ctx, d.ID, since, until)
		if err != nil {
			return nil, fmt.Errorf("load metrics for %s: %w", d.ID, err)
		}
		out = append(out, AggregatePerformance(d, samples))
	}
	return out, nil
}

// DetectAnomalies scans the last AnomalyWindow of every deployment
func (c *Collector) DetectAnomalies(ctx context.Context) ([]types.Anomaly, error) {
	all, err := c.deployments.List(ctx, deployment.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	now := c.now()
	var out []types.Anomaly
	for _, d := range all {
		samples, err := c.store.Metrics.History(ctx, d.ID, now.Add(-AnomalyWindow), now)
		if err != nil {
			return nil, fmt.Errorf("load metrics for %s: %w", d.ID, err)
		}
		out = append(out, DetectAnomalies(d.ID, samples)...)
	}
	return out, nil
}
