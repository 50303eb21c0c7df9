package monitoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/tsanders-rh/modelctl/internal/logger"
	"github.com/tsanders-rh/modelctl/internal/provisioner"
	"github.com/tsanders-rh/modelctl/pkg/types"
	"k8s.io/apimachinery/pkg/util/wait"
)

// ErrNoData is returned when Prometheus has no utilization series for a deployment
var ErrNoData = errors.New("no utilization data")

// QueryBackoff retries individual Prometheus queries
var QueryBackoff = wait.Backoff{
	Duration: 500 * time.Millisecond,
	Factor:   2.0,
	Jitter:   0.1,
	Steps:    4,
}

// Queries are PromQL templates. %[1]s is the workload object name and
// %[2]s the deployment id.
type Queries struct {
	CPUUtilization    string `mapstructure:"cpu_utilization"`
	MemoryUtilization string `mapstructure:"memory_utilization"`
	Requests          string `mapstructure:"requests"`
	LatencyMs         string `mapstructure:"latency_ms"`
	Errors            string `mapstructure:"errors"`
}

// DefaultQueries returns queries over cAdvisor, kube-state-metrics and the
// serving runtime's request metrics
func DefaultQueries() Queries {
	return Queries{
		CPUUtilization: `100 * sum(rate(container_cpu_usage_seconds_total{pod=~"%[1]s-.*",container="model"}[5m]))` +
			` / sum(kube_pod_container_resource_requests{pod=~"%[1]s-.*",container="model",resource="cpu"})`,
		MemoryUtilization: `100 * sum(container_memory_working_set_bytes{pod=~"%[1]s-.*",container="model"})` +
			` / sum(kube_pod_container_resource_requests{pod=~"%[1]s-.*",container="model",resource="memory"})`,
		Requests: `sum(increase(modelctl_serving_requests_total{deployment_id="%[2]s"}[1h]))`,
		LatencyMs: `1000 * sum(rate(modelctl_serving_request_duration_seconds_sum{deployment_id="%[2]s"}[5m]))` +
			` / sum(rate(modelctl_serving_request_duration_seconds_count{deployment_id="%[2]s"}[5m]))`,
		Errors: `sum(increase(modelctl_serving_request_errors_total{deployment_id="%[2]s"}[1h]))`,
	}
}

// PrometheusSource samples deployments from a Prometheus server
type PrometheusSource struct {
	api     promv1.API
	queries Queries
	backoff wait.Backoff
}

// NewPrometheusSource creates a source over an existing API client
func NewPrometheusSource(promAPI promv1.API, queries Queries) *PrometheusSource {
	return &PrometheusSource{api: promAPI, queries: queries, backoff: QueryBackoff}
}

// WithBackoff replaces the per-query retry schedule
func (p *PrometheusSource) WithBackoff(b wait.Backoff) *PrometheusSource {
	p.backoff = b
	return p
}

// NewPrometheusSourceFromURL connects to the Prometheus server at address
func NewPrometheusSourceFromURL(address string, queries Queries) (*PrometheusSource, error) {
	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("create prometheus client: %w", err)
	}
	return NewPrometheusSource(promv1.NewAPI(client), queries), nil
}

// Sample implements MetricSource
func (p *PrometheusSource) Sample(ctx context.Context, d *types.Deployment, now time.Time) (types.MetricSample, error) {
	name := provisioner.ObjectName(d)

	cpu, ok, err := p.query(ctx, p.queries.CPUUtilization, name, d.ID, now)
	if err != nil {
		return types.MetricSample{}, err
	}
	if !ok {
		return types.MetricSample{}, fmt.Errorf("%w for deployment %s", ErrNoData, d.ID)
	}
	mem, _, err := p.query(ctx, p.queries.MemoryUtilization, name, d.ID, now)
	if err != nil {
		return types.MetricSample{}, err
	}
	requests, _, err := p.query(ctx, p.queries.Requests, name, d.ID, now)
	if err != nil {
		return types.MetricSample{}, err
	}
	latency, _, err := p.query(ctx, p.queries.LatencyMs, name, d.ID, now)
	if err != nil {
		return types.MetricSample{}, err
	}
	errs, _, err := p.query(ctx, p.queries.Errors, name, d.ID, now)
	if err != nil {
		return types.MetricSample{}, err
	}

	count := int64(math.Round(requests))
	return types.MetricSample{
		DeploymentID:      d.ID,
		Timestamp:         now,
		Status:            d.Status,
		CPUUtilization:    cpu,
		MemoryUtilization: mem,
		RequestCount:      count,
		AvgLatencyMs:      latency,
		ErrorCount:        int64(math.Round(errs)),
		Cost:              HourlyCost(d.Resources, count),
	}, nil
}

// query evaluates one template and sums the resulting vector. ok is false
// when the query matched no series. Transient failures are retried.
func (p *PrometheusSource) query(ctx context.Context, tmpl, name, id string, now time.Time) (float64, bool, error) {
	if tmpl == "" {
		return 0, false, nil
	}
	q := fmt.Sprintf(tmpl, name, id)

	var (
		val     model.Value
		lastErr error
	)
	err := wait.ExponentialBackoffWithContext(ctx, p.backoff, func(ctx context.Context) (bool, error) {
		v, warnings, err := p.api.Query(ctx, q, now)
		if err != nil {
			lastErr = err
			logger.Log.Warnw("prometheus query failed, retrying", "deployment_id", id, "error", err)
			return false, nil
		}
		if len(warnings) > 0 {
			logger.Log.Debugw("prometheus query warnings", "deployment_id", id, "warnings", warnings)
		}
		val = v
		return true, nil
	})
	if err != nil {
		if lastErr != nil {
			return 0, false, fmt.Errorf("query prometheus: %w", lastErr)
		}
		return 0, false, fmt.Errorf("query prometheus: %w", err)
	}

	switch v := val.(type) {
	case nil:
		return 0, false, nil
	case model.Vector:
		if len(v) == 0 {
			return 0, false, nil
		}
		var sum float64
		for _, s := range v {
			f := float64(s.Value)
			if !math.IsNaN(f) && !math.IsInf(f, 0) {
				sum += f
			}
		}
		return sum, true, nil
	case *model.Scalar:
		f := float64(v.Value)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false, nil
		}
		return f, true, nil
	default:
		return 0, false, fmt.Errorf("unexpected prometheus result type %s", val.Type())
	}
}
