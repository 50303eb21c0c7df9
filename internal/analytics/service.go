// Package analytics derives cost, performance, forecast and suggestion
// reports from collected metrics. Every generated report replaces the
// stored report of its kind.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/tsanders-rh/modelctl/internal/deployment"
	"github.com/tsanders-rh/modelctl/internal/logger"
	"github.com/tsanders-rh/modelctl/internal/monitoring"
	"github.com/tsanders-rh/modelctl/internal/store"
	"github.com/tsanders-rh/modelctl/pkg/types"
	"gonum.org/v1/gonum/stat"
)

// Forecast and suggestion parameters
const (
	DefaultForecastDays = 30
	FallbackDailyGrowth = 0.05
	SuggestionSamples   = 10
	LowUtilization      = 30.0 // percent
	HighUtilization     = 80.0 // percent
	HighLatencyMs       = 500.0
	HighErrorRate       = 5.0 // percent
	LowDailyRequests    = 100
	DominantCostShare   = 0.5
	ComputeHeavyShare   = 0.8
)

// Deployments lists the deployments a report covers
type Deployments interface {
	List(ctx context.Context, f deployment.ListFilter) ([]*types.Deployment, error)
}

// Service generates and persists analytics reports
type Service struct {
	deployments Deployments
	collector   *monitoring.Collector
	store       *store.Store
	now         func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an analytics service
func NewService(deployments Deployments, collector *monitoring.Collector, st *store.Store, opts ...Option) *Service {
	s := &Service{
		deployments: deployments,
		collector:   collector,
		store:       st,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CostAnalysis summarizes spend in the window
func (s *Service) CostAnalysis(ctx context.Context, w Window) (*CostReport, error) {
	costs, err := s.collector.CostMetrics(ctx, w.Start, w.End)
	if err != nil {
		return nil, err
	}

	r := &CostReport{
		GeneratedAt:     s.now(),
		Window:          w,
		ByVenue:         map[types.Venue]float64{types.VenueCluster: 0, types.VenueFaaS: 0},
		ByDeployment:    make([]DeploymentCost, 0, len(costs)),
		Recommendations: []string{},
	}
	for _, c := range costs {
		r.TotalCost += c.TotalCost
		r.Breakdown.Compute += c.Breakdown.Compute
		r.Breakdown.Storage += c.Breakdown.Storage
		r.Breakdown.Network += c.Breakdown.Network
		r.ByVenue[c.Venue] += c.TotalCost
		r.ByDeployment = append(r.ByDeployment, DeploymentCost{
			DeploymentID:   c.DeploymentID,
			DeploymentName: c.DeploymentName,
			TotalCost:      c.TotalCost,
		})
	}
	r.Breakdown.Total = r.TotalCost
	sort.SliceStable(r.ByDeployment, func(i, j int) bool {
		return r.ByDeployment[i].TotalCost > r.ByDeployment[j].TotalCost
	})
	r.Recommendations = costRecommendations(r)

	if err := s.save(ctx, KindCost, r); err != nil {
		return nil, err
	}
	return r, nil
}

func costRecommendations(r *CostReport) []string {
	out := []string{}
	if r.TotalCost <= 0 {
		return out
	}
	if len(r.ByDeployment) > 1 && r.ByDeployment[0].TotalCost/r.TotalCost > DominantCostShare {
		top := r.ByDeployment[0]
		out = append(out, fmt.Sprintf("%s accounts for %.0f%% of spend; review its sizing and cost policy",
			top.DeploymentName, top.TotalCost/r.TotalCost*100))
	}
	if r.Breakdown.Compute/r.TotalCost > ComputeHeavyShare {
		out = append(out, "compute dominates spend; enable discounted capacity and hibernation where traffic allows")
	}
	if r.ByVenue[types.VenueCluster] > 0 && r.ByVenue[types.VenueFaaS] == 0 {
		out = append(out, "all spend is on cluster capacity; bursty models may be cheaper on the function venue")
	}
	return out
}

// PerformanceAnalysis summarizes traffic in the window, with anomalies from
// the last day
func (s *Service) PerformanceAnalysis(ctx context.Context, w Window) (*PerformanceReport, error) {
	perf, err := s.collector.PerformanceMetrics(ctx, w.Start, w.End)
	if err != nil {
		return nil, err
	}
	anomalies, err := s.collector.DetectAnomalies(ctx)
	if err != nil {
		return nil, err
	}

	r := &PerformanceReport{
		GeneratedAt: s.now(),
		Window:      w,
		ByVenue: map[types.Venue]*VenuePerformance{
			types.VenueCluster: {},
			types.VenueFaaS:    {},
		},
		ByDeployment:    perf,
		Recommendations: []string{},
		Anomalies:       anomalies,
	}
	if r.Anomalies == nil {
		r.Anomalies = []types.Anomaly{}
	}

	var latency, errs float64
	venueLatency := map[types.Venue]float64{}
	venueErrs := map[types.Venue]float64{}
	for _, p := range perf {
		if p.TotalRequests == 0 {
			continue
		}
		n := float64(p.TotalRequests)
		r.TotalRequests += p.TotalRequests
		latency += p.AvgLatencyMs * n
		errs += p.ErrorRate * n / 100

		v, ok := r.ByVenue[p.Venue]
		if !ok {
			v = &VenuePerformance{}
			r.ByVenue[p.Venue] = v
		}
		v.Requests += p.TotalRequests
		venueLatency[p.Venue] += p.AvgLatencyMs * n
		venueErrs[p.Venue] += p.ErrorRate * n / 100
	}
	if r.TotalRequests > 0 {
		r.AvgLatencyMs = latency / float64(r.TotalRequests)
		r.ErrorRate = errs / float64(r.TotalRequests) * 100
	}
	for venue, v := range r.ByVenue {
		if v.Requests > 0 {
			v.AvgLatencyMs = venueLatency[venue] / float64(v.Requests)
			v.ErrorRate = venueErrs[venue] / float64(v.Requests) * 100
		}
	}

	sort.SliceStable(r.ByDeployment, func(i, j int) bool {
		return r.ByDeployment[i].TotalRequests > r.ByDeployment[j].TotalRequests
	})
	for _, p := range r.ByDeployment {
		if p.AvgLatencyMs > HighLatencyMs {
			r.Recommendations = append(r.Recommendations, fmt.Sprintf(
				"%s averages %.0fms latency; add capacity or an optimized variant", p.DeploymentName, p.AvgLatencyMs))
		}
		if p.ErrorRate > HighErrorRate {
			r.Recommendations = append(r.Recommendations, fmt.Sprintf(
				"%s fails %.1f%% of requests; investigate before scaling", p.DeploymentName, p.ErrorRate))
		}
	}

	if err := s.save(ctx, KindPerformance, r); err != nil {
		return nil, err
	}
	return r, nil
}

// UsageForecast projects daily requests and cost for the next days days.
// Each deployment's daily totals in the window are fitted with a least
// squares line; deployments whose history spans fewer than two days grow
// their current totals by FallbackDailyGrowth per day instead.
func (s *Service) UsageForecast(ctx context.Context, days int, w Window) (*Forecast, error) {
	if days <= 0 {
		days = DefaultForecastDays
	}
	all, err := s.deployments.List(ctx, deployment.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}

	f := &Forecast{
		GeneratedAt:   s.now(),
		Window:        w,
		Days:          days,
		TotalRequests: make([]float64, days),
		TotalCost:     make([]float64, days),
		ByDeployment:  []DeploymentForecast{},
	}
	for _, d := range all {
		samples, err := s.store.Metrics.History(ctx, d.ID, w.Start, w.End)
		if err != nil {
			return nil, fmt.Errorf("load metrics for %s: %w", d.ID, err)
		}
		if len(samples) == 0 {
			continue
		}
		df := forecastDeployment(d, samples, days)
		for i := 0; i < days; i++ {
			f.TotalRequests[i] += df.Requests[i]
			f.TotalCost[i] += df.Cost[i]
		}
		f.ByDeployment = append(f.ByDeployment, df)
	}

	if err := s.save(ctx, KindForecast, f); err != nil {
		return nil, err
	}
	return f, nil
}

type dailyTotal struct {
	day      time.Time
	requests float64
	cost     float64
}

// dailyTotals buckets samples by UTC day, oldest first
func dailyTotals(samples []types.MetricSample) []dailyTotal {
	byDay := map[time.Time]*dailyTotal{}
	for _, s := range samples {
		day := s.Timestamp.UTC().Truncate(24 * time.Hour)
		t, ok := byDay[day]
		if !ok {
			t = &dailyTotal{day: day}
			byDay[day] = t
		}
		t.requests += float64(s.RequestCount)
		t.cost += s.Cost.Total
	}
	out := make([]dailyTotal, 0, len(byDay))
	for _, t := range byDay {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].day.Before(out[j].day) })
	return out
}

func forecastDeployment(d *types.Deployment, samples []types.MetricSample, days int) DeploymentForecast {
	totals := dailyTotals(samples)
	last := totals[len(totals)-1]
	df := DeploymentForecast{
		DeploymentID:    d.ID,
		DeploymentName:  d.Name,
		CurrentRequests: last.requests,
		CurrentCost:     last.cost,
		Requests:        make([]float64, days),
		Cost:            make([]float64, days),
	}

	if len(totals) < 2 {
		df.Trend = TrendGrowth
		for i := 0; i < days; i++ {
			g := math.Pow(1+FallbackDailyGrowth, float64(i+1))
			df.Requests[i] = last.requests * g
			df.Cost[i] = last.cost * g
		}
		return df
	}

	df.Trend = TrendRegression
	xs := make([]float64, len(totals))
	reqs := make([]float64, len(totals))
	costs := make([]float64, len(totals))
	for i, t := range totals {
		xs[i] = t.day.Sub(totals[0].day).Hours() / 24
		reqs[i] = t.requests
		costs[i] = t.cost
	}
	ra, rb := stat.LinearRegression(xs, reqs, nil, false)
	ca, cb := stat.LinearRegression(xs, costs, nil, false)
	origin := xs[len(xs)-1]
	for i := 0; i < days; i++ {
		x := origin + float64(i+1)
		df.Requests[i] = math.Max(0, ra+rb*x)
		df.Cost[i] = math.Max(0, ca+cb*x)
	}
	return df
}

// Suggestions lists per-deployment changes suggested by recent metrics and
// cost policy. Deployments without metrics are left out.
func (s *Service) Suggestions(ctx context.Context) (*SuggestionsReport, error) {
	all, err := s.deployments.List(ctx, deployment.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}

	r := &SuggestionsReport{GeneratedAt: s.now(), ByDeployment: []DeploymentSuggestions{}}
	for _, d := range all {
		samples, err := s.store.Metrics.Latest(ctx, d.ID, SuggestionSamples)
		if err != nil {
			logger.Log.Errorw("failed to load metrics for suggestions", "deployment_id", d.ID, "error", err)
			continue
		}
		var active []types.MetricSample
		for _, m := range samples {
			if m.Status == "" || m.Status == types.DeploymentStatusActive {
				active = append(active, m)
			}
		}
		if len(active) == 0 {
			continue
		}

		var out []Suggestion
		out = append(out, resourceSuggestions(d, active)...)
		out = append(out, costSuggestions(d, active)...)
		out = append(out, performanceSuggestions(active)...)
		if len(out) > 0 {
			r.ByDeployment = append(r.ByDeployment, DeploymentSuggestions{
				DeploymentID:   d.ID,
				DeploymentName: d.Name,
				Suggestions:    out,
			})
		}
	}

	if err := s.save(ctx, KindSuggestions, r); err != nil {
		return nil, err
	}
	return r, nil
}

func mean(samples []types.MetricSample, value func(types.MetricSample) float64) float64 {
	xs := make([]float64, len(samples))
	for i, s := range samples {
		xs[i] = value(s)
	}
	return stat.Mean(xs, nil)
}

func resourceSuggestions(d *types.Deployment, samples []types.MetricSample) []Suggestion {
	var out []Suggestion
	cpu := mean(samples, func(s types.MetricSample) float64 { return s.CPUUtilization })
	mem := mean(samples, func(s types.MetricSample) float64 { return s.MemoryUtilization })

	switch {
	case cpu < LowUtilization:
		out = append(out, Suggestion{SuggestResource, fmt.Sprintf("cpu averages %.0f%% of %.2g cores; reduce the request", cpu, d.Resources.CPU)})
	case cpu > HighUtilization:
		out = append(out, Suggestion{SuggestResource, fmt.Sprintf("cpu averages %.0f%%; raise the request or max instances (%d)", cpu, d.Scaling.MaxInstances)})
	}
	switch {
	case mem < LowUtilization:
		out = append(out, Suggestion{SuggestResource, fmt.Sprintf("memory averages %.0f%% of %.3gGi; reduce the request", mem, d.Resources.MemoryGiB)})
	case mem > HighUtilization:
		out = append(out, Suggestion{SuggestResource, fmt.Sprintf("memory averages %.0f%%; raise the request", mem)})
	}
	return out
}

func costSuggestions(d *types.Deployment, samples []types.MetricSample) []Suggestion {
	var out []Suggestion
	if d.Venue == types.VenueCluster && !d.CostPolicy.UseDiscountedCapacity {
		out = append(out, Suggestion{SuggestCost, "enable discounted capacity for this cluster deployment"})
	}
	requests := mean(samples, func(s types.MetricSample) float64 { return float64(s.RequestCount) })
	if !d.CostPolicy.HibernationEnabled && requests < LowDailyRequests {
		out = append(out, Suggestion{SuggestCost, fmt.Sprintf("traffic averages %.0f requests per sample; enable hibernation", requests)})
	}
	if !d.CostPolicy.ArbitrageEnabled {
		out = append(out, Suggestion{SuggestCost, "enable cross-provider arbitrage to follow cheaper capacity"})
	}
	return out
}

func performanceSuggestions(samples []types.MetricSample) []Suggestion {
	var out []Suggestion
	m := monitoring.AggregatePerformance(&types.Deployment{}, samples)
	if m.AvgLatencyMs > HighLatencyMs {
		out = append(out, Suggestion{SuggestPerformance, fmt.Sprintf("latency averages %.0fms; deploy a quantized or distilled variant", m.AvgLatencyMs)})
	}
	if m.ErrorRate > HighErrorRate {
		out = append(out, Suggestion{SuggestPerformance, fmt.Sprintf("error rate is %.1f%%; check the serving logs", m.ErrorRate)})
	}
	return out
}

// Latest loads the stored report of a kind into out
func (s *Service) Latest(ctx context.Context, kind string, out any) error {
	return s.store.Reports.Load(ctx, kind, out)
}

// OutcomeHistory returns the recorded optimization outcomes of a deployment
func (s *Service) OutcomeHistory(ctx context.Context, id string) ([]*types.OptimizationOutcome, error) {
	return s.store.Outcomes.List(ctx, id)
}

func (s *Service) save(ctx context.Context, kind string, report any) error {
	if err := s.store.Reports.Save(ctx, kind, report); err != nil {
		return fmt.Errorf("save %s report: %w", kind, err)
	}
	logger.Log.Infow("analytics report generated", "kind", kind)
	return nil
}
