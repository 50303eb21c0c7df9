package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	transitionsTotal     *prometheus.CounterVec
	provisionerErrors    *prometheus.CounterVec
	optimizerChecksTotal *prometheus.CounterVec
	optimizerPasses      prometheus.Counter
	tierMovesTotal       *prometheus.CounterVec
	priceRefreshesTotal  prometheus.Counter
	cheapestPrice        *prometheus.GaugeVec
	samplesTotal         *prometheus.CounterVec

	initOnce sync.Once
)

// Init registers all custom metrics with the provided registry.
// Emit functions are no-ops until Init has run.
func Init(registry prometheus.Registerer) {
	initOnce.Do(func() {
		transitionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelctl_deployment_transitions_total",
				Help: "Total number of deployment status transitions",
			},
			[]string{"from", "to"},
		)
		provisionerErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelctl_provisioner_errors_total",
				Help: "Total number of failed provisioner calls",
			},
			[]string{"venue", "operation"},
		)
		optimizerChecksTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelctl_optimizer_checks_total",
				Help: "Optimizer check results by check and status",
			},
			[]string{"check", "status"},
		)
		optimizerPasses = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "modelctl_optimizer_passes_total",
				Help: "Total number of optimizer batch passes",
			},
		)
		tierMovesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelctl_storage_tier_moves_total",
				Help: "Artifact relocations between storage tiers",
			},
			[]string{"from", "to"},
		)
		priceRefreshesTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "modelctl_price_refreshes_total",
				Help: "Total number of price table refreshes",
			},
		)
		cheapestPrice = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "modelctl_cheapest_cpu_price",
				Help: "Cheapest hourly CPU unit price per provider after the last refresh",
			},
			[]string{"provider", "region"},
		)
		samplesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelctl_metric_samples_total",
				Help: "Collected metric samples by deployment status",
			},
			[]string{"status"},
		)

		registry.MustRegister(transitionsTotal)
		registry.MustRegister(provisionerErrors)
		registry.MustRegister(optimizerChecksTotal)
		registry.MustRegister(optimizerPasses)
		registry.MustRegister(tierMovesTotal)
		registry.MustRegister(priceRefreshesTotal)
		registry.MustRegister(cheapestPrice)
		registry.MustRegister(samplesTotal)
	})
}

// Transition records a deployment status change
func Transition(from, to string) {
	if transitionsTotal != nil {
		transitionsTotal.WithLabelValues(from, to).Inc()
	}
}

// ProvisionerError records a failed provisioner call
func ProvisionerError(venue, operation string) {
	if provisionerErrors != nil {
		provisionerErrors.WithLabelValues(venue, operation).Inc()
	}
}

// OptimizerCheck records the result of one optimizer check
func OptimizerCheck(check, status string) {
	if optimizerChecksTotal != nil {
		optimizerChecksTotal.WithLabelValues(check, status).Inc()
	}
}

// OptimizerPass records a completed batch pass
func OptimizerPass() {
	if optimizerPasses != nil {
		optimizerPasses.Inc()
	}
}

// TierMove records an artifact relocation
func TierMove(from, to string) {
	if tierMovesTotal != nil {
		tierMovesTotal.WithLabelValues(from, to).Inc()
	}
}

// PriceRefresh records a price table refresh
func PriceRefresh() {
	if priceRefreshesTotal != nil {
		priceRefreshesTotal.Inc()
	}
}

// CheapestCPUPrice publishes the cheapest CPU unit price of a provider
func CheapestCPUPrice(provider, region string, price float64) {
	if cheapestPrice != nil {
		cheapestPrice.WithLabelValues(provider, region).Set(price)
	}
}

// Sample records a collected metric sample
func Sample(status string) {
	if samplesTotal != nil {
		samplesTotal.WithLabelValues(status).Inc()
	}
}
