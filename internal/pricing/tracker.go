// Package pricing tracks per-provider, per-region unit prices and answers
// quote and cheapest-placement queries for a resource shape.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/tsanders-rh/modelctl/internal/logger"
	"github.com/tsanders-rh/modelctl/internal/metrics"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

// DefaultRefreshInterval is how long a price table stays current
const DefaultRefreshInterval = time.Hour

var (
	// ErrUnknownProvider is returned for a provider with no price table
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrUnknownRegion is returned for a region missing from a provider's table
	ErrUnknownRegion = errors.New("unknown region")
)

// Perturbation produces the next unit prices from the previous ones on refresh
type Perturbation func(types.UnitPrices) types.UnitPrices

// Jitter returns a perturbation scaling each unit price by an independent
// factor in [1-spread, 1+spread], drawn from a generator seeded with seed
func Jitter(seed uint64, spread float64) Perturbation {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	var mu sync.Mutex
	factor := func() float64 {
		return 1 - spread + rng.Float64()*2*spread
	}
	return func(p types.UnitPrices) types.UnitPrices {
		mu.Lock()
		defer mu.Unlock()
		return types.UnitPrices{
			CPU:    p.CPU * factor(),
			Memory: p.Memory * factor(),
			GPU:    p.GPU * factor(),
		}
	}
}

// Fixed leaves prices unchanged on refresh
func Fixed(p types.UnitPrices) types.UnitPrices { return p }

// Config configures a Tracker
type Config struct {
	Catalog         Catalog
	RefreshInterval time.Duration
	Perturbation    Perturbation
	Now             func() time.Time
}

// DefaultConfig returns the built-in catalog with ±5% jitter
func DefaultConfig() Config {
	return Config{
		Catalog:         DefaultCatalog(),
		RefreshInterval: DefaultRefreshInterval,
		Perturbation:    Jitter(uint64(time.Now().UnixNano()), 0.05),
		Now:             time.Now,
	}
}

// Tracker holds the price table. Reads share the lock; a refresh replaces
// the whole table under the write lock.
type Tracker struct {
	mu          sync.RWMutex
	table       Catalog
	lastRefresh time.Time
	interval    time.Duration
	perturb     Perturbation
	now         func() time.Time
}

// NewTracker creates a tracker over a copy of cfg.Catalog
func NewTracker(cfg Config) *Tracker {
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog()
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Perturbation == nil {
		cfg.Perturbation = Fixed
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tracker{
		table:    cfg.Catalog.Clone(),
		interval: cfg.RefreshInterval,
		perturb:  cfg.Perturbation,
		now:      cfg.Now,
	}
}

// RefreshDue reports whether no refresh has happened yet or the last one
// is older than the refresh interval
func (t *Tracker) RefreshDue() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.refreshDue()
}

func (t *Tracker) refreshDue() bool {
	return t.lastRefresh.IsZero() || t.now().Sub(t.lastRefresh) > t.interval
}

// RefreshIfDue refreshes when due and reports whether it did
func (t *Tracker) RefreshIfDue() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.refreshDue() {
		return false
	}
	t.refresh()
	return true
}

// Refresh recomputes every region's prices unconditionally
func (t *Tracker) Refresh() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refresh()
}

func (t *Tracker) refresh() {
	next := make(Catalog, len(t.table))
	for _, provider := range t.table.Providers() {
		regions := make(map[string]types.UnitPrices, len(t.table[provider]))
		for _, region := range t.table.Regions(provider) {
			regions[region] = t.perturb(t.table[provider][region])
		}
		next[provider] = regions
	}
	t.table = next
	t.lastRefresh = t.now()

	metrics.PriceRefresh()
	for _, provider := range next.Providers() {
		region, prices := cheapestCPU(next, provider)
		metrics.CheapestCPUPrice(string(provider), region, prices.CPU)
	}
	logger.Log.Infow("price table refreshed", "providers", len(next), "refreshed_at", t.lastRefresh)
}

func cheapestCPU(c Catalog, provider types.Provider) (string, types.UnitPrices) {
	var (
		best   string
		prices types.UnitPrices
	)
	for _, region := range c.Regions(provider) {
		p := c[provider][region]
		if best == "" || p.CPU < prices.CPU {
			best, prices = region, p
		}
	}
	return best, prices
}

// LastRefresh returns when the table was last refreshed; zero if never
func (t *Tracker) LastRefresh() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastRefresh
}

// Set overrides one region's unit prices
func (t *Tracker) Set(provider types.Provider, region string, prices types.UnitPrices) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.table[provider] == nil {
		t.table[provider] = make(map[string]types.UnitPrices)
	}
	t.table[provider][region] = prices
}

// Table returns a copy of the current price table
func (t *Tracker) Table() Catalog {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.table.Clone()
}

// Price returns the hourly price of a shape in one provider region
func (t *Tracker) Price(provider types.Provider, region string, shape types.ResourceShape) (float64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	regions, ok := t.table[provider]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	prices, ok := regions[region]
	if !ok {
		return 0, fmt.Errorf("%w: %s/%s", ErrUnknownRegion, provider, region)
	}
	return prices.Cost(shape), nil
}

// Quote returns a provider's cheapest region for a shape. Ties go to the
// region that sorts first.
func (t *Tracker) Quote(provider types.Provider, shape types.ResourceShape) (types.Quote, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.quote(provider, shape)
}

func (t *Tracker) quote(provider types.Provider, shape types.ResourceShape) (types.Quote, error) {
	if _, ok := t.table[provider]; !ok {
		return types.Quote{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	best := types.Quote{Provider: provider, Price: math.Inf(1)}
	for _, region := range t.table.Regions(provider) {
		if price := t.table[provider][region].Cost(shape); price < best.Price {
			best.Region = region
			best.Price = price
		}
	}
	if best.Region == "" {
		return types.Quote{}, fmt.Errorf("%w: %s has no regions", ErrUnknownRegion, provider)
	}
	return best, nil
}

// Quotes returns the cheapest region of every provider, in provider order
func (t *Tracker) Quotes(shape types.ResourceShape) []types.Quote {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]types.Quote, 0, len(t.table))
	for _, provider := range t.table.Providers() {
		if q, err := t.quote(provider, shape); err == nil {
			out = append(out, q)
		}
	}
	return out
}

// Cheapest returns the provider and region minimizing the price of a shape.
// Ties go to the provider that sorts first.
func (t *Tracker) Cheapest(shape types.ResourceShape) (types.Quote, error) {
	quotes := t.Quotes(shape)
	if len(quotes) == 0 {
		return types.Quote{}, fmt.Errorf("no prices available")
	}

	best := quotes[0]
	for _, q := range quotes[1:] {
		if q.Price < best.Price {
			best = q
		}
	}
	return best, nil
}
