package store

import (
	"context"
	"fmt"

	"github.com/tsanders-rh/modelctl/pkg/types"
)

// Store groups the typed record stores over one KV medium
type Store struct {
	kv KV

	Deployments     *DeploymentStore
	Models          *ModelStore
	OptimizedModels *OptimizedModelStore
	Metrics         *MetricStore
	Outcomes        *OutcomeStore
	Access          *AccessStore
	Reports         *ReportStore
}

// New creates a new Store with all sub-stores initialized
func New(kv KV) *Store {
	s := &Store{kv: kv}

	s.Deployments = &DeploymentStore{c: collection[types.Deployment]{kv: kv, prefix: prefixDeployments, noun: "deployment"}}
	s.Models = &ModelStore{c: collection[types.Model]{kv: kv, prefix: prefixModels, noun: "model"}}
	s.OptimizedModels = &OptimizedModelStore{c: collection[types.OptimizedModel]{kv: kv, prefix: prefixOptimizedModels, noun: "optimized model"}}
	s.Metrics = &MetricStore{
		c:          collection[[]types.MetricSample]{kv: kv, prefix: prefixMetrics, noun: "metric history"},
		locks:      NewLocks(),
		MaxHistory: DefaultMaxHistory,
	}
	s.Outcomes = &OutcomeStore{c: collection[types.OptimizationOutcome]{kv: kv, prefix: prefixOutcomes, noun: "optimization outcome"}}
	s.Access = &AccessStore{
		c:     collection[types.AccessRecord]{kv: kv, prefix: prefixAccess, noun: "access record"},
		locks: NewLocks(),
	}
	s.Reports = &ReportStore{kv: kv}

	return s
}

// NewMemory creates a Store backed by an in-memory KV
func NewMemory() *Store {
	return New(NewMemoryKV())
}

// NewPostgres connects to databaseURL, ensures the schema and returns a Store
func NewPostgres(ctx context.Context, cfg *Config) (*Store, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	kv := NewPostgresKV(pool)
	if err := kv.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return New(kv), nil
}

// Ping verifies the backing medium is reachable
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.kv.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close releases the backing medium
func (s *Store) Close() {
	if c, ok := s.kv.(interface{ Close() }); ok {
		c.Close()
	}
}
