package tiering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tsanders-rh/modelctl/internal/events"
	"github.com/tsanders-rh/modelctl/internal/logger"
	"github.com/tsanders-rh/modelctl/internal/metrics"
	"github.com/tsanders-rh/modelctl/internal/store"
	"github.com/tsanders-rh/modelctl/pkg/types"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds how many artifacts a batch pass moves at once
const DefaultConcurrency = 4

// Engine classifies artifacts and relocates them between tiers
type Engine struct {
	store       *store.Store
	roots       Roots
	backends    router
	publisher   events.Publisher
	locks       *store.Locks
	concurrency int
	now         func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPublisher sets the event publisher for tier moves
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithObjectStore serves s3:// paths from b
func WithObjectStore(b Backend) Option {
	return func(e *Engine) { e.backends.s3 = b }
}

// WithFileBackend replaces the filesystem backend
func WithFileBackend(b Backend) Option {
	return func(e *Engine) { e.backends.file = b }
}

// WithConcurrency sets how many artifacts a batch pass moves at once
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// New creates a tiering engine over the artifact records in st
func New(st *store.Store, roots Roots, opts ...Option) *Engine {
	e := &Engine{
		store:       st,
		roots:       roots,
		backends:    router{file: FileBackend{}},
		publisher:   events.Nop{},
		locks:       store.NewLocks(),
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Roots returns the configured tier roots
func (e *Engine) Roots() Roots {
	return e.roots
}

// AccessPattern classifies the artifact stored under key
func (e *Engine) AccessPattern(ctx context.Context, key string) (types.AccessPattern, error) {
	rec, err := e.store.Access.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return Classify(nil, e.now()), nil
	}
	if err != nil {
		return "", fmt.Errorf("get access record: %w", err)
	}
	return Classify(rec, e.now()), nil
}

// RecordAccess registers one read of the artifact stored under key
func (e *Engine) RecordAccess(ctx context.Context, key string) (*types.AccessRecord, error) {
	rec, err := e.store.Access.Record(ctx, key, e.now())
	if err != nil {
		return nil, fmt.Errorf("record access: %w", err)
	}
	return rec, nil
}

// OptimizeModel moves a model's artifact to the tier its access pattern calls for
func (e *Engine) OptimizeModel(ctx context.Context, id string) (*types.StorageResult, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	m, err := e.store.Models.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get model: %w", err)
	}
	return e.relocate(ctx, id, m.StoragePath, func(path string) error {
		m.StoragePath = path
		m.UpdatedAt = e.now()
		return e.store.Models.Put(ctx, m)
	})
}

// OptimizeOptimizedModel moves an optimized model's artifact to the tier its
// access pattern calls for
func (e *Engine) OptimizeOptimizedModel(ctx context.Context, id string) (*types.StorageResult, error) {
	m, err := e.store.OptimizedModels.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get optimized model: %w", err)
	}

	key := m.ArtifactKey()
	unlock := e.locks.Lock(key)
	defer unlock()

	return e.relocate(ctx, key, m.StoragePath, func(path string) error {
		m.StoragePath = path
		return e.store.OptimizedModels.Put(ctx, m)
	})
}

// relocate compares the current and target tiers of the artifact at path
// and moves it when they differ. The copy lands and the new path is saved
// before the source is removed; an interrupted move leaves the artifact in
// both tiers.
func (e *Engine) relocate(ctx context.Context, key, path string, save func(string) error) (*types.StorageResult, error) {
	pattern, err := e.AccessPattern(ctx, key)
	if err != nil {
		return nil, err
	}

	current := e.roots.TierOf(path)
	target := types.TierFor(pattern)
	result := &types.StorageResult{Key: key, AccessPattern: pattern}

	if current == target {
		result.Status = types.StorageAlreadyOptimized
		result.Tier = target
		return result, nil
	}

	dst := e.roots.Target(key, path, target)
	if err := e.backends.copy(ctx, path, dst); err != nil {
		return nil, fmt.Errorf("copy artifact: %w", err)
	}
	if err := save(dst); err != nil {
		return nil, fmt.Errorf("save storage path: %w", err)
	}
	if err := e.backends.delete(context.WithoutCancel(ctx), path); err != nil {
		logger.Log.Warnw("artifact copied but source not removed",
			"artifact_key", key,
			"source", path,
			"destination", dst,
			"error", err,
		)
	}

	result.Status = types.StorageOptimized
	result.FromTier = current
	result.ToTier = target
	result.NewStoragePath = dst

	metrics.TierMove(string(current), string(target))
	if err := e.publisher.Publish(ctx, events.New(events.TypeTierMoved, key, result)); err != nil {
		logger.Log.Warnw("failed to publish tier move", "artifact_key", key, "error", err)
	}
	logger.Log.Infow("artifact moved",
		"artifact_key", key,
		"from_tier", current,
		"to_tier", target,
		"path", dst,
	)
	return result, nil
}

// RunBatch optimizes every model and optimized model. Failures are reported
// per artifact with an error status and never stop the pass. Results are
// ordered by model, each followed by its optimized variants.
func (e *Engine) RunBatch(ctx context.Context) ([]*types.StorageResult, error) {
	models, err := e.store.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	type job struct {
		key string
		run func(context.Context) (*types.StorageResult, error)
	}
	var jobs []job
	for _, m := range models {
		jobs = append(jobs, job{key: m.ID, run: func(ctx context.Context) (*types.StorageResult, error) {
			return e.OptimizeModel(ctx, m.ID)
		}})

		variants, err := e.store.OptimizedModels.ListByOriginal(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("list optimized models: %w", err)
		}
		for _, v := range variants {
			jobs = append(jobs, job{key: v.ArtifactKey(), run: func(ctx context.Context) (*types.StorageResult, error) {
				return e.OptimizeOptimizedModel(ctx, v.ID)
			}})
		}
	}

	results := make([]*types.StorageResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := j.run(gctx)
			if err != nil {
				logger.Log.Errorw("storage optimization failed", "artifact_key", j.key, "error", err)
				res = &types.StorageResult{Key: j.key, Status: types.StorageError, Error: err.Error()}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	moved := 0
	for _, r := range results {
		if r.Status == types.StorageOptimized {
			moved++
		}
	}
	logger.Log.Infow("storage tiering pass complete", "artifacts", len(results), "moved", moved)
	return results, nil
}
