// Package registry records models and their optimized variants. Artifact
// transformation happens elsewhere; the registry only stores its results.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tsanders-rh/modelctl/internal/deployment"
	"github.com/tsanders-rh/modelctl/internal/logger"
	"github.com/tsanders-rh/modelctl/internal/policy"
	"github.com/tsanders-rh/modelctl/internal/store"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

// Registry manages model and optimized model records
type Registry struct {
	store  *store.Store
	policy *policy.Engine
	locks  *store.Locks
	now    func() time.Time
}

// New creates a registry
func New(st *store.Store, engine *policy.Engine) *Registry {
	return &Registry{
		store:  st,
		policy: engine,
		locks:  store.NewLocks(),
		now:    time.Now,
	}
}

// WithClock overrides the time source
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// RegisterModel validates and stores a new model. ID and timestamps are assigned here.
func (r *Registry) RegisterModel(ctx context.Context, m *types.Model) (*types.Model, error) {
	if result := r.policy.ValidateModel(m); !result.Valid {
		return nil, &deployment.InvalidPolicyError{Errors: result.Errors}
	}

	now := r.now()
	m.ID = types.GenerateModelID()
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.Metadata == nil {
		m.Metadata = types.Tags{}
	}

	if err := r.store.Models.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create model: %w", err)
	}

	logger.Log.Infow("model registered", "model_id", m.ID, "name", m.Name, "framework", m.Framework)
	return m, nil
}

// GetModel returns a model by id
func (r *Registry) GetModel(ctx context.Context, id string) (*types.Model, error) {
	m, err := r.store.Models.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: model %s", deployment.ErrNotFound, id)
	}
	return m, err
}

// ListModels returns every registered model ordered by id
func (r *Registry) ListModels(ctx context.Context) ([]*types.Model, error) {
	return r.store.Models.List(ctx)
}

// DeleteModel removes a model together with its optimized variants and
// their access history. It is refused while any deployment serves the
// model or one of its variants.
func (r *Registry) DeleteModel(ctx context.Context, id string) error {
	unlock := r.locks.Lock(id)
	defer unlock()

	if _, err := r.GetModel(ctx, id); err != nil {
		return err
	}

	variants, err := r.store.OptimizedModels.ListByOriginal(ctx, id)
	if err != nil {
		return fmt.Errorf("list optimized models: %w", err)
	}

	refs := []string{id}
	for _, v := range variants {
		refs = append(refs, v.ID)
	}
	if err := r.checkUnreferenced(ctx, refs...); err != nil {
		return err
	}

	for _, v := range variants {
		if err := r.deleteOptimized(ctx, v); err != nil {
			return err
		}
	}
	if err := r.store.Access.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete access record: %w", err)
	}
	if err := r.store.Models.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete model: %w", err)
	}

	logger.Log.Infow("model deleted", "model_id", id, "optimized_variants", len(variants))
	return nil
}

// RegisterOptimizedModel stores an optimized variant of an existing model.
// A zero delta is replaced with the published estimate for the technique.
func (r *Registry) RegisterOptimizedModel(ctx context.Context, m *types.OptimizedModel) (*types.OptimizedModel, error) {
	if result := r.policy.ValidateOptimizedModel(m); !result.Valid {
		return nil, &deployment.InvalidPolicyError{Errors: result.Errors}
	}
	if _, err := r.GetModel(ctx, m.OriginalModelID); err != nil {
		return nil, err
	}

	m.ID = types.GenerateOptimizedModelID()
	m.CreatedAt = r.now()
	if m.Delta == (types.PerformanceDelta{}) {
		m.Delta = types.EstimatedDelta(m.Technique)
	}
	if m.Metadata == nil {
		m.Metadata = types.Tags{}
	}

	if err := r.store.OptimizedModels.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create optimized model: %w", err)
	}

	logger.Log.Infow("optimized model registered",
		"optimized_model_id", m.ID,
		"original_model_id", m.OriginalModelID,
		"technique", m.Technique,
		"hardware_target", m.HardwareTarget,
	)
	return m, nil
}

// GetOptimizedModel returns an optimized model by id
func (r *Registry) GetOptimizedModel(ctx context.Context, id string) (*types.OptimizedModel, error) {
	m, err := r.store.OptimizedModels.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: optimized model %s", deployment.ErrNotFound, id)
	}
	return m, err
}

// ListOptimizedModels returns optimized models, narrowed to one original when modelID is set
func (r *Registry) ListOptimizedModels(ctx context.Context, modelID string) ([]*types.OptimizedModel, error) {
	if modelID == "" {
		return r.store.OptimizedModels.List(ctx)
	}
	if _, err := r.GetModel(ctx, modelID); err != nil {
		return nil, err
	}
	return r.store.OptimizedModels.ListByOriginal(ctx, modelID)
}

// DeleteOptimizedModel removes one optimized variant and its access history
func (r *Registry) DeleteOptimizedModel(ctx context.Context, id string) error {
	m, err := r.GetOptimizedModel(ctx, id)
	if err != nil {
		return err
	}

	unlock := r.locks.Lock(m.OriginalModelID)
	defer unlock()

	if err := r.checkUnreferenced(ctx, id); err != nil {
		return err
	}
	return r.deleteOptimized(ctx, m)
}

func (r *Registry) deleteOptimized(ctx context.Context, m *types.OptimizedModel) error {
	if err := r.store.Access.Delete(ctx, m.ArtifactKey()); err != nil {
		return fmt.Errorf("delete access record: %w", err)
	}
	if err := r.store.OptimizedModels.Delete(ctx, m.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete optimized model: %w", err)
	}
	logger.Log.Infow("optimized model deleted", "optimized_model_id", m.ID)
	return nil
}

func (r *Registry) checkUnreferenced(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		deps, err := r.store.Deployments.ListByModel(ctx, id)
		if err != nil {
			return fmt.Errorf("list deployments: %w", err)
		}
		if len(deps) > 0 {
			return fmt.Errorf("%w: %s is served by deployment %s", deployment.ErrConflictingState, id, deps[0].ID)
		}
	}
	return nil
}
