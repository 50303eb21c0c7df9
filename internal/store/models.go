package store

import (
	"context"

	"github.com/tsanders-rh/modelctl/pkg/types"
)

// ModelStore handles registered model records
type ModelStore struct {
	c collection[types.Model]
}

// Create inserts a new model record
func (s *ModelStore) Create(ctx context.Context, m *types.Model) error {
	return s.c.create(ctx, m.ID, m)
}

// Get retrieves a model by ID
func (s *ModelStore) Get(ctx context.Context, id string) (*types.Model, error) {
	return s.c.get(ctx, id)
}

// Put writes the full model record
func (s *ModelStore) Put(ctx context.Context, m *types.Model) error {
	return s.c.put(ctx, m.ID, m)
}

// Delete removes a model record
func (s *ModelStore) Delete(ctx context.Context, id string) error {
	return s.c.delete(ctx, id)
}

// List returns all models ordered by ID
func (s *ModelStore) List(ctx context.Context) ([]*types.Model, error) {
	return s.c.list(ctx, "")
}

// OptimizedModelStore handles optimized model records
type OptimizedModelStore struct {
	c collection[types.OptimizedModel]
}

// Create inserts a new optimized model record
func (s *OptimizedModelStore) Create(ctx context.Context, m *types.OptimizedModel) error {
	return s.c.create(ctx, m.ID, m)
}

// Get retrieves an optimized model by ID
func (s *OptimizedModelStore) Get(ctx context.Context, id string) (*types.OptimizedModel, error) {
	return s.c.get(ctx, id)
}

// Put writes the full optimized model record
func (s *OptimizedModelStore) Put(ctx context.Context, m *types.OptimizedModel) error {
	return s.c.put(ctx, m.ID, m)
}

// Delete removes an optimized model record
func (s *OptimizedModelStore) Delete(ctx context.Context, id string) error {
	return s.c.delete(ctx, id)
}

// List returns all optimized models ordered by ID
func (s *OptimizedModelStore) List(ctx context.Context) ([]*types.OptimizedModel, error) {
	return s.c.list(ctx, "")
}

// ListByOriginal returns the optimized variants of a model
func (s *OptimizedModelStore) ListByOriginal(ctx context.Context, modelID string) ([]*types.OptimizedModel, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*types.OptimizedModel, 0)
	for _, m := range all {
		if m.OriginalModelID == modelID {
			out = append(out, m)
		}
	}
	return out, nil
}
