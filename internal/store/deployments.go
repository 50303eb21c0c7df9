package store

import (
	"context"

	"github.com/tsanders-rh/modelctl/pkg/types"
)

// DeploymentStore handles deployment records
type DeploymentStore struct {
	c collection[types.Deployment]
}

// Create inserts a new deployment record
func (s *DeploymentStore) Create(ctx context.Context, d *types.Deployment) error {
	return s.c.create(ctx, d.ID, d)
}

// Get retrieves a deployment by ID
func (s *DeploymentStore) Get(ctx context.Context, id string) (*types.Deployment, error) {
	return s.c.get(ctx, id)
}

// Put writes the full deployment record
func (s *DeploymentStore) Put(ctx context.Context, d *types.Deployment) error {
	return s.c.put(ctx, d.ID, d)
}

// Delete removes a deployment record
func (s *DeploymentStore) Delete(ctx context.Context, id string) error {
	return s.c.delete(ctx, id)
}

// List returns all deployments ordered by ID
func (s *DeploymentStore) List(ctx context.Context) ([]*types.Deployment, error) {
	return s.c.list(ctx, "")
}

// ListByStatus returns the deployments in any of the given statuses
func (s *DeploymentStore) ListByStatus(ctx context.Context, statuses ...types.DeploymentStatus) ([]*types.Deployment, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	want := make(map[types.DeploymentStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	out := make([]*types.Deployment, 0, len(all))
	for _, d := range all {
		if want[d.Status] {
			out = append(out, d)
		}
	}
	return out, nil
}

// ListByModel returns the deployments serving a model or optimized model
func (s *DeploymentStore) ListByModel(ctx context.Context, modelID string) ([]*types.Deployment, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*types.Deployment, 0)
	for _, d := range all {
		if d.ModelID == modelID {
			out = append(out, d)
		}
	}
	return out, nil
}
