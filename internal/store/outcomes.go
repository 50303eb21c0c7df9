package store

import (
	"context"

	"github.com/tsanders-rh/modelctl/pkg/types"
)

// OutcomeStore keeps the write-once optimization audit trail
type OutcomeStore struct {
	c collection[types.OptimizationOutcome]
}

// Record writes an outcome; an existing outcome is never overwritten
func (s *OutcomeStore) Record(ctx context.Context, o *types.OptimizationOutcome) error {
	return s.c.create(ctx, o.DeploymentID+"/"+o.ID, o)
}

// List returns the outcomes of a deployment in evaluation order
func (s *OutcomeStore) List(ctx context.Context, deploymentID string) ([]*types.OptimizationOutcome, error) {
	return s.c.list(ctx, deploymentID+"/")
}

// ListAll returns every recorded outcome
func (s *OutcomeStore) ListAll(ctx context.Context) ([]*types.OptimizationOutcome, error) {
	return s.c.list(ctx, "")
}
