package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsanders-rh/modelctl/internal/store"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

func newDeployment(status types.DeploymentStatus) *types.Deployment {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &types.Deployment{
		ID:        types.GenerateDeploymentID(),
		Name:      "resnet-serving",
		ModelID:   types.GenerateModelID(),
		ModelKind: types.ModelKindOriginal,
		Venue:     types.VenueCluster,
		Resources: types.ResourceRequirements{CPU: 2, MemoryGiB: 4, GPU: 1, TimeoutSeconds: 30},
		Scaling:   types.DefaultScalingPolicy(),
		CostPolicy: types.CostPolicy{
			UseDiscountedCapacity:  true,
			HibernationEnabled:     true,
			HibernationIdleTimeout: 900,
			ArbitrageEnabled:       true,
		},
		Status:             status,
		DiscountedCapacity: true,
		Provider:           types.ProviderGCP,
		Region:             "us-central1",
		Metadata:           types.Tags{"team": "vision", "error": ""},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func TestDeploymentStore(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip reproduces the record", func(t *testing.T) {
		s := store.NewMemory()
		d := newDeployment(types.DeploymentStatusActive)
		endpoint := "http://resnet-serving.models.svc"
		d.Endpoint = &endpoint
		last := d.CreatedAt.Add(time.Minute)
		d.LastActiveAt = &last

		require.NoError(t, s.Deployments.Create(ctx, d))

		got, err := s.Deployments.Get(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, d.Status, got.Status)
		assert.Equal(t, d.Resources, got.Resources)
		assert.Equal(t, d.Scaling, got.Scaling)
		assert.Equal(t, d.CostPolicy, got.CostPolicy)
		assert.Equal(t, d.Metadata, got.Metadata)
		assert.Equal(t, d.Provider, got.Provider)
		assert.Equal(t, d.DiscountedCapacity, got.DiscountedCapacity)
		require.NotNil(t, got.Endpoint)
		assert.Equal(t, endpoint, *got.Endpoint)
		assert.True(t, d.LastActiveAt.Equal(*got.LastActiveAt))

		require.NoError(t, s.Deployments.Put(ctx, got))
		again, err := s.Deployments.Get(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, got, again)
	})

	t.Run("create rejects duplicate ids", func(t *testing.T) {
		s := store.NewMemory()
		d := newDeployment(types.DeploymentStatusPending)
		require.NoError(t, s.Deployments.Create(ctx, d))
		assert.ErrorIs(t, s.Deployments.Create(ctx, d), store.ErrConflict)
	})

	t.Run("unknown ids are not found", func(t *testing.T) {
		s := store.NewMemory()
		_, err := s.Deployments.Get(ctx, "dep_missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, s.Deployments.Delete(ctx, "dep_missing"), store.ErrNotFound)
	})

	t.Run("list by status filters", func(t *testing.T) {
		s := store.NewMemory()
		active := newDeployment(types.DeploymentStatusActive)
		hibernated := newDeployment(types.DeploymentStatusHibernated)
		failed := newDeployment(types.DeploymentStatusFailed)
		for _, d := range []*types.Deployment{active, hibernated, failed} {
			require.NoError(t, s.Deployments.Create(ctx, d))
		}

		got, err := s.Deployments.ListByStatus(ctx, types.DeploymentStatusActive, types.DeploymentStatusHibernated)
		require.NoError(t, err)
		ids := []string{}
		for _, d := range got {
			ids = append(ids, d.ID)
		}
		assert.ElementsMatch(t, []string{active.ID, hibernated.ID}, ids)
	})
}

func TestOptimizedModelStore_ListByOriginal(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	original := types.GenerateModelID()
	mine := &types.OptimizedModel{ID: types.GenerateOptimizedModelID(), OriginalModelID: original, Technique: types.TechniquePruning}
	other := &types.OptimizedModel{ID: types.GenerateOptimizedModelID(), OriginalModelID: "mdl_other", Technique: types.TechniqueQuantization}
	require.NoError(t, s.OptimizedModels.Create(ctx, mine))
	require.NoError(t, s.OptimizedModels.Create(ctx, other))

	got, err := s.OptimizedModels.ListByOriginal(ctx, original)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mine.ID, got[0].ID)
}

func TestOutcomeStore(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	t.Run("outcomes are write-once", func(t *testing.T) {
		o := &types.OptimizationOutcome{ID: types.GenerateOutcomeID(), DeploymentID: "dep_a", Status: types.CheckStatusSkipped}
		require.NoError(t, s.Outcomes.Record(ctx, o))
		o.Reason = "rewritten"
		assert.ErrorIs(t, s.Outcomes.Record(ctx, o), store.ErrConflict)

		got, err := s.Outcomes.List(ctx, "dep_a")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Empty(t, got[0].Reason)
	})

	t.Run("list is scoped to one deployment", func(t *testing.T) {
		require.NoError(t, s.Outcomes.Record(ctx, &types.OptimizationOutcome{ID: types.GenerateOutcomeID(), DeploymentID: "dep_b"}))
		require.NoError(t, s.Outcomes.Record(ctx, &types.OptimizationOutcome{ID: types.GenerateOutcomeID(), DeploymentID: "dep_b"}))

		got, err := s.Outcomes.List(ctx, "dep_b")
		require.NoError(t, err)
		assert.Len(t, got, 2)

		all, err := s.Outcomes.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestReportStore(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	var out map[string]float64
	assert.ErrorIs(t, s.Reports.Load(ctx, "cost_analysis", &out), store.ErrNotFound)

	require.NoError(t, s.Reports.Save(ctx, "cost_analysis", map[string]float64{"total_cost": 12.5}))
	require.NoError(t, s.Reports.Load(ctx, "cost_analysis", &out))
	assert.Equal(t, 12.5, out["total_cost"])
}
