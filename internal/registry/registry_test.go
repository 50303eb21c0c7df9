package registry_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsanders-rh/modelctl/internal/deployment"
	"github.com/tsanders-rh/modelctl/internal/policy"
	"github.com/tsanders-rh/modelctl/internal/registry"
	"github.com/tsanders-rh/modelctl/internal/store"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

func newModel() *types.Model {
	return &types.Model{
		Name:        "bert-base",
		Framework:   types.FrameworkPyTorch,
		Version:     "1.0.0",
		StoragePath: "/var/lib/modelctl/hot/bert-base.pt",
	}
}

func TestRegistry_Models(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("registers with generated id and timestamps", func(t *testing.T) {
		reg := registry.New(store.NewMemory(), policy.NewEngine(nil)).WithClock(func() time.Time { return fixed })

		m, err := reg.RegisterModel(ctx, newModel())
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(m.ID, "mdl_"))
		assert.Equal(t, fixed, m.CreatedAt)
		assert.NotNil(t, m.Metadata)

		got, err := reg.GetModel(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, m.Name, got.Name)

		all, err := reg.ListModels(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("rejects unsupported frameworks", func(t *testing.T) {
		reg := registry.New(store.NewMemory(), policy.NewEngine(nil))
		m := newModel()
		m.Framework = "caffe"

		_, err := reg.RegisterModel(ctx, m)
		assert.ErrorIs(t, err, deployment.ErrInvalidPolicy)
	})

	t.Run("unknown models are not found", func(t *testing.T) {
		reg := registry.New(store.NewMemory(), policy.NewEngine(nil))
		_, err := reg.GetModel(ctx, "mdl_missing")
		assert.ErrorIs(t, err, deployment.ErrNotFound)
		assert.ErrorIs(t, reg.DeleteModel(ctx, "mdl_missing"), deployment.ErrNotFound)
	})
}

func TestRegistry_OptimizedModels(t *testing.T) {
	ctx := context.Background()

	t.Run("fills the published estimate when no delta is given", func(t *testing.T) {
		reg := registry.New(store.NewMemory(), policy.NewEngine(nil))
		m, err := reg.RegisterModel(ctx, newModel())
		require.NoError(t, err)

		opt, err := reg.RegisterOptimizedModel(ctx, &types.OptimizedModel{
			OriginalModelID: m.ID,
			Technique:       types.TechniqueQuantization,
			HardwareTarget:  types.HardwareCPU,
			StoragePath:     "/var/lib/modelctl/hot/bert-base-int8.onnx",
		})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(opt.ID, "opt_"))
		assert.Equal(t, types.PerformanceDelta{SizeReduction: 75, LatencyReduction: 40, AccuracyChange: -2}, opt.Delta)
	})

	t.Run("keeps a measured delta", func(t *testing.T) {
		reg := registry.New(store.NewMemory(), policy.NewEngine(nil))
		m, err := reg.RegisterModel(ctx, newModel())
		require.NoError(t, err)

		measured := types.PerformanceDelta{SizeReduction: 60, LatencyReduction: 35, AccuracyChange: -0.5}
		opt, err := reg.RegisterOptimizedModel(ctx, &types.OptimizedModel{
			OriginalModelID: m.ID,
			Technique:       types.TechniquePruning,
			HardwareTarget:  types.HardwareGPU,
			StoragePath:     "p",
			Delta:           measured,
		})
		require.NoError(t, err)
		assert.Equal(t, measured, opt.Delta)
	})

	t.Run("requires the original model", func(t *testing.T) {
		reg := registry.New(store.NewMemory(), policy.NewEngine(nil))
		_, err := reg.RegisterOptimizedModel(ctx, &types.OptimizedModel{
			OriginalModelID: "mdl_missing",
			Technique:       types.TechniqueDistillation,
			HardwareTarget:  types.HardwareEdge,
			StoragePath:     "p",
		})
		assert.ErrorIs(t, err, deployment.ErrNotFound)
	})

	t.Run("rejects unsupported techniques", func(t *testing.T) {
		reg := registry.New(store.NewMemory(), policy.NewEngine(nil))
		_, err := reg.RegisterOptimizedModel(ctx, &types.OptimizedModel{
			OriginalModelID: "mdl_x",
			Technique:       "sparsification",
			HardwareTarget:  types.HardwareCPU,
			StoragePath:     "p",
		})
		assert.ErrorIs(t, err, deployment.ErrInvalidPolicy)
	})
}

func TestRegistry_DeleteModel(t *testing.T) {
	ctx := context.Background()

	t.Run("cascades to variants and access history", func(t *testing.T) {
		st := store.NewMemory()
		reg := registry.New(st, policy.NewEngine(nil))
		m, err := reg.RegisterModel(ctx, newModel())
		require.NoError(t, err)
		opt, err := reg.RegisterOptimizedModel(ctx, &types.OptimizedModel{
			OriginalModelID: m.ID, Technique: types.TechniqueOperatorFusion, HardwareTarget: types.HardwareCPU, StoragePath: "p",
		})
		require.NoError(t, err)

		_, err = st.Access.Record(ctx, m.ID, time.Now())
		require.NoError(t, err)
		_, err = st.Access.Record(ctx, opt.ArtifactKey(), time.Now())
		require.NoError(t, err)

		require.NoError(t, reg.DeleteModel(ctx, m.ID))

		_, err = reg.GetOptimizedModel(ctx, opt.ID)
		assert.ErrorIs(t, err, deployment.ErrNotFound)
		_, err = st.Access.Get(ctx, m.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = st.Access.Get(ctx, opt.ArtifactKey())
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("refuses while a deployment serves a variant", func(t *testing.T) {
		st := store.NewMemory()
		reg := registry.New(st, policy.NewEngine(nil))
		m, err := reg.RegisterModel(ctx, newModel())
		require.NoError(t, err)
		opt, err := reg.RegisterOptimizedModel(ctx, &types.OptimizedModel{
			OriginalModelID: m.ID, Technique: types.TechniquePruning, HardwareTarget: types.HardwareCPU, StoragePath: "p",
		})
		require.NoError(t, err)

		require.NoError(t, st.Deployments.Create(ctx, &types.Deployment{
			ID: "dep_1", ModelID: opt.ID, ModelKind: types.ModelKindOptimized, Status: types.DeploymentStatusActive,
		}))

		assert.ErrorIs(t, reg.DeleteModel(ctx, m.ID), deployment.ErrConflictingState)
		assert.ErrorIs(t, reg.DeleteOptimizedModel(ctx, opt.ID), deployment.ErrConflictingState)

		_, err = reg.GetModel(ctx, m.ID)
		assert.NoError(t, err)
	})

	t.Run("lists variants per original", func(t *testing.T) {
		reg := registry.New(store.NewMemory(), policy.NewEngine(nil))
		a, err := reg.RegisterModel(ctx, newModel())
		require.NoError(t, err)
		b, err := reg.RegisterModel(ctx, newModel())
		require.NoError(t, err)
		for _, id := range []string{a.ID, a.ID, b.ID} {
			_, err := reg.RegisterOptimizedModel(ctx, &types.OptimizedModel{
				OriginalModelID: id, Technique: types.TechniqueQuantization, HardwareTarget: types.HardwareCPU, StoragePath: "p",
			})
			require.NoError(t, err)
		}

		forA, err := reg.ListOptimizedModels(ctx, a.ID)
		require.NoError(t, err)
		assert.Len(t, forA, 2)

		all, err := reg.ListOptimizedModels(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}
