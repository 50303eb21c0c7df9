package policy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsanders-rh/modelctl/internal/policy"
	"github.com/tsanders-rh/modelctl/internal/profile"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

func setupPolicyEngine(t *testing.T) *policy.Engine {
	loader := profile.NewLoader("../profile/definitions")
	registry, err := profile.NewRegistry(loader)
	require.NoError(t, err)

	return policy.NewEngine(registry)
}

func hasFieldError(result *policy.ValidationResult, field string) bool {
	for _, e := range result.Errors {
		if e.Field == field {
			return true
		}
	}
	return false
}

func TestEngine_ValidateDeployRequest(t *testing.T) {
	engine := setupPolicyEngine(t)

	t.Run("resolves package defaults without a profile", func(t *testing.T) {
		result := engine.ValidateDeployRequest(&types.DeployRequest{
			Name:    "sentiment-api",
			ModelID: "mdl_1",
		})
		require.True(t, result.Valid, result.FirstError())
		require.NotNil(t, result.Resolved)

		r := result.Resolved
		assert.Equal(t, types.VenueCluster, r.Venue)
		assert.Equal(t, types.ModelKindOriginal, r.ModelKind)
		assert.Equal(t, types.DefaultResources(), r.Resources)
		assert.Equal(t, types.DefaultScalingPolicy(), r.Scaling)
		assert.Equal(t, types.DefaultCostPolicy(), r.CostPolicy)
		assert.Equal(t, types.ProviderAWS, r.Provider)
		assert.Equal(t, "us-east-1", r.Region)
	})

	t.Run("fills omitted fields from the profile", func(t *testing.T) {
		result := engine.ValidateDeployRequest(&types.DeployRequest{
			Name:    "bert-gpu",
			ModelID: "mdl_1",
			Profile: "gpu-inference",
		})
		require.True(t, result.Valid, result.FirstError())

		r := result.Resolved
		assert.Equal(t, 1.0, r.Resources.GPU)
		assert.Equal(t, 1, r.Scaling.MinInstances)
		assert.True(t, r.CostPolicy.ArbitrageEnabled)
		assert.Equal(t, "gpu", r.Metadata["tier"])
	})

	t.Run("explicit fields override the profile", func(t *testing.T) {
		result := engine.ValidateDeployRequest(&types.DeployRequest{
			Name:      "bert-gpu",
			ModelID:   "mdl_1",
			Profile:   "gpu-inference",
			Resources: &types.ResourceRequirements{CPU: 2, MemoryGiB: 8, GPU: 2},
			Provider:  types.ProviderGCP,
			Region:    "us-central1",
		})
		require.True(t, result.Valid, result.FirstError())

		assert.Equal(t, 2.0, result.Resolved.Resources.GPU)
		assert.Equal(t, types.ProviderGCP, result.Resolved.Provider)
		assert.Equal(t, "us-central1", result.Resolved.Region)
	})

	t.Run("rejects invalid deployment name", func(t *testing.T) {
		result := engine.ValidateDeployRequest(&types.DeployRequest{
			Name:    "INVALID_NAME",
			ModelID: "mdl_1",
		})
		assert.False(t, result.Valid)
		assert.Nil(t, result.Resolved)
		assert.True(t, hasFieldError(result, "name"))
	})

	t.Run("rejects missing model id", func(t *testing.T) {
		result := engine.ValidateDeployRequest(&types.DeployRequest{Name: "no-model"})
		assert.True(t, hasFieldError(result, "modelId"))
	})

	t.Run("rejects unknown venue", func(t *testing.T) {
		result := engine.ValidateDeployRequest(&types.DeployRequest{
			Name: "odd-venue", ModelID: "mdl_1", Venue: "mainframe",
		})
		assert.True(t, hasFieldError(result, "venue"))
	})

	t.Run("rejects venue that contradicts the profile", func(t *testing.T) {
		result := engine.ValidateDeployRequest(&types.DeployRequest{
			Name: "mismatch", ModelID: "mdl_1", Profile: "faas-light", Venue: types.VenueCluster,
		})
		assert.True(t, hasFieldError(result, "venue"))
	})

	t.Run("rejects unknown and disabled profiles", func(t *testing.T) {
		result := engine.ValidateDeployRequest(&types.DeployRequest{
			Name: "tpu-model", ModelID: "mdl_1", Profile: "tpu-preview",
		})
		assert.True(t, hasFieldError(result, "profile"))

		result = engine.ValidateDeployRequest(&types.DeployRequest{
			Name: "tpu-model", ModelID: "mdl_1", Profile: "missing",
		})
		assert.True(t, hasFieldError(result, "profile"))
	})

	t.Run("rejects provider outside the profile allowlist", func(t *testing.T) {
		result := engine.ValidateDeployRequest(&types.DeployRequest{
			Name: "fn-model", ModelID: "mdl_1", Profile: "faas-light", Provider: types.ProviderAzure,
		})
		assert.True(t, hasFieldError(result, "provider"))
	})

	t.Run("rejects unknown provider", func(t *testing.T) {
		result := engine.ValidateDeployRequest(&types.DeployRequest{
			Name: "bad-cloud", ModelID: "mdl_1", Provider: "oracle",
		})
		assert.True(t, hasFieldError(result, "provider"))
	})

	t.Run("rejects GPUs on faas", func(t *testing.T) {
		result := engine.ValidateDeployRequest(&types.DeployRequest{
			Name: "fn-gpu", ModelID: "mdl_1", Venue: types.VenueFaaS,
			Resources: &types.ResourceRequirements{CPU: 1, MemoryGiB: 1, GPU: 1},
		})
		assert.True(t, hasFieldError(result, "resources.gpu"))
	})

	t.Run("rejects faas timeouts above the ceiling", func(t *testing.T) {
		result := engine.ValidateDeployRequest(&types.DeployRequest{
			Name: "fn-slow", ModelID: "mdl_1", Venue: types.VenueFaaS,
			Resources: &types.ResourceRequirements{CPU: 1, MemoryGiB: 1, TimeoutSeconds: 1200},
		})
		assert.True(t, hasFieldError(result, "resources.timeoutSeconds"))
	})

	t.Run("rejects resources above profile limits", func(t *testing.T) {
		result := engine.ValidateDeployRequest(&types.DeployRequest{
			Name: "too-big", ModelID: "mdl_1", Profile: "cpu-small",
			Resources: &types.ResourceRequirements{CPU: 8, MemoryGiB: 2},
		})
		assert.True(t, hasFieldError(result, "resources.cpu"))
	})

	t.Run("rejects non-positive resources", func(t *testing.T) {
		result := engine.ValidateDeployRequest(&types.DeployRequest{
			Name: "zero-cpu", ModelID: "mdl_1",
			Resources: &types.ResourceRequirements{CPU: 0, MemoryGiB: 1},
		})
		assert.True(t, hasFieldError(result, "resources"))
	})

	t.Run("rejects max instances below min instances", func(t *testing.T) {
		result := engine.ValidateDeployRequest(&types.DeployRequest{
			Name: "bad-scale", ModelID: "mdl_1",
			Scaling: &types.ScalingPolicy{MinInstances: 3, MaxInstances: 2, TargetCPUUtilization: 70},
		})
		assert.True(t, hasFieldError(result, "scaling"))
	})

	t.Run("rejects reserved metadata keys", func(t *testing.T) {
		result := engine.ValidateDeployRequest(&types.DeployRequest{
			Name: "sneaky", ModelID: "mdl_1", Metadata: map[string]string{"error": "x"},
		})
		assert.True(t, hasFieldError(result, "metadata"))
		assert.Error(t, result.Err())
	})
}

func TestEngine_ValidateUpdateRequest(t *testing.T) {
	engine := setupPolicyEngine(t)

	d := &types.Deployment{ID: "dep_1", Venue: types.VenueCluster, Profile: "cpu-small"}

	t.Run("accepts an empty update", func(t *testing.T) {
		result := engine.ValidateUpdateRequest(d, &types.UpdateRequest{})
		assert.True(t, result.Valid)
		assert.NoError(t, result.Err())
	})

	t.Run("enforces profile limits on new resources", func(t *testing.T) {
		result := engine.ValidateUpdateRequest(d, &types.UpdateRequest{
			Resources: &types.ResourceRequirements{CPU: 2, MemoryGiB: 16},
		})
		assert.True(t, hasFieldError(result, "resources.memoryGiB"))
	})

	t.Run("enforces profile limits on instances", func(t *testing.T) {
		result := engine.ValidateUpdateRequest(d, &types.UpdateRequest{
			Scaling: &types.ScalingPolicy{MinInstances: 0, MaxInstances: 20, TargetCPUUtilization: 70},
		})
		assert.True(t, hasFieldError(result, "scaling.maxInstances"))
	})

	t.Run("rejects discounted capacity on faas", func(t *testing.T) {
		enabled := true
		fn := &types.Deployment{ID: "dep_2", Venue: types.VenueFaaS}
		result := engine.ValidateUpdateRequest(fn, &types.UpdateRequest{DiscountedCapacity: &enabled})
		assert.True(t, hasFieldError(result, "discountedCapacity"))
	})
}

func TestEngine_ValidateModels(t *testing.T) {
	engine := policy.NewEngine(nil)

	t.Run("accepts a complete model", func(t *testing.T) {
		result := engine.ValidateModel(&types.Model{
			Name: "resnet", Framework: types.FrameworkPyTorch, Version: "1.0", StoragePath: "models/resnet.pt",
		})
		assert.True(t, result.Valid, result.FirstError())
	})

	t.Run("rejects unknown framework", func(t *testing.T) {
		result := engine.ValidateModel(&types.Model{
			Name: "resnet", Framework: "caffe", Version: "1.0", StoragePath: "models/resnet.pt",
		})
		assert.True(t, hasFieldError(result, "framework"))
	})

	t.Run("rejects unknown technique and hardware", func(t *testing.T) {
		result := engine.ValidateOptimizedModel(&types.OptimizedModel{
			OriginalModelID: "mdl_1", Technique: "magic", HardwareTarget: "fpga", StoragePath: "x",
		})
		assert.True(t, hasFieldError(result, "technique"))
		assert.True(t, hasFieldError(result, "hardwareTarget"))
	})

	t.Run("profile lookups fail without a registry", func(t *testing.T) {
		result := engine.ValidateDeployRequest(&types.DeployRequest{
			Name: "no-registry", ModelID: "mdl_1", Profile: "cpu-small",
		})
		assert.True(t, hasFieldError(result, "profile"))
	})
}
