package provisioner_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsanders-rh/modelctl/internal/provisioner"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

type fakeLambda struct {
	functions   map[string]*lambda.CreateFunctionInput
	concurrency map[string]int32
	updates     []*lambda.UpdateFunctionConfigurationInput
	deleteErr   error
}

func newFakeLambda() *fakeLambda {
	return &fakeLambda{
		functions:   make(map[string]*lambda.CreateFunctionInput),
		concurrency: make(map[string]int32),
	}
}

func (f *fakeLambda) CreateFunction(_ context.Context, in *lambda.CreateFunctionInput, _ ...func(*lambda.Options)) (*lambda.CreateFunctionOutput, error) {
	name := aws.ToString(in.FunctionName)
	if _, ok := f.functions[name]; ok {
		return nil, &lambdatypes.ResourceConflictException{Message: aws.String("exists")}
	}
	f.functions[name] = in
	return &lambda.CreateFunctionOutput{FunctionName: in.FunctionName}, nil
}

func (f *fakeLambda) CreateFunctionUrlConfig(_ context.Context, in *lambda.CreateFunctionUrlConfigInput, _ ...func(*lambda.Options)) (*lambda.CreateFunctionUrlConfigOutput, error) {
	return &lambda.CreateFunctionUrlConfigOutput{
		FunctionUrl: aws.String("https://" + aws.ToString(in.FunctionName) + ".lambda-url.us-east-1.on.aws/"),
	}, nil
}

func (f *fakeLambda) UpdateFunctionConfiguration(_ context.Context, in *lambda.UpdateFunctionConfigurationInput, _ ...func(*lambda.Options)) (*lambda.UpdateFunctionConfigurationOutput, error) {
	f.updates = append(f.updates, in)
	return &lambda.UpdateFunctionConfigurationOutput{}, nil
}

func (f *fakeLambda) DeleteFunction(_ context.Context, in *lambda.DeleteFunctionInput, _ ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	name := aws.ToString(in.FunctionName)
	if _, ok := f.functions[name]; !ok {
		return nil, &lambdatypes.ResourceNotFoundException{Message: aws.String("missing")}
	}
	delete(f.functions, name)
	return &lambda.DeleteFunctionOutput{}, nil
}

func (f *fakeLambda) PutFunctionConcurrency(_ context.Context, in *lambda.PutFunctionConcurrencyInput, _ ...func(*lambda.Options)) (*lambda.PutFunctionConcurrencyOutput, error) {
	f.concurrency[aws.ToString(in.FunctionName)] = aws.ToInt32(in.ReservedConcurrentExecutions)
	return &lambda.PutFunctionConcurrencyOutput{}, nil
}

func (f *fakeLambda) DeleteFunctionConcurrency(_ context.Context, in *lambda.DeleteFunctionConcurrencyInput, _ ...func(*lambda.Options)) (*lambda.DeleteFunctionConcurrencyOutput, error) {
	delete(f.concurrency, aws.ToString(in.FunctionName))
	return &lambda.DeleteFunctionConcurrencyOutput{}, nil
}

func newFunctionDeployment() *types.Deployment {
	return &types.Deployment{
		ID:        "dep_fn1",
		Name:      "fn-model",
		ModelID:   "opt_abc",
		ModelKind: types.ModelKindOptimized,
		Venue:     types.VenueFaaS,
		Resources: types.ResourceRequirements{CPU: 0.1, MemoryGiB: 0.125, TimeoutSeconds: 30},
	}
}

func TestFunctionProvisioner_Lifecycle(t *testing.T) {
	ctx := context.Background()
	api := newFakeLambda()
	p := provisioner.NewFunctionProvisioner(api, provisioner.FunctionConfig{
		RoleARN:    "arn:aws:iam::123456789012:role/modelctl",
		CodeBucket: "artifacts",
		CodePrefix: "functions",
	})
	d := newFunctionDeployment()
	name := provisioner.FunctionName(d)

	t.Run("deploy creates the function and returns its url", func(t *testing.T) {
		url, err := p.Deploy(ctx, d)
		require.NoError(t, err)
		assert.Contains(t, url, "lambda-url")

		in := api.functions[name]
		require.NotNil(t, in)
		assert.Equal(t, int32(177), aws.ToInt32(in.MemorySize), "memory covers 0.1 vCPU")
		assert.Equal(t, int32(30), aws.ToInt32(in.Timeout))
		assert.Equal(t, "functions/opt_abc.zip", aws.ToString(in.Code.S3Key))
	})

	t.Run("redeploy updates the existing function", func(t *testing.T) {
		_, err := p.Deploy(ctx, d)
		require.NoError(t, err)
		assert.Len(t, api.updates, 1)
	})

	t.Run("hibernate reserves zero concurrency", func(t *testing.T) {
		require.NoError(t, p.Hibernate(ctx, d))
		c, ok := api.concurrency[name]
		require.True(t, ok)
		assert.Zero(t, c)

		require.NoError(t, p.Activate(ctx, d))
		_, ok = api.concurrency[name]
		assert.False(t, ok)
	})

	t.Run("update clamps memory to the lambda range", func(t *testing.T) {
		d.Resources.MemoryGiB = 64
		require.NoError(t, p.Update(ctx, d))
		last := api.updates[len(api.updates)-1]
		assert.Equal(t, int32(10240), aws.ToInt32(last.MemorySize))
	})

	t.Run("delete tolerates a missing function", func(t *testing.T) {
		require.NoError(t, p.Delete(ctx, d))
		assert.NoError(t, p.Delete(ctx, d))
	})

	t.Run("delete surfaces other errors", func(t *testing.T) {
		api.deleteErr = errors.New("throttled")
		err := p.Delete(ctx, d)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "throttled")
	})
}

func TestFunctionProvisioner_CodeKeyOverride(t *testing.T) {
	api := newFakeLambda()
	p := provisioner.NewFunctionProvisioner(api, provisioner.FunctionConfig{CodeBucket: "artifacts"})
	d := newFunctionDeployment()
	d.Metadata = types.Tags{provisioner.MetadataCodeKey: "custom/bundle.zip"}

	_, err := p.Deploy(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, "custom/bundle.zip", aws.ToString(api.functions[provisioner.FunctionName(d)].Code.S3Key))
}

func TestSet_For(t *testing.T) {
	set := provisioner.Set{types.VenueCluster: provisioner.NewSimulated(types.VenueCluster)}

	_, err := set.For(types.VenueCluster)
	assert.NoError(t, err)

	_, err = set.For(types.VenueFaaS)
	assert.ErrorIs(t, err, provisioner.ErrUnsupportedVenue)
}

func TestSimulated(t *testing.T) {
	ctx := context.Background()
	sim := provisioner.NewSimulated(types.VenueCluster)
	d := newClusterDeployment()

	_, err := sim.Deploy(ctx, d)
	require.NoError(t, err)
	n, ok := sim.Replicas(d.ID)
	require.True(t, ok)
	assert.Equal(t, 1, n)

	require.NoError(t, sim.Hibernate(ctx, d))
	n, _ = sim.Replicas(d.ID)
	assert.Zero(t, n)

	sim.FailOn(provisioner.OpActivate, errors.New("quota exceeded"))
	assert.Error(t, sim.Activate(ctx, d))
	sim.FailOn(provisioner.OpActivate, nil)
	assert.NoError(t, sim.Activate(ctx, d))
	assert.Equal(t, 2, sim.Calls(provisioner.OpActivate))
}
