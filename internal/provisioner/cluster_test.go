package provisioner_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsanders-rh/modelctl/internal/provisioner"
	"github.com/tsanders-rh/modelctl/pkg/types"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

const testNamespace = "models"

func newClusterDeployment() *types.Deployment {
	return &types.Deployment{
		ID:        "dep_2AbCdEf",
		Name:      "sentiment-api",
		ModelID:   "mdl_XyZ",
		ModelKind: types.ModelKindOriginal,
		Venue:     types.VenueCluster,
		Resources: types.ResourceRequirements{CPU: 2, MemoryGiB: 4, GPU: 1, TimeoutSeconds: 60},
		Scaling:   types.ScalingPolicy{MinInstances: 0, MaxInstances: 5, TargetCPUUtilization: 70},
	}
}

func replicasOf(t *testing.T, client *fake.Clientset, name string) int32 {
	t.Helper()
	deploy, err := client.AppsV1().Deployments(testNamespace).Get(context.Background(), name, metav1.GetOptions{})
	require.NoError(t, err)
	require.NotNil(t, deploy.Spec.Replicas)
	return *deploy.Spec.Replicas
}

func TestClusterProvisioner_Lifecycle(t *testing.T) {
	ctx := context.Background()
	client := fake.NewSimpleClientset()
	p := provisioner.NewClusterProvisioner(client, testNamespace, "registry.local/model-server:1")
	d := newClusterDeployment()
	name := provisioner.ObjectName(d)

	t.Run("deploy creates deployment and service", func(t *testing.T) {
		url, err := p.Deploy(ctx, d)
		require.NoError(t, err)
		assert.Equal(t, "http://dep-2abcdef.models.svc.cluster.local", url)

		deploy, err := client.AppsV1().Deployments(testNamespace).Get(ctx, name, metav1.GetOptions{})
		require.NoError(t, err)
		assert.Equal(t, int32(1), *deploy.Spec.Replicas, "scale-to-zero policies still start warm")

		container := deploy.Spec.Template.Spec.Containers[0]
		assert.Equal(t, "2", container.Resources.Requests.Cpu().String())
		assert.Equal(t, "4Gi", container.Resources.Requests.Memory().String())
		gpus := container.Resources.Limits[corev1.ResourceName("nvidia.com/gpu")]
		assert.Equal(t, int64(1), gpus.Value())
		assert.Empty(t, deploy.Spec.Template.Spec.NodeSelector)

		_, err = client.CoreV1().Services(testNamespace).Get(ctx, name, metav1.GetOptions{})
		assert.NoError(t, err)
	})

	t.Run("deploy is idempotent", func(t *testing.T) {
		_, err := p.Deploy(ctx, d)
		assert.NoError(t, err)
	})

	t.Run("hibernate scales to zero and activate restores", func(t *testing.T) {
		require.NoError(t, p.Hibernate(ctx, d))
		assert.Equal(t, int32(0), replicasOf(t, client, name))

		require.NoError(t, p.Activate(ctx, d))
		assert.Equal(t, int32(1), replicasOf(t, client, name))
	})

	t.Run("update applies resources and spot placement", func(t *testing.T) {
		d.Resources.CPU = 1
		d.DiscountedCapacity = true
		d.Scaling.MinInstances = 2
		require.NoError(t, p.Update(ctx, d))

		deploy, err := client.AppsV1().Deployments(testNamespace).Get(ctx, name, metav1.GetOptions{})
		require.NoError(t, err)
		assert.Equal(t, "1", deploy.Spec.Template.Spec.Containers[0].Resources.Requests.Cpu().String())
		assert.Equal(t, provisioner.SpotNodeSelectorValue, deploy.Spec.Template.Spec.NodeSelector[provisioner.SpotNodeSelectorKey])
		assert.Len(t, deploy.Spec.Template.Spec.Tolerations, 1)
		assert.Equal(t, int32(2), *deploy.Spec.Replicas)
	})

	t.Run("delete removes both objects", func(t *testing.T) {
		require.NoError(t, p.Delete(ctx, d))

		_, err := client.AppsV1().Deployments(testNamespace).Get(ctx, name, metav1.GetOptions{})
		assert.True(t, apierrors.IsNotFound(err))
		_, err = client.CoreV1().Services(testNamespace).Get(ctx, name, metav1.GetOptions{})
		assert.True(t, apierrors.IsNotFound(err))
	})

	t.Run("delete of a missing deployment succeeds", func(t *testing.T) {
		assert.NoError(t, p.Delete(ctx, d))
	})

	t.Run("hibernate of a missing deployment fails", func(t *testing.T) {
		err := p.Hibernate(ctx, d)
		require.Error(t, err)
		assert.True(t, apierrors.IsNotFound(err))
	})
}

func TestObjectName(t *testing.T) {
	d := &types.Deployment{ID: "dep_ABC_def"}
	assert.Equal(t, "dep-abc-def", provisioner.ObjectName(d))
}
