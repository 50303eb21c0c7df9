package provisioner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tsanders-rh/modelctl/internal/logger"
	"github.com/tsanders-rh/modelctl/pkg/types"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/retry"
	"k8s.io/utils/ptr"
)

// Labels and selectors applied to cluster objects
const (
	LabelManaged      = "modelctl.io/managed"
	LabelDeploymentID = "modelctl.io/deployment-id"
	LabelName         = "modelctl.io/name"
	LabelModelID      = "modelctl.io/model-id"

	SpotNodeSelectorKey   = "node.kubernetes.io/capacity-type"
	SpotNodeSelectorValue = "spot"

	gpuResource   = corev1.ResourceName("nvidia.com/gpu")
	containerName = "model-server"
	servingPort   = 8080
)

// getBackoff retries transient API errors on reads
var getBackoff = wait.Backoff{
	Duration: 100 * time.Millisecond,
	Factor:   2.0,
	Jitter:   0.1,
	Steps:    5,
}

// ClusterConfig holds cluster provisioner settings
type ClusterConfig struct {
	Namespace  string
	Image      string
	Kubeconfig string // empty uses in-cluster config
}

// ClusterProvisioner runs deployments as Kubernetes Deployments fronted by a Service
type ClusterProvisioner struct {
	client    kubernetes.Interface
	namespace string
	image     string
}

// NewClusterProvisioner creates a cluster provisioner over an existing clientset
func NewClusterProvisioner(client kubernetes.Interface, namespace, image string) *ClusterProvisioner {
	return &ClusterProvisioner{
		client:    client,
		namespace: namespace,
		image:     image,
	}
}

// NewClusterProvisionerFromConfig builds a clientset from kubeconfig or in-cluster config
func NewClusterProvisionerFromConfig(cfg ClusterConfig) (*ClusterProvisioner, error) {
	var (
		restCfg *rest.Config
		err     error
	)
	if cfg.Kubeconfig != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", cfg.Kubeconfig)
	} else {
		restCfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("load kubernetes config: %w", err)
	}

	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}

	return NewClusterProvisioner(client, cfg.Namespace, cfg.Image), nil
}

// ObjectName returns the Kubernetes object name of a deployment.
// Deployment IDs are unique but not DNS labels, so they are lowercased.
func ObjectName(d *types.Deployment) string {
	name := strings.ToLower(strings.ReplaceAll(d.ID, "_", "-"))
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}

// Deploy creates the Deployment and Service and returns the in-cluster URL
func (p *ClusterProvisioner) Deploy(ctx context.Context, d *types.Deployment) (string, error) {
	name := ObjectName(d)

	deploy := p.buildDeployment(d, name)
	if _, err := p.client.AppsV1().Deployments(p.namespace).Create(ctx, deploy, metav1.CreateOptions{}); err != nil {
		if !apierrors.IsAlreadyExists(err) {
			return "", fmt.Errorf("create deployment %s: %w", name, err)
		}
		// A retried deploy adopts the existing object
		if err := p.mutate(ctx, name, func(existing *appsv1.Deployment) {
			existing.Spec = deploy.Spec
		}); err != nil {
			return "", err
		}
	}

	svc := p.buildService(d, name)
	if _, err := p.client.CoreV1().Services(p.namespace).Create(ctx, svc, metav1.CreateOptions{}); err != nil && !apierrors.IsAlreadyExists(err) {
		return "", fmt.Errorf("create service %s: %w", name, err)
	}

	url := fmt.Sprintf("http://%s.%s.svc.cluster.local", name, p.namespace)
	logger.Log.Infow("cluster deployment created", "deployment_id", d.ID, "object", name, "url", url)
	return url, nil
}

// Update applies the deployment's resources and capacity flags
func (p *ClusterProvisioner) Update(ctx context.Context, d *types.Deployment) error {
	want := p.buildDeployment(d, ObjectName(d))
	return p.mutate(ctx, ObjectName(d), func(existing *appsv1.Deployment) {
		existing.Spec.Template.Spec.Containers = want.Spec.Template.Spec.Containers
		existing.Spec.Template.Spec.NodeSelector = want.Spec.Template.Spec.NodeSelector
		existing.Spec.Template.Spec.Tolerations = want.Spec.Template.Spec.Tolerations
		existing.Spec.Replicas = want.Spec.Replicas
	})
}

// Delete removes the Deployment and Service
func (p *ClusterProvisioner) Delete(ctx context.Context, d *types.Deployment) error {
	name := ObjectName(d)
	opts := metav1.DeleteOptions{PropagationPolicy: ptr.To(metav1.DeletePropagationForeground)}

	if err := p.client.AppsV1().Deployments(p.namespace).Delete(ctx, name, opts); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("delete deployment %s: %w", name, err)
	}
	if err := p.client.CoreV1().Services(p.namespace).Delete(ctx, name, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("delete service %s: %w", name, err)
	}

	logger.Log.Infow("cluster deployment deleted", "deployment_id", d.ID, "object", name)
	return nil
}

// Hibernate scales the Deployment to zero replicas
func (p *ClusterProvisioner) Hibernate(ctx context.Context, d *types.Deployment) error {
	return p.scale(ctx, d, 0)
}

// Activate scales the Deployment back to its warm replica count
func (p *ClusterProvisioner) Activate(ctx context.Context, d *types.Deployment) error {
	return p.scale(ctx, d, warmReplicas(d))
}

func (p *ClusterProvisioner) scale(ctx context.Context, d *types.Deployment, replicas int32) error {
	return p.mutate(ctx, ObjectName(d), func(existing *appsv1.Deployment) {
		existing.Spec.Replicas = ptr.To(replicas)
	})
}

// mutate applies fn to the latest version of a Deployment, retrying on conflict
func (p *ClusterProvisioner) mutate(ctx context.Context, name string, fn func(*appsv1.Deployment)) error {
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		existing, err := p.get(ctx, name)
		if err != nil {
			return err
		}
		fn(existing)
		_, err = p.client.AppsV1().Deployments(p.namespace).Update(ctx, existing, metav1.UpdateOptions{})
		return err
	})
	if err != nil {
		return fmt.Errorf("update deployment %s: %w", name, err)
	}
	return nil
}

// get reads a Deployment, retrying transient errors
func (p *ClusterProvisioner) get(ctx context.Context, name string) (*appsv1.Deployment, error) {
	var (
		deploy  *appsv1.Deployment
		lastErr error
	)
	err := wait.ExponentialBackoffWithContext(ctx, getBackoff, func(ctx context.Context) (bool, error) {
		got, err := p.client.AppsV1().Deployments(p.namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			if apierrors.IsNotFound(err) {
				return false, err
			}
			lastErr = err
			logger.Log.Warnw("transient error getting deployment, retrying", "object", name, "error", err)
			return false, nil
		}
		deploy = got
		return true, nil
	})
	if err != nil {
		if wait.Interrupted(err) && lastErr != nil {
			return nil, lastErr
		}
		return nil, err
	}
	return deploy, nil
}

func (p *ClusterProvisioner) buildDeployment(d *types.Deployment, name string) *appsv1.Deployment {
	labels := objectLabels(d)
	selector := map[string]string{LabelDeploymentID: labels[LabelDeploymentID]}

	requests := corev1.ResourceList{
		corev1.ResourceCPU:    types.CPUQuantity(d.Resources.CPU),
		corev1.ResourceMemory: types.MemoryQuantity(d.Resources.MemoryGiB),
	}
	limits := corev1.ResourceList{
		corev1.ResourceMemory: types.MemoryQuantity(d.Resources.MemoryGiB),
	}
	if d.Resources.GPU > 0 {
		gpus := *resource.NewQuantity(int64(d.Resources.GPU+0.5), resource.DecimalSI)
		requests[gpuResource] = gpus
		limits[gpuResource] = gpus
	}

	podSpec := corev1.PodSpec{
		Containers: []corev1.Container{{
			Name:  containerName,
			Image: p.image,
			Ports: []corev1.ContainerPort{{Name: "http", ContainerPort: servingPort}},
			Env: []corev1.EnvVar{
				{Name: "MODEL_ID", Value: d.ModelID},
				{Name: "MODEL_KIND", Value: string(d.ModelKind)},
				{Name: "REQUEST_TIMEOUT_SECONDS", Value: fmt.Sprintf("%d", d.Resources.TimeoutSeconds)},
			},
			Resources: corev1.ResourceRequirements{Requests: requests, Limits: limits},
		}},
	}
	if d.DiscountedCapacity {
		podSpec.NodeSelector = map[string]string{SpotNodeSelectorKey: SpotNodeSelectorValue}
		podSpec.Tolerations = []corev1.Toleration{{
			Key:      SpotNodeSelectorKey,
			Operator: corev1.TolerationOpEqual,
			Value:    SpotNodeSelectorValue,
			Effect:   corev1.TaintEffectNoSchedule,
		}}
	}

	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: p.namespace,
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(warmReplicas(d)),
			Selector: &metav1.LabelSelector{MatchLabels: selector},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec:       podSpec,
			},
		},
	}
}

func (p *ClusterProvisioner) buildService(d *types.Deployment, name string) *corev1.Service {
	labels := objectLabels(d)
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: p.namespace,
			Labels:    labels,
		},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{LabelDeploymentID: labels[LabelDeploymentID]},
			Ports: []corev1.ServicePort{{
				Name:       "http",
				Port:       80,
				TargetPort: intstr.FromInt32(servingPort),
			}},
		},
	}
}

func objectLabels(d *types.Deployment) map[string]string {
	return map[string]string{
		LabelManaged:      "true",
		LabelDeploymentID: ObjectName(d),
		LabelName:         d.Name,
		LabelModelID:      strings.ToLower(strings.ReplaceAll(d.ModelID, "_", "-")),
	}
}

// warmReplicas is the replica count of an active deployment
func warmReplicas(d *types.Deployment) int32 {
	if d.Scaling.MinInstances < 1 {
		return 1
	}
	return int32(d.Scaling.MinInstances)
}
