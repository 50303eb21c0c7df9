package deployment_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsanders-rh/modelctl/internal/deployment"
	"github.com/tsanders-rh/modelctl/internal/events"
	"github.com/tsanders-rh/modelctl/internal/policy"
	"github.com/tsanders-rh/modelctl/internal/provisioner"
	"github.com/tsanders-rh/modelctl/internal/store"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc     *deployment.Service
	store   *store.Store
	cluster *provisioner.Simulated
	faas    *provisioner.Simulated
	clock   *fakeClock
	events  *events.Memory
	modelID string
}

func newFixture(t *testing.T, opts ...deployment.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:   store.NewMemory(),
		cluster: provisioner.NewSimulated(types.VenueCluster),
		faas:    provisioner.NewSimulated(types.VenueFaaS),
		clock:   newFakeClock(),
		events:  events.NewMemory(100),
		modelID: "mdl_test",
	}

	require.NoError(t, f.store.Models.Create(context.Background(), &types.Model{
		ID: f.modelID, Name: "resnet", Framework: types.FrameworkPyTorch, Version: "1", StoragePath: "hot/resnet.pt",
	}))

	opts = append([]deployment.Option{
		deployment.WithClock(f.clock.Now),
		deployment.WithPublisher(f.events),
	}, opts...)
	f.svc = deployment.NewService(f.store, provisioner.Set{
		types.VenueCluster: f.cluster,
		types.VenueFaaS:    f.faas,
	}, policy.NewEngine(nil), opts...)
	return f
}

func (f *fixture) deploy(t *testing.T) *types.Deployment {
	t.Helper()
	d, err := f.svc.Deploy(context.Background(), &types.DeployRequest{
		Name:      "sentiment-api",
		ModelID:   f.modelID,
		Resources: &types.ResourceRequirements{CPU: 2, MemoryGiB: 4, TimeoutSeconds: 60},
	})
	require.NoError(t, err)
	return d
}

func assertEndpointInvariant(t *testing.T, d *types.Deployment) {
	t.Helper()
	if d.Status == types.DeploymentStatusActive {
		require.NotNil(t, d.Endpoint, "active deployment must have an endpoint")
		assert.Equal(t, d.ServiceURL, *d.Endpoint)
	} else {
		assert.Nil(t, d.Endpoint, "%s deployment must not have an endpoint", d.Status)
	}
}

func (f *fixture) reload(t *testing.T, id string) *types.Deployment {
	t.Helper()
	d, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	assertEndpointInvariant(t, d)
	return d
}

func TestService_Deploy(t *testing.T) {
	ctx := context.Background()

	t.Run("deploys with defaults and becomes active", func(t *testing.T) {
		f := newFixture(t)
		d, err := f.svc.Deploy(ctx, &types.DeployRequest{Name: "defaults", ModelID: f.modelID})
		require.NoError(t, err)

		assert.Equal(t, types.DeploymentStatusActive, d.Status)
		assert.Equal(t, types.VenueCluster, d.Venue)
		assert.Equal(t, types.DefaultResources(), d.Resources)
		assert.Equal(t, types.DefaultScalingPolicy(), d.Scaling)
		assert.Equal(t, types.DefaultCostPolicy(), d.CostPolicy)
		assert.Equal(t, types.ProviderAWS, d.Provider)
		assert.Equal(t, "us-east-1", d.Region)
		require.NotNil(t, d.LastActiveAt)
		assert.Equal(t, f.clock.Now(), *d.LastActiveAt)
		assertEndpointInvariant(t, d)

		stored := f.reload(t, d.ID)
		assert.Equal(t, d.Status, stored.Status)

		changes := f.events.Recent(0, events.TypeStatusChanged)
		require.Len(t, changes, 2)
		assert.Equal(t, types.DeploymentStatusDeploying, changes[0].Payload.(deployment.StatusChange).To)
		assert.Equal(t, types.DeploymentStatusActive, changes[1].Payload.(deployment.StatusChange).To)
	})

	t.Run("routes faas deployments to the function provisioner", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Deploy(ctx, &types.DeployRequest{Name: "fn", ModelID: f.modelID, Venue: types.VenueFaaS})
		require.NoError(t, err)
		assert.Equal(t, 1, f.faas.Calls(provisioner.OpDeploy))
		assert.Zero(t, f.cluster.Calls(provisioner.OpDeploy))
	})

	t.Run("rejects unknown models before creating a record", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Deploy(ctx, &types.DeployRequest{Name: "ghost", ModelID: "mdl_missing"})
		assert.ErrorIs(t, err, deployment.ErrNotFound)

		all, err := f.svc.List(ctx, deployment.ListFilter{})
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("rejects optimized references to plain models", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Deploy(ctx, &types.DeployRequest{Name: "wrong-kind", ModelID: f.modelID, ModelKind: types.ModelKindOptimized})
		assert.ErrorIs(t, err, deployment.ErrNotFound)
	})

	t.Run("rejects invalid requests before any mutation", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Deploy(ctx, &types.DeployRequest{Name: "bad", ModelID: f.modelID, Venue: "mainframe"})
		require.ErrorIs(t, err, deployment.ErrInvalidPolicy)

		var perr *deployment.InvalidPolicyError
		require.True(t, errors.As(err, &perr))
		assert.NotEmpty(t, perr.Errors)

		all, err := f.svc.List(ctx, deployment.ListFilter{})
		require.NoError(t, err)
		assert.Empty(t, all)
		assert.Zero(t, f.cluster.Calls(provisioner.OpDeploy))
	})

	t.Run("rejects venues without a provisioner", func(t *testing.T) {
		f := newFixture(t)
		svc := deployment.NewService(f.store, provisioner.Set{types.VenueCluster: f.cluster}, policy.NewEngine(nil))
		_, err := svc.Deploy(ctx, &types.DeployRequest{Name: "fn", ModelID: f.modelID, Venue: types.VenueFaaS})
		assert.ErrorIs(t, err, deployment.ErrInvalidPolicy)
	})

	t.Run("captures provisioner failure and keeps the record", func(t *testing.T) {
		f := newFixture(t)
		f.cluster.FailOn(provisioner.OpDeploy, errors.New("image pull backoff"))

		d, err := f.svc.Deploy(ctx, &types.DeployRequest{Name: "broken", ModelID: f.modelID})
		require.Error(t, err)

		var perr *deployment.ProvisionerError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, provisioner.OpDeploy, perr.Operation)
		require.NotNil(t, d)
		assert.Equal(t, d.ID, perr.DeploymentID)

		stored := f.reload(t, d.ID)
		assert.Equal(t, types.DeploymentStatusFailed, stored.Status)
		assert.Equal(t, "image pull backoff", stored.Error)
		assert.Equal(t, "image pull backoff", stored.Metadata[deployment.MetadataError])
	})
}

func TestService_StartDeploy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snapshot, task, err := f.svc.StartDeploy(ctx, &types.DeployRequest{Name: "async", ModelID: f.modelID})
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStatusDeploying, snapshot.Status)
	assert.Nil(t, snapshot.Endpoint)

	d, err := task.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStatusActive, d.Status)
	assertEndpointInvariant(t, d)

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	assert.NoError(t, f.svc.Shutdown(shutdownCtx))
}

func TestService_StartDeployCancel(t *testing.T) {
	f := newFixture(t)
	f.cluster.WithDelay(time.Minute)
	ctx := context.Background()

	_, task, err := f.svc.StartDeploy(ctx, &types.DeployRequest{Name: "cancelled", ModelID: f.modelID})
	require.NoError(t, err)

	task.Cancel()
	d, err := task.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.DeploymentStatusFailed, d.Status)
}

func TestService_HibernateActivate(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip keeps configuration and advances last active", func(t *testing.T) {
		f := newFixture(t)
		d := f.deploy(t)
		before := *d.LastActiveAt

		f.clock.Advance(time.Hour)
		h, err := f.svc.Hibernate(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, types.DeploymentStatusHibernated, h.Status)
		assertEndpointInvariant(t, h)
		replicas, _ := f.cluster.Replicas(d.ID)
		assert.Zero(t, replicas)

		f.clock.Advance(time.Minute)
		a, err := f.svc.Activate(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, types.DeploymentStatusActive, a.Status)
		assertEndpointInvariant(t, a)

		assert.Equal(t, d.Resources, a.Resources)
		assert.Equal(t, d.Scaling, a.Scaling)
		assert.Equal(t, d.ServiceURL, *a.Endpoint)
		require.NotNil(t, a.LastActiveAt)
		assert.True(t, a.LastActiveAt.After(before))
	})

	t.Run("hibernate is a no-op when disabled by policy", func(t *testing.T) {
		f := newFixture(t)
		cp := types.DefaultCostPolicy()
		cp.HibernationEnabled = false
		d, err := f.svc.Deploy(ctx, &types.DeployRequest{Name: "always-on", ModelID: f.modelID, CostPolicy: &cp})
		require.NoError(t, err)

		got, err := f.svc.Hibernate(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, types.DeploymentStatusActive, got.Status)
		assert.Zero(t, f.cluster.Calls(provisioner.OpHibernate))
	})

	t.Run("hibernate is a no-op when not active", func(t *testing.T) {
		f := newFixture(t)
		d := f.deploy(t)
		_, err := f.svc.Hibernate(ctx, d.ID)
		require.NoError(t, err)

		got, err := f.svc.Hibernate(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, types.DeploymentStatusHibernated, got.Status)
		assert.Equal(t, 1, f.cluster.Calls(provisioner.OpHibernate))
	})

	t.Run("activate is a no-op unless hibernated", func(t *testing.T) {
		f := newFixture(t)
		d := f.deploy(t)

		got, err := f.svc.Activate(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, types.DeploymentStatusActive, got.Status)
		assert.Zero(t, f.cluster.Calls(provisioner.OpActivate))
	})

	t.Run("activation failure moves to failed", func(t *testing.T) {
		f := newFixture(t)
		d := f.deploy(t)
		_, err := f.svc.Hibernate(ctx, d.ID)
		require.NoError(t, err)

		f.cluster.FailOn(provisioner.OpActivate, errors.New("insufficient capacity"))
		got, err := f.svc.Activate(ctx, d.ID)
		require.Error(t, err)
		assert.Equal(t, types.DeploymentStatusFailed, got.Status)
		assertEndpointInvariant(t, f.reload(t, d.ID))
	})

	t.Run("unknown ids are not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Hibernate(ctx, "dep_missing")
		assert.ErrorIs(t, err, deployment.ErrNotFound)
		_, err = f.svc.Activate(ctx, "dep_missing")
		assert.ErrorIs(t, err, deployment.ErrNotFound)
	})
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("merges only provided fields through scaling", func(t *testing.T) {
		f := newFixture(t)
		d := f.deploy(t)

		resources := types.ResourceRequirements{CPU: 1, MemoryGiB: 2, TimeoutSeconds: 30}
		got, err := f.svc.Update(ctx, d.ID, &types.UpdateRequest{
			Resources: &resources,
			Metadata:  map[string]string{"team": "nlp"},
		})
		require.NoError(t, err)

		assert.Equal(t, types.DeploymentStatusActive, got.Status)
		assert.Equal(t, resources, got.Resources)
		assert.Equal(t, d.Scaling, got.Scaling)
		assert.Equal(t, d.CostPolicy, got.CostPolicy)
		assert.Equal(t, "nlp", got.Metadata["team"])
		assert.Equal(t, 1, f.cluster.Calls(provisioner.OpUpdate))

		var sawScaling bool
		for _, ev := range f.events.Recent(0, events.TypeStatusChanged) {
			if ev.Payload.(deployment.StatusChange).To == types.DeploymentStatusScaling {
				sawScaling = true
			}
		}
		assert.True(t, sawScaling)
	})

	t.Run("empty update changes nothing", func(t *testing.T) {
		f := newFixture(t)
		d := f.deploy(t)

		got, err := f.svc.Update(ctx, d.ID, &types.UpdateRequest{})
		require.NoError(t, err)
		assert.Equal(t, d.UpdatedAt, got.UpdatedAt)
		assert.Zero(t, f.cluster.Calls(provisioner.OpUpdate))
	})

	t.Run("hibernated deployments store configuration only", func(t *testing.T) {
		f := newFixture(t)
		d := f.deploy(t)
		_, err := f.svc.Hibernate(ctx, d.ID)
		require.NoError(t, err)

		scaling := types.ScalingPolicy{MinInstances: 1, MaxInstances: 3, TargetCPUUtilization: 60}
		got, err := f.svc.Update(ctx, d.ID, &types.UpdateRequest{Scaling: &scaling})
		require.NoError(t, err)
		assert.Equal(t, types.DeploymentStatusHibernated, got.Status)
		assert.Equal(t, scaling, got.Scaling)
		assert.Zero(t, f.cluster.Calls(provisioner.OpUpdate))
	})

	t.Run("provisioner failure moves to failed", func(t *testing.T) {
		f := newFixture(t)
		d := f.deploy(t)
		f.cluster.FailOn(provisioner.OpUpdate, errors.New("quota exceeded"))

		enabled := true
		got, err := f.svc.Update(ctx, d.ID, &types.UpdateRequest{DiscountedCapacity: &enabled})
		var perr *deployment.ProvisionerError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, types.DeploymentStatusFailed, got.Status)
		assert.Equal(t, "quota exceeded", f.reload(t, d.ID).Error)
	})

	t.Run("invalid updates are rejected", func(t *testing.T) {
		f := newFixture(t)
		d := f.deploy(t)
		_, err := f.svc.Update(ctx, d.ID, &types.UpdateRequest{
			Resources: &types.ResourceRequirements{CPU: -1, MemoryGiB: 1},
		})
		assert.ErrorIs(t, err, deployment.ErrInvalidPolicy)
	})

	t.Run("unknown ids are not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Update(ctx, "dep_missing", &types.UpdateRequest{})
		assert.ErrorIs(t, err, deployment.ErrNotFound)
	})

	t.Run("transitional deployments conflict", func(t *testing.T) {
		f := newFixture(t)
		d := f.deploy(t)
		d.Status = types.DeploymentStatusScaling
		d.Endpoint = nil
		require.NoError(t, f.store.Deployments.Put(ctx, d))

		cpu := types.ResourceRequirements{CPU: 1, MemoryGiB: 1}
		_, err := f.svc.Update(ctx, d.ID, &types.UpdateRequest{Resources: &cpu})
		assert.ErrorIs(t, err, deployment.ErrConflictingState)
	})
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("removes the record and its metric history", func(t *testing.T) {
		f := newFixture(t)
		d := f.deploy(t)
		require.NoError(t, f.store.Metrics.Append(ctx, types.MetricSample{DeploymentID: d.ID, Timestamp: f.clock.Now()}))

		require.NoError(t, f.svc.Delete(ctx, d.ID))

		_, err := f.svc.Get(ctx, d.ID)
		assert.ErrorIs(t, err, deployment.ErrNotFound)
		history, err := f.store.Metrics.History(ctx, d.ID, time.Time{}, time.Time{})
		require.NoError(t, err)
		assert.Empty(t, history)
		assert.Len(t, f.events.Recent(0, events.TypeDeleted), 1)
	})

	t.Run("failed teardown keeps the record and is not retried", func(t *testing.T) {
		f := newFixture(t)
		d := f.deploy(t)
		f.cluster.FailOn(provisioner.OpDelete, errors.New("finalizer timeout"))

		err := f.svc.Delete(ctx, d.ID)
		var perr *deployment.ProvisionerError
		require.True(t, errors.As(err, &perr))

		stored := f.reload(t, d.ID)
		assert.Equal(t, types.DeploymentStatusFailed, stored.Status)
		assert.Equal(t, "finalizer timeout", stored.Error)
		assert.Equal(t, 1, f.cluster.Calls(provisioner.OpDelete))
	})

	t.Run("failed deployments can be deleted", func(t *testing.T) {
		f := newFixture(t)
		f.cluster.FailOn(provisioner.OpDeploy, errors.New("boom"))
		d, err := f.svc.Deploy(ctx, &types.DeployRequest{Name: "broken", ModelID: f.modelID})
		require.Error(t, err)

		assert.NoError(t, f.svc.Delete(ctx, d.ID))
	})

	t.Run("transitional deployments conflict", func(t *testing.T) {
		f := newFixture(t)
		d := f.deploy(t)
		d.Status = types.DeploymentStatusDeploying
		d.Endpoint = nil
		require.NoError(t, f.store.Deployments.Put(ctx, d))

		assert.ErrorIs(t, f.svc.Delete(ctx, d.ID), deployment.ErrConflictingState)
	})

	t.Run("unknown ids are not found", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.svc.Delete(ctx, "dep_missing"), deployment.ErrNotFound)
	})
}

func TestService_Touch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.deploy(t)
	start := *d.LastActiveAt

	require.NoError(t, f.svc.Touch(ctx, d.ID, start.Add(time.Minute)))
	assert.Equal(t, start.Add(time.Minute), *f.reload(t, d.ID).LastActiveAt)

	// Older observations never move last active backwards
	require.NoError(t, f.svc.Touch(ctx, d.ID, start))
	assert.Equal(t, start.Add(time.Minute), *f.reload(t, d.ID).LastActiveAt)

	_, err := f.svc.Hibernate(ctx, d.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Touch(ctx, d.ID, start.Add(time.Hour)))
	assert.Equal(t, start.Add(time.Minute), *f.reload(t, d.ID).LastActiveAt)
}

type tablePricer map[string]float64

func (p tablePricer) Price(provider types.Provider, region string, _ types.ResourceShape) (float64, error) {
	price, ok := p[string(provider)+"/"+region]
	if !ok {
		return 0, fmt.Errorf("no price for %s/%s", provider, region)
	}
	return price, nil
}

func TestService_Migrate(t *testing.T) {
	ctx := context.Background()
	pricer := tablePricer{"aws/us-east-1": 10, "gcp/us-central1": 8}

	t.Run("records the new placement and savings", func(t *testing.T) {
		f := newFixture(t, deployment.WithPricer(pricer))
		d := f.deploy(t)

		result, err := f.svc.Migrate(ctx, d.ID, types.ProviderGCP, "us-central1")
		require.NoError(t, err)
		assert.Equal(t, types.CheckStatusMigrated, result.Status)
		assert.Equal(t, 10.0, result.FromPrice)
		assert.Equal(t, 8.0, result.ToPrice)
		assert.InDelta(t, 20.0, result.SavingsPercentage, 1e-9)

		stored := f.reload(t, d.ID)
		assert.Equal(t, types.ProviderGCP, stored.Provider)
		assert.Equal(t, "us-central1", stored.Region)
		assert.Equal(t, types.ProviderAWS, stored.PreviousProvider)
		assert.Equal(t, "us-east-1", stored.PreviousRegion)
		require.NotNil(t, stored.MigratedAt)
		assert.Equal(t, types.DeploymentStatusActive, stored.Status)
	})

	t.Run("skips when already in place", func(t *testing.T) {
		f := newFixture(t, deployment.WithPricer(pricer))
		d := f.deploy(t)

		result, err := f.svc.Migrate(ctx, d.ID, types.ProviderAWS, "us-east-1")
		require.NoError(t, err)
		assert.Equal(t, types.CheckStatusSkipped, result.Status)
		assert.Nil(t, f.reload(t, d.ID).MigratedAt)
	})

	t.Run("rejects unknown providers", func(t *testing.T) {
		f := newFixture(t)
		d := f.deploy(t)
		_, err := f.svc.Migrate(ctx, d.ID, "oracle", "us-east-1")
		assert.ErrorIs(t, err, deployment.ErrInvalidPolicy)
	})
}

func TestService_FailStuck(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.deploy(t)

	d.Status = types.DeploymentStatusTerminating
	d.Endpoint = nil
	d.UpdatedAt = f.clock.Now().Add(-time.Hour)
	require.NoError(t, f.store.Deployments.Put(ctx, d))

	changed, err := f.svc.FailStuck(ctx, d.ID, f.clock.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	assert.False(t, changed, "updated after the cutoff")

	changed, err = f.svc.FailStuck(ctx, d.ID, f.clock.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.True(t, changed)

	stored := f.reload(t, d.ID)
	assert.Equal(t, types.DeploymentStatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "stuck in terminating")

	changed, err = f.svc.FailStuck(ctx, d.ID, f.clock.Now())
	require.NoError(t, err)
	assert.False(t, changed, "failed is not transitional")
}

// overlapGuard fails the test if two provisioner calls for one deployment overlap
type overlapGuard struct {
	provisioner.Provisioner
	t        *testing.T
	inFlight sync.Map
}

func (g *overlapGuard) enter(id string) func() {
	v, _ := g.inFlight.LoadOrStore(id, new(int32))
	n := v.(*int32)
	if atomic.AddInt32(n, 1) > 1 {
		g.t.Errorf("overlapping provisioner calls for %s", id)
	}
	time.Sleep(2 * time.Millisecond)
	return func() { atomic.AddInt32(n, -1) }
}

func (g *overlapGuard) Update(ctx context.Context, d *types.Deployment) error {
	defer g.enter(d.ID)()
	return g.Provisioner.Update(ctx, d)
}

func (g *overlapGuard) Hibernate(ctx context.Context, d *types.Deployment) error {
	defer g.enter(d.ID)()
	return g.Provisioner.Hibernate(ctx, d)
}

func (g *overlapGuard) Activate(ctx context.Context, d *types.Deployment) error {
	defer g.enter(d.ID)()
	return g.Provisioner.Activate(ctx, d)
}

func TestService_ConcurrentOperationsAreSerialized(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.Models.Create(ctx, &types.Model{ID: "mdl_1", Name: "m", Framework: types.FrameworkONNX, Version: "1", StoragePath: "p"}))

	guard := &overlapGuard{Provisioner: provisioner.NewSimulated(types.VenueCluster), t: t}
	svc := deployment.NewService(st, provisioner.Set{types.VenueCluster: guard}, policy.NewEngine(nil))

	d, err := svc.Deploy(ctx, &types.DeployRequest{Name: "contended", ModelID: "mdl_1"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			switch i % 3 {
			case 0:
				_, err = svc.Hibernate(ctx, d.ID)
			case 1:
				_, err = svc.Activate(ctx, d.ID)
			default:
				res := types.ResourceRequirements{CPU: float64(i%4 + 1), MemoryGiB: 1}
				_, err = svc.Update(ctx, d.ID, &types.UpdateRequest{Resources: &res})
			}
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	final, err := svc.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Contains(t, []types.DeploymentStatus{types.DeploymentStatusActive, types.DeploymentStatusHibernated}, final.Status)
	assertEndpointInvariant(t, final)
}
