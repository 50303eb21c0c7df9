// Package deployment implements the deployment state machine. Every
// transition is persisted before and after the provisioner call, and all
// operations on one deployment id are serialized.
package deployment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tsanders-rh/modelctl/internal/events"
	"github.com/tsanders-rh/modelctl/internal/logger"
	"github.com/tsanders-rh/modelctl/internal/metrics"
	"github.com/tsanders-rh/modelctl/internal/policy"
	"github.com/tsanders-rh/modelctl/internal/provisioner"
	"github.com/tsanders-rh/modelctl/internal/store"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

// MetadataError is the metadata key holding the last provisioner error
const MetadataError = "error"

// Pricer prices a resource shape in one provider region
type Pricer interface {
	Price(provider types.Provider, region string, shape types.ResourceShape) (float64, error)
}

// StatusChange is the payload of a status transition event
type StatusChange struct {
	DeploymentID string                 `json:"deployment_id"`
	From         types.DeploymentStatus `json:"from"`
	To           types.DeploymentStatus `json:"to"`
	Error        string                 `json:"error,omitempty"`
}

// Service owns deployment records and drives them through the provisioners
type Service struct {
	store        *store.Store
	provisioners provisioner.Set
	policy       *policy.Engine
	publisher    events.Publisher
	pricer       Pricer
	locks        *store.Locks
	now          func() time.Time
	tasks        sync.WaitGroup
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPublisher sets the event publisher
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithPricer sets the price source used to report migration savings
func WithPricer(p Pricer) Option {
	return func(s *Service) { s.pricer = p }
}

// NewService creates a deployment service
func NewService(st *store.Store, provisioners provisioner.Set, engine *policy.Engine, opts ...Option) *Service {
	s := &Service{
		store:        st,
		provisioners: provisioners,
		policy:       engine,
		publisher:    events.Nop{},
		locks:        store.NewLocks(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a deployment by id
func (s *Service) Get(ctx context.Context, id string) (*types.Deployment, error) {
	d, err := s.store.Deployments.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: deployment %s", ErrNotFound, id)
	}
	return d, err
}

// ListFilter narrows List results; zero fields match everything
type ListFilter struct {
	Status  types.DeploymentStatus
	Venue   types.Venue
	ModelID string
}

// List returns deployments matching the filter, ordered by id
func (s *Service) List(ctx context.Context, f ListFilter) ([]*types.Deployment, error) {
	all, err := s.store.Deployments.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*types.Deployment, 0, len(all))
	for _, d := range all {
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		if f.Venue != "" && d.Venue != f.Venue {
			continue
		}
		if f.ModelID != "" && d.ModelID != f.ModelID {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// Deploy creates a deployment and provisions it. On provisioner failure the
// failed record is returned together with a *ProvisionerError.
func (s *Service) Deploy(ctx context.Context, req *types.DeployRequest) (*types.Deployment, error) {
	d, prov, unlock, err := s.beginDeploy(ctx, req)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return s.finishDeploy(ctx, d, prov)
}

// StartDeploy commits the deploying transition and provisions in a background
// task. The returned record is the deploying snapshot.
func (s *Service) StartDeploy(ctx context.Context, req *types.DeployRequest) (*types.Deployment, *Task, error) {
	d, prov, unlock, err := s.beginDeploy(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	snapshot := d.Clone()
	task := s.spawn(ctx, func(ctx context.Context) (*types.Deployment, error) {
		defer unlock()
		return s.finishDeploy(ctx, d, prov)
	})
	return snapshot, task, nil
}

// beginDeploy validates the request, creates the pending record and moves it
// to deploying. The deployment lock is held on success.
func (s *Service) beginDeploy(ctx context.Context, req *types.DeployRequest) (*types.Deployment, provisioner.Provisioner, func(), error) {
	result := s.policy.ValidateDeployRequest(req)
	if !result.Valid {
		return nil, nil, nil, &InvalidPolicyError{Errors: result.Errors}
	}
	r := result.Resolved

	prov, err := s.provisioners.For(r.Venue)
	if err != nil {
		return nil, nil, nil, invalid("venue", err.Error())
	}

	if err := s.checkModel(ctx, req.ModelID, r.ModelKind); err != nil {
		return nil, nil, nil, err
	}

	now := s.now()
	d := &types.Deployment{
		ID:         types.GenerateDeploymentID(),
		Name:       req.Name,
		ModelID:    req.ModelID,
		ModelKind:  r.ModelKind,
		Venue:      r.Venue,
		Profile:    req.Profile,
		Resources:  r.Resources,
		Scaling:    r.Scaling,
		CostPolicy: r.CostPolicy,
		Status:     types.DeploymentStatusPending,
		Provider:   r.Provider,
		Region:     r.Region,
		Metadata:   r.Metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	unlock := s.locks.Lock(d.ID)
	if err := s.store.Deployments.Create(ctx, d); err != nil {
		unlock()
		return nil, nil, nil, fmt.Errorf("create deployment: %w", err)
	}
	if err := s.transition(ctx, d, types.DeploymentStatusDeploying); err != nil {
		unlock()
		return nil, nil, nil, err
	}

	logger.Log.Infow("deployment created",
		"deployment_id", d.ID,
		"name", d.Name,
		"venue", d.Venue,
		"model_id", d.ModelID,
	)
	return d, prov, unlock, nil
}

func (s *Service) finishDeploy(ctx context.Context, d *types.Deployment, prov provisioner.Provisioner) (*types.Deployment, error) {
	url, err := prov.Deploy(ctx, d.Clone())
	// The outcome is recorded even if the caller went away
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		ferr := s.fail(ctx, d, provisioner.OpDeploy, err)
		return d.Clone(), ferr
	}

	d.ServiceURL = url
	d.Error = ""
	now := s.now()
	d.LastActiveAt = &now
	if err := s.transition(ctx, d, types.DeploymentStatusActive); err != nil {
		return nil, err
	}
	return d.Clone(), nil
}

// Update merges the provided fields. Active deployments are re-provisioned
// through scaling; hibernated, pending and failed ones only store the new
// configuration, which takes effect on the next activation.
func (s *Service) Update(ctx context.Context, id string, req *types.UpdateRequest) (*types.Deployment, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.IsEmpty() {
		return d, nil
	}

	if result := s.policy.ValidateUpdateRequest(d, req); !result.Valid {
		return nil, &InvalidPolicyError{Errors: result.Errors}
	}
	if d.Status.IsTransitional() {
		return nil, fmt.Errorf("%w: cannot update deployment %s while %s", ErrConflictingState, id, d.Status)
	}

	merge(d, req)

	if d.Status != types.DeploymentStatusActive {
		d.UpdatedAt = s.now()
		if err := s.store.Deployments.Put(ctx, d); err != nil {
			return nil, fmt.Errorf("persist update: %w", err)
		}
		return d.Clone(), nil
	}

	prov, err := s.provisioners.For(d.Venue)
	if err != nil {
		return nil, err
	}

	if err := s.transition(ctx, d, types.DeploymentStatusScaling); err != nil {
		return nil, err
	}
	err = prov.Update(ctx, d.Clone())
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		ferr := s.fail(ctx, d, provisioner.OpUpdate, err)
		return d.Clone(), ferr
	}

	d.Error = ""
	if err := s.transition(ctx, d, types.DeploymentStatusActive); err != nil {
		return nil, err
	}
	return d.Clone(), nil
}

func merge(d *types.Deployment, req *types.UpdateRequest) {
	if req.Resources != nil {
		d.Resources = *req.Resources
	}
	if req.Scaling != nil {
		d.Scaling = *req.Scaling
	}
	if req.CostPolicy != nil {
		d.CostPolicy = *req.CostPolicy
	}
	if req.DiscountedCapacity != nil {
		d.DiscountedCapacity = *req.DiscountedCapacity
	}
	if len(req.Metadata) > 0 && d.Metadata == nil {
		d.Metadata = types.Tags{}
	}
	for k, v := range req.Metadata {
		d.Metadata[k] = v
	}
}

// Delete tears the deployment down and removes its record and metric
// history. A failed teardown leaves the record in failed; it is not retried.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	switch d.Status {
	case types.DeploymentStatusActive, types.DeploymentStatusHibernated,
		types.DeploymentStatusFailed, types.DeploymentStatusPending:
	default:
		return fmt.Errorf("%w: cannot delete deployment %s while %s", ErrConflictingState, id, d.Status)
	}

	prov, err := s.provisioners.For(d.Venue)
	if err != nil {
		return err
	}

	if err := s.transition(ctx, d, types.DeploymentStatusTerminating); err != nil {
		return err
	}
	err = prov.Delete(ctx, d.Clone())
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		return s.fail(ctx, d, provisioner.OpDelete, err)
	}

	if err := s.store.Deployments.Delete(ctx, id); err != nil {
		return fmt.Errorf("remove deployment record: %w", err)
	}
	if err := s.store.Metrics.Delete(ctx, id); err != nil {
		logger.Log.Warnw("failed to remove metric history", "deployment_id", id, "error", err)
	}

	metrics.Transition(string(types.DeploymentStatusTerminating), "deleted")
	s.publish(ctx, events.New(events.TypeDeleted, id, StatusChange{DeploymentID: id, From: types.DeploymentStatusTerminating}))
	logger.Log.Infow("deployment deleted", "deployment_id", id, "name", d.Name)
	return nil
}

// Hibernate scales an active deployment to zero. It is a no-op when
// hibernation is disabled by policy or the deployment is not active.
func (s *Service) Hibernate(ctx context.Context, id string) (*types.Deployment, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !d.CostPolicy.HibernationEnabled {
		logger.Log.Infow("hibernation disabled by policy, skipping", "deployment_id", id)
		return d, nil
	}
	if d.Status != types.DeploymentStatusActive {
		logger.Log.Infow("deployment not active, skipping hibernation", "deployment_id", id, "status", d.Status)
		return d, nil
	}

	prov, err := s.provisioners.For(d.Venue)
	if err != nil {
		return nil, err
	}

	if err := s.transition(ctx, d, types.DeploymentStatusHibernating); err != nil {
		return nil, err
	}
	err = prov.Hibernate(ctx, d.Clone())
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		ferr := s.fail(ctx, d, provisioner.OpHibernate, err)
		return d.Clone(), ferr
	}

	if err := s.transition(ctx, d, types.DeploymentStatusHibernated); err != nil {
		return nil, err
	}
	logger.Log.Infow("deployment hibernated", "deployment_id", id)
	return d.Clone(), nil
}

// Activate restores a hibernated deployment. It is a no-op for any other status.
func (s *Service) Activate(ctx context.Context, id string) (*types.Deployment, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if d.Status != types.DeploymentStatusHibernated {
		logger.Log.Infow("deployment not hibernated, skipping activation", "deployment_id", id, "status", d.Status)
		return d, nil
	}

	prov, err := s.provisioners.For(d.Venue)
	if err != nil {
		return nil, err
	}

	if err := s.transition(ctx, d, types.DeploymentStatusDeploying); err != nil {
		return nil, err
	}
	err = prov.Activate(ctx, d.Clone())
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		ferr := s.fail(ctx, d, provisioner.OpActivate, err)
		return d.Clone(), ferr
	}

	now := s.now()
	d.LastActiveAt = &now
	d.Error = ""
	if err := s.transition(ctx, d, types.DeploymentStatusActive); err != nil {
		return nil, err
	}
	logger.Log.Infow("deployment activated", "deployment_id", id)
	return d.Clone(), nil
}

// Touch records activity observed by metric collection. Only active
// deployments are stamped and the timestamp never moves backwards.
func (s *Service) Touch(ctx context.Context, id string, at time.Time) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if d.Status != types.DeploymentStatusActive {
		return nil
	}
	if d.LastActiveAt != nil && !at.After(*d.LastActiveAt) {
		return nil
	}

	d.LastActiveAt = &at
	return s.store.Deployments.Put(ctx, d)
}

// Migrate records a new provider and region for a deployment. The data-plane
// cutover happens outside this service.
func (s *Service) Migrate(ctx context.Context, id string, provider types.Provider, region string) (*types.MigrationResult, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch provider {
	case types.ProviderAWS, types.ProviderGCP, types.ProviderAzure:
	default:
		return nil, invalid("provider", fmt.Sprintf("unsupported provider %q", provider))
	}
	if region == "" {
		return nil, invalid("region", "region is required")
	}
	if d.Status.IsTransitional() {
		return nil, fmt.Errorf("%w: cannot migrate deployment %s while %s", ErrConflictingState, id, d.Status)
	}

	result := &types.MigrationResult{
		FromProvider: d.Provider,
		FromRegion:   d.Region,
		ToProvider:   provider,
		ToRegion:     region,
	}
	if d.Provider == provider && d.Region == region {
		result.Status = types.CheckStatusSkipped
		result.Reason = "deployment already runs in the target provider and region"
		return result, nil
	}

	if s.pricer != nil {
		shape := d.Resources.Shape()
		from, ferr := s.pricer.Price(d.Provider, d.Region, shape)
		to, terr := s.pricer.Price(provider, region, shape)
		if ferr == nil && terr == nil {
			result.FromPrice = from
			result.ToPrice = to
			if from > 0 {
				result.SavingsPercentage = (from - to) / from * 100
			}
		}
	}

	now := s.now()
	d.PreviousProvider = d.Provider
	d.PreviousRegion = d.Region
	d.Provider = provider
	d.Region = region
	d.MigratedAt = &now
	d.UpdatedAt = now
	if err := s.store.Deployments.Put(ctx, d); err != nil {
		return nil, fmt.Errorf("persist migration: %w", err)
	}

	result.Status = types.CheckStatusMigrated
	s.publish(ctx, events.New(events.TypeMigrated, id, result))
	logger.Log.Infow("deployment migrated",
		"deployment_id", id,
		"from", fmt.Sprintf("%s/%s", result.FromProvider, result.FromRegion),
		"to", fmt.Sprintf("%s/%s", provider, region),
		"savings_percentage", result.SavingsPercentage,
	)
	return result, nil
}

// FailStuck moves a deployment left in a transitional status since before
// cutoff to failed. It reports whether the record was changed.
func (s *Service) FailStuck(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !d.Status.IsTransitional() || d.UpdatedAt.After(cutoff) {
		return false, nil
	}

	msg := fmt.Sprintf("stuck in %s since %s; needs operator retry", d.Status, d.UpdatedAt.Format(time.RFC3339))
	s.recordError(d, msg)
	if err := s.transition(ctx, d, types.DeploymentStatusFailed); err != nil {
		return false, err
	}
	logger.Log.Warnw("deployment marked failed by reconciliation", "deployment_id", id, "error", msg)
	return true, nil
}

// Shutdown waits for background deploy tasks to finish
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// transition persists a status change. The endpoint is derived from the
// target status so it is set exactly while active.
func (s *Service) transition(ctx context.Context, d *types.Deployment, to types.DeploymentStatus) error {
	from := d.Status
	d.Status = to
	if to == types.DeploymentStatusActive {
		url := d.ServiceURL
		d.Endpoint = &url
	} else {
		d.Endpoint = nil
	}
	d.UpdatedAt = s.now()

	if err := s.store.Deployments.Put(ctx, d); err != nil {
		return fmt.Errorf("persist %s transition: %w", to, err)
	}

	metrics.Transition(string(from), string(to))
	s.publish(ctx, events.New(events.TypeStatusChanged, d.ID, StatusChange{
		DeploymentID: d.ID,
		From:         from,
		To:           to,
		Error:        d.Error,
	}))
	logger.Log.Debugw("deployment transition", "deployment_id", d.ID, "from", from, "to", to)
	return nil
}

// fail records a provisioner error and moves the deployment to failed
func (s *Service) fail(ctx context.Context, d *types.Deployment, op string, cause error) error {
	metrics.ProvisionerError(string(d.Venue), op)
	logger.Log.Errorw("provisioner call failed",
		"deployment_id", d.ID,
		"operation", op,
		"venue", d.Venue,
		"error", cause,
	)

	s.recordError(d, cause.Error())
	if err := s.transition(ctx, d, types.DeploymentStatusFailed); err != nil {
		return errors.Join(&ProvisionerError{DeploymentID: d.ID, Operation: op, Err: cause}, err)
	}
	return &ProvisionerError{DeploymentID: d.ID, Operation: op, Err: cause}
}

func (s *Service) recordError(d *types.Deployment, msg string) {
	d.Error = msg
	if d.Metadata == nil {
		d.Metadata = types.Tags{}
	}
	d.Metadata[MetadataError] = msg
}

func (s *Service) checkModel(ctx context.Context, id string, kind types.ModelKind) error {
	var err error
	switch kind {
	case types.ModelKindOptimized:
		_, err = s.store.OptimizedModels.Get(ctx, id)
	default:
		_, err = s.store.Models.Get(ctx, id)
	}
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s model %s", ErrNotFound, kind, id)
	}
	return err
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		logger.Log.Warnw("failed to publish event", "type", ev.Type, "key", ev.Key, "error", err)
	}
}
