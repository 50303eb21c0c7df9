package provisioner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tsanders-rh/modelctl/pkg/types"
)

// Operation names used for failure injection and call accounting
const (
	OpDeploy    = "deploy"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpHibernate = "hibernate"
	OpActivate  = "activate"
)

// Simulated is an in-process provisioner for local runs and tests.
// It keeps a replica count per deployment and can be told to fail.
type Simulated struct {
	mu       sync.Mutex
	venue    types.Venue
	delay    time.Duration
	failures map[string]error
	calls    map[string]int
	replicas map[string]int
}

// NewSimulated creates a simulated provisioner for a venue
func NewSimulated(venue types.Venue) *Simulated {
	return &Simulated{
		venue:    venue,
		failures: make(map[string]error),
		calls:    make(map[string]int),
		replicas: make(map[string]int),
	}
}

// WithDelay makes every call block for d or until ctx is done
func (s *Simulated) WithDelay(d time.Duration) *Simulated {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
	return s
}

// FailOn makes the named operation return err until cleared with a nil err
func (s *Simulated) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Calls returns how many times an operation was invoked
func (s *Simulated) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Replicas returns the simulated replica count; false if nothing is deployed
func (s *Simulated) Replicas(id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.replicas[id]
	return n, ok
}

func (s *Simulated) begin(ctx context.Context, op string) error {
	s.mu.Lock()
	s.calls[op]++
	delay := s.delay
	err := s.failures[op]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Deploy records a running deployment and returns a synthetic URL
func (s *Simulated) Deploy(ctx context.Context, d *types.Deployment) (string, error) {
	if err := s.begin(ctx, OpDeploy); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.replicas[d.ID] = int(warmReplicas(d))
	s.mu.Unlock()
	return fmt.Sprintf("https://%s.%s.modelctl.local", ObjectName(d), s.venue), nil
}

// Update succeeds for any deployed record
func (s *Simulated) Update(ctx context.Context, d *types.Deployment) error {
	if err := s.begin(ctx, OpUpdate); err != nil {
		return err
	}
	return s.set(d.ID, int(warmReplicas(d)))
}

// Delete forgets the deployment
func (s *Simulated) Delete(ctx context.Context, d *types.Deployment) error {
	if err := s.begin(ctx, OpDelete); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.replicas, d.ID)
	s.mu.Unlock()
	return nil
}

// Hibernate scales to zero
func (s *Simulated) Hibernate(ctx context.Context, d *types.Deployment) error {
	if err := s.begin(ctx, OpHibernate); err != nil {
		return err
	}
	return s.set(d.ID, 0)
}

// Activate scales back to the warm replica count
func (s *Simulated) Activate(ctx context.Context, d *types.Deployment) error {
	if err := s.begin(ctx, OpActivate); err != nil {
		return err
	}
	return s.set(d.ID, int(warmReplicas(d)))
}

func (s *Simulated) set(id string, replicas int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.replicas[id]; !ok {
		return fmt.Errorf("deployment %s is not provisioned", id)
	}
	s.replicas[id] = replicas
	return nil
}
