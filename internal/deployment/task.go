package deployment

import (
	"context"

	"github.com/tsanders-rh/modelctl/pkg/types"
)

// Task is an in-flight provisioner call whose result is delivered through
// one committed transition
type Task struct {
	done   chan struct{}
	cancel context.CancelFunc
	result *types.Deployment
	err    error
}

// Done is closed once the task has committed its final transition
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cancel cancels the provisioner call. The deployment still reaches a
// terminal status through the normal failure path.
func (t *Task) Cancel() {
	t.cancel()
}

// Wait blocks until the task finishes or ctx is done. Abandoning the wait
// does not cancel the task.
func (t *Task) Wait(ctx context.Context) (*types.Deployment, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// spawn runs fn detached from the caller's cancellation and tracks it for Shutdown
func (s *Service) spawn(parent context.Context, fn func(context.Context) (*types.Deployment, error)) *Task {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	t := &Task{done: make(chan struct{}), cancel: cancel}

	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		defer cancel()
		defer close(t.done)
		t.result, t.err = fn(ctx)
	}()
	return t
}
