package store

import (
	"context"
	"errors"
	"time"

	"github.com/tsanders-rh/modelctl/pkg/types"
)

// DefaultMaxHistory is the number of samples retained per deployment
const DefaultMaxHistory = 1000

// MetricStore keeps a bounded, append-only sample history per deployment
type MetricStore struct {
	c     collection[[]types.MetricSample]
	locks *Locks

	MaxHistory int
}

// Append adds a sample, dropping the oldest ones beyond MaxHistory
func (s *MetricStore) Append(ctx context.Context, sample types.MetricSample) error {
	unlock := s.locks.Lock(sample.DeploymentID)
	defer unlock()

	history, err := s.load(ctx, sample.DeploymentID)
	if err != nil {
		return err
	}

	history = append(history, sample)
	if limit := s.MaxHistory; limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	return s.c.put(ctx, sample.DeploymentID, &history)
}

// History returns the samples of a deployment within [since, until].
// Zero bounds are open.
func (s *MetricStore) History(ctx context.Context, deploymentID string, since, until time.Time) ([]types.MetricSample, error) {
	history, err := s.load(ctx, deploymentID)
	if err != nil {
		return nil, err
	}

	out := make([]types.MetricSample, 0, len(history))
	for _, m := range history {
		if !since.IsZero() && m.Timestamp.Before(since) {
			continue
		}
		if !until.IsZero() && m.Timestamp.After(until) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Latest returns the most recent n samples of a deployment, oldest first
func (s *MetricStore) Latest(ctx context.Context, deploymentID string, n int) ([]types.MetricSample, error) {
	history, err := s.load(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	return history, nil
}

// Delete drops the history of a deployment
func (s *MetricStore) Delete(ctx context.Context, deploymentID string) error {
	unlock := s.locks.Lock(deploymentID)
	defer unlock()

	err := s.c.delete(ctx, deploymentID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (s *MetricStore) load(ctx context.Context, deploymentID string) ([]types.MetricSample, error) {
	history, err := s.c.get(ctx, deploymentID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return *history, nil
}
