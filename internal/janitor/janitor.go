// Package janitor reconciles deployments left in a transitional status by an
// interrupted provisioner call.
package janitor

import (
	"context"
	"time"

	"github.com/tsanders-rh/modelctl/internal/deployment"
	"github.com/tsanders-rh/modelctl/internal/logger"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

// Config holds janitor configuration
type Config struct {
	CheckInterval  time.Duration
	StuckThreshold time.Duration
}

// DefaultConfig returns default janitor configuration
func DefaultConfig() *Config {
	return &Config{
		CheckInterval:  5 * time.Minute,
		StuckThreshold: 30 * time.Minute,
	}
}

// Deployments is the deployment surface the janitor sweeps
type Deployments interface {
	List(ctx context.Context, f deployment.ListFilter) ([]*types.Deployment, error)
	FailStuck(ctx context.Context, id string, cutoff time.Time) (bool, error)
}

// Janitor performs the periodic reconciliation sweep
type Janitor struct {
	config      *Config
	deployments Deployments
	now         func() time.Time
	cancel      context.CancelFunc
}

// NewJanitor creates a new janitor instance
func NewJanitor(config *Config, deployments Deployments) *Janitor {
	if config == nil {
		config = DefaultConfig()
	}

	return &Janitor{
		config:      config,
		deployments: deployments,
		now:         time.Now,
	}
}

// WithClock overrides the time source
func (j *Janitor) WithClock(now func() time.Time) *Janitor {
	j.now = now
	return j
}

// Start runs a sweep immediately and then on every tick until ctx is done
func (j *Janitor) Start(ctx context.Context) error {
	ctx, j.cancel = context.WithCancel(ctx)

	logger.Log.Infow("janitor starting",
		"check_interval", j.config.CheckInterval.String(),
		"stuck_threshold", j.config.StuckThreshold.String())

	j.run(ctx)

	ticker := time.NewTicker(j.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("janitor shutting down")
			return ctx.Err()

		case <-ticker.C:
			j.run(ctx)
		}
	}
}

// Stop stops the janitor gracefully
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
}

func (j *Janitor) run(ctx context.Context) {
	if _, err := j.Sweep(ctx); err != nil {
		logger.Log.Errorw("reconciliation sweep failed", "error", err)
	}
}

// Sweep marks every deployment stuck in a transitional status for longer
// than the threshold as failed and returns the ids it changed
func (j *Janitor) Sweep(ctx context.Context) ([]string, error) {
	all, err := j.deployments.List(ctx, deployment.ListFilter{})
	if err != nil {
		return nil, err
	}

	cutoff := j.now().Add(-j.config.StuckThreshold)
	var failed []string
	for _, d := range all {
		if !d.Status.IsTransitional() || d.UpdatedAt.After(cutoff) {
			continue
		}

		logger.Log.Warnw("detected stuck deployment",
			"deployment_id", d.ID, "status", d.Status, "since", d.UpdatedAt)

		changed, err := j.deployments.FailStuck(ctx, d.ID, cutoff)
		if err != nil {
			logger.Log.Errorw("failed to mark stuck deployment", "deployment_id", d.ID, "error", err)
			continue
		}
		if changed {
			failed = append(failed, d.ID)
		}
	}

	if len(failed) > 0 {
		logger.Log.Infow("reconciliation sweep complete", "failed", len(failed))
	}
	return failed, nil
}
