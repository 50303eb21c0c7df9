package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsanders-rh/modelctl/internal/worker"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

type countingCollector struct {
	calls atomic.Int32
	err   error
}

func (c *countingCollector) Collect(context.Context) ([]types.MetricSample, error) {
	c.calls.Add(1)
	return nil, c.err
}

type countingOptimizer struct{ calls atomic.Int32 }

func (o *countingOptimizer) RunBatch(context.Context) ([]*types.OptimizationOutcome, error) {
	o.calls.Add(1)
	return []*types.OptimizationOutcome{{ID: "opt_1"}}, nil
}

type countingPrices struct{ calls atomic.Int32 }

func (p *countingPrices) RefreshIfDue() bool {
	return p.calls.Add(1) == 1
}

type countingTiering struct{ calls atomic.Int32 }

func (s *countingTiering) RunBatch(context.Context) ([]*types.StorageResult, error) {
	s.calls.Add(1)
	return []*types.StorageResult{
		{Key: "mdl_a", Status: types.StorageOptimized},
		{Key: "mdl_b", Status: types.StorageError, Error: "missing"},
	}, nil
}

type countingReconciler struct{ calls atomic.Int32 }

func (r *countingReconciler) Sweep(context.Context) ([]string, error) {
	r.calls.Add(1)
	return nil, nil
}

func fastConfig() *worker.Config {
	return &worker.Config{
		WorkerID:             "test-worker",
		CollectionInterval:   5 * time.Millisecond,
		OptimizationInterval: time.Hour,
		PriceInterval:        time.Hour,
		TieringInterval:      time.Hour,
		ReconcileInterval:    time.Hour,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := worker.DefaultConfig()
	assert.NotEmpty(t, cfg.WorkerID)
	assert.Equal(t, time.Minute, cfg.Interval(worker.PassCollection))
	assert.Equal(t, 5*time.Minute, cfg.Interval(worker.PassOptimization))
	assert.Equal(t, time.Minute, cfg.Interval(worker.PassPriceRefresh))
	assert.Equal(t, time.Hour, cfg.Interval(worker.PassTiering))
	assert.Equal(t, 5*time.Minute, cfg.Interval(worker.PassReconcile))
	assert.NotEqual(t, cfg.WorkerID, worker.DefaultConfig().WorkerID)
}

func TestPassProcessor(t *testing.T) {
	ctx := context.Background()

	t.Run("dispatches each pass to its component", func(t *testing.T) {
		c := &countingCollector{}
		o := &countingOptimizer{}
		p := &countingPrices{}
		s := &countingTiering{}
		r := &countingReconciler{}
		proc := worker.NewPassProcessor(worker.Components{
			Collector: c, Optimizer: o, Prices: p, Tiering: s, Reconciler: r,
		})

		for _, pass := range worker.Passes {
			require.NoError(t, proc.Process(ctx, pass))
		}
		assert.Equal(t, int32(1), c.calls.Load())
		assert.Equal(t, int32(1), o.calls.Load())
		assert.Equal(t, int32(1), p.calls.Load())
		assert.Equal(t, int32(1), s.calls.Load())
		assert.Equal(t, int32(1), r.calls.Load())
	})

	t.Run("rejects a pass without a component", func(t *testing.T) {
		proc := worker.NewPassProcessor(worker.Components{})
		assert.False(t, proc.Enabled(worker.PassTiering))
		assert.Error(t, proc.Process(ctx, worker.PassTiering))
	})

	t.Run("returns component errors", func(t *testing.T) {
		proc := worker.NewPassProcessor(worker.Components{Collector: &countingCollector{err: errors.New("source down")}})
		assert.EqualError(t, proc.Process(ctx, worker.PassCollection), "source down")
	})
}

func TestWorker_Start(t *testing.T) {
	t.Run("runs every pass at startup and repeats on its ticker", func(t *testing.T) {
		c := &countingCollector{}
		o := &countingOptimizer{}
		r := &countingReconciler{}
		w := worker.NewWorker(fastConfig(), worker.Components{Collector: c, Optimizer: o, Reconciler: r})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- w.Start(ctx) }()

		require.Eventually(t, func() bool { return c.calls.Load() >= 3 }, time.Second, time.Millisecond)
		assert.Equal(t, int32(1), o.calls.Load())
		assert.Equal(t, int32(1), r.calls.Load())

		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("worker did not stop")
		}
	})

	t.Run("keeps running after a failed pass", func(t *testing.T) {
		c := &countingCollector{err: errors.New("source down")}
		w := worker.NewWorker(fastConfig(), worker.Components{Collector: c})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- w.Start(ctx) }()

		require.Eventually(t, func() bool { return c.calls.Load() >= 3 }, time.Second, time.Millisecond)
		w.Stop()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("worker did not stop")
		}
		cancel()
	})

	t.Run("refuses a pass with no interval", func(t *testing.T) {
		cfg := fastConfig()
		cfg.TieringInterval = 0
		w := worker.NewWorker(cfg, worker.Components{Tiering: &countingTiering{}})

		err := w.Start(context.Background())
		assert.ErrorContains(t, err, "tiering")
	})
}
