// Package worker schedules the periodic collection, optimization, price,
// tiering and reconciliation passes.
package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tsanders-rh/modelctl/internal/logger"
)

// Config holds worker configuration
type Config struct {
	WorkerID             string
	CollectionInterval   time.Duration
	OptimizationInterval time.Duration
	PriceInterval        time.Duration
	TieringInterval      time.Duration
	ReconcileInterval    time.Duration
}

// DefaultConfig returns default worker configuration
func DefaultConfig() *Config {
	hostname, _ := os.Hostname()
	return &Config{
		WorkerID:             fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8]),
		CollectionInterval:   time.Minute,
		OptimizationInterval: 5 * time.Minute,
		PriceInterval:        time.Minute,
		TieringInterval:      time.Hour,
		ReconcileInterval:    5 * time.Minute,
	}
}

// Interval returns the period of a pass
func (c *Config) Interval(t PassType) time.Duration {
	switch t {
	case PassCollection:
		return c.CollectionInterval
	case PassOptimization:
		return c.OptimizationInterval
	case PassPriceRefresh:
		return c.PriceInterval
	case PassTiering:
		return c.TieringInterval
	case PassReconcile:
		return c.ReconcileInterval
	default:
		return 0
	}
}

// Passes lists every pass in startup order
var Passes = []PassType{PassPriceRefresh, PassCollection, PassReconcile, PassOptimization, PassTiering}

// Worker runs each configured pass once at startup and then on its own ticker
type Worker struct {
	config    *Config
	processor *PassProcessor
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(config *Config, components Components) *Worker {
	if config == nil {
		config = DefaultConfig()
	}

	return &Worker{
		config:    config,
		processor: NewPassProcessor(components),
	}
}

// Start runs the pass loops until ctx is done
func (w *Worker) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	logger.Log.Infow("worker starting", "worker_id", w.config.WorkerID)

	for _, t := range Passes {
		if w.processor.Enabled(t) && w.config.Interval(t) <= 0 {
			w.cancel()
			return fmt.Errorf("pass %s has no interval", t)
		}
	}

	for _, t := range Passes {
		if !w.processor.Enabled(t) {
			logger.Log.Infow("pass disabled", "worker_id", w.config.WorkerID, "pass", t)
			continue
		}
		interval := w.config.Interval(t)

		w.wg.Add(1)
		go func(t PassType, interval time.Duration) {
			defer w.wg.Done()
			w.loop(ctx, t, interval)
		}(t, interval)
	}

	<-ctx.Done()
	w.wg.Wait()
	logger.Log.Infow("worker shutting down", "worker_id", w.config.WorkerID)
	return ctx.Err()
}

// Stop stops the worker gracefully
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *Worker) loop(ctx context.Context, t PassType, interval time.Duration) {
	w.run(ctx, t)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.run(ctx, t)
		}
	}
}

// run executes one pass. Errors are logged and the loop continues.
func (w *Worker) run(ctx context.Context, t PassType) {
	start := time.Now()
	if err := w.processor.Process(ctx, t); err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Log.Errorw("pass failed",
			"worker_id", w.config.WorkerID,
			"pass", t,
			"duration", time.Since(start).String(),
			"error", err,
		)
		return
	}
	logger.Log.Debugw("pass complete", "worker_id", w.config.WorkerID, "pass", t, "duration", time.Since(start).String())
}
