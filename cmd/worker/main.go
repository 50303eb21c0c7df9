package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tsanders-rh/modelctl/internal/app"
	"github.com/tsanders-rh/modelctl/internal/config"
	"github.com/tsanders-rh/modelctl/internal/logger"
	"github.com/tsanders-rh/modelctl/internal/metrics"
)

func main() {
	log, err := logger.Init()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalw("failed to load configuration", "error", err)
	}

	metrics.Init(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to initialize", "error", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Infow("metrics listener started", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("metrics listener failed", "error", err)
		}
	}()

	w := a.Worker("")
	log.Infow("worker started")
	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorw("worker stopped", "error", err)
	}

	log.Infow("shutting down worker")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warnw("metrics listener forced to shutdown", "error", err)
	}
	a.Close(shutdownCtx)

	log.Infow("shutdown complete")
}
