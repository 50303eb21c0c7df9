package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tsanders-rh/modelctl/internal/api"
	"github.com/tsanders-rh/modelctl/internal/app"
	"github.com/tsanders-rh/modelctl/internal/config"
	"github.com/tsanders-rh/modelctl/internal/logger"
	"github.com/tsanders-rh/modelctl/internal/metrics"
	"golang.org/x/time/rate"
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

	serverConfig := api.DefaultServerConfig()
	serverConfig.Port = cfg.API.Port
	serverConfig.EnableAuth = cfg.API.EnableAuth
	serverConfig.JWTSecret = cfg.API.JWTSecret
	serverConfig.TokenTTL = cfg.API.TokenTTL
	if len(cfg.API.AllowedOrigins) > 0 {
		serverConfig.AllowedOrigins = cfg.API.AllowedOrigins
	}
	serverConfig.MaxBodySize = cfg.API.BodyLimit
	serverConfig.RequestTimeout = cfg.API.RequestTimeout
	serverConfig.RateLimit = rate.Limit(cfg.API.RateLimit)

	log.Infow("server configured",
		"port", serverConfig.Port,
		"auth_enabled", serverConfig.EnableAuth,
		"cors_origins", serverConfig.AllowedOrigins,
		"embedded_worker", cfg.Worker.Embedded,
	)

	server := api.NewServer(serverConfig, &api.Services{
		Store:       a.Store,
		Deployments: a.Deployments,
		Registry:    a.Registry,
		Optimizer:   a.Optimizer,
		Prices:      a.Prices,
		Tiering:     a.Tiering,
		Collector:   a.Collector,
		Analytics:   a.Analytics,
		Profiles:    a.Profiles,
		Events:      a.Events,
	})

	if cfg.Worker.Embedded {
		w := a.Worker("")
		go func() {
			if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Errorw("embedded worker stopped", "error", err)
			}
		}()
	}

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Infow("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	a.Close(shutdownCtx)

	log.Infow("server exited")
}
