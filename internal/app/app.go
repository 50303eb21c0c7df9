// Package app assembles the control-plane components from configuration.
// Both binaries build the same graph; the API serves it and the worker
// schedules passes over it.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/tsanders-rh/modelctl/internal/analytics"
	"github.com/tsanders-rh/modelctl/internal/cloud"
	"github.com/tsanders-rh/modelctl/internal/config"
	"github.com/tsanders-rh/modelctl/internal/deployment"
	"github.com/tsanders-rh/modelctl/internal/events"
	"github.com/tsanders-rh/modelctl/internal/janitor"
	"github.com/tsanders-rh/modelctl/internal/logger"
	"github.com/tsanders-rh/modelctl/internal/monitoring"
	"github.com/tsanders-rh/modelctl/internal/optimizer"
	"github.com/tsanders-rh/modelctl/internal/policy"
	"github.com/tsanders-rh/modelctl/internal/pricing"
	"github.com/tsanders-rh/modelctl/internal/profile"
	"github.com/tsanders-rh/modelctl/internal/provisioner"
	"github.com/tsanders-rh/modelctl/internal/registry"
	"github.com/tsanders-rh/modelctl/internal/store"
	"github.com/tsanders-rh/modelctl/internal/tiering"
	"github.com/tsanders-rh/modelctl/internal/worker"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

// App holds every wired component
type App struct {
	Config      *config.Config
	Store       *store.Store
	Profiles    *profile.Registry
	Policy      *policy.Engine
	Deployments *deployment.Service
	Registry    *registry.Registry
	Prices      *pricing.Tracker
	Spot        pricing.SpotSource
	Optimizer   *optimizer.Optimizer
	Tiering     *tiering.Engine
	Collector   *monitoring.Collector
	Analytics   *analytics.Service
	Janitor     *janitor.Janitor
	Events      *events.Memory
	Publisher   events.Publisher
}

// New builds the component graph. The returned App must be closed.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = st

	if err := a.build(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if cfg.Database.URL == "" {
		logger.Log.Warnw("no database configured, state is kept in memory")
		return store.NewMemory(), nil
	}

	st, err := store.NewPostgres(ctx, cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := st.Ping(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Log.Infow("database connection established")
	return st, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	profiles, err := profile.NewRegistry(profile.NewLoader(cfg.ProfilesDir))
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}
	logger.Log.Infow("profiles loaded", "total", profiles.Count(), "enabled", profiles.CountEnabled())
	a.Profiles = profiles
	a.Policy = policy.NewEngine(profiles)

	var awsCfg *aws.Config
	if cfg.UsesAWS() {
		loaded, err := cloud.LoadAWSConfig(ctx, cfg.FaaS.Region)
		if err != nil {
			return err
		}
		identity, err := cloud.VerifyIdentity(ctx, cloud.NewIdentityClient(loaded))
		if err != nil {
			return err
		}
		logger.Log.Infow("aws credentials verified", "account", identity.Account, "arn", identity.ARN)
		awsCfg = &loaded
	}

	a.Events = events.NewMemory(cfg.API.EventBuffer)
	a.Publisher = a.Events
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := events.NewKafkaPublisher(cfg.PublisherConfig())
		if err != nil {
			return fmt.Errorf("kafka publisher: %w", err)
		}
		a.Publisher = events.Fanout{kafka, a.Events}
		logger.Log.Infow("publishing events to kafka", "brokers", strings.Join(cfg.Kafka.Brokers, ","), "topic", cfg.Kafka.Topic)
	}

	trackerCfg, err := cfg.TrackerConfig()
	if err != nil {
		return fmt.Errorf("price catalog: %w", err)
	}
	a.Prices = pricing.NewTracker(trackerCfg)
	a.Prices.Refresh()

	var spot pricing.SpotSource = pricing.NewDiscountSpotSource(a.Prices, cfg.Pricing.SpotDiscount)
	if cfg.Pricing.EC2Spot && awsCfg != nil {
		spot = pricing.NewEC2SpotSource(ec2.NewFromConfig(*awsCfg), a.Prices, spot)
	}
	a.Spot = spot

	provisioners, err := buildProvisioners(cfg, awsCfg)
	if err != nil {
		return err
	}

	a.Deployments = deployment.NewService(a.Store, provisioners, a.Policy,
		deployment.WithPublisher(a.Publisher),
		deployment.WithPricer(a.Prices),
	)
	a.Registry = registry.New(a.Store, a.Policy)
	a.Optimizer = optimizer.New(cfg.OptimizerConfig(), a.Deployments, a.Prices, a.Spot, a.Store,
		optimizer.WithPublisher(a.Publisher),
	)

	tieringOpts := []tiering.Option{
		tiering.WithPublisher(a.Publisher),
		tiering.WithConcurrency(cfg.Worker.TieringConcurrency),
	}
	if awsCfg != nil {
		tieringOpts = append(tieringOpts, tiering.WithObjectStore(tiering.NewS3BackendFromConfig(*awsCfg)))
	}
	a.Tiering = tiering.New(a.Store, cfg.Tiering, tieringOpts...)

	source, err := buildMetricSource(cfg)
	if err != nil {
		return err
	}
	a.Collector = monitoring.NewCollector(a.Deployments, source, a.Store)
	a.Analytics = analytics.NewService(a.Deployments, a.Collector, a.Store)

	a.Janitor = janitor.NewJanitor(&janitor.Config{
		CheckInterval:  cfg.Worker.ReconcileInterval,
		StuckThreshold: cfg.Worker.StuckAfter,
	}, a.Deployments)

	return nil
}

// buildProvisioners wires the enabled venues. A venue left disabled is
// served by the in-process simulator.
func buildProvisioners(cfg *config.Config, awsCfg *aws.Config) (provisioner.Set, error) {
	set := provisioner.Set{
		types.VenueCluster: provisioner.NewSimulated(types.VenueCluster),
		types.VenueFaaS:    provisioner.NewSimulated(types.VenueFaaS),
	}

	if cfg.Kubernetes.Enabled {
		cluster, err := provisioner.NewClusterProvisionerFromConfig(cfg.ClusterConfig())
		if err != nil {
			return nil, fmt.Errorf("cluster provisioner: %w", err)
		}
		set[types.VenueCluster] = cluster
		logger.Log.Infow("cluster venue enabled", "namespace", cfg.Kubernetes.Namespace)
	} else {
		logger.Log.Warnw("cluster venue is simulated")
	}

	if cfg.FaaS.Enabled {
		if awsCfg == nil {
			return nil, fmt.Errorf("function venue requires aws credentials")
		}
		set[types.VenueFaaS] = provisioner.NewFunctionProvisioner(lambda.NewFromConfig(*awsCfg), cfg.FunctionConfig())
		logger.Log.Infow("function venue enabled", "region", cfg.FaaS.Region)
	} else {
		logger.Log.Warnw("function venue is simulated")
	}

	return set, nil
}

func buildMetricSource(cfg *config.Config) (monitoring.MetricSource, error) {
	if cfg.Metrics.PrometheusURL == "" {
		logger.Log.Warnw("no prometheus configured, using simulated telemetry", "seed", cfg.Metrics.SimulatedSeed)
		return monitoring.NewSimulated(cfg.Metrics.SimulatedSeed), nil
	}

	source, err := monitoring.NewPrometheusSourceFromURL(cfg.Metrics.PrometheusURL, cfg.Metrics.Queries)
	if err != nil {
		return nil, fmt.Errorf("prometheus source: %w", err)
	}
	logger.Log.Infow("collecting telemetry from prometheus", "url", cfg.Metrics.PrometheusURL)
	return source, nil
}

// Worker returns a worker running every pass over the app's components
func (a *App) Worker(id string) *worker.Worker {
	wc := worker.DefaultConfig()
	if id != "" {
		wc.WorkerID = id
	}
	wc.CollectionInterval = a.Config.Worker.CollectionInterval
	wc.OptimizationInterval = a.Config.Worker.OptimizationInterval
	wc.PriceInterval = a.Config.Worker.PriceInterval
	wc.TieringInterval = a.Config.Worker.TieringInterval
	wc.ReconcileInterval = a.Config.Worker.ReconcileInterval

	return worker.NewWorker(wc, worker.Components{
		Collector:  a.Collector,
		Optimizer:  a.Optimizer,
		Prices:     a.Prices,
		Tiering:    a.Tiering,
		Reconciler: a.Janitor,
	})
}

// Close drains in-flight deployments and releases the publisher and store
func (a *App) Close(ctx context.Context) {
	if a.Deployments != nil {
		if err := a.Deployments.Shutdown(ctx); err != nil {
			logger.Log.Warnw("deployment tasks did not drain", "error", err)
		}
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			logger.Log.Warnw("failed to close event publisher", "error", err)
		}
	}
	if a.Store != nil {
		a.Store.Close()
	}
}
