// Package config loads process configuration from an optional YAML file and
// MODELCTL_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/tsanders-rh/modelctl/internal/events"
	"github.com/tsanders-rh/modelctl/internal/monitoring"
	"github.com/tsanders-rh/modelctl/internal/optimizer"
	"github.com/tsanders-rh/modelctl/internal/pricing"
	"github.com/tsanders-rh/modelctl/internal/provisioner"
	"github.com/tsanders-rh/modelctl/internal/store"
	"github.com/tsanders-rh/modelctl/internal/tiering"
	"golang.org/x/time/rate"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "MODELCTL"

// Config is the full process configuration
type Config struct {
	Database    DatabaseConfig   `mapstructure:"database"`
	API         APIConfig        `mapstructure:"api"`
	Worker      WorkerConfig     `mapstructure:"worker"`
	Pricing     PricingConfig    `mapstructure:"pricing"`
	Tiering     tiering.Roots    `mapstructure:"tiering"`
	Kubernetes  KubernetesConfig `mapstructure:"kubernetes"`
	FaaS        FaaSConfig       `mapstructure:"faas"`
	Kafka       KafkaConfig      `mapstructure:"kafka"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
	ProfilesDir string           `mapstructure:"profiles_dir"`
}

// DatabaseConfig selects the store. An empty URL keeps state in memory.
type DatabaseConfig struct {
	URL              string        `mapstructure:"url"`
	MaxConnections   int           `mapstructure:"max_connections" validate:"gte=1"`
	MinConnections   int           `mapstructure:"min_connections" validate:"gte=0,ltefield=MaxConnections"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout" validate:"gte=0"`
}

// APIConfig configures the HTTP control plane
type APIConfig struct {
	Port           int           `mapstructure:"port" validate:"gte=1,lte=65535"`
	EnableAuth     bool          `mapstructure:"enable_auth"`
	JWTSecret      string        `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
	TokenTTL       time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
	BodyLimit      string        `mapstructure:"body_limit" validate:"required"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	EventBuffer    int           `mapstructure:"event_buffer" validate:"gte=1"`
	RateLimit      float64       `mapstructure:"rate_limit" validate:"gte=0"`
}

// WorkerConfig configures the periodic passes
type WorkerConfig struct {
	CollectionInterval   time.Duration `mapstructure:"collection_interval" validate:"gt=0"`
	OptimizationInterval time.Duration `mapstructure:"optimization_interval" validate:"gt=0"`
	PriceInterval        time.Duration `mapstructure:"price_interval" validate:"gt=0"`
	TieringInterval      time.Duration `mapstructure:"tiering_interval" validate:"gt=0"`
	ReconcileInterval    time.Duration `mapstructure:"reconcile_interval" validate:"gt=0"`
	StuckAfter           time.Duration `mapstructure:"stuck_after" validate:"gt=0"`
	OptimizerConcurrency int           `mapstructure:"optimizer_concurrency" validate:"gte=1"`
	TieringConcurrency   int           `mapstructure:"tiering_concurrency" validate:"gte=1"`
	ActionRate           float64       `mapstructure:"action_rate" validate:"gt=0"`
	ActionBurst          int           `mapstructure:"action_burst" validate:"gte=1"`
	MetricsPort          int           `mapstructure:"metrics_port" validate:"gte=1,lte=65535"`
	Embedded             bool          `mapstructure:"embedded"` // run the passes inside the API process
}

// PricingConfig configures the price tracker
type PricingConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"gt=0"`
	CatalogFile     string        `mapstructure:"catalog_file"`
	JitterSeed      uint64        `mapstructure:"jitter_seed"` // 0 seeds from the clock
	JitterSpread    float64       `mapstructure:"jitter_spread" validate:"gte=0,lt=1"`
	SpotDiscount    float64       `mapstructure:"spot_discount" validate:"gt=0,lte=1"`
	EC2Spot         bool          `mapstructure:"ec2_spot"`
}

// KubernetesConfig enables the cluster venue
type KubernetesConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Namespace  string `mapstructure:"namespace" validate:"required_if=Enabled true"`
	Image      string `mapstructure:"image" validate:"required_if=Enabled true"`
	Kubeconfig string `mapstructure:"kubeconfig"`
}

// FaaSConfig enables the function venue
type FaaSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Region     string `mapstructure:"region" validate:"required"`
	RoleARN    string `mapstructure:"role_arn" validate:"required_if=Enabled true"`
	CodeBucket string `mapstructure:"code_bucket" validate:"required_if=Enabled true"`
	CodePrefix string `mapstructure:"code_prefix"`
	Runtime    string `mapstructure:"runtime"`
	Handler    string `mapstructure:"handler"`
}

// KafkaConfig enables the Kafka event publisher when brokers are set
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic" validate:"required_with=Brokers"`
	MaxAttempts  int           `mapstructure:"max_attempts" validate:"gte=1"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
}

// MetricsConfig selects the telemetry source. An empty Prometheus URL uses
// the seeded simulated source.
type MetricsConfig struct {
	PrometheusURL string             `mapstructure:"prometheus_url" validate:"omitempty,url"`
	Queries       monitoring.Queries `mapstructure:"queries"`
	SimulatedSeed uint64             `mapstructure:"simulated_seed"`
}

func setDefaults(v *viper.Viper) {
	opt := optimizer.DefaultConfig()
	roots := tiering.DefaultRoots()
	queries := monitoring.DefaultQueries()

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.statement_timeout", 30*time.Second)

	v.SetDefault("api.port", 8080)
	v.SetDefault("api.enable_auth", false)
	v.SetDefault("api.jwt_secret", "")
	v.SetDefault("api.token_ttl", 24*time.Hour)
	v.SetDefault("api.body_limit", "1M")
	v.SetDefault("api.request_timeout", 30*time.Second)
	v.SetDefault("api.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("api.event_buffer", 1000)
	v.SetDefault("api.rate_limit", 20.0)

	v.SetDefault("worker.collection_interval", time.Minute)
	v.SetDefault("worker.optimization_interval", 5*time.Minute)
	v.SetDefault("worker.price_interval", time.Minute)
	v.SetDefault("worker.tiering_interval", time.Hour)
	v.SetDefault("worker.reconcile_interval", 5*time.Minute)
	v.SetDefault("worker.stuck_after", 30*time.Minute)
	v.SetDefault("worker.optimizer_concurrency", opt.Concurrency)
	v.SetDefault("worker.tiering_concurrency", tiering.DefaultConcurrency)
	v.SetDefault("worker.action_rate", float64(opt.ActionRate))
	v.SetDefault("worker.action_burst", opt.ActionBurst)
	v.SetDefault("worker.metrics_port", 9090)
	v.SetDefault("worker.embedded", false)

	v.SetDefault("pricing.refresh_interval", pricing.DefaultRefreshInterval)
	v.SetDefault("pricing.catalog_file", "")
	v.SetDefault("pricing.jitter_seed", 0)
	v.SetDefault("pricing.jitter_spread", 0.05)
	v.SetDefault("pricing.spot_discount", pricing.DefaultSpotDiscount)
	v.SetDefault("pricing.ec2_spot", false)

	v.SetDefault("tiering.hot", roots.Hot)
	v.SetDefault("tiering.cold", roots.Cold)
	v.SetDefault("tiering.archive", roots.Archive)

	v.SetDefault("kubernetes.enabled", false)
	v.SetDefault("kubernetes.namespace", "modelctl")
	v.SetDefault("kubernetes.image", "")
	v.SetDefault("kubernetes.kubeconfig", "")

	v.SetDefault("faas.enabled", false)
	v.SetDefault("faas.region", "us-east-1")
	v.SetDefault("faas.role_arn", "")
	v.SetDefault("faas.code_bucket", "")
	v.SetDefault("faas.code_prefix", "models/")
	v.SetDefault("faas.runtime", "")
	v.SetDefault("faas.handler", "")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "modelctl.events")
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("kafka.write_timeout", 10*time.Second)

	v.SetDefault("metrics.prometheus_url", "")
	v.SetDefault("metrics.queries.cpu_utilization", queries.CPUUtilization)
	v.SetDefault("metrics.queries.memory_utilization", queries.MemoryUtilization)
	v.SetDefault("metrics.queries.requests", queries.Requests)
	v.SetDefault("metrics.queries.latency_ms", queries.LatencyMs)
	v.SetDefault("metrics.queries.errors", queries.Errors)
	v.SetDefault("metrics.simulated_seed", 42)

	v.SetDefault("profiles_dir", "internal/profile/definitions")
}

// Load reads configuration. path names an optional YAML file; when empty,
// MODELCTL_CONFIG is consulted. Environment variables override file values,
// with nested keys joined by underscores (MODELCTL_API_PORT).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct tags of every section
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.API.EnableAuth && c.API.JWTSecret == "" {
		return fmt.Errorf("invalid config: api.jwt_secret is required when auth is enabled")
	}
	return nil
}

// StoreConfig returns the database pool settings
func (c *Config) StoreConfig() *store.Config {
	sc := store.DefaultConfig(c.Database.URL)
	sc.MaxConnections = c.Database.MaxConnections
	sc.MinConnections = c.Database.MinConnections
	sc.StatementTimeout = c.Database.StatementTimeout
	return sc
}

// OptimizerConfig returns the optimizer batch settings
func (c *Config) OptimizerConfig() *optimizer.Config {
	oc := optimizer.DefaultConfig()
	oc.Concurrency = c.Worker.OptimizerConcurrency
	oc.ActionRate = rate.Limit(c.Worker.ActionRate)
	oc.ActionBurst = c.Worker.ActionBurst
	return oc
}

// TrackerConfig returns the price tracker settings, loading the catalog file
// when one is configured
func (c *Config) TrackerConfig() (pricing.Config, error) {
	tc := pricing.DefaultConfig()
	tc.RefreshInterval = c.Pricing.RefreshInterval

	if c.Pricing.CatalogFile != "" {
		catalog, err := pricing.LoadCatalog(c.Pricing.CatalogFile)
		if err != nil {
			return pricing.Config{}, err
		}
		tc.Catalog = catalog
	}

	seed := c.Pricing.JitterSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	tc.Perturbation = pricing.Jitter(seed, c.Pricing.JitterSpread)
	return tc, nil
}

// ClusterConfig returns the cluster provisioner settings
func (c *Config) ClusterConfig() provisioner.ClusterConfig {
	return provisioner.ClusterConfig{
		Namespace:  c.Kubernetes.Namespace,
		Image:      c.Kubernetes.Image,
		Kubeconfig: c.Kubernetes.Kubeconfig,
	}
}

// FunctionConfig returns the function provisioner settings
func (c *Config) FunctionConfig() provisioner.FunctionConfig {
	return provisioner.FunctionConfig{
		RoleARN:    c.FaaS.RoleARN,
		CodeBucket: c.FaaS.CodeBucket,
		CodePrefix: c.FaaS.CodePrefix,
		Runtime:    c.FaaS.Runtime,
		Handler:    c.FaaS.Handler,
	}
}

// PublisherConfig returns the Kafka event publisher settings
func (c *Config) PublisherConfig() events.KafkaConfig {
	return events.KafkaConfig{
		Brokers:      c.Kafka.Brokers,
		Topic:        c.Kafka.Topic,
		MaxAttempts:  c.Kafka.MaxAttempts,
		WriteTimeout: c.Kafka.WriteTimeout,
	}
}

// UsesAWS reports whether any AWS-backed component is enabled
func (c *Config) UsesAWS() bool {
	if c.FaaS.Enabled || c.Pricing.EC2Spot {
		return true
	}
	for _, root := range []string{c.Tiering.Hot, c.Tiering.Cold, c.Tiering.Archive} {
		if strings.HasPrefix(root, "s3://") {
			return true
		}
	}
	return false
}
