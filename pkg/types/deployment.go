package types

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// DeploymentStatus represents the current state of a deployment
type DeploymentStatus string

const (
	DeploymentStatusPending     DeploymentStatus = "pending"
	DeploymentStatusDeploying   DeploymentStatus = "deploying"
	DeploymentStatusActive      DeploymentStatus = "active"
	DeploymentStatusScaling     DeploymentStatus = "scaling"
	DeploymentStatusHibernating DeploymentStatus = "hibernating"
	DeploymentStatusHibernated  DeploymentStatus = "hibernated"
	DeploymentStatusFailed      DeploymentStatus = "failed"
	DeploymentStatusTerminating DeploymentStatus = "terminating"
)

// IsTransitional reports whether the status is an in-flight provisioner call.
// A record left in one of these after a crash needs reconciliation.
func (s DeploymentStatus) IsTransitional() bool {
	switch s {
	case DeploymentStatusDeploying, DeploymentStatusScaling,
		DeploymentStatusHibernating, DeploymentStatusTerminating:
		return true
	}
	return false
}

// Venue is the execution substrate a deployment runs on
type Venue string

const (
	VenueCluster Venue = "cluster"
	VenueFaaS    Venue = "faas"
)

// ModelKind discriminates between original and optimized model artifacts
type ModelKind string

const (
	ModelKindOriginal  ModelKind = "original"
	ModelKindOptimized ModelKind = "optimized"
)

// Tags is a map of key-value pairs stored as JSONB
type Tags map[string]string

// Value implements driver.Valuer for database serialization
func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}

// Scan implements sql.Scanner for database deserialization
func (t *Tags) Scan(value interface{}) error {
	if value == nil {
		*t = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, t)
}

// ResourceRequirements is the compute shape requested for a deployment.
// CPU is in cores, memory in GiB, GPU in devices.
type ResourceRequirements struct {
	CPU            float64 `json:"cpu" yaml:"cpu" validate:"gt=0"`
	MemoryGiB      float64 `json:"memory_gib" yaml:"memoryGiB" validate:"gt=0"`
	GPU            float64 `json:"gpu,omitempty" yaml:"gpu" validate:"gte=0"`
	TimeoutSeconds int     `json:"timeout_seconds" yaml:"timeoutSeconds" validate:"gte=0"`
}

// Shape returns the priced resource shape
func (r ResourceRequirements) Shape() ResourceShape {
	return ResourceShape{CPU: r.CPU, MemoryGiB: r.MemoryGiB, GPU: r.GPU}
}

// ScalingPolicy bounds the instance count of a deployment
type ScalingPolicy struct {
	MinInstances         int `json:"min_instances" yaml:"minInstances" validate:"gte=0"`
	MaxInstances         int `json:"max_instances" yaml:"maxInstances" validate:"gte=1,gtefield=MinInstances"`
	TargetCPUUtilization int `json:"target_cpu_utilization" yaml:"targetCPUUtilization" validate:"gte=1,lte=100"`
	ScaleToZeroDelay     int `json:"scale_to_zero_delay" yaml:"scaleToZeroDelay" validate:"gte=0"` // seconds
}

// CostPolicy controls which optimizer checks apply to a deployment
type CostPolicy struct {
	UseDiscountedCapacity  bool `json:"use_discounted_capacity" yaml:"useDiscountedCapacity"`
	HibernationEnabled     bool `json:"hibernation_enabled" yaml:"hibernationEnabled"`
	HibernationIdleTimeout int  `json:"hibernation_idle_timeout" yaml:"hibernationIdleTimeout" validate:"gte=0"` // seconds
	ArbitrageEnabled       bool `json:"arbitrage_enabled" yaml:"arbitrageEnabled"`
	StorageTiering         bool `json:"storage_tiering" yaml:"storageTiering"`
}

// DefaultResources returns the resource shape used when a request omits one
func DefaultResources() ResourceRequirements {
	return ResourceRequirements{
		CPU:            0.1,
		MemoryGiB:      0.125,
		TimeoutSeconds: 60,
	}
}

// DefaultScalingPolicy returns the scaling policy used when a request omits one
func DefaultScalingPolicy() ScalingPolicy {
	return ScalingPolicy{
		MinInstances:         0,
		MaxInstances:         5,
		TargetCPUUtilization: 70,
		ScaleToZeroDelay:     300,
	}
}

// DefaultCostPolicy returns the cost policy used when a request omits one
func DefaultCostPolicy() CostPolicy {
	return CostPolicy{
		UseDiscountedCapacity:  true,
		HibernationEnabled:     true,
		HibernationIdleTimeout: 1800,
		ArbitrageEnabled:       false,
		StorageTiering:         true,
	}
}

// Deployment represents a served model endpoint
type Deployment struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	ModelID    string               `json:"model_id"`
	ModelKind  ModelKind            `json:"model_kind"`
	Venue      Venue                `json:"venue"`
	Profile    string               `json:"profile,omitempty"`
	Resources  ResourceRequirements `json:"resources"`
	Scaling    ScalingPolicy        `json:"scaling"`
	CostPolicy CostPolicy           `json:"cost_policy"`
	Status     DeploymentStatus     `json:"status"`
	Endpoint   *string              `json:"endpoint"`     // set only while active
	ServiceURL string               `json:"service_url"`  // address returned by the provisioner, restored on activation
	Error      string               `json:"error,omitempty"`

	DiscountedCapacity bool       `json:"discounted_capacity"`
	Provider           Provider   `json:"provider"`
	Region             string     `json:"region"`
	PreviousProvider   Provider   `json:"previous_provider,omitempty"`
	PreviousRegion     string     `json:"previous_region,omitempty"`
	MigratedAt         *time.Time `json:"migrated_at,omitempty"`

	Metadata     Tags       `json:"metadata"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastActiveAt *time.Time `json:"last_active_at"`
}

// LastActive returns the last activity time, falling back to creation
func (d *Deployment) LastActive() time.Time {
	if d.LastActiveAt != nil {
		return *d.LastActiveAt
	}
	return d.CreatedAt
}

// Clone returns a deep copy of the deployment
func (d *Deployment) Clone() *Deployment {
	c := *d
	if d.Endpoint != nil {
		ep := *d.Endpoint
		c.Endpoint = &ep
	}
	if d.LastActiveAt != nil {
		t := *d.LastActiveAt
		c.LastActiveAt = &t
	}
	if d.MigratedAt != nil {
		t := *d.MigratedAt
		c.MigratedAt = &t
	}
	if d.Metadata != nil {
		c.Metadata = make(Tags, len(d.Metadata))
		for k, v := range d.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
