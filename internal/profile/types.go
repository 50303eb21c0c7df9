package profile

import "github.com/tsanders-rh/modelctl/pkg/types"

// Profile is a named deployment preset. Request fields left empty are
// filled from the profile, and the profile limits bound what a request
// may ask for.
type Profile struct {
	Name        string      `yaml:"name" validate:"required,min=3,max=63"`
	DisplayName string      `yaml:"displayName" validate:"required"`
	Description string      `yaml:"description"`
	Venue       types.Venue `yaml:"venue" validate:"required,venue"`
	Enabled     bool        `yaml:"enabled"`

	Resources  types.ResourceRequirements `yaml:"resources"`
	Scaling    types.ScalingPolicy        `yaml:"scaling"`
	CostPolicy types.CostPolicy           `yaml:"costPolicy"`
	Placement  PlacementConfig            `yaml:"placement"`
	Limits     LimitsConfig               `yaml:"limits"`
	Labels     map[string]string          `yaml:"labels,omitempty"`
}

// PlacementConfig restricts where deployments of this profile may run
type PlacementConfig struct {
	Providers       []types.Provider `yaml:"providers" validate:"required,min=1,dive,provider"`
	DefaultProvider types.Provider   `yaml:"defaultProvider" validate:"required,provider"`
	DefaultRegion   string           `yaml:"defaultRegion" validate:"required"`
}

// LimitsConfig caps the resources a request may override the defaults with
type LimitsConfig struct {
	MaxCPU       float64 `yaml:"maxCPU" validate:"required,gt=0"`
	MaxMemoryGiB float64 `yaml:"maxMemoryGiB" validate:"required,gt=0"`
	MaxGPU       float64 `yaml:"maxGPU" validate:"gte=0"`
	MaxInstances int     `yaml:"maxInstances" validate:"required,gte=1"`
}

// AllowsProvider reports whether the profile may be placed on a provider
func (p *Profile) AllowsProvider(provider types.Provider) bool {
	for _, allowed := range p.Placement.Providers {
		if allowed == provider {
			return true
		}
	}
	return false
}
