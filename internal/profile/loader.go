package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tsanders-rh/modelctl/pkg/types"
	"gopkg.in/yaml.v3"
)

// Loader loads deployment profiles from YAML files
type Loader struct {
	profilesDir string
	validate    *validator.Validate
}

// NewLoader creates a new profile loader
func NewLoader(profilesDir string) *Loader {
	v := validator.New()

	v.RegisterValidation("venue", func(fl validator.FieldLevel) bool {
		switch types.Venue(fl.Field().String()) {
		case types.VenueCluster, types.VenueFaaS:
			return true
		}
		return false
	})
	v.RegisterValidation("provider", func(fl validator.FieldLevel) bool {
		switch types.Provider(fl.Field().String()) {
		case types.ProviderAWS, types.ProviderGCP, types.ProviderAzure:
			return true
		}
		return false
	})

	return &Loader{
		profilesDir: profilesDir,
		validate:    v,
	}
}

// Load loads a single profile by name
func (l *Loader) Load(name string) (*Profile, error) {
	filename := filepath.Join(l.profilesDir, name+".yaml")

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read profile file %s: %w", filename, err)
	}

	return l.Parse(name, data)
}

// Parse decodes and validates a profile document
func (l *Loader) Parse(name string, data []byte) (*Profile, error) {
	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile YAML %s: %w", name, err)
	}

	if err := l.Validate(&profile); err != nil {
		return nil, fmt.Errorf("validate profile %s: %w", name, err)
	}

	return &profile, nil
}

// LoadAll loads all profiles from the profiles directory
func (l *Loader) LoadAll() ([]*Profile, error) {
	entries, err := os.ReadDir(l.profilesDir)
	if err != nil {
		return nil, fmt.Errorf("read profiles directory: %w", err)
	}

	profiles := []*Profile{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), ".yaml")

		profile, err := l.Load(name)
		if err != nil {
			return nil, fmt.Errorf("load profile %s: %w", name, err)
		}

		profiles = append(profiles, profile)
	}

	if len(profiles) == 0 {
		return nil, fmt.Errorf("no profiles found in %s", l.profilesDir)
	}

	return profiles, nil
}

// Validate validates a profile against the schema
func (l *Loader) Validate(profile *Profile) error {
	if err := l.validate.Struct(profile); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if !profile.AllowsProvider(profile.Placement.DefaultProvider) {
		return fmt.Errorf("default provider %s not in providers", profile.Placement.DefaultProvider)
	}

	// Function venues have no accelerators
	if profile.Venue == types.VenueFaaS && (profile.Resources.GPU > 0 || profile.Limits.MaxGPU > 0) {
		return fmt.Errorf("faas profile %s cannot request GPUs", profile.Name)
	}

	res, lim := profile.Resources, profile.Limits
	if res.CPU > lim.MaxCPU {
		return fmt.Errorf("default cpu (%g) exceeds maxCPU (%g)", res.CPU, lim.MaxCPU)
	}
	if res.MemoryGiB > lim.MaxMemoryGiB {
		return fmt.Errorf("default memory (%g) exceeds maxMemoryGiB (%g)", res.MemoryGiB, lim.MaxMemoryGiB)
	}
	if res.GPU > lim.MaxGPU {
		return fmt.Errorf("default gpu (%g) exceeds maxGPU (%g)", res.GPU, lim.MaxGPU)
	}
	if profile.Scaling.MaxInstances > lim.MaxInstances {
		return fmt.Errorf("scaling maxInstances (%d) exceeds limit (%d)",
			profile.Scaling.MaxInstances, lim.MaxInstances)
	}

	return nil
}
