package profile

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tsanders-rh/modelctl/pkg/types"
)

// Registry provides fast in-memory access to deployment profiles
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*Profile // keyed by profile name
	loader   *Loader
}

// NewRegistry creates a new profile registry and loads all profiles
func NewRegistry(loader *Loader) (*Registry, error) {
	r := &Registry{
		profiles: make(map[string]*Profile),
		loader:   loader,
	}

	if err := r.Reload(); err != nil {
		return nil, fmt.Errorf("initial profile load: %w", err)
	}

	return r, nil
}

// NewStaticRegistry creates a registry over fixed profiles that is never reloaded
func NewStaticRegistry(profiles ...*Profile) *Registry {
	r := &Registry{profiles: make(map[string]*Profile, len(profiles))}
	for _, p := range profiles {
		r.profiles[p.Name] = p
	}
	return r
}

// Get retrieves a profile by name
func (r *Registry) Get(name string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, exists := r.profiles[name]
	if !exists {
		return nil, fmt.Errorf("profile not found: %s", name)
	}

	if !profile.Enabled {
		return nil, fmt.Errorf("profile disabled: %s", name)
	}

	return profile, nil
}

// List returns all enabled profiles ordered by name
func (r *Registry) List() []*Profile {
	return r.filter(func(p *Profile) bool { return p.Enabled })
}

// ListAll returns all profiles including disabled ones
func (r *Registry) ListAll() []*Profile {
	return r.filter(func(*Profile) bool { return true })
}

// ListByVenue returns all enabled profiles for a venue
func (r *Registry) ListByVenue(venue types.Venue) []*Profile {
	return r.filter(func(p *Profile) bool { return p.Enabled && p.Venue == venue })
}

func (r *Registry) filter(keep func(*Profile) bool) []*Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profiles := make([]*Profile, 0, len(r.profiles))
	for _, profile := range r.profiles {
		if keep(profile) {
			profiles = append(profiles, profile)
		}
	}

	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles
}

// Exists checks if a profile exists and is enabled
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, exists := r.profiles[name]
	return exists && profile.Enabled
}

// Reload reloads all profiles from disk
func (r *Registry) Reload() error {
	if r.loader == nil {
		return nil
	}

	profiles, err := r.loader.LoadAll()
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.profiles = make(map[string]*Profile)
	for _, profile := range profiles {
		r.profiles[profile.Name] = profile
	}

	return nil
}

// Count returns the total number of profiles (including disabled)
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.profiles)
}

// CountEnabled returns the number of enabled profiles
func (r *Registry) CountEnabled() int {
	return len(r.List())
}
