package profile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsanders-rh/modelctl/internal/profile"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

func TestRegistry_Get(t *testing.T) {
	loader := profile.NewLoader("definitions")
	registry, err := profile.NewRegistry(loader)
	require.NoError(t, err)

	t.Run("retrieves existing profile", func(t *testing.T) {
		prof, err := registry.Get("cpu-small")
		require.NoError(t, err)
		assert.Equal(t, "cpu-small", prof.Name)
	})

	t.Run("returns error for non-existent profile", func(t *testing.T) {
		_, err := registry.Get("non-existent")
		assert.Error(t, err)
	})

	t.Run("returns error for disabled profile", func(t *testing.T) {
		_, err := registry.Get("tpu-preview")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disabled")
	})
}

func TestRegistry_List(t *testing.T) {
	loader := profile.NewLoader("definitions")
	registry, err := profile.NewRegistry(loader)
	require.NoError(t, err)

	profiles := registry.List()
	require.Len(t, profiles, 3)

	names := make([]string, 0, len(profiles))
	for _, prof := range profiles {
		assert.True(t, prof.Enabled, "profile %s should be enabled", prof.Name)
		names = append(names, prof.Name)
	}
	assert.Equal(t, []string{"cpu-small", "faas-light", "gpu-inference"}, names)
}

func TestRegistry_ListByVenue(t *testing.T) {
	loader := profile.NewLoader("definitions")
	registry, err := profile.NewRegistry(loader)
	require.NoError(t, err)

	t.Run("lists cluster profiles", func(t *testing.T) {
		profiles := registry.ListByVenue(types.VenueCluster)
		require.Len(t, profiles, 2)
		for _, prof := range profiles {
			assert.Equal(t, types.VenueCluster, prof.Venue)
		}
	})

	t.Run("lists faas profiles", func(t *testing.T) {
		profiles := registry.ListByVenue(types.VenueFaaS)
		require.Len(t, profiles, 1)
		assert.Equal(t, "faas-light", profiles[0].Name)
	})
}

func TestRegistry_Exists(t *testing.T) {
	loader := profile.NewLoader("definitions")
	registry, err := profile.NewRegistry(loader)
	require.NoError(t, err)

	assert.True(t, registry.Exists("cpu-small"))
	assert.True(t, registry.Exists("gpu-inference"))
	assert.False(t, registry.Exists("non-existent"))
	assert.False(t, registry.Exists("tpu-preview")) // Disabled
}

func TestRegistry_Count(t *testing.T) {
	loader := profile.NewLoader("definitions")
	registry, err := profile.NewRegistry(loader)
	require.NoError(t, err)

	assert.Equal(t, 4, registry.Count())
	assert.Equal(t, 3, registry.CountEnabled())
}

func TestStaticRegistry(t *testing.T) {
	registry := profile.NewStaticRegistry(&profile.Profile{Name: "inline", Enabled: true})

	assert.True(t, registry.Exists("inline"))
	assert.NoError(t, registry.Reload())
	assert.Equal(t, 1, registry.Count())
}
