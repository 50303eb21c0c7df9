package api

import (
	"github.com/labstack/echo/v4"
	"github.com/tsanders-rh/modelctl/internal/profile"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

// ProfileHandler handles profile-related API endpoints
type ProfileHandler struct {
	registry *profile.Registry
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(registry *profile.Registry) *ProfileHandler {
	return &ProfileHandler{
		registry: registry,
	}
}

// ProfileResponse represents a profile in API responses
type ProfileResponse struct {
	Name        string                     `json:"name"`
	DisplayName string                     `json:"display_name"`
	Description string                     `json:"description"`
	Venue       types.Venue                `json:"venue"`
	Enabled     bool                       `json:"enabled"`
	Resources   types.ResourceRequirements `json:"resources"`
	Scaling     types.ScalingPolicy        `json:"scaling"`
	CostPolicy  types.CostPolicy           `json:"cost_policy"`
	Providers   []types.Provider           `json:"providers"`
	Provider    types.Provider             `json:"default_provider"`
	Region      string                     `json:"default_region"`
	Limits      profile.LimitsConfig       `json:"limits"`
	Labels      map[string]string          `json:"labels,omitempty"`
}

// toProfileResponse converts a profile to API response format
func toProfileResponse(p *profile.Profile) *ProfileResponse {
	return &ProfileResponse{
		Name:        p.Name,
		DisplayName: p.DisplayName,
		Description: p.Description,
		Venue:       p.Venue,
		Enabled:     p.Enabled,
		Resources:   p.Resources,
		Scaling:     p.Scaling,
		CostPolicy:  p.CostPolicy,
		Providers:   p.Placement.Providers,
		Provider:    p.Placement.DefaultProvider,
		Region:      p.Placement.DefaultRegion,
		Limits:      p.Limits,
		Labels:      p.Labels,
	}
}

// List handles GET /api/v1/profiles
func (h *ProfileHandler) List(c echo.Context) error {
	var profiles []*profile.Profile

	switch venue := types.Venue(c.QueryParam("venue")); venue {
	case "":
		profiles = h.registry.List()
	case types.VenueCluster, types.VenueFaaS:
		profiles = h.registry.ListByVenue(venue)
	default:
		return ErrorBadRequest(c, "Invalid venue. Must be 'cluster' or 'faas'")
	}

	response := make([]*ProfileResponse, len(profiles))
	for i, p := range profiles {
		response[i] = toProfileResponse(p)
	}

	return SuccessOK(c, response)
}

// Get handles GET /api/v1/profiles/:name
func (h *ProfileHandler) Get(c echo.Context) error {
	prof, err := h.registry.Get(c.Param("name"))
	if err != nil {
		return ErrorNotFound(c, "Profile not found: "+err.Error())
	}

	return SuccessOK(c, toProfileResponse(prof))
}
