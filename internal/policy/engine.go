package policy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tsanders-rh/modelctl/internal/profile"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

// Function venue ceilings
const (
	MaxFunctionTimeoutSeconds = 900
	MaxFunctionMemoryGiB      = 10.0
)

var (
	dnsPattern    = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	regionPattern = regexp.MustCompile(`^[a-z]+(-?[a-z0-9]+)*$`)

	// Metadata keys written by the control plane itself
	reservedMetadataKeys = map[string]bool{"error": true}
)

// Engine validates deployment requests against profile policies
type Engine struct {
	registry *profile.Registry
	validate *validator.Validate
}

// NewEngine creates a new policy validation engine. A nil registry
// disables profile lookups.
func NewEngine(registry *profile.Registry) *Engine {
	return &Engine{
		registry: registry,
		validate: validator.New(),
	}
}

// ValidateDeployRequest validates a deploy request and resolves its defaults.
// Explicit request fields win over the profile, and the profile wins over
// package defaults.
func (e *Engine) ValidateDeployRequest(req *types.DeployRequest) *ValidationResult {
	result := newResult()

	var prof *profile.Profile
	if req.Profile != "" {
		p, err := e.profile(req.Profile)
		if err != nil {
			result.AddError("profile", fmt.Sprintf("invalid profile: %s", err))
			return result
		}
		prof = p
	}

	resolved := e.resolve(req, prof)

	e.validateName(req.Name, result)
	e.validateModelRef(req, resolved, result)
	e.validateVenue(req, prof, resolved, result)
	e.validatePlacement(prof, resolved, result)
	e.validateResources(resolved.Venue, resolved.Resources, prof, result)
	e.validateScaling(resolved.Scaling, prof, result)
	e.validateCostPolicy(resolved.CostPolicy, result)
	e.validateMetadata(req.Metadata, result)

	if result.Valid {
		result.Resolved = resolved
	}
	return result
}

// ValidateUpdateRequest validates the provided fields of an update against
// the deployment's venue and profile limits
func (e *Engine) ValidateUpdateRequest(d *types.Deployment, req *types.UpdateRequest) *ValidationResult {
	result := newResult()

	var prof *profile.Profile
	if d.Profile != "" {
		// A profile disabled after deploy no longer bounds updates
		if p, err := e.profile(d.Profile); err == nil {
			prof = p
		}
	}

	if req.Resources != nil {
		e.validateResources(d.Venue, *req.Resources, prof, result)
	}
	if req.Scaling != nil {
		e.validateScaling(*req.Scaling, prof, result)
	}
	if req.CostPolicy != nil {
		e.validateCostPolicy(*req.CostPolicy, result)
	}
	if req.DiscountedCapacity != nil && *req.DiscountedCapacity && d.Venue == types.VenueFaaS {
		result.AddError("discountedCapacity", "discounted capacity is not available on faas")
	}
	e.validateMetadata(req.Metadata, result)

	return result
}

// ValidateModel validates a model registration
func (e *Engine) ValidateModel(m *types.Model) *ValidationResult {
	result := newResult()

	if strings.TrimSpace(m.Name) == "" {
		result.AddError("name", "model name is required")
	}
	switch m.Framework {
	case types.FrameworkTensorFlow, types.FrameworkPyTorch, types.FrameworkONNX,
		types.FrameworkSklearn, types.FrameworkXGBoost, types.FrameworkCustom:
	default:
		result.AddError("framework", fmt.Sprintf("unsupported framework %q", m.Framework))
	}
	if m.Version == "" {
		result.AddError("version", "model version is required")
	}
	if m.StoragePath == "" {
		result.AddError("storagePath", "storage path is required")
	}
	e.validateMetadata(m.Metadata, result)

	return result
}

// ValidateOptimizedModel validates an optimized model registration
func (e *Engine) ValidateOptimizedModel(m *types.OptimizedModel) *ValidationResult {
	result := newResult()

	if m.OriginalModelID == "" {
		result.AddError("originalModelId", "original model id is required")
	}
	switch m.Technique {
	case types.TechniqueQuantization, types.TechniquePruning,
		types.TechniqueDistillation, types.TechniqueOperatorFusion:
	default:
		result.AddError("technique", fmt.Sprintf("unsupported technique %q", m.Technique))
	}
	switch m.HardwareTarget {
	case types.HardwareCPU, types.HardwareGPU, types.HardwareTPU, types.HardwareEdge:
	default:
		result.AddError("hardwareTarget", fmt.Sprintf("unsupported hardware target %q", m.HardwareTarget))
	}
	if m.StoragePath == "" {
		result.AddError("storagePath", "storage path is required")
	}

	return result
}

func (e *Engine) profile(name string) (*profile.Profile, error) {
	if e.registry == nil {
		return nil, fmt.Errorf("profile not found: %s", name)
	}
	return e.registry.Get(name)
}

// resolve fills omitted request fields from the profile, then from defaults
func (e *Engine) resolve(req *types.DeployRequest, prof *profile.Profile) *Resolved {
	r := &Resolved{
		Venue:      types.VenueCluster,
		ModelKind:  types.ModelKindOriginal,
		Resources:  types.DefaultResources(),
		Scaling:    types.DefaultScalingPolicy(),
		CostPolicy: types.DefaultCostPolicy(),
		Provider:   types.DefaultProvider,
		Region:     types.DefaultRegion,
		Metadata:   types.Tags{},
	}

	if prof != nil {
		r.Venue = prof.Venue
		r.Resources = prof.Resources
		r.Scaling = prof.Scaling
		r.CostPolicy = prof.CostPolicy
		r.Provider = prof.Placement.DefaultProvider
		r.Region = prof.Placement.DefaultRegion
		for k, v := range prof.Labels {
			r.Metadata[k] = v
		}
	}

	if req.Venue != "" {
		r.Venue = req.Venue
	}
	if req.ModelKind != "" {
		r.ModelKind = req.ModelKind
	}
	if req.Resources != nil {
		r.Resources = *req.Resources
	}
	if req.Scaling != nil {
		r.Scaling = *req.Scaling
	}
	if req.CostPolicy != nil {
		r.CostPolicy = *req.CostPolicy
	}
	if req.Provider != "" {
		r.Provider = req.Provider
	}
	if req.Region != "" {
		r.Region = req.Region
	}
	for k, v := range req.Metadata {
		r.Metadata[k] = v
	}

	return r
}

// validateName checks the deployment name is DNS-compatible
func (e *Engine) validateName(name string, result *ValidationResult) {
	if name == "" {
		result.AddError("name", "deployment name is required")
		return
	}

	if len(name) < 3 || len(name) > 63 {
		result.AddError("name", "deployment name must be between 3 and 63 characters")
		return
	}

	if !dnsPattern.MatchString(name) {
		result.AddError("name", "deployment name must be DNS-compatible: lowercase alphanumeric and hyphens")
	}
}

func (e *Engine) validateModelRef(req *types.DeployRequest, r *Resolved, result *ValidationResult) {
	if req.ModelID == "" {
		result.AddError("modelId", "model id is required")
	}

	switch r.ModelKind {
	case types.ModelKindOriginal, types.ModelKindOptimized:
	default:
		result.AddError("modelKind", fmt.Sprintf("unsupported model kind %q", r.ModelKind))
	}
}

func (e *Engine) validateVenue(req *types.DeployRequest, prof *profile.Profile, r *Resolved, result *ValidationResult) {
	switch r.Venue {
	case types.VenueCluster, types.VenueFaaS:
	default:
		result.AddError("venue", fmt.Sprintf("unsupported venue %q", r.Venue))
		return
	}

	if prof != nil && req.Venue != "" && req.Venue != prof.Venue {
		result.AddError("venue", fmt.Sprintf("venue %s does not match profile venue %s", req.Venue, prof.Venue))
	}
}

func (e *Engine) validatePlacement(prof *profile.Profile, r *Resolved, result *ValidationResult) {
	switch r.Provider {
	case types.ProviderAWS, types.ProviderGCP, types.ProviderAzure:
	default:
		result.AddError("provider", fmt.Sprintf("unsupported provider %q", r.Provider))
		return
	}

	if prof != nil && !prof.AllowsProvider(r.Provider) {
		result.AddError("provider", fmt.Sprintf("provider %s not in profile allowlist: %v", r.Provider, prof.Placement.Providers))
	}

	if !regionPattern.MatchString(r.Region) {
		result.AddError("region", fmt.Sprintf("invalid region %q", r.Region))
	}
}

// validateResources checks the shape is positive, fits the venue and
// stays within the profile limits
func (e *Engine) validateResources(venue types.Venue, res types.ResourceRequirements, prof *profile.Profile, result *ValidationResult) {
	if err := e.validate.Struct(res); err != nil {
		result.AddError("resources", fieldErrors(err))
		return
	}

	if venue == types.VenueFaaS {
		if res.GPU > 0 {
			result.AddError("resources.gpu", "faas deployments cannot request GPUs")
		}
		if res.TimeoutSeconds > MaxFunctionTimeoutSeconds {
			result.AddError("resources.timeoutSeconds", fmt.Sprintf("timeout %ds exceeds faas max %ds", res.TimeoutSeconds, MaxFunctionTimeoutSeconds))
		}
		if res.MemoryGiB > MaxFunctionMemoryGiB {
			result.AddError("resources.memoryGiB", fmt.Sprintf("memory %gGiB exceeds faas max %gGiB", res.MemoryGiB, MaxFunctionMemoryGiB))
		}
	}

	if prof == nil {
		return
	}
	if res.CPU > prof.Limits.MaxCPU {
		result.AddError("resources.cpu", fmt.Sprintf("cpu %g exceeds profile max %g", res.CPU, prof.Limits.MaxCPU))
	}
	if res.MemoryGiB > prof.Limits.MaxMemoryGiB {
		result.AddError("resources.memoryGiB", fmt.Sprintf("memory %g exceeds profile max %g", res.MemoryGiB, prof.Limits.MaxMemoryGiB))
	}
	if res.GPU > prof.Limits.MaxGPU {
		result.AddError("resources.gpu", fmt.Sprintf("gpu %g exceeds profile max %g", res.GPU, prof.Limits.MaxGPU))
	}
}

func (e *Engine) validateScaling(s types.ScalingPolicy, prof *profile.Profile, result *ValidationResult) {
	if err := e.validate.Struct(s); err != nil {
		result.AddError("scaling", fieldErrors(err))
		return
	}

	if prof != nil && s.MaxInstances > prof.Limits.MaxInstances {
		result.AddError("scaling.maxInstances", fmt.Sprintf("max instances %d exceeds profile max %d", s.MaxInstances, prof.Limits.MaxInstances))
	}
}

func (e *Engine) validateCostPolicy(c types.CostPolicy, result *ValidationResult) {
	if err := e.validate.Struct(c); err != nil {
		result.AddError("costPolicy", fieldErrors(err))
	}
}

func (e *Engine) validateMetadata(md map[string]string, result *ValidationResult) {
	for k := range md {
		if reservedMetadataKeys[k] {
			result.AddError("metadata", fmt.Sprintf("cannot set reserved metadata key: %s", k))
		}
	}
}

// fieldErrors flattens validator errors into one message
func fieldErrors(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, ", ")
}
