package types

// DeployRequest describes a deployment to create. Nil policy fields fall
// back to the named profile, then to package defaults.
type DeployRequest struct {
	Name       string
	ModelID    string
	ModelKind  ModelKind
	Venue      Venue
	Profile    string
	Resources  *ResourceRequirements
	Scaling    *ScalingPolicy
	CostPolicy *CostPolicy
	Provider   Provider
	Region     string
	Metadata   map[string]string
}

// UpdateRequest carries the fields to merge into a deployment; nil fields are left untouched
type UpdateRequest struct {
	Resources          *ResourceRequirements
	Scaling            *ScalingPolicy
	CostPolicy         *CostPolicy
	Metadata           map[string]string
	DiscountedCapacity *bool
}

// IsEmpty reports whether the request changes nothing
func (r UpdateRequest) IsEmpty() bool {
	return r.Resources == nil && r.Scaling == nil && r.CostPolicy == nil &&
		len(r.Metadata) == 0 && r.DiscountedCapacity == nil
}
