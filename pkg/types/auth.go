package types

// Role represents a caller's role in the control plane
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// IsValid checks if the role is valid
func (r Role) IsValid() bool {
	switch r {
	case RoleViewer, RoleOperator, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanMutate reports whether the role may change deployments, models or artifacts
func (r Role) CanMutate() bool {
	return r == RoleOperator || r == RoleAdmin
}
