package deployment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tsanders-rh/modelctl/internal/policy"
	"github.com/tsanders-rh/modelctl/internal/store"
)

var (
	// ErrNotFound is returned for an unknown deployment, model or optimized model
	ErrNotFound = store.ErrNotFound

	// ErrInvalidPolicy is returned when a request is rejected before any state mutation
	ErrInvalidPolicy = errors.New("invalid policy")

	// ErrConflictingState is returned when the current status forbids an operation
	ErrConflictingState = errors.New("conflicting state")
)

// InvalidPolicyError carries the per-field reasons a request was rejected
type InvalidPolicyError struct {
	Errors []policy.ValidationError
}

func (e *InvalidPolicyError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("invalid policy: %s", strings.Join(msgs, "; "))
}

// Is matches ErrInvalidPolicy
func (e *InvalidPolicyError) Is(target error) bool {
	return target == ErrInvalidPolicy
}

func invalid(field, message string) *InvalidPolicyError {
	return &InvalidPolicyError{Errors: []policy.ValidationError{{Field: field, Message: message}}}
}

// ProvisionerError wraps a failed provisioner call. The deployment has
// already been moved to failed with the error text recorded.
type ProvisionerError struct {
	DeploymentID string
	Operation    string
	Err          error
}

func (e *ProvisionerError) Error() string {
	return fmt.Sprintf("provisioner %s failed for deployment %s: %v", e.Operation, e.DeploymentID, e.Err)
}

func (e *ProvisionerError) Unwrap() error {
	return e.Err
}
