package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tsanders-rh/modelctl/pkg/types"
)

// ValidationError represents a policy validation failure
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Resolved is a deploy request with every optional field filled in
type Resolved struct {
	Venue      types.Venue
	ModelKind  types.ModelKind
	Resources  types.ResourceRequirements
	Scaling    types.ScalingPolicy
	CostPolicy types.CostPolicy
	Provider   types.Provider
	Region     string
	Metadata   types.Tags
}

// ValidationResult contains the outcome of policy validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Resolved *Resolved // set only for valid deploy requests
}

func newResult() *ValidationResult {
	return &ValidationResult{Valid: true, Errors: []ValidationError{}}
}

// AddError adds a validation error
func (r *ValidationResult) AddError(field, message string) {
	r.Valid = false
	r.Errors = append(r.Errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// FirstError returns the first validation error message
func (r *ValidationResult) FirstError() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Error()
}

// Err returns the collected errors as one error, or nil when valid
func (r *ValidationResult) Err() error {
	if !r.HasErrors() {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return errors.New(strings.Join(msgs, "; "))
}
