package types

import (
	"fmt"

	"github.com/segmentio/ksuid"
)

// GenerateDeploymentID generates a unique deployment ID with prefix
func GenerateDeploymentID() string {
	return fmt.Sprintf("dep_%s", ksuid.New().String())
}

// GenerateModelID generates a unique model ID with prefix
func GenerateModelID() string {
	return fmt.Sprintf("mdl_%s", ksuid.New().String())
}

// GenerateOptimizedModelID generates a unique optimized model ID with prefix
func GenerateOptimizedModelID() string {
	return fmt.Sprintf("opt_%s", ksuid.New().String())
}

// GenerateOutcomeID generates a unique optimization outcome ID with prefix.
// KSUIDs sort by creation time, so outcome keys list in evaluation order.
func GenerateOutcomeID() string {
	return fmt.Sprintf("out_%s", ksuid.New().String())
}

// GenerateID generates a generic unique ID
func GenerateID() string {
	return ksuid.New().String()
}
