package policy_test

import (
	"fmt"
	"log"

	"github.com/tsanders-rh/modelctl/internal/policy"
	"github.com/tsanders-rh/modelctl/internal/profile"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

// Loads the bundled profiles and resolves a deploy request against one of them.
func Example() {
	registry, err := profile.NewRegistry(profile.NewLoader("../profile/definitions"))
	if err != nil {
		log.Fatal("Failed to create registry:", err)
	}
	fmt.Printf("profiles: %d (%d enabled)\n", registry.Count(), registry.CountEnabled())

	engine := policy.NewEngine(registry)

	result := engine.ValidateDeployRequest(&types.DeployRequest{
		Name:    "bert-gpu",
		ModelID: "mdl_1",
		Profile: "gpu-inference",
	})
	r := result.Resolved
	fmt.Printf("valid: %v\n", result.Valid)
	fmt.Printf("placement: %s/%s on %s\n", r.Provider, r.Region, r.Venue)
	fmt.Printf("resources: cpu=%g memory=%gGiB gpu=%g\n", r.Resources.CPU, r.Resources.MemoryGiB, r.Resources.GPU)
	fmt.Printf("arbitrage: %v\n", r.CostPolicy.ArbitrageEnabled)

	rejected := engine.ValidateDeployRequest(&types.DeployRequest{
		Name:    "a",
		ModelID: "mdl_1",
		Profile: "gpu-inference",
	})
	fmt.Printf("valid: %v (%s)\n", rejected.Valid, rejected.Errors[0].Field)

	// Output:
	// profiles: 4 (3 enabled)
	// valid: true
	// placement: aws/us-east-1 on cluster
	// resources: cpu=4 memory=16GiB gpu=1
	// arbitrage: true
	// valid: false (name)
}
