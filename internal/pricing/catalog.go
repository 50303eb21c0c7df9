package pricing

import (
	"fmt"
	"os"
	"sort"

	"github.com/tsanders-rh/modelctl/pkg/types"
	"gopkg.in/yaml.v3"
)

// Catalog maps provider → region → hourly unit prices
type Catalog map[types.Provider]map[string]types.UnitPrices

// DefaultCatalog returns the built-in list prices
func DefaultCatalog() Catalog {
	return Catalog{
		types.ProviderAWS: {
			"us-east-1": {CPU: 0.04, Memory: 0.01, GPU: 0.5},
			"us-west-1": {CPU: 0.045, Memory: 0.011, GPU: 0.55},
			"eu-west-1": {CPU: 0.042, Memory: 0.0105, GPU: 0.52},
		},
		types.ProviderGCP: {
			"us-central1":  {CPU: 0.035, Memory: 0.009, GPU: 0.45},
			"us-west1":     {CPU: 0.038, Memory: 0.0095, GPU: 0.48},
			"europe-west1": {CPU: 0.037, Memory: 0.0092, GPU: 0.47},
		},
		types.ProviderAzure: {
			"eastus":     {CPU: 0.038, Memory: 0.008, GPU: 0.48},
			"westus":     {CPU: 0.041, Memory: 0.0085, GPU: 0.51},
			"westeurope": {CPU: 0.04, Memory: 0.0082, GPU: 0.5},
		},
	}
}

// catalogFile is the on-disk layout of a price catalog
type catalogFile struct {
	Providers map[types.Provider]struct {
		Regions map[string]types.UnitPrices `yaml:"regions"`
	} `yaml:"providers"`
}

// LoadCatalog reads a YAML price catalog
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read price catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML price catalog
func ParseCatalog(data []byte) (Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse price catalog: %w", err)
	}

	cat := make(Catalog, len(f.Providers))
	for provider, p := range f.Providers {
		if len(p.Regions) == 0 {
			return nil, fmt.Errorf("provider %s has no regions", provider)
		}
		regions := make(map[string]types.UnitPrices, len(p.Regions))
		for region, prices := range p.Regions {
			if prices.CPU < 0 || prices.Memory < 0 || prices.GPU < 0 {
				return nil, fmt.Errorf("negative price for %s/%s", provider, region)
			}
			regions[region] = prices
		}
		cat[provider] = regions
	}
	if len(cat) == 0 {
		return nil, fmt.Errorf("price catalog has no providers")
	}
	return cat, nil
}

// Clone returns a deep copy of the catalog
func (c Catalog) Clone() Catalog {
	out := make(Catalog, len(c))
	for provider, regions := range c {
		cp := make(map[string]types.UnitPrices, len(regions))
		for region, prices := range regions {
			cp[region] = prices
		}
		out[provider] = cp
	}
	return out
}

// Providers returns the catalog's providers in name order
func (c Catalog) Providers() []types.Provider {
	out := make([]types.Provider, 0, len(c))
	for p := range c {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Regions returns a provider's regions in name order
func (c Catalog) Regions(provider types.Provider) []string {
	out := make([]string, 0, len(c[provider]))
	for r := range c[provider] {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
