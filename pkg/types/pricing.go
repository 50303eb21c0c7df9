package types

// Provider is a cloud provider identifier
type Provider string

const (
	ProviderAWS   Provider = "aws"
	ProviderGCP   Provider = "gcp"
	ProviderAzure Provider = "azure"
)

// Default placement for deployments that never recorded one
const (
	DefaultProvider Provider = ProviderAWS
	DefaultRegion            = "us-east-1"
)

// ResourceShape is the priced quantity of a deployment
type ResourceShape struct {
	CPU       float64 `json:"cpu"`
	MemoryGiB float64 `json:"memory_gib"`
	GPU       float64 `json:"gpu"`
}

// UnitPrices are hourly prices per CPU core, GiB of memory and GPU
type UnitPrices struct {
	CPU    float64 `json:"cpu" yaml:"cpu"`
	Memory float64 `json:"memory" yaml:"memory"`
	GPU    float64 `json:"gpu" yaml:"gpu"`
}

// Cost returns the hourly price of a shape at these unit prices
func (p UnitPrices) Cost(s ResourceShape) float64 {
	return s.CPU*p.CPU + s.MemoryGiB*p.Memory + s.GPU*p.GPU
}

// Quote is the price of a shape in one provider region
type Quote struct {
	Provider Provider `json:"provider"`
	Region   string   `json:"region"`
	Price    float64  `json:"price"`
}

// SpotQuote compares discounted and on-demand capacity for a shape
type SpotQuote struct {
	Available     bool    `json:"available"`
	SpotPrice     float64 `json:"spot_price"`
	OnDemandPrice float64 `json:"on_demand_price"`
}
