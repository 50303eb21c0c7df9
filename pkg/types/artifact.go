package types

import "time"

// MaxRecentAccesses bounds the access timestamp ring of an artifact
const MaxRecentAccesses = 100

// AccessRecord is the access history of one model artifact
type AccessRecord struct {
	Key        string      `json:"key"`
	Count      int64       `json:"count"`
	LastAccess time.Time   `json:"last_access"`
	Recent     []time.Time `json:"recent"`
}

// AccessPattern classifies how often an artifact is read
type AccessPattern string

const (
	AccessFrequent   AccessPattern = "frequent"
	AccessInfrequent AccessPattern = "infrequent"
	AccessRare       AccessPattern = "rare"
)

// Tier is a storage class for model artifacts
type Tier string

const (
	TierHot     Tier = "hot"
	TierCold    Tier = "cold"
	TierArchive Tier = "archive"
)

// TierFor maps an access pattern to its storage tier
func TierFor(p AccessPattern) Tier {
	switch p {
	case AccessFrequent:
		return TierHot
	case AccessInfrequent:
		return TierCold
	default:
		return TierArchive
	}
}

// StorageStatus is the result tag of a tiering decision
type StorageStatus string

const (
	StorageAlreadyOptimized StorageStatus = "already_optimized"
	StorageOptimized        StorageStatus = "optimized"
	StorageError            StorageStatus = "error"
)

// StorageResult reports the tiering decision for one artifact
type StorageResult struct {
	Key            string        `json:"key"`
	Status         StorageStatus `json:"status"`
	AccessPattern  AccessPattern `json:"access_pattern,omitempty"`
	Tier           Tier          `json:"tier,omitempty"`
	FromTier       Tier          `json:"from_tier,omitempty"`
	ToTier         Tier          `json:"to_tier,omitempty"`
	NewStoragePath string        `json:"new_storage_path,omitempty"`
	Error          string        `json:"error,omitempty"`
}
