// Package tiering moves model artifacts between hot, cold and archive
// storage according to how recently and how often they are read.
package tiering

import (
	"time"

	"github.com/tsanders-rh/modelctl/pkg/types"
)

// Classification thresholds
const (
	RareAfterDays       = 30
	InfrequentAfterDays = 7
	MinHistory          = 5
	FrequentWindow      = 7 * 24 * time.Hour
	FrequentMinAccess   = 10
)

// Classify derives the access pattern of an artifact at now. A nil record
// means the artifact was never read. Recency counts whole days.
func Classify(rec *types.AccessRecord, now time.Time) types.AccessPattern {
	if rec == nil || rec.Count == 0 {
		return types.AccessRare
	}

	days := int(now.Sub(rec.LastAccess).Hours() / 24)
	if days > RareAfterDays {
		return types.AccessRare
	}
	if days > InfrequentAfterDays || len(rec.Recent) < MinHistory {
		return types.AccessInfrequent
	}

	recent := 0
	cutoff := now.Add(-FrequentWindow)
	for _, at := range rec.Recent {
		if !at.Before(cutoff) {
			recent++
		}
	}
	if recent >= FrequentMinAccess {
		return types.AccessFrequent
	}
	return types.AccessInfrequent
}
