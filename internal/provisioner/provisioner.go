// Package provisioner drives the execution venues a deployment runs on.
// Every call is blocking and may fail; callers own status bookkeeping.
package provisioner

import (
	"context"
	"errors"
	"fmt"

	"github.com/tsanders-rh/modelctl/pkg/types"
)

// ErrUnsupportedVenue is returned for a venue with no registered provisioner
var ErrUnsupportedVenue = errors.New("unsupported venue")

// Provisioner creates and manages the runtime of one venue
type Provisioner interface {
	// Deploy creates the runtime and returns its service URL
	Deploy(ctx context.Context, d *types.Deployment) (string, error)
	// Update applies resources, scaling and capacity flags to a running deployment
	Update(ctx context.Context, d *types.Deployment) error
	// Delete removes the runtime. Deleting a missing runtime succeeds.
	Delete(ctx context.Context, d *types.Deployment) error
	// Hibernate releases compute while keeping the configuration
	Hibernate(ctx context.Context, d *types.Deployment) error
	// Activate restores compute for a hibernated deployment
	Activate(ctx context.Context, d *types.Deployment) error
}

// Set routes calls to the provisioner of each venue
type Set map[types.Venue]Provisioner

// For returns the provisioner of a venue
func (s Set) For(venue types.Venue) (Provisioner, error) {
	p, ok := s[venue]
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVenue, venue)
	}
	return p, nil
}

// Venues lists the venues with a registered provisioner
func (s Set) Venues() []types.Venue {
	venues := make([]types.Venue, 0, len(s))
	for v := range s {
		venues = append(venues, v)
	}
	return venues
}
