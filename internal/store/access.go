package store

import (
	"context"
	"errors"
	"time"

	"github.com/tsanders-rh/modelctl/pkg/types"
)

// AccessStore keeps per-artifact access history
type AccessStore struct {
	c     collection[types.AccessRecord]
	locks *Locks
}

// Get retrieves the access record of an artifact
func (s *AccessStore) Get(ctx context.Context, key string) (*types.AccessRecord, error) {
	return s.c.get(ctx, key)
}

// Record registers one access at now: the counter increments, the last
// access moves to now and now joins the bounded recent-access ring.
func (s *AccessStore) Record(ctx context.Context, key string, now time.Time) (*types.AccessRecord, error) {
	unlock := s.locks.Lock(key)
	defer unlock()

	rec, err := s.c.get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		rec = &types.AccessRecord{Key: key}
	} else if err != nil {
		return nil, err
	}

	rec.Count++
	rec.LastAccess = now
	rec.Recent = append(rec.Recent, now)
	if len(rec.Recent) > types.MaxRecentAccesses {
		rec.Recent = rec.Recent[len(rec.Recent)-types.MaxRecentAccesses:]
	}

	if err := s.c.put(ctx, key, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes the access record of an artifact
func (s *AccessStore) Delete(ctx context.Context, key string) error {
	err := s.c.delete(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
