package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ReportStore keeps the latest analytics report of each kind
type ReportStore struct {
	kv KV
}

// Save replaces the stored report of a kind
func (s *ReportStore) Save(ctx context.Context, kind string, report any) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode %s report: %w", kind, err)
	}
	if err := s.kv.Put(ctx, prefixAnalytics+kind, data); err != nil {
		return fmt.Errorf("put %s report: %w", kind, err)
	}
	return nil
}

// Load decodes the stored report of a kind into out
func (s *ReportStore) Load(ctx context.Context, kind string, out any) error {
	data, err := s.kv.Get(ctx, prefixAnalytics+kind)
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s report: %w", kind, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s report: %w", kind, err)
	}
	return nil
}
